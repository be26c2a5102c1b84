package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AyushMusale/TripSense/internal/db"
	"github.com/AyushMusale/TripSense/internal/shared/geo"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

var (
	ErrTripNotFound  = errors.New("trip not found")
	ErrTripNotActive = errors.New("trip is not active")
)

var validate = validator.New()

// Broadcaster pushes a payload to everyone watching a trip.
type Broadcaster interface {
	Broadcast(ctx context.Context, tripID string, payload []byte)
}

type Service struct {
	db          db.Querier
	hub         Broadcaster
	logger      zerolog.Logger
	maxSpeedKmh float64
	stops       geo.StopOptions
	now         func() time.Time
}

func NewService(db db.Querier, hub Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		db:          db,
		hub:         hub,
		logger:      logger,
		maxSpeedKmh: geo.DefaultMaxSpeedKmh,
		now:         time.Now,
	}
}

// AddPoint records a fix for an active trip owned by userID and pushes it to live subscribers.
func (s *Service) AddPoint(ctx context.Context, userID, tripID string, p RoutePoint) (RoutePoint, error) {
	if err := validate.Struct(p); err != nil {
		return RoutePoint{}, err
	}
	status, err := s.tripStatus(ctx, userID, tripID)
	if err != nil {
		return RoutePoint{}, err
	}
	if status != "active" {
		return RoutePoint{}, ErrTripNotActive
	}

	if p.RecordedAt.IsZero() {
		p.RecordedAt = s.now()
	}
	p.TripID = tripID

	row := s.db.QueryRow(ctx, `
		INSERT INTO trip_route_points (trip_id, lat, lng, accuracy, altitude, speed, heading, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at
	`, tripID, p.Lat, p.Lng, p.Accuracy, p.Altitude, p.Speed, p.Heading, p.RecordedAt)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return RoutePoint{}, fmt.Errorf("insert route point: %w", err)
	}

	if s.hub != nil {
		payload, err := json.Marshal(Update{Type: "location_update", TripID: tripID, Point: p})
		if err != nil {
			s.logger.Error().Err(err).Str("trip_id", tripID).Msg("encode location update")
		} else {
			s.hub.Broadcast(ctx, tripID, payload)
		}
	}
	return p, nil
}

// Points returns the recorded route of a trip in time order.
func (s *Service) Points(ctx context.Context, userID, tripID string) ([]RoutePoint, error) {
	if _, err := s.tripStatus(ctx, userID, tripID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, trip_id, lat, lng, accuracy, altitude, speed, heading, recorded_at, created_at
		FROM trip_route_points WHERE trip_id=$1
		ORDER BY recorded_at, id
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query route points: %w", err)
	}
	defer rows.Close()

	points := []RoutePoint{}
	for rows.Next() {
		var p RoutePoint
		if err := rows.Scan(&p.ID, &p.TripID, &p.Lat, &p.Lng, &p.Accuracy, &p.Altitude, &p.Speed, &p.Heading, &p.RecordedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Summary derives distance, speed, stops and extent from the recorded route.
// Fixes implying impossible speeds are dropped before measuring.
func (s *Service) Summary(ctx context.Context, userID, tripID string) (Summary, error) {
	points, err := s.Points(ctx, userID, tripID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(tripID, points, s.maxSpeedKmh, s.stops), nil
}

// Summarize is the pure part of Summary.
func Summarize(tripID string, points []RoutePoint, maxSpeedKmh float64, stops geo.StopOptions) Summary {
	track := make([]geo.Point, len(points))
	for i, p := range points {
		track[i] = p.Point()
	}
	smoothed := geo.SmoothTrack(track, maxSpeedKmh)

	sum := Summary{
		TripID:          tripID,
		PointCount:      len(points),
		DroppedPoints:   len(track) - len(smoothed),
		RawDistanceM:    geo.TrackDistance(track),
		DistanceM:       geo.TrackDistance(smoothed),
		AverageSpeedKmh: geo.AverageSpeed(smoothed),
		Stops:           geo.DetectStops(smoothed, stops),
	}
	if sum.Stops == nil {
		sum.Stops = []geo.Stop{}
	}
	for i := 1; i < len(smoothed); i++ {
		if v := geo.Speed(smoothed[i-1], smoothed[i]); v > sum.MaxSegmentKmh {
			sum.MaxSegmentKmh = v
		}
	}
	if b, ok := geo.BoundsOf(smoothed); ok {
		sum.Bounds = &b
	}
	if c, ok := geo.Center(smoothed); ok {
		sum.Center = &c
	}
	if len(smoothed) > 0 {
		first, last := smoothed[0].Time, smoothed[len(smoothed)-1].Time
		sum.StartedAt, sum.LastFixAt = &first, &last
		sum.DurationSec = int64(last.Sub(first).Seconds())
	}
	return sum
}

// CanWatch reports whether userID owns tripID and may follow it live.
func (s *Service) CanWatch(ctx context.Context, userID, tripID string) (bool, error) {
	_, err := s.tripStatus(ctx, userID, tripID)
	if errors.Is(err, ErrTripNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) tripStatus(ctx context.Context, userID, tripID string) (string, error) {
	if _, err := uuid.Parse(tripID); err != nil {
		return "", ErrTripNotFound
	}
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM trips WHERE id=$1 AND user_id=$2`, tripID, userID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrTripNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load trip: %w", err)
	}
	return status, nil
}
