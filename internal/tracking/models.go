package tracking

import (
	"time"

	"github.com/AyushMusale/TripSense/internal/shared/geo"
)

// RoutePoint is one GPS fix recorded while a trip is active.
type RoutePoint struct {
	ID         int64     `json:"id"`
	TripID     string    `json:"trip_id"`
	Lat        float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Lng        float64   `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy   *float64  `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Speed      *float64  `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Heading    *float64  `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	RecordedAt time.Time `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

func (p RoutePoint) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng, Time: p.RecordedAt}
}

type Summary struct {
	TripID          string      `json:"trip_id"`
	PointCount      int         `json:"point_count"`
	DroppedPoints   int         `json:"dropped_points"`
	RawDistanceM    float64     `json:"raw_distance_m"`
	DistanceM       float64     `json:"distance_m"`
	DurationSec     int64       `json:"duration_sec"`
	AverageSpeedKmh float64     `json:"average_speed_kmh"`
	MaxSegmentKmh   float64     `json:"max_segment_speed_kmh"`
	Stops           []geo.Stop  `json:"stops"`
	Bounds          *geo.Bounds `json:"bounds,omitempty"`
	Center          *geo.Point  `json:"center,omitempty"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	LastFixAt       *time.Time  `json:"last_fix_at,omitempty"`
}

// Update is the message pushed to live subscribers of a trip.
type Update struct {
	Type   string     `json:"type"`
	TripID string     `json:"trip_id"`
	Point  RoutePoint `json:"point"`
}
