package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AyushMusale/TripSense/internal/carbon"
	"github.com/AyushMusale/TripSense/internal/db"
	"github.com/AyushMusale/TripSense/internal/shared/travel"
	"github.com/AyushMusale/TripSense/internal/trip"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mmcloughlin/geohash"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	recentTripsLimit     = 10
	dailyActivityDays    = 30
	defaultLookback      = 365 * 24 * time.Hour
	defaultHeatPrecision = 6
	maxHeatPrecision     = 12
	dashboardKeyPrefix   = "analytics:dashboard:"

	highCarbonInsightKg      = 20.0
	highDistanceInsightM     = 100000.0
	lowConsistencyInsight    = 0.3
	carDependencyTripsFactor = 2
)

var (
	ErrNoData       = errors.New("no trip data found for the specified period")
	ErrNoSnapshot   = errors.New("no analytics snapshot found")
	ErrBadPrecision = errors.New("precision must be between 1 and 12")
)

var validate = validator.New()

// TripSource is the trip storage the aggregator reads from.
type TripSource interface {
	// CompletedBetween returns completed trips of userID with a start time in [from, to).
	CompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]trip.Trip, error)
	Recent(ctx context.Context, userID string, limit int) ([]trip.Trip, error)
	// SharedBetween returns completed trips of all users sharing with planners.
	SharedBetween(ctx context.Context, from, to time.Time) ([]trip.Trip, error)
}

type Service struct {
	db       db.Querier
	trips    TripSource
	calc     *carbon.Calculator
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService wires the aggregator. A nil cache disables dashboard caching.
func NewService(db db.Querier, trips TripSource, calc *carbon.Calculator, cache *redis.Client, cacheTTL time.Duration, logger zerolog.Logger) *Service {
	if calc == nil {
		calc = carbon.Default()
	}
	return &Service{
		db:       db,
		trips:    trips,
		calc:     calc,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate builds and stores a fresh snapshot for the period around req.Date.
// Earlier snapshots of the same window are left untouched.
func (s *Service) Generate(ctx context.Context, userID string, req GenerateRequest) (*Snapshot, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	anchor := s.now()
	if req.Date != nil {
		anchor = *req.Date
	}

	start, end := Window(req.Period, anchor)
	trips, err := s.trips.CompletedBetween(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load trips: %w", err)
	}
	if len(trips) == 0 {
		return nil, ErrNoData
	}

	prevStart, prevEnd := Window(req.Period, previousAnchor(start))
	prev, err := s.latestBetween(ctx, userID, req.Period, prevStart, prevEnd)
	if err != nil && !errors.Is(err, ErrNoSnapshot) {
		return nil, err
	}

	snap := Build(s.calc, BuildInput{
		Period:   req.Period,
		Anchor:   anchor,
		Trips:    trips,
		Previous: prev,
		Goals:    req.Goals,
	})
	snap.ID = uuid.NewString()
	snap.UserID = userID

	if err := s.insert(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.InvalidateDashboard(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("invalidate dashboard cache")
	}
	return snap, nil
}

// RegenerateDaily refreshes the daily snapshot containing at. It is meant to
// run after a trip completes; an empty day is not an error.
func (s *Service) RegenerateDaily(ctx context.Context, userID string, at time.Time) error {
	_, err := s.Generate(ctx, userID, GenerateRequest{Period: Daily, Date: &at})
	if errors.Is(err, ErrNoData) {
		return nil
	}
	return err
}

// Latest returns the most recent snapshot, optionally restricted to a period.
func (s *Service) Latest(ctx context.Context, userID string, period Period) (*Snapshot, error) {
	row := s.db.QueryRow(ctx, `SELECT `+snapshotColumns+`
		FROM analytics_snapshots
		WHERE user_id=$1 AND ($2 = '' OR period = $2)
		ORDER BY anchor_date DESC, generated_at DESC
		LIMIT 1`, userID, string(period))
	return scanSnapshot(row)
}

func (s *Service) Dashboard(ctx context.Context, userID string, q DashboardQuery) (Dashboard, error) {
	if q.Period == "" {
		q.Period = Monthly
	}
	from, to := Window(q.Period, s.now())
	if q.From != nil {
		from = *q.From
	}
	if q.To != nil {
		to = *q.To
	}

	key := fmt.Sprintf("%s%s:%s:%d:%d", dashboardKeyPrefix, userID, q.Period, from.Unix(), to.Unix())
	if d, ok := s.cachedDashboard(ctx, key); ok {
		return d, nil
	}

	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := s.latestBetween(gctx, userID, q.Period, from, to)
		if errors.Is(err, ErrNoSnapshot) {
			d.Analytics = emptySnapshot(q.Period)
			return nil
		}
		d.Analytics = snap
		return err
	})
	g.Go(func() error {
		recent, err := s.trips.Recent(gctx, userID, recentTripsLimit)
		d.RecentTrips = recent
		return err
	})
	g.Go(func() error {
		dist, err := s.distribution(gctx, "mode", userID, from, to)
		d.ModeDistribution = dist
		return err
	})
	g.Go(func() error {
		dist, err := s.distribution(gctx, "purpose", userID, from, to)
		d.PurposeDistribution = dist
		return err
	})
	g.Go(func() error {
		activity, err := s.dailyActivity(gctx, userID, s.now().AddDate(0, 0, -dailyActivityDays))
		d.DailyActivity = activity
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	s.storeDashboard(ctx, key, d)
	return d, nil
}

// Insights turns the latest snapshot into personal advice. Without any
// snapshot the report is empty.
func (s *Service) Insights(ctx context.Context, userID string) (InsightReport, error) {
	snap, err := s.Latest(ctx, userID, "")
	if errors.Is(err, ErrNoSnapshot) {
		return InsightReport{Insights: []Insight{}, Recommendations: []Recommendation{}, Trends: defaultTrends()}, nil
	}
	if err != nil {
		return InsightReport{}, err
	}

	m := snap.Metrics
	insights := []Insight{}
	if m.TotalCarbonKg > highCarbonInsightKg {
		insights = append(insights, Insight{
			Type:     "carbon",
			Title:    "High Carbon Footprint",
			Message:  printer.Sprintf("Your carbon footprint is %.1f kg CO2. Consider using more sustainable transport modes.", m.TotalCarbonKg),
			Severity: "high",
			Action:   "Try walking or cycling for short trips",
		})
	}
	if m.TotalDistanceM > highDistanceInsightM {
		insights = append(insights, Insight{
			Type:     "distance",
			Title:    "High Travel Distance",
			Message:  printer.Sprintf("You've traveled %.1f km. Consider optimizing your routes.", m.TotalDistanceM/1000),
			Severity: "medium",
			Action:   "Plan more efficient routes or combine trips",
		})
	}
	if snap.Insights.ConsistencyScore < lowConsistencyInsight {
		insights = append(insights, Insight{
			Type:     "consistency",
			Title:    "Low Activity Consistency",
			Message:  "Your travel patterns are irregular. Try to maintain a consistent routine.",
			Severity: "low",
			Action:   "Set a daily travel goal",
		})
	}
	carTrips := m.ModeBreakdown[travel.GroupCar].Trips
	activeTrips := m.ModeBreakdown[travel.GroupWalking].Trips + m.ModeBreakdown[travel.GroupCycling].Trips
	if carTrips > activeTrips*carDependencyTripsFactor {
		insights = append(insights, Insight{
			Type:     "mode_shift",
			Title:    "Car Dependency",
			Message:  "You use your car significantly more than active transport. Consider alternatives.",
			Severity: "medium",
			Action:   "Try walking or cycling for trips under 2km",
		})
	}

	recs := snap.Recommendations
	if recs == nil {
		recs = []Recommendation{}
	}
	goals := snap.Goals
	return InsightReport{Insights: insights, Recommendations: recs, Trends: snap.Trends, Goals: &goals}, nil
}

// CarbonInsights reports on completed trips in [from, to). Nil bounds default
// to the past year. A non-nil distanceM adds the mode ranking for that distance.
func (s *Service) CarbonInsights(ctx context.Context, userID string, from, to *time.Time, distanceM *float64) (CarbonReport, error) {
	start, end := s.rangeOrLookback(from, to, defaultLookback)
	trips, err := s.trips.CompletedBetween(ctx, userID, start, end)
	if err != nil {
		return CarbonReport{}, fmt.Errorf("load trips: %w", err)
	}

	ct := make([]carbon.Trip, len(trips))
	for i, t := range trips {
		ct[i] = t.CarbonTrip()
	}
	report := CarbonReport{Report: s.calc.Insights(ct)}
	if distanceM != nil {
		report.Ranking = s.calc.Ranking(*distanceM, carbon.Options{})
	}
	return report, nil
}

// Heatmap buckets trip start and end points into geohash cells, busiest first.
func (s *Service) Heatmap(ctx context.Context, userID string, from, to *time.Time, precision int) ([]HeatCell, error) {
	return s.heatmap(from, to, precision, func(start, end time.Time) ([]trip.Trip, error) {
		return s.trips.CompletedBetween(ctx, userID, start, end)
	})
}

// SharedHeatmap is Heatmap over every trip shared with planners.
func (s *Service) SharedHeatmap(ctx context.Context, from, to *time.Time, precision int) ([]HeatCell, error) {
	return s.heatmap(from, to, precision, func(start, end time.Time) ([]trip.Trip, error) {
		return s.trips.SharedBetween(ctx, start, end)
	})
}

func (s *Service) heatmap(from, to *time.Time, precision int, load func(start, end time.Time) ([]trip.Trip, error)) ([]HeatCell, error) {
	if precision == 0 {
		precision = defaultHeatPrecision
	}
	if precision < 1 || precision > maxHeatPrecision {
		return nil, ErrBadPrecision
	}
	start, end := s.rangeOrLookback(from, to, defaultLookback)
	trips, err := load(start, end)
	if err != nil {
		return nil, fmt.Errorf("load trips: %w", err)
	}
	return HeatmapOf(trips, uint(precision)), nil
}

// HeatmapOf is the pure part of Heatmap.
func HeatmapOf(trips []trip.Trip, precision uint) []HeatCell {
	cells := map[string]*HeatCell{}
	cell := func(lat, lng float64) *HeatCell {
		hash := geohash.EncodeWithPrecision(lat, lng, precision)
		c, ok := cells[hash]
		if !ok {
			clat, clng := geohash.DecodeCenter(hash)
			c = &HeatCell{Geohash: hash, Lat: clat, Lng: clng}
			cells[hash] = c
		}
		return c
	}
	for _, t := range trips {
		cell(t.StartLocation.Lat, t.StartLocation.Lng).Starts++
		if t.EndLocation != nil {
			cell(t.EndLocation.Lat, t.EndLocation.Lng).Ends++
		}
	}

	out := make([]HeatCell, 0, len(cells))
	for _, c := range cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total() != out[j].Total() {
			return out[i].Total() > out[j].Total()
		}
		return out[i].Geohash < out[j].Geohash
	})
	return out
}

func (s *Service) rangeOrLookback(from, to *time.Time, lookback time.Duration) (time.Time, time.Time) {
	end := s.now()
	if to != nil {
		end = *to
	}
	start := end.Add(-lookback)
	if from != nil {
		start = *from
	}
	return start, end
}

const snapshotColumns = `id, user_id, period, anchor_date, window_start, window_end,
	metrics, insights, trends, goals, recommendations, generated_at`

func (s *Service) latestBetween(ctx context.Context, userID string, period Period, from, to time.Time) (*Snapshot, error) {
	row := s.db.QueryRow(ctx, `SELECT `+snapshotColumns+`
		FROM analytics_snapshots
		WHERE user_id=$1 AND period=$2 AND anchor_date >= $3 AND anchor_date < $4
		ORDER BY anchor_date DESC, generated_at DESC
		LIMIT 1`, userID, string(period), from, to)
	return scanSnapshot(row)
}

func (s *Service) insert(ctx context.Context, snap *Snapshot) error {
	var cols [5][]byte
	for i, v := range []any{snap.Metrics, snap.Insights, snap.Trends, snap.Goals, snap.Recommendations} {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		cols[i] = raw
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO analytics_snapshots (id, user_id, period, anchor_date, window_start, window_end,
			metrics, insights, trends, goals, recommendations)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING generated_at
	`, snap.ID, snap.UserID, string(snap.Period), snap.AnchorDate, snap.WindowStart, snap.WindowEnd,
		cols[0], cols[1], cols[2], cols[3], cols[4])
	if err := row.Scan(&snap.GeneratedAt); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var snap Snapshot
	var metrics, insights, trends, goals, recs []byte
	err := row.Scan(&snap.ID, &snap.UserID, &snap.Period, &snap.AnchorDate, &snap.WindowStart, &snap.WindowEnd,
		&metrics, &insights, &trends, &goals, &recs, &snap.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{metrics, &snap.Metrics},
		{insights, &snap.Insights},
		{trends, &snap.Trends},
		{goals, &snap.Goals},
		{recs, &snap.Recommendations},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	}
	return &snap, nil
}

// distribution groups completed trips in [from, to) by column, busiest first.
func (s *Service) distribution(ctx context.Context, column, userID string, from, to time.Time) ([]Distribution, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+column+`, COUNT(*), COALESCE(SUM(distance_m),0), COALESCE(SUM(duration_min),0), COALESCE(SUM(carbon_kg),0)
		FROM trips
		WHERE user_id=$1 AND status='completed' AND start_time >= $2 AND start_time < $3
		GROUP BY `+column+`
		ORDER BY COUNT(*) DESC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s distribution: %w", column, err)
	}
	defer rows.Close()

	out := []Distribution{}
	for rows.Next() {
		var d Distribution
		if err := rows.Scan(&d.Key, &d.Trips, &d.DistanceM, &d.DurationMin, &d.CarbonKg); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Service) dailyActivity(ctx context.Context, userID string, since time.Time) ([]DailyActivity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT to_char(date_trunc('day', start_time), 'YYYY-MM-DD') AS day, COUNT(*),
			COALESCE(SUM(distance_m),0), COALESCE(SUM(duration_min),0), COALESCE(SUM(carbon_kg),0)
		FROM trips
		WHERE user_id=$1 AND status='completed' AND start_time >= $2
		GROUP BY day
		ORDER BY day DESC
		LIMIT $3
	`, userID, since, dailyActivityDays)
	if err != nil {
		return nil, fmt.Errorf("query daily activity: %w", err)
	}
	defer rows.Close()

	out := []DailyActivity{}
	for rows.Next() {
		var a DailyActivity
		if err := rows.Scan(&a.Date, &a.Trips, &a.DistanceM, &a.DurationMin, &a.CarbonKg); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Service) cachedDashboard(ctx context.Context, key string) (Dashboard, bool) {
	if s.cache == nil {
		return Dashboard{}, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache read failed")
		}
		return Dashboard{}, false
	}
	var d Dashboard
	if err := json.Unmarshal(raw, &d); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache entry unreadable")
		return Dashboard{}, false
	}
	return d, true
}

func (s *Service) storeDashboard(ctx context.Context, key string, d Dashboard) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode dashboard")
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache write failed")
	}
}

// InvalidateDashboard drops every cached dashboard of userID. It runs after
// any change to the user's trips or snapshots.
func (s *Service) InvalidateDashboard(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	iter := s.cache.Scan(ctx, 0, dashboardKeyPrefix+userID+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan dashboard cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete dashboard cache: %w", err)
	}
	return nil
}
