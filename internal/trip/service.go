package trip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AyushMusale/TripSense/internal/carbon"
	"github.com/AyushMusale/TripSense/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound        = errors.New("trip not found")
	ErrTripActive      = errors.New("trip is already active")
	ErrTripNotActive   = errors.New("trip is not active")
	ErrTripCompleted   = errors.New("trip is already completed")
	ErrIssueNotFound   = errors.New("issue not found")
	ErrIssueTransition = errors.New("issue status can only move forward")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

const tripColumns = `id, trip_code, user_id, start_location, end_location, start_time, end_time,
	duration_min, distance_m, distance_supplied, mode, purpose, fuel_type, bus_type, occupancy,
	companions, status, carbon_kg, notes, is_anonymized, share_with_planners, retention_until,
	created_at, updated_at`

// CompletionHook runs after a trip is persisted as completed or its metrics
// change while completed. Errors are logged, not returned.
type CompletionHook func(ctx context.Context, userID string, at time.Time) error

// ChangeHook runs after any write to a user's trips.
type ChangeHook func(ctx context.Context, userID string) error

type Service struct {
	db      db.Querier
	calc    *carbon.Calculator
	logger  zerolog.Logger
	hooks   []CompletionHook
	changed []ChangeHook
	now     func() time.Time
}

func NewService(db db.Querier, calc *carbon.Calculator, logger zerolog.Logger) *Service {
	if calc == nil {
		calc = carbon.Default()
	}
	return &Service{db: db, calc: calc, logger: logger, now: time.Now}
}

func (s *Service) OnCompleted(h CompletionHook) {
	s.hooks = append(s.hooks, h)
}

func (s *Service) OnChanged(h ChangeHook) {
	s.changed = append(s.changed, h)
}

func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (Trip, error) {
	if err := req.validate(); err != nil {
		return Trip{}, err
	}

	t := Trip{
		ID:            uuid.NewString(),
		TripCode:      newTripCode(),
		UserID:        userID,
		StartLocation: req.StartLocation,
		StartTime:     req.StartTime,
		Mode:          req.Mode,
		Purpose:       req.Purpose,
		CarbonOptions: req.CarbonOptions,
		Companions:    req.Companions,
		Status:        StatusPlanned,
		Notes:         req.Notes,
		Privacy: Privacy{
			ShareWithPlanners: true,
			RetentionUntil:    s.now().Add(defaultRetention),
		},
	}
	if t.Companions == nil {
		t.Companions = []Companion{}
	}
	if req.ShareWithPlanners != nil {
		t.Privacy.ShareWithPlanners = *req.ShareWithPlanners
	}
	if req.DistanceM > 0 {
		t.DistanceM = req.DistanceM
		t.DistanceSupplied = true
	}

	if req.EndLocation != nil {
		end := *req.EndLocation
		t.EndLocation = &end
		endTime := *req.EndTime
		t.EndTime = &endTime
		t.Status = StatusCompleted
		t.applyMetrics(DeriveMetrics(s.calc, t.metricsInput()))
	} else {
		t.CarbonKg = s.calc.Footprint(t.Mode, t.DistanceM, t.CarbonOptions)
	}

	args, err := t.columnArgs()
	if err != nil {
		return Trip{}, err
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO trips (id, trip_code, user_id, start_location, end_location, start_time, end_time,
			duration_min, distance_m, distance_supplied, mode, purpose, fuel_type, bus_type, occupancy,
			companions, status, carbon_kg, notes, is_anonymized, share_with_planners, retention_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING created_at, updated_at
	`, append([]any{t.ID, t.TripCode, t.UserID}, args...)...)
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return Trip{}, fmt.Errorf("insert trip: %w", err)
	}

	if t.IsCompleted() {
		s.runCompletionHooks(ctx, t)
	}
	s.runChangeHooks(ctx, t.UserID)
	return t, nil
}

// Get returns a trip owned by userID together with its issues.
func (s *Service) Get(ctx context.Context, userID, id string) (Trip, error) {
	t, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return Trip{}, err
	}
	issues, err := s.issues(ctx, t.ID)
	if err != nil {
		return Trip{}, err
	}
	t.Issues = issues
	return t, nil
}

func (s *Service) List(ctx context.Context, userID string, f ListFilter) (Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}

	where := []string{"user_id = $1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Mode != "" {
		add("mode = $%d", string(f.Mode))
	}
	if f.Purpose != "" {
		add("purpose = $%d", string(f.Purpose))
	}
	if f.From != nil {
		add("start_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("start_time <= $%d", *f.To)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM trips WHERE `+cond, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count trips: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	trips, err := s.queryTrips(ctx, fmt.Sprintf(`SELECT %s FROM trips WHERE %s ORDER BY start_time DESC LIMIT $%d OFFSET $%d`,
		tripColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return Page{}, err
	}

	pages := int(math.Ceil(float64(total) / float64(f.Limit)))
	return Page{
		Trips: trips,
		Pagination: Pagination{
			CurrentPage: f.Page,
			TotalPages:  pages,
			TotalTrips:  total,
			HasNextPage: f.Page < pages,
			HasPrevPage: f.Page > 1,
		},
	}, nil
}

func (s *Service) Update(ctx context.Context, userID, id string, req UpdateRequest) (Trip, error) {
	if err := validateStruct(req); err != nil {
		return Trip{}, err
	}
	t, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return Trip{}, err
	}

	recompute := false
	if req.Mode != nil && *req.Mode != t.Mode {
		t.Mode = *req.Mode
		recompute = true
	}
	if req.Purpose != nil {
		t.Purpose = *req.Purpose
	}
	if req.DistanceM != nil {
		t.DistanceM = *req.DistanceM
		t.DistanceSupplied = *req.DistanceM > 0
		recompute = true
	}
	if req.CarbonOptions != nil {
		t.CarbonOptions = *req.CarbonOptions
		recompute = true
	}
	if req.Companions != nil {
		t.Companions = req.Companions
	}
	if req.Notes != nil {
		t.Notes = *req.Notes
	}
	if req.ShareWithPlanners != nil {
		t.Privacy.ShareWithPlanners = *req.ShareWithPlanners
	}
	completed := t.IsCompleted() && t.EndLocation != nil
	switch {
	case recompute && completed:
		if !t.DistanceSupplied {
			t.DistanceM = 0
		}
		t.applyMetrics(DeriveMetrics(s.calc, t.metricsInput()))
	case recompute:
		t.CarbonKg = s.calc.Footprint(t.Mode, t.DistanceM, t.CarbonOptions)
	}

	if err := s.save(ctx, &t); err != nil {
		return Trip{}, err
	}
	if recompute && completed {
		s.runCompletionHooks(ctx, t)
	}
	s.runChangeHooks(ctx, t.UserID)
	return t, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM trips WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.runChangeHooks(ctx, userID)
	return nil
}

// Start moves a planned trip to active and stamps its start time.
func (s *Service) Start(ctx context.Context, userID, id string) (Trip, error) {
	t, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return Trip{}, err
	}
	switch t.Status {
	case StatusActive:
		return Trip{}, ErrTripActive
	case StatusCompleted:
		return Trip{}, ErrTripCompleted
	}

	t.Status = StatusActive
	t.StartTime = s.now()
	t.StartLocation.Timestamp = t.StartTime
	if err := s.save(ctx, &t); err != nil {
		return Trip{}, err
	}
	s.runChangeHooks(ctx, t.UserID)
	return t, nil
}

// End completes an active trip at the given location and re-derives its metrics.
func (s *Service) End(ctx context.Context, userID, id string, req EndRequest) (Trip, error) {
	if err := validateStruct(req); err != nil {
		return Trip{}, err
	}
	t, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return Trip{}, err
	}
	if !t.IsActive() {
		return Trip{}, ErrTripNotActive
	}

	end := req.EndLocation
	endTime := s.now()
	t.EndLocation = &end
	t.EndTime = &endTime
	t.Status = StatusCompleted
	if !t.DistanceSupplied {
		t.DistanceM = 0
	}
	t.applyMetrics(DeriveMetrics(s.calc, t.metricsInput()))

	if err := s.save(ctx, &t); err != nil {
		return Trip{}, err
	}
	s.runCompletionHooks(ctx, t)
	s.runChangeHooks(ctx, t.UserID)
	return t, nil
}

func (s *Service) Anonymize(ctx context.Context, userID, id string) (Trip, error) {
	t, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return Trip{}, err
	}
	t.Anonymize()
	if err := s.save(ctx, &t); err != nil {
		return Trip{}, err
	}
	s.runChangeHooks(ctx, t.UserID)
	return t, nil
}

func (s *Service) ReportIssue(ctx context.Context, userID, tripID string, req IssueRequest) (Issue, error) {
	if err := validateStruct(req); err != nil {
		return Issue{}, err
	}
	if err := s.checkOwner(ctx, userID, tripID); err != nil {
		return Issue{}, err
	}

	issue := Issue{
		ID:          uuid.NewString(),
		TripID:      tripID,
		Type:        req.Type,
		Description: req.Description,
		Location:    req.Location,
		Photos:      req.Photos,
		Severity:    req.Severity,
		Status:      IssueReported,
	}
	if issue.Photos == nil {
		issue.Photos = []string{}
	}
	if issue.Severity == "" {
		issue.Severity = "medium"
	}
	loc, err := marshalOptional(issue.Location)
	if err != nil {
		return Issue{}, err
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO trip_issues (id, trip_id, type, description, location, photos, severity, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING reported_at, updated_at
	`, issue.ID, issue.TripID, issue.Type, issue.Description, loc, issue.Photos, issue.Severity, string(issue.Status))
	if err := row.Scan(&issue.ReportedAt, &issue.UpdatedAt); err != nil {
		return Issue{}, fmt.Errorf("insert issue: %w", err)
	}
	return issue, nil
}

func (s *Service) UpdateIssueStatus(ctx context.Context, userID, tripID, issueID string, next IssueStatus) error {
	if err := validateStruct(IssueStatusRequest{Status: next}); err != nil {
		return err
	}
	if _, err := uuid.Parse(issueID); err != nil {
		return ErrIssueNotFound
	}
	var current IssueStatus
	err := s.db.QueryRow(ctx, `
		SELECT i.status
		FROM trip_issues i JOIN trips t ON t.id = i.trip_id
		WHERE i.id=$1 AND i.trip_id=$2 AND t.user_id=$3
	`, issueID, tripID, userID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrIssueNotFound
	}
	if err != nil {
		return fmt.Errorf("load issue: %w", err)
	}
	if !current.CanMoveTo(next) {
		return fmt.Errorf("%w: %s to %s", ErrIssueTransition, current, next)
	}

	if _, err := s.db.Exec(ctx, `UPDATE trip_issues SET status=$2, updated_at=now() WHERE id=$1`, issueID, string(next)); err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	return nil
}

// Stats summarises the completed trips of a user.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	var st Stats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(distance_m),0), COALESCE(SUM(duration_min),0), COALESCE(SUM(carbon_kg),0),
			COALESCE(AVG(distance_m),0)::float8, COALESCE(AVG(duration_min),0)::float8
		FROM trips WHERE user_id=$1 AND status='completed'
	`, userID).Scan(&st.TotalTrips, &st.TotalDistanceM, &st.TotalDurationMin, &st.TotalCarbonKg, &st.AverageDistanceM, &st.AverageDuration)
	if err != nil {
		return Stats{}, fmt.Errorf("trip stats: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT mode, COUNT(*), COALESCE(SUM(distance_m),0), COALESCE(SUM(duration_min),0)
		FROM trips WHERE user_id=$1 AND status='completed'
		GROUP BY mode ORDER BY mode
	`, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("trip mode stats: %w", err)
	}
	defer rows.Close()

	st.ModeBreakdown = []ModeStats{}
	for rows.Next() {
		var m ModeStats
		if err := rows.Scan(&m.Mode, &m.Trips, &m.DistanceM, &m.DurationMin); err != nil {
			return Stats{}, err
		}
		st.ModeBreakdown = append(st.ModeBreakdown, m)
	}
	return st, rows.Err()
}

// CompletedBetween returns completed trips whose start time falls in [from, to).
func (s *Service) CompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]Trip, error) {
	return s.queryTrips(ctx, `SELECT `+tripColumns+`
		FROM trips WHERE user_id=$1 AND status='completed' AND start_time >= $2 AND start_time < $3
		ORDER BY start_time`, userID, from, to)
}

// SharedBetween returns completed trips of every user that opted in to
// sharing with planners, with a start time in [from, to).
func (s *Service) SharedBetween(ctx context.Context, from, to time.Time) ([]Trip, error) {
	return s.queryTrips(ctx, `SELECT `+tripColumns+`
		FROM trips WHERE share_with_planners AND status='completed' AND start_time >= $1 AND start_time < $2
		ORDER BY start_time`, from, to)
}

// Recent returns the latest trips of a user regardless of status.
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]Trip, error) {
	return s.queryTrips(ctx, `SELECT `+tripColumns+`
		FROM trips WHERE user_id=$1 ORDER BY start_time DESC LIMIT $2`, userID, limit)
}

func (s *Service) getOwned(ctx context.Context, userID, id string) (Trip, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Trip{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=$1 AND user_id=$2`, id, userID)
	t, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Trip{}, ErrNotFound
	}
	if err != nil {
		return Trip{}, fmt.Errorf("load trip: %w", err)
	}
	return t, nil
}

func (s *Service) checkOwner(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trips WHERE id=$1 AND user_id=$2)`, id, userID).Scan(&exists); err != nil {
		return fmt.Errorf("check trip: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (s *Service) save(ctx context.Context, t *Trip) error {
	args, err := t.columnArgs()
	if err != nil {
		return err
	}
	row := s.db.QueryRow(ctx, `
		UPDATE trips
		SET start_location=$3, end_location=$4, start_time=$5, end_time=$6, duration_min=$7, distance_m=$8,
			distance_supplied=$9, mode=$10, purpose=$11, fuel_type=$12, bus_type=$13, occupancy=$14,
			companions=$15, status=$16, carbon_kg=$17, notes=$18, is_anonymized=$19, share_with_planners=$20,
			retention_until=$21, updated_at=now()
		WHERE id=$1 AND user_id=$2
		RETURNING updated_at
	`, append([]any{t.ID, t.UserID}, args...)...)
	err = row.Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update trip: %w", err)
	}
	return nil
}

func (s *Service) queryTrips(ctx context.Context, sql string, args ...any) ([]Trip, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	trips := []Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

func (s *Service) issues(ctx context.Context, tripID string) ([]Issue, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, trip_id, type, description, location, photos, severity, status, reported_at, updated_at
		FROM trip_issues WHERE trip_id=$1
		ORDER BY reported_at
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		var i Issue
		var loc []byte
		if err := rows.Scan(&i.ID, &i.TripID, &i.Type, &i.Description, &loc, &i.Photos, &i.Severity, &i.Status, &i.ReportedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		if len(loc) > 0 {
			i.Location = &Location{}
			if err := json.Unmarshal(loc, i.Location); err != nil {
				return nil, fmt.Errorf("decode issue location: %w", err)
			}
		}
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

func (s *Service) runCompletionHooks(ctx context.Context, t Trip) {
	at := t.StartTime
	for _, h := range s.hooks {
		if err := h(ctx, t.UserID, at); err != nil {
			s.logger.Error().Err(err).Str("trip_id", t.ID).Str("user_id", t.UserID).Msg("trip completion hook failed")
		}
	}
}

func (s *Service) runChangeHooks(ctx context.Context, userID string) {
	for _, h := range s.changed {
		if err := h(ctx, userID); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("trip change hook failed")
		}
	}
}

func (t *Trip) metricsInput() MetricsInput {
	in := MetricsInput{
		Start:     t.StartLocation.Point(),
		StartTime: t.StartTime,
		DistanceM: t.DistanceM,
		Mode:      t.Mode,
		Options:   t.CarbonOptions,
	}
	if t.EndLocation != nil {
		in.End = t.EndLocation.Point()
	}
	if t.EndTime != nil {
		in.EndTime = *t.EndTime
	}
	return in
}

func (t *Trip) applyMetrics(m Metrics) {
	t.DistanceM = m.DistanceM
	t.DurationMin = m.DurationMin
	t.CarbonKg = m.CarbonKg
}

// columnArgs returns the mutable columns in insert order, from start_location
// through retention_until.
func (t *Trip) columnArgs() ([]any, error) {
	start, err := json.Marshal(t.StartLocation)
	if err != nil {
		return nil, fmt.Errorf("encode start location: %w", err)
	}
	end, err := marshalOptional(t.EndLocation)
	if err != nil {
		return nil, fmt.Errorf("encode end location: %w", err)
	}
	companions, err := json.Marshal(t.Companions)
	if err != nil {
		return nil, fmt.Errorf("encode companions: %w", err)
	}
	return []any{
		start, end, t.StartTime, t.EndTime, t.DurationMin, t.DistanceM, t.DistanceSupplied,
		string(t.Mode), string(t.Purpose), t.CarbonOptions.FuelType, t.CarbonOptions.BusType, t.CarbonOptions.Occupancy,
		companions, string(t.Status), t.CarbonKg, t.Notes, t.Privacy.IsAnonymized, t.Privacy.ShareWithPlanners,
		t.Privacy.RetentionUntil,
	}, nil
}

func scanTrip(row pgx.Row) (Trip, error) {
	var t Trip
	var start, end, companions []byte
	err := row.Scan(&t.ID, &t.TripCode, &t.UserID, &start, &end, &t.StartTime, &t.EndTime,
		&t.DurationMin, &t.DistanceM, &t.DistanceSupplied, &t.Mode, &t.Purpose,
		&t.CarbonOptions.FuelType, &t.CarbonOptions.BusType, &t.CarbonOptions.Occupancy,
		&companions, &t.Status, &t.CarbonKg, &t.Notes, &t.Privacy.IsAnonymized, &t.Privacy.ShareWithPlanners,
		&t.Privacy.RetentionUntil, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Trip{}, err
	}

	if err := json.Unmarshal(start, &t.StartLocation); err != nil {
		return Trip{}, fmt.Errorf("decode start location: %w", err)
	}
	if len(end) > 0 && string(end) != "null" {
		t.EndLocation = &Location{}
		if err := json.Unmarshal(end, t.EndLocation); err != nil {
			return Trip{}, fmt.Errorf("decode end location: %w", err)
		}
	}
	t.Companions = []Companion{}
	if len(companions) > 0 {
		if err := json.Unmarshal(companions, &t.Companions); err != nil {
			return Trip{}, fmt.Errorf("decode companions: %w", err)
		}
	}
	return t, nil
}

func marshalOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func newTripCode() string {
	return "trip_" + ulid.Make().String()
}
