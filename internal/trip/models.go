package trip

import (
	"encoding/json"
	"time"

	"github.com/AyushMusale/TripSense/internal/carbon"
	"github.com/AyushMusale/TripSense/internal/shared/geo"
	"github.com/AyushMusale/TripSense/internal/shared/travel"
)

type Status string

const (
	StatusPlanned   Status = "planned"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

const (
	defaultRetention = 365 * 24 * time.Hour
	anonymizeDigits  = 2
)

type Address struct {
	Street     string `json:"street,omitempty" validate:"max=200"`
	City       string `json:"city,omitempty" validate:"max=100"`
	State      string `json:"state,omitempty" validate:"max=100"`
	Country    string `json:"country,omitempty" validate:"max=100"`
	PostalCode string `json:"postal_code,omitempty" validate:"max=20"`
	Formatted  string `json:"formatted,omitempty" validate:"max=300"`
}

type Location struct {
	Lat       float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Lng       float64   `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  *float64  `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Speed     *float64  `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Heading   *float64  `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Address   *Address  `json:"address,omitempty"`
}

func (l Location) Point() geo.Point {
	return geo.Point{Lat: l.Lat, Lng: l.Lng, Time: l.Timestamp}
}

type Companion struct {
	Name         string `json:"name" validate:"required,max=100"`
	Relationship string `json:"relationship,omitempty" validate:"omitempty,oneof=family friend colleague stranger other"`
	AgeGroup     string `json:"age_group,omitempty" validate:"omitempty,oneof=child teen adult senior unknown"`
	Gender       string `json:"gender,omitempty" validate:"omitempty,oneof=male female other unknown"`
}

type Privacy struct {
	IsAnonymized      bool      `json:"is_anonymized"`
	ShareWithPlanners bool      `json:"share_with_planners"`
	RetentionUntil    time.Time `json:"data_retention"`
}

type IssueStatus string

const (
	IssueReported     IssueStatus = "reported"
	IssueAcknowledged IssueStatus = "acknowledged"
	IssueInProgress   IssueStatus = "in_progress"
	IssueResolved     IssueStatus = "resolved"
	IssueClosed       IssueStatus = "closed"
)

var issueOrder = map[IssueStatus]int{
	IssueReported:     0,
	IssueAcknowledged: 1,
	IssueInProgress:   2,
	IssueResolved:     3,
	IssueClosed:       4,
}

// CanMoveTo reports whether the lifecycle allows going from s to next.
func (s IssueStatus) CanMoveTo(next IssueStatus) bool {
	from, ok := issueOrder[s]
	if !ok {
		return false
	}
	to, ok := issueOrder[next]
	return ok && to > from
}

type Issue struct {
	ID          string      `json:"id"`
	TripID      string      `json:"trip_id"`
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Location    *Location   `json:"location,omitempty"`
	Photos      []string    `json:"photos"`
	Severity    string      `json:"severity"`
	Status      IssueStatus `json:"status"`
	ReportedAt  time.Time   `json:"reported_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type Trip struct {
	ID               string         `json:"id"`
	TripCode         string         `json:"trip_code"`
	UserID           string         `json:"user_id"`
	StartLocation    Location       `json:"start_location"`
	EndLocation      *Location      `json:"end_location,omitempty"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          *time.Time     `json:"end_time,omitempty"`
	DurationMin      int            `json:"duration_min"`
	DistanceM        float64        `json:"distance_m"`
	DistanceSupplied bool           `json:"-"`
	Mode             travel.Mode    `json:"mode"`
	Purpose          travel.Purpose `json:"purpose"`
	CarbonOptions    carbon.Options `json:"carbon_options"`
	Companions       []Companion    `json:"companions"`
	Status           Status         `json:"status"`
	CarbonKg         float64        `json:"carbon_kg"`
	Issues           []Issue        `json:"issues,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	Privacy          Privacy        `json:"privacy"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (t Trip) IsActive() bool    { return t.Status == StatusActive }
func (t Trip) IsCompleted() bool { return t.Status == StatusCompleted }

// AverageSpeedKmh is distance over duration, 0 for trips without duration.
func (t Trip) AverageSpeedKmh() float64 {
	if t.DurationMin <= 0 {
		return 0
	}
	return (t.DistanceM / 1000) / (float64(t.DurationMin) / 60)
}

// CarbonTrip is the view the carbon aggregates work on.
func (t Trip) CarbonTrip() carbon.Trip {
	return carbon.Trip{ID: t.ID, Mode: t.Mode, DistanceM: t.DistanceM, Options: t.CarbonOptions}
}

func (t Trip) MarshalJSON() ([]byte, error) {
	type plain Trip
	return json.Marshal(struct {
		plain
		IsActive     bool    `json:"is_active"`
		IsCompleted  bool    `json:"is_completed"`
		DistanceKm   float64 `json:"distance_km"`
		AverageSpeed float64 `json:"average_speed_kmh"`
	}{
		plain:        plain(t),
		IsActive:     t.IsActive(),
		IsCompleted:  t.IsCompleted(),
		DistanceKm:   t.DistanceM / 1000,
		AverageSpeed: t.AverageSpeedKmh(),
	})
}

// Anonymize coarsens coordinates and drops personal details in place.
func (t *Trip) Anonymize() {
	t.StartLocation.Lat = geo.RoundCoord(t.StartLocation.Lat, anonymizeDigits)
	t.StartLocation.Lng = geo.RoundCoord(t.StartLocation.Lng, anonymizeDigits)
	t.StartLocation.Address = nil
	if t.EndLocation != nil {
		t.EndLocation.Lat = geo.RoundCoord(t.EndLocation.Lat, anonymizeDigits)
		t.EndLocation.Lng = geo.RoundCoord(t.EndLocation.Lng, anonymizeDigits)
		t.EndLocation.Address = nil
	}
	t.Companions = []Companion{}
	t.Notes = ""
	t.Privacy.IsAnonymized = true
}

type CreateRequest struct {
	StartLocation     Location       `json:"start_location" validate:"required"`
	EndLocation       *Location      `json:"end_location" validate:"omitempty"`
	StartTime         time.Time      `json:"start_time" validate:"required"`
	EndTime           *time.Time     `json:"end_time" validate:"omitempty"`
	DistanceM         float64        `json:"distance_m" validate:"gte=0"`
	Mode              travel.Mode    `json:"mode" validate:"required,travel_mode"`
	Purpose           travel.Purpose `json:"purpose" validate:"required,trip_purpose"`
	CarbonOptions     carbon.Options `json:"carbon_options"`
	Companions        []Companion    `json:"companions" validate:"max=20,dive"`
	Notes             string         `json:"notes" validate:"max=500"`
	ShareWithPlanners *bool          `json:"share_with_planners"`
}

type UpdateRequest struct {
	Mode              *travel.Mode    `json:"mode" validate:"omitempty,travel_mode"`
	Purpose           *travel.Purpose `json:"purpose" validate:"omitempty,trip_purpose"`
	DistanceM         *float64        `json:"distance_m" validate:"omitempty,gte=0"`
	CarbonOptions     *carbon.Options `json:"carbon_options"`
	Companions        []Companion     `json:"companions" validate:"omitempty,max=20,dive"`
	Notes             *string         `json:"notes" validate:"omitempty,max=500"`
	ShareWithPlanners *bool           `json:"share_with_planners"`
}

type EndRequest struct {
	EndLocation Location `json:"end_location" validate:"required"`
}

type IssueRequest struct {
	Type        string    `json:"type" validate:"required,oneof=delay cancellation crowding safety accessibility other"`
	Description string    `json:"description" validate:"max=500"`
	Location    *Location `json:"location" validate:"omitempty"`
	Photos      []string  `json:"photos" validate:"max=10,dive,url"`
	Severity    string    `json:"severity" validate:"omitempty,oneof=low medium high critical"`
}

type IssueStatusRequest struct {
	Status IssueStatus `json:"status" validate:"required,oneof=reported acknowledged in_progress resolved closed"`
}

type ListFilter struct {
	Mode    travel.Mode
	Purpose travel.Purpose
	From    *time.Time
	To      *time.Time
	Page    int
	Limit   int
}

type Pagination struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	TotalTrips  int  `json:"total_trips"`
	HasNextPage bool `json:"has_next_page"`
	HasPrevPage bool `json:"has_prev_page"`
}

type Page struct {
	Trips      []Trip     `json:"trips"`
	Pagination Pagination `json:"pagination"`
}

type ModeStats struct {
	Mode        travel.Mode `json:"mode"`
	Trips       int         `json:"trips"`
	DistanceM   float64     `json:"distance_m"`
	DurationMin int         `json:"duration_min"`
}

type Stats struct {
	TotalTrips       int         `json:"total_trips"`
	TotalDistanceM   float64     `json:"total_distance_m"`
	TotalDurationMin int         `json:"total_duration_min"`
	TotalCarbonKg    float64     `json:"total_carbon_kg"`
	AverageDistanceM float64     `json:"average_distance_m"`
	AverageDuration  float64     `json:"average_duration_min"`
	ModeBreakdown    []ModeStats `json:"mode_breakdown"`
}
