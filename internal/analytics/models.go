package analytics

import (
	"errors"
	"time"

	"github.com/AyushMusale/TripSense/internal/carbon"
	"github.com/AyushMusale/TripSense/internal/shared/travel"
	"github.com/AyushMusale/TripSense/internal/trip"
)

var ErrUnknownPeriod = errors.New("unknown analytics period")

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case Daily, Weekly, Monthly, Yearly:
		return p, nil
	}
	return "", ErrUnknownPeriod
}

// Window returns the half-open calendar window of the period containing
// anchor, in anchor's location. Weeks start on Sunday.
func Window(p Period, anchor time.Time) (time.Time, time.Time) {
	y, m, d := anchor.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, anchor.Location())
	switch p {
	case Weekly:
		start := day.AddDate(0, 0, -int(day.Weekday()))
		return start, start.AddDate(0, 0, 7)
	case Monthly:
		start := time.Date(y, m, 1, 0, 0, 0, 0, anchor.Location())
		return start, start.AddDate(0, 1, 0)
	case Yearly:
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, anchor.Location())
		return start, start.AddDate(1, 0, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}

// previousAnchor is a point inside the window right before the one starting at start.
func previousAnchor(start time.Time) time.Time {
	return start.AddDate(0, 0, -1)
}

type ModeBucket struct {
	Trips       int     `json:"trips"`
	DistanceM   float64 `json:"distance_m"`
	DurationMin int     `json:"duration_min"`
}

type TimeBreakdown struct {
	Night     int `json:"night"`
	Morning   int `json:"morning"`
	Afternoon int `json:"afternoon"`
	Evening   int `json:"evening"`
}

type Metrics struct {
	TotalTrips       int                             `json:"total_trips"`
	TotalDistanceM   float64                         `json:"total_distance_m"`
	TotalDurationMin int                             `json:"total_duration_min"`
	TotalCarbonKg    float64                         `json:"total_carbon_kg"`
	AverageSpeedKmh  float64                         `json:"average_speed_kmh"`
	ModeBreakdown    map[travel.ModeGroup]ModeBucket `json:"mode_breakdown"`
	PurposeBreakdown map[travel.Purpose]int          `json:"purpose_breakdown"`
	TimeBreakdown    TimeBreakdown                   `json:"time_breakdown"`
	WeekdayTrips     int                             `json:"weekday_trips"`
	WeekendTrips     int                             `json:"weekend_trips"`
}

type TripExtreme struct {
	DistanceM   float64     `json:"distance_m"`
	DurationMin int         `json:"duration_min"`
	Mode        travel.Mode `json:"mode"`
}

type Insights struct {
	MostUsedMode     travel.Mode  `json:"most_used_mode,omitempty"`
	LongestTrip      *TripExtreme `json:"longest_trip,omitempty"`
	ShortestTrip     *TripExtreme `json:"shortest_trip,omitempty"`
	AverageDistanceM float64      `json:"average_trip_distance_m"`
	AverageDuration  float64      `json:"average_trip_duration_min"`
	CarbonEfficiency float64      `json:"carbon_efficiency"`
	ActiveDays       int          `json:"active_days"`
	ConsistencyScore float64      `json:"consistency_score"`
}

type Trend string

const (
	Increasing Trend = "increasing"
	Decreasing Trend = "decreasing"
	Stable     Trend = "stable"
)

type ModeShift string

const (
	Sustainable   ModeShift = "sustainable"
	Unsustainable ModeShift = "unsustainable"
	Neutral       ModeShift = "neutral"
)

type Trends struct {
	Distance  Trend     `json:"distance_trend"`
	Carbon    Trend     `json:"carbon_trend"`
	ModeShift ModeShift `json:"mode_shift"`
}

func defaultTrends() Trends {
	return Trends{Distance: Stable, Carbon: Stable, ModeShift: Neutral}
}

// GoalTargets are optional per-period targets. Zero means unset.
type GoalTargets struct {
	DistanceM float64 `json:"distance_goal_m,omitempty" validate:"gte=0"`
	CarbonKg  float64 `json:"carbon_goal_kg,omitempty" validate:"gte=0"`
	Trips     int     `json:"trips_goal,omitempty" validate:"gte=0"`
}

type GoalsAchieved struct {
	Distance bool `json:"distance"`
	Carbon   bool `json:"carbon"`
	Trips    bool `json:"trips"`
}

type Goals struct {
	GoalTargets
	Achieved GoalsAchieved `json:"achieved"`
}

type Recommendation struct {
	Type           string  `json:"type"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Impact         string  `json:"impact"`
	CarbonSavings  float64 `json:"carbon_savings_kg,omitempty"`
	TimeSavings    float64 `json:"time_savings_min,omitempty"`
	HealthBenefits string  `json:"health_benefits,omitempty"`
}

type Snapshot struct {
	ID              string           `json:"id,omitempty"`
	UserID          string           `json:"user_id,omitempty"`
	Period          Period           `json:"period"`
	AnchorDate      time.Time        `json:"date"`
	WindowStart     time.Time        `json:"window_start"`
	WindowEnd       time.Time        `json:"window_end"`
	Metrics         Metrics          `json:"metrics"`
	Insights        Insights         `json:"insights"`
	Trends          Trends           `json:"trends"`
	Goals           Goals            `json:"goals"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// emptySnapshot is the zero-valued view shown before any analytics exist.
func emptySnapshot(p Period) *Snapshot {
	return &Snapshot{
		Period: p,
		Metrics: Metrics{
			ModeBreakdown:    map[travel.ModeGroup]ModeBucket{},
			PurposeBreakdown: map[travel.Purpose]int{},
		},
		Trends:          defaultTrends(),
		Recommendations: []Recommendation{},
	}
}

type GenerateRequest struct {
	Period Period      `json:"period" validate:"required,oneof=daily weekly monthly yearly"`
	Date   *time.Time  `json:"date"`
	Goals  GoalTargets `json:"goals"`
}

type Distribution struct {
	Key         string  `json:"key"`
	Trips       int     `json:"count"`
	DistanceM   float64 `json:"total_distance_m"`
	DurationMin int     `json:"total_duration_min"`
	CarbonKg    float64 `json:"total_carbon_kg,omitempty"`
}

type DailyActivity struct {
	Date        string  `json:"date"`
	Trips       int     `json:"trips"`
	DistanceM   float64 `json:"distance_m"`
	DurationMin int     `json:"duration_min"`
	CarbonKg    float64 `json:"carbon_kg"`
}

type DashboardQuery struct {
	Period Period
	From   *time.Time
	To     *time.Time
}

type Dashboard struct {
	Analytics           *Snapshot       `json:"analytics"`
	RecentTrips         []trip.Trip     `json:"recent_trips"`
	ModeDistribution    []Distribution  `json:"mode_distribution"`
	PurposeDistribution []Distribution  `json:"purpose_distribution"`
	DailyActivity       []DailyActivity `json:"daily_activity"`
}

type Insight struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Action   string `json:"action"`
}

type InsightReport struct {
	Insights        []Insight        `json:"insights"`
	Recommendations []Recommendation `json:"recommendations"`
	Trends          Trends           `json:"trends"`
	Goals           *Goals           `json:"goals,omitempty"`
}

type CarbonReport struct {
	carbon.Report
	Ranking []carbon.RankEntry `json:"ranking,omitempty"`
}

type HeatCell struct {
	Geohash string  `json:"geohash"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Starts  int     `json:"starts"`
	Ends    int     `json:"ends"`
}

func (c HeatCell) Total() int { return c.Starts + c.Ends }
