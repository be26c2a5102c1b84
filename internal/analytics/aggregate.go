// Package analytics aggregates a user's completed trips into period snapshots
// with insights, trends and rule-based recommendations.
package analytics

import (
	"math"
	"time"

	"github.com/AyushMusale/TripSense/internal/carbon"
	"github.com/AyushMusale/TripSense/internal/shared/travel"
	"github.com/AyushMusale/TripSense/internal/trip"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	carbonReductionThresholdKg = 10.0
	routeOptimizationDistanceM = 10000.0
	carbonReductionShare       = 0.2
	routeOptimizationTimeShare = 0.1
	trendBand                  = 0.1
)

var printer = message.NewPrinter(language.English)

type BuildInput struct {
	Period   Period
	Anchor   time.Time
	Trips    []trip.Trip
	Goals    GoalTargets
	Previous *Snapshot // latest snapshot of the preceding window, if any
}

// Build aggregates trips into a snapshot. It returns nil when there are no
// trips. Trips are expected to be completed and inside the window of
// Period around Anchor.
func Build(calc *carbon.Calculator, in BuildInput) *Snapshot {
	if len(in.Trips) == 0 {
		return nil
	}
	if calc == nil {
		calc = carbon.Default()
	}

	start, end := Window(in.Period, in.Anchor)
	loc := in.Anchor.Location()

	snap := &Snapshot{
		Period:      in.Period,
		AnchorDate:  in.Anchor,
		WindowStart: start,
		WindowEnd:   end,
		Metrics:     aggregateMetrics(in.Trips, loc),
	}
	snap.Insights = deriveInsights(in.Trips, snap.Metrics, loc, daysBetween(start, end))
	snap.Trends = compareTrends(snap.Metrics, in.Previous)
	snap.Goals = evaluateGoals(snap.Metrics, in.Goals)
	snap.Recommendations = recommend(calc, snap.Metrics, snap.Insights)
	return snap
}

func aggregateMetrics(trips []trip.Trip, loc *time.Location) Metrics {
	m := Metrics{
		ModeBreakdown:    map[travel.ModeGroup]ModeBucket{},
		PurposeBreakdown: map[travel.Purpose]int{},
	}
	for _, g := range travel.ModeGroups() {
		m.ModeBreakdown[g] = ModeBucket{}
	}
	for _, p := range travel.Purposes() {
		m.PurposeBreakdown[p] = 0
	}

	for _, t := range trips {
		m.TotalTrips++
		m.TotalDistanceM += t.DistanceM
		m.TotalDurationMin += t.DurationMin
		m.TotalCarbonKg += t.CarbonKg

		group := t.Mode.Group()
		b := m.ModeBreakdown[group]
		b.Trips++
		b.DistanceM += t.DistanceM
		b.DurationMin += t.DurationMin
		m.ModeBreakdown[group] = b

		if t.Purpose.Valid() {
			m.PurposeBreakdown[t.Purpose]++
		} else {
			m.PurposeBreakdown[travel.OtherPurpose]++
		}

		started := t.StartTime.In(loc)
		switch h := started.Hour(); {
		case h < 6:
			m.TimeBreakdown.Night++
		case h < 12:
			m.TimeBreakdown.Morning++
		case h < 18:
			m.TimeBreakdown.Afternoon++
		default:
			m.TimeBreakdown.Evening++
		}
		if wd := started.Weekday(); wd == time.Saturday || wd == time.Sunday {
			m.WeekendTrips++
		} else {
			m.WeekdayTrips++
		}
	}

	if m.TotalDurationMin > 0 {
		m.AverageSpeedKmh = (m.TotalDistanceM / 1000) / (float64(m.TotalDurationMin) / 60)
	}
	return m
}

func deriveInsights(trips []trip.Trip, m Metrics, loc *time.Location, daysInPeriod int) Insights {
	in := Insights{
		MostUsedMode:     mostUsedMode(trips),
		AverageDistanceM: m.TotalDistanceM / float64(m.TotalTrips),
		AverageDuration:  float64(m.TotalDurationMin) / float64(m.TotalTrips),
	}

	longest, shortest := trips[0], trips[0]
	for _, t := range trips[1:] {
		if t.DistanceM > longest.DistanceM {
			longest = t
		}
		if t.DistanceM < shortest.DistanceM {
			shortest = t
		}
	}
	in.LongestTrip = &TripExtreme{DistanceM: longest.DistanceM, DurationMin: longest.DurationMin, Mode: longest.Mode}
	in.ShortestTrip = &TripExtreme{DistanceM: shortest.DistanceM, DurationMin: shortest.DurationMin, Mode: shortest.Mode}

	if m.TotalDistanceM > 0 {
		in.CarbonEfficiency = m.TotalCarbonKg / (m.TotalDistanceM / 1000)
	}

	days := map[string]struct{}{}
	for _, t := range trips {
		days[t.StartTime.In(loc).Format(time.DateOnly)] = struct{}{}
	}
	in.ActiveDays = len(days)
	if daysInPeriod > 0 {
		in.ConsistencyScore = math.Min(1, float64(in.ActiveDays)/float64(daysInPeriod))
	}
	return in
}

// mostUsedMode picks the mode with the most trips; the earliest trip's mode wins ties.
func mostUsedMode(trips []trip.Trip) travel.Mode {
	counts := map[travel.Mode]int{}
	var best travel.Mode
	for _, t := range trips {
		counts[t.Mode]++
	}
	for _, t := range trips {
		if best == "" || counts[t.Mode] > counts[best] {
			best = t.Mode
		}
	}
	return best
}

// daysBetween counts calendar days in [start, end), independent of DST shifts.
func daysBetween(start, end time.Time) int {
	n := 0
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

func compareTrends(cur Metrics, prev *Snapshot) Trends {
	tr := defaultTrends()
	if prev == nil {
		return tr
	}
	tr.Distance = trendOf(cur.TotalDistanceM, prev.Metrics.TotalDistanceM)
	tr.Carbon = trendOf(cur.TotalCarbonKg, prev.Metrics.TotalCarbonKg)

	delta := sustainableShare(cur) - sustainableShare(prev.Metrics)
	switch {
	case delta > trendBand:
		tr.ModeShift = Sustainable
	case delta < -trendBand:
		tr.ModeShift = Unsustainable
	}
	return tr
}

func trendOf(cur, prev float64) Trend {
	if prev == 0 {
		if cur > 0 {
			return Increasing
		}
		return Stable
	}
	change := (cur - prev) / prev
	switch {
	case change > trendBand:
		return Increasing
	case change < -trendBand:
		return Decreasing
	default:
		return Stable
	}
}

// sustainableShare is the fraction of trips made on foot, by bike or by public transport.
func sustainableShare(m Metrics) float64 {
	if m.TotalTrips == 0 {
		return 0
	}
	n := m.ModeBreakdown[travel.GroupWalking].Trips +
		m.ModeBreakdown[travel.GroupCycling].Trips +
		m.ModeBreakdown[travel.GroupPublicTransport].Trips
	return float64(n) / float64(m.TotalTrips)
}

func evaluateGoals(m Metrics, targets GoalTargets) Goals {
	g := Goals{GoalTargets: targets}
	if targets.DistanceM > 0 {
		g.Achieved.Distance = m.TotalDistanceM >= targets.DistanceM
	}
	if targets.CarbonKg > 0 {
		g.Achieved.Carbon = m.TotalCarbonKg <= targets.CarbonKg
	}
	if targets.Trips > 0 {
		g.Achieved.Trips = m.TotalTrips >= targets.Trips
	}
	return g
}

// recommend applies the advisory rules in a fixed order. Each rule fires independently.
func recommend(calc *carbon.Calculator, m Metrics, in Insights) []Recommendation {
	recs := []Recommendation{}

	car := m.ModeBreakdown[travel.GroupCar]
	active := m.ModeBreakdown[travel.GroupWalking].Trips + m.ModeBreakdown[travel.GroupCycling].Trips
	if car.Trips > active {
		recs = append(recs, Recommendation{
			Type:           "mode_shift",
			Title:          "Consider Walking or Cycling",
			Description:    "You use your car more than walking or cycling. Try replacing short car trips with active transport.",
			Impact:         "high",
			CarbonSavings:  calc.Footprint(travel.Car, car.DistanceM, carbon.Options{}),
			HealthBenefits: "Improved cardiovascular health and reduced stress",
		})
	}

	if m.TotalCarbonKg > carbonReductionThresholdKg {
		recs = append(recs, Recommendation{
			Type:          "carbon_reduction",
			Title:         "Reduce Carbon Footprint",
			Description:   printer.Sprintf("Your carbon footprint is %.1f kg CO2. Consider using public transport or carpooling.", m.TotalCarbonKg),
			Impact:        "medium",
			CarbonSavings: m.TotalCarbonKg * carbonReductionShare,
		})
	}

	if in.AverageDistanceM > routeOptimizationDistanceM {
		recs = append(recs, Recommendation{
			Type:        "route_optimization",
			Title:       "Optimize Your Routes",
			Description: "Your trips are quite long. Consider planning more efficient routes or combining trips.",
			Impact:      "medium",
			TimeSavings: float64(m.TotalDurationMin) * routeOptimizationTimeShare,
		})
	}
	return recs
}
