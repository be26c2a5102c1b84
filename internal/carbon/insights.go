package carbon

import (
	"github.com/AyushMusale/TripSense/internal/shared/travel"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	HighCarbonThresholdKg       = 50.0
	CarDependencyThresholdPct   = 70.0
	ReductionPotentialThreshold = 10.0
)

var printer = message.NewPrinter(language.English)

// Trip is the minimal view of a trip the aggregate helpers need.
type Trip struct {
	ID        string
	Mode      travel.Mode
	DistanceM float64
	Options   Options
}

type Summary struct {
	Total   float64                 `json:"total_footprint"`
	ByMode  map[travel.Mode]float64 `json:"mode_breakdown"`
	Average float64                 `json:"average_footprint"`
}

// Total sums the footprint of trips, recomputed from their mode and distance.
func (c *Calculator) Total(trips []Trip) Summary {
	s := Summary{ByMode: map[travel.Mode]float64{}}
	for _, t := range trips {
		fp := c.Footprint(t.Mode, t.DistanceM, t.Options)
		s.Total += fp
		s.ByMode[t.Mode] += fp
	}
	if len(trips) > 0 {
		s.Average = s.Total / float64(len(trips))
	}
	return s
}

type Saving struct {
	TripID               string      `json:"trip_id"`
	CurrentMode          travel.Mode `json:"current_mode"`
	CurrentFootprint     float64     `json:"current_footprint"`
	BestAlternative      travel.Mode `json:"best_alternative"`
	AlternativeFootprint float64     `json:"alternative_footprint"`
	PotentialSavings     float64     `json:"potential_savings"`
}

type Reduction struct {
	TotalPotentialSavings float64  `json:"total_potential_savings"`
	Savings               []Saving `json:"potential_savings"`
	CarTrips              int      `json:"car_trips_count"`
	AveragePerTrip        float64  `json:"average_savings_per_trip"`
}

var (
	carLike      = []travel.Mode{travel.Car, travel.Taxi, travel.Rideshare}
	alternatives = []travel.Mode{travel.Walking, travel.Cycling, travel.Bus, travel.Train}
)

func isCarLike(m travel.Mode) bool {
	for _, c := range carLike {
		if m == c {
			return true
		}
	}
	return false
}

// ReductionPotential estimates what car, taxi and rideshare trips would have
// saved using the cleanest of walking, cycling, bus or train.
func (c *Calculator) ReductionPotential(trips []Trip) Reduction {
	r := Reduction{Savings: []Saving{}}
	for _, t := range trips {
		if !isCarLike(t.Mode) {
			continue
		}
		current := c.Footprint(t.Mode, t.DistanceM, t.Options)

		bestMode, bestFP := travel.Walking, current
		for _, alt := range alternatives {
			if fp := c.Footprint(alt, t.DistanceM, t.Options); fp < bestFP {
				bestMode, bestFP = alt, fp
			}
		}

		r.Savings = append(r.Savings, Saving{
			TripID:               t.ID,
			CurrentMode:          t.Mode,
			CurrentFootprint:     current,
			BestAlternative:      bestMode,
			AlternativeFootprint: bestFP,
			PotentialSavings:     current - bestFP,
		})
		r.TotalPotentialSavings += current - bestFP
		r.CarTrips++
	}
	if r.CarTrips > 0 {
		r.AveragePerTrip = r.TotalPotentialSavings / float64(r.CarTrips)
	}
	return r
}

type Insight struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

type Report struct {
	Insights           []Insight               `json:"insights"`
	TotalFootprint     float64                 `json:"total_footprint"`
	ReductionPotential float64                 `json:"reduction_potential"`
	CarPercentage      float64                 `json:"car_percentage"`
	ModeBreakdown      map[travel.Mode]float64 `json:"mode_breakdown"`
}

// Insights turns a set of trips into advisory messages. The car share counts
// the car mode only, not taxis or rideshares.
func (c *Calculator) Insights(trips []Trip) Report {
	total := c.Total(trips)
	reduction := c.ReductionPotential(trips)

	carPct := 0.0
	if total.Total > 0 {
		carPct = total.ByMode[travel.Car] / total.Total * 100
	}

	insights := []Insight{}
	if total.Total > HighCarbonThresholdKg {
		insights = append(insights, Insight{
			Type:     "high_carbon",
			Severity: "high",
			Title:    "High Carbon Footprint",
			Message:  printer.Sprintf("Your total carbon footprint is %.1f kg CO2. Consider using more sustainable transport modes.", total.Total),
			Action:   "Try walking, cycling, or public transport for short trips",
		})
	}
	if carPct > CarDependencyThresholdPct {
		insights = append(insights, Insight{
			Type:     "car_dependency",
			Severity: "medium",
			Title:    "High Car Dependency",
			Message:  printer.Sprintf("%.1f%% of your carbon footprint comes from car travel.", carPct),
			Action:   "Consider alternatives like public transport or carpooling",
		})
	}
	if reduction.TotalPotentialSavings > ReductionPotentialThreshold {
		insights = append(insights, Insight{
			Type:     "reduction_potential",
			Severity: "medium",
			Title:    "High Reduction Potential",
			Message:  printer.Sprintf("You could reduce your carbon footprint by %.1f kg CO2 by switching transport modes.", reduction.TotalPotentialSavings),
			Action:   "Review your recent trips for optimization opportunities",
		})
	}

	return Report{
		Insights:           insights,
		TotalFootprint:     total.Total,
		ReductionPotential: reduction.TotalPotentialSavings,
		CarPercentage:      carPct,
		ModeBreakdown:      total.ByMode,
	}
}
