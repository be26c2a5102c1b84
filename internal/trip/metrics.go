package trip

import (
	"math"
	"time"

	"github.com/AyushMusale/TripSense/internal/carbon"
	"github.com/AyushMusale/TripSense/internal/shared/geo"
	"github.com/AyushMusale/TripSense/internal/shared/travel"
)

// MetricsInput is everything needed to derive the stored metrics of a finished trip.
// A zero DistanceM means "not supplied".
type MetricsInput struct {
	Start     geo.Point
	End       geo.Point
	StartTime time.Time
	EndTime   time.Time
	DistanceM float64
	Mode      travel.Mode
	Options   carbon.Options
}

type Metrics struct {
	DistanceM   float64
	DurationMin int
	CarbonKg    float64
}

// DeriveMetrics fills in distance (straight line, whole meters) when it was not
// supplied, the duration in whole minutes and the carbon footprint.
func DeriveMetrics(calc *carbon.Calculator, in MetricsInput) Metrics {
	distance := in.DistanceM
	if distance == 0 {
		distance = math.Round(geo.Distance(in.Start, in.End))
	}
	return Metrics{
		DistanceM:   distance,
		DurationMin: int(math.Round(in.EndTime.Sub(in.StartTime).Minutes())),
		CarbonKg:    calc.Footprint(in.Mode, distance, in.Options),
	}
}
