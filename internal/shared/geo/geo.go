package geo

import (
	"math"
	"time"

	"github.com/golang/geo/s2"
)

// EarthRadiusM is the mean Earth radius used for great-circle distances.
const EarthRadiusM = 6371000.0

const (
	DefaultMaxSpeedKmh     = 200.0
	DefaultStopMinDuration = 2 * time.Minute
	DefaultStopRadiusM     = 50.0
)

// Point is a WGS84 fix. Time is only required by the speed and track helpers.
type Point struct {
	Lat  float64   `json:"latitude"`
	Lng  float64   `json:"longitude"`
	Time time.Time `json:"timestamp,omitempty"`
}

type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

type Stop struct {
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
	Location    Point     `json:"location"`
	DurationMin float64   `json:"duration_min"`
}

type StopOptions struct {
	MinDuration time.Duration
	MaxRadiusM  float64
	// FlushTrailing emits a stop that is still open when the track ends.
	FlushTrailing bool
}

func (o StopOptions) withDefaults() StopOptions {
	if o.MinDuration <= 0 {
		o.MinDuration = DefaultStopMinDuration
	}
	if o.MaxRadiusM <= 0 {
		o.MaxRadiusM = DefaultStopRadiusM
	}
	return o
}

// HaversineKm returns the great-circle distance between two coordinates in kilometres.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return Distance(Point{Lat: lat1, Lng: lng1}, Point{Lat: lat2, Lng: lng2}) / 1000
}

// Distance returns the great-circle distance in meters.
func Distance(p1, p2 Point) float64 {
	a := s2.LatLngFromDegrees(p1.Lat, p1.Lng)
	b := s2.LatLngFromDegrees(p2.Lat, p2.Lng)
	return a.Distance(b).Radians() * EarthRadiusM
}

// Bearing returns the initial bearing from p1 to p2 in degrees, 0 = north.
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * math.Pi / 180
	lat2 := p2.Lat * math.Pi / 180
	dLng := (p2.Lng - p1.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Speed returns km/h between two timed points, 0 when they share a timestamp.
func Speed(p1, p2 Point) float64 {
	dt := p2.Time.Sub(p1.Time)
	if dt < 0 {
		dt = -dt
	}
	if dt == 0 {
		return 0
	}
	return Distance(p1, p2) / dt.Seconds() * 3.6
}

// SmoothTrack drops fixes that would require travelling faster than maxSpeedKmh
// from the last kept fix. A non-positive maxSpeedKmh uses DefaultMaxSpeedKmh.
func SmoothTrack(track []Point, maxSpeedKmh float64) []Point {
	if len(track) < 2 {
		return track
	}
	if maxSpeedKmh <= 0 {
		maxSpeedKmh = DefaultMaxSpeedKmh
	}

	kept := make([]Point, 0, len(track))
	kept = append(kept, track[0])
	for _, p := range track[1:] {
		if Speed(kept[len(kept)-1], p) <= maxSpeedKmh {
			kept = append(kept, p)
		}
	}
	return kept
}

func TrackDistance(track []Point) float64 {
	if len(track) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(track); i++ {
		total += Distance(track[i-1], track[i])
	}
	return total
}

// AverageSpeed returns km/h over the whole track using first and last timestamps.
func AverageSpeed(track []Point) float64 {
	if len(track) < 2 {
		return 0
	}
	elapsed := track[len(track)-1].Time.Sub(track[0].Time)
	if elapsed <= 0 {
		return 0
	}
	return TrackDistance(track) / elapsed.Seconds() * 3.6
}

// DetectStops finds stretches where consecutive fixes stay within MaxRadiusM.
// A stop closes at the first fix that moves further than the radius and is
// reported only when it lasted at least MinDuration.
func DetectStops(track []Point, opts StopOptions) []Stop {
	opts = opts.withDefaults()

	var stops []Stop
	var open *Point
	closeAt := func(end time.Time) {
		d := end.Sub(open.Time)
		if d >= opts.MinDuration {
			stops = append(stops, Stop{
				Start:       open.Time,
				End:         end,
				Location:    *open,
				DurationMin: d.Minutes(),
			})
		}
		open = nil
	}

	for i := 1; i < len(track); i++ {
		prev, cur := track[i-1], track[i]
		if Distance(prev, cur) <= opts.MaxRadiusM {
			if open == nil {
				open = &track[i-1]
			}
			continue
		}
		if open != nil {
			closeAt(cur.Time)
		}
	}
	if open != nil && opts.FlushTrailing {
		closeAt(track[len(track)-1].Time)
	}
	return stops
}

// Center is the arithmetic centroid of the points.
func Center(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	var lat, lng float64
	for _, p := range points {
		lat += p.Lat
		lng += p.Lng
	}
	n := float64(len(points))
	return Point{Lat: lat / n, Lng: lng / n}, true
}

func BoundsOf(points []Point) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b := Bounds{North: points[0].Lat, South: points[0].Lat, East: points[0].Lng, West: points[0].Lng}
	for _, p := range points[1:] {
		b.North = math.Max(b.North, p.Lat)
		b.South = math.Min(b.South, p.Lat)
		b.East = math.Max(b.East, p.Lng)
		b.West = math.Min(b.West, p.Lng)
	}
	return b, true
}

func (b Bounds) Contains(p Point) bool {
	return p.Lat <= b.North && p.Lat >= b.South && p.Lng <= b.East && p.Lng >= b.West
}

// RoundCoord rounds a coordinate to the given number of decimals.
func RoundCoord(v float64, decimals int) float64 {
	f := math.Pow(10, float64(decimals))
	return math.Round(v*f) / f
}
