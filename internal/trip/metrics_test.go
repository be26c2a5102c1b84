package trip

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/AyushMusale/TripSense/internal/carbon"
	"github.com/AyushMusale/TripSense/internal/shared/geo"
	"github.com/AyushMusale/TripSense/internal/shared/travel"
)

func TestDeriveMetrics(t *testing.T) {
	calc := carbon.Default()
	in := MetricsInput{
		Start:     geo.Point{Lat: cityHall.Lat, Lng: cityHall.Lng},
		End:       geo.Point{Lat: timesSquare.Lat, Lng: timesSquare.Lng},
		StartTime: t0,
		EndTime:   t0.Add(29*time.Minute + 40*time.Second),
		Mode:      travel.Car,
	}

	m := DeriveMetrics(calc, in)
	if m.DistanceM != math.Round(m.DistanceM) || m.DistanceM < 5300 || m.DistanceM > 5550 {
		t.Fatalf("unexpected distance %v", m.DistanceM)
	}
	if m.DurationMin != 30 {
		t.Fatalf("expected rounded duration 30, got %d", m.DurationMin)
	}
	if math.Abs(m.CarbonKg-1.04) > 0.01 {
		t.Fatalf("unexpected carbon %v", m.CarbonKg)
	}

	in.DistanceM = 8000
	in.Mode = travel.Walking
	m = DeriveMetrics(calc, in)
	if m.DistanceM != 8000 || m.CarbonKg != 0 {
		t.Fatalf("supplied distance should win: %+v", m)
	}
}

func TestIssueStatusCanMoveTo(t *testing.T) {
	if !IssueReported.CanMoveTo(IssueResolved) || !IssueResolved.CanMoveTo(IssueClosed) {
		t.Fatalf("forward transitions must be allowed")
	}
	if IssueClosed.CanMoveTo(IssueReported) || IssueInProgress.CanMoveTo(IssueInProgress) {
		t.Fatalf("backward or same-state transitions must be rejected")
	}
	if IssueStatus("lost").CanMoveTo(IssueClosed) || IssueReported.CanMoveTo("lost") {
		t.Fatalf("unknown statuses must be rejected")
	}
}

func TestTripJSONIncludesDerivedFields(t *testing.T) {
	trip := storedTrip(StatusCompleted)
	trip.DistanceM = 15000
	trip.DurationMin = 30

	raw, err := json.Marshal(trip)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["is_completed"] != true || out["distance_km"] != 15.0 || out["average_speed_kmh"] != 30.0 {
		t.Fatalf("unexpected derived fields %v", out)
	}
	if _, ok := out["DistanceSupplied"]; ok {
		t.Fatalf("internal field leaked")
	}
	if (Trip{DistanceM: 100}).AverageSpeedKmh() != 0 {
		t.Fatalf("zero duration must give zero speed")
	}
}
