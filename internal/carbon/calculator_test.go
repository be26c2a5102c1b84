package carbon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AyushMusale/TripSense/internal/shared/travel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEfficiency(t *testing.T) {
	calc := Default()

	tests := []struct {
		name string
		mode travel.Mode
		opts Options
		want float64
	}{
		{"walking", travel.Walking, Options{}, 0},
		{"car base", travel.Car, Options{}, 0.192},
		{"car diesel", travel.Car, Options{FuelType: "diesel"}, 0.171},
		{"car unknown fuel keeps base", travel.Car, Options{FuelType: "hydrogen"}, 0.192},
		{"fuel ignored for taxi", travel.Taxi, Options{FuelType: "electric"}, 0.192},
		{"bus coach", travel.Bus, Options{BusType: "coach"}, 0.027},
		{"bus type ignored for train", travel.Train, Options{BusType: "coach"}, 0.041},
		{"occupancy splits", travel.Car, Options{Occupancy: 4}, 0.048},
		{"occupancy one ignored", travel.Car, Options{Occupancy: 1}, 0.192},
		{"unknown mode uses other", travel.Mode("hovercraft"), Options{}, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Efficiency(tt.mode, tt.opts), 1e-9)
		})
	}
}

func TestFootprintExamples(t *testing.T) {
	calc := Default()

	// Lower Manhattan to Midtown, ~5420 m by car.
	assert.InDelta(t, 1.04, calc.Footprint(travel.Car, 5420, Options{}), 0.01)

	walk := calc.Footprint(travel.Walking, 5420, Options{})
	assert.Zero(t, walk)
	assert.InDelta(t, calc.Footprint(travel.Car, 5420, Options{}), calc.SavingsVsCar(travel.Walking, 5420, Options{}), 1e-9)
}

func TestFootprintNonNegative(t *testing.T) {
	calc := Default()
	for _, m := range travel.Modes() {
		for _, d := range []float64{0, 1, 1500, 250000} {
			fp := calc.Footprint(m, d, Options{Occupancy: 3})
			assert.GreaterOrEqual(t, fp, 0.0, "mode %s", m)
			assert.GreaterOrEqual(t, calc.SavingsVsCar(m, d, Options{}), 0.0, "mode %s", m)
		}
	}
	assert.Zero(t, calc.Footprint(travel.Cycling, 10000, Options{}))
}

func TestSavingsVsCarClampsAtZero(t *testing.T) {
	calc := Default()
	assert.Zero(t, calc.SavingsVsCar(travel.Plane, 10000, Options{}))
}

func TestRanking(t *testing.T) {
	calc := Default()
	ranking := calc.Ranking(10000, Options{})

	require.Len(t, ranking, len(travel.Modes()))
	seen := map[travel.Mode]bool{}
	for i, entry := range ranking {
		assert.False(t, seen[entry.Mode], "duplicate mode %s", entry.Mode)
		seen[entry.Mode] = true
		if i > 0 {
			assert.LessOrEqual(t, ranking[i-1].Footprint, entry.Footprint)
		}
	}
	assert.Equal(t, travel.Walking, ranking[0].Mode)
	assert.Equal(t, travel.Cycling, ranking[1].Mode)
	assert.Equal(t, travel.Plane, ranking[len(ranking)-1].Mode)
}

func TestNewCalculatorCopiesFactors(t *testing.T) {
	f := DefaultFactors()
	calc := NewCalculator(f)
	f.Base[travel.Car] = 99

	assert.InDelta(t, 0.192, calc.Efficiency(travel.Car, Options{}), 1e-9)

	got := calc.Factors()
	got.Base[travel.Car] = 42
	assert.InDelta(t, 0.192, calc.Efficiency(travel.Car, Options{}), 1e-9)
}

func TestLoadFactors(t *testing.T) {
	defaults, err := LoadFactors("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFactors(), defaults)

	path := filepath.Join(t.TempDir(), "factors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base:\n  car: 0.2\ncar_fuel:\n  hydrogen: 0.01\n"), 0o600))

	f, err := LoadFactors(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, f.Base[travel.Car], 1e-9)
	assert.InDelta(t, 0.01, f.CarFuel["hydrogen"], 1e-9)
	assert.InDelta(t, 0.089, f.Base[travel.Bus], 1e-9)
}

func TestLoadFactorsRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	negative := filepath.Join(dir, "negative.yaml")
	require.NoError(t, os.WriteFile(negative, []byte("bus_type:\n  city: -1\n"), 0o600))
	_, err := LoadFactors(negative)
	assert.ErrorIs(t, err, ErrNegativeFactor)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("base:\n  zeppelin: 1\n"), 0o600))
	_, err = LoadFactors(unknown)
	assert.ErrorIs(t, err, ErrUnknownFactor)

	_, err = LoadFactors(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
