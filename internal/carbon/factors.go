package carbon

import (
	"fmt"
	"os"

	"github.com/AyushMusale/TripSense/internal/shared/travel"

	"gopkg.in/yaml.v3"
)

type constError string

func (e constError) Error() string { return string(e) }

var (
	ErrNegativeFactor = constError("negative emission factor")
	ErrUnknownFactor  = constError("unknown emission factor key")
)

// Factors holds emission factors in kg CO2 per km.
type Factors struct {
	Base    map[travel.Mode]float64 `yaml:"base"`
	CarFuel map[string]float64      `yaml:"car_fuel"`
	BusType map[string]float64      `yaml:"bus_type"`
}

// DefaultFactors returns a fresh copy of the built-in factor tables.
func DefaultFactors() Factors {
	return Factors{
		Base: map[travel.Mode]float64{
			travel.Walking:    0,
			travel.Cycling:    0,
			travel.Car:        0.192,
			travel.Motorcycle: 0.113,
			travel.Bus:        0.089,
			travel.Train:      0.041,
			travel.Metro:      0.041,
			travel.Taxi:       0.192,
			travel.Rideshare:  0.192,
			travel.Plane:      0.255,
			travel.Boat:       0.018,
			travel.Other:      0.1,
		},
		CarFuel: map[string]float64{
			"petrol":   0.192,
			"diesel":   0.171,
			"hybrid":   0.120,
			"electric": 0.053,
			"lpg":      0.180,
		},
		BusType: map[string]float64{
			"city":      0.089,
			"intercity": 0.103,
			"school":    0.089,
			"coach":     0.027,
		},
	}
}

func (f Factors) clone() Factors {
	out := Factors{
		Base:    make(map[travel.Mode]float64, len(f.Base)),
		CarFuel: make(map[string]float64, len(f.CarFuel)),
		BusType: make(map[string]float64, len(f.BusType)),
	}
	for k, v := range f.Base {
		out.Base[k] = v
	}
	for k, v := range f.CarFuel {
		out.CarFuel[k] = v
	}
	for k, v := range f.BusType {
		out.BusType[k] = v
	}
	return out
}

// Merge returns a copy of f with every entry of override applied on top.
func (f Factors) Merge(override Factors) (Factors, error) {
	out := f.clone()
	for mode, v := range override.Base {
		if !mode.Valid() {
			return Factors{}, fmt.Errorf("%w: mode %q", ErrUnknownFactor, mode)
		}
		if v < 0 {
			return Factors{}, fmt.Errorf("%w: mode %q", ErrNegativeFactor, mode)
		}
		out.Base[mode] = v
	}
	for fuel, v := range override.CarFuel {
		if v < 0 {
			return Factors{}, fmt.Errorf("%w: fuel %q", ErrNegativeFactor, fuel)
		}
		out.CarFuel[fuel] = v
	}
	for bus, v := range override.BusType {
		if v < 0 {
			return Factors{}, fmt.Errorf("%w: bus %q", ErrNegativeFactor, bus)
		}
		out.BusType[bus] = v
	}
	return out, nil
}

// LoadFactors reads a YAML override file and merges it onto the defaults.
// An empty path yields the defaults.
func LoadFactors(path string) (Factors, error) {
	defaults := DefaultFactors()
	if path == "" {
		return defaults, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Factors{}, fmt.Errorf("read carbon factors: %w", err)
	}
	var override Factors
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Factors{}, fmt.Errorf("parse carbon factors: %w", err)
	}
	return defaults.Merge(override)
}
