// Package carbon estimates trip emissions from transport mode and distance.
package carbon

import (
	"sort"

	"github.com/AyushMusale/TripSense/internal/shared/travel"
)

// Options refine the factor of a mode. FuelType only applies to cars and
// BusType only to buses. Occupancy above one splits the factor per traveller.
type Options struct {
	FuelType  string `json:"fuel_type,omitempty"`
	BusType   string `json:"bus_type,omitempty"`
	Occupancy int    `json:"occupancy,omitempty"`
}

type Calculator struct {
	factors Factors
}

func NewCalculator(f Factors) *Calculator {
	return &Calculator{factors: f.clone()}
}

// Default returns a calculator over the built-in factors.
func Default() *Calculator {
	return &Calculator{factors: DefaultFactors()}
}

// Factors returns a copy of the tables in use.
func (c *Calculator) Factors() Factors {
	return c.factors.clone()
}

// Efficiency returns kg CO2 per km for the mode.
func (c *Calculator) Efficiency(mode travel.Mode, opts Options) float64 {
	factor, ok := c.factors.Base[mode]
	if !ok {
		factor = c.factors.Base[travel.Other]
	}

	if mode == travel.Car && opts.FuelType != "" {
		if v, ok := c.factors.CarFuel[opts.FuelType]; ok {
			factor = v
		}
	}
	if mode == travel.Bus && opts.BusType != "" {
		if v, ok := c.factors.BusType[opts.BusType]; ok {
			factor = v
		}
	}

	if opts.Occupancy > 1 {
		factor /= float64(opts.Occupancy)
	}
	return factor
}

// Footprint returns kg CO2 for distanceM meters travelled by mode.
func (c *Calculator) Footprint(mode travel.Mode, distanceM float64, opts Options) float64 {
	return distanceM / 1000 * c.Efficiency(mode, opts)
}

// SavingsVsCar is what the trip saved compared to driving it with the same options.
func (c *Calculator) SavingsVsCar(mode travel.Mode, distanceM float64, opts Options) float64 {
	saved := c.Footprint(travel.Car, distanceM, opts) - c.Footprint(mode, distanceM, opts)
	if saved < 0 {
		return 0
	}
	return saved
}

type RankEntry struct {
	Mode       travel.Mode `json:"mode"`
	Footprint  float64     `json:"footprint"`
	Efficiency float64     `json:"efficiency"`
}

// Ranking lists every mode once, cleanest first. Ties keep declaration order.
func (c *Calculator) Ranking(distanceM float64, opts Options) []RankEntry {
	modes := travel.Modes()
	out := make([]RankEntry, 0, len(modes))
	for _, m := range modes {
		out = append(out, RankEntry{
			Mode:       m,
			Footprint:  c.Footprint(m, distanceM, opts),
			Efficiency: c.Efficiency(m, opts),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Footprint < out[j].Footprint
	})
	return out
}
