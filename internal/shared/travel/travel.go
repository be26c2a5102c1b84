// Package travel holds the transport mode and trip purpose vocabularies shared
// by validation, metric derivation and analytics.
package travel

import "errors"

var (
	ErrUnknownMode    = errors.New("unknown transport mode")
	ErrUnknownPurpose = errors.New("unknown trip purpose")
)

type Mode string

const (
	Walking    Mode = "walking"
	Cycling    Mode = "cycling"
	Car        Mode = "car"
	Motorcycle Mode = "motorcycle"
	Bus        Mode = "bus"
	Train      Mode = "train"
	Metro      Mode = "metro"
	Taxi       Mode = "taxi"
	Rideshare  Mode = "rideshare"
	Plane      Mode = "plane"
	Boat       Mode = "boat"
	Other      Mode = "other"
)

var modes = []Mode{Walking, Cycling, Car, Motorcycle, Bus, Train, Metro, Taxi, Rideshare, Plane, Boat, Other}

// Modes returns every mode in declaration order. The slice is a copy.
func Modes() []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	return out
}

func (m Mode) Valid() bool {
	for _, known := range modes {
		if m == known {
			return true
		}
	}
	return false
}

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", ErrUnknownMode
	}
	return m, nil
}

// Group buckets a mode for analytics breakdowns.
func (m Mode) Group() ModeGroup {
	switch m {
	case Walking:
		return GroupWalking
	case Cycling:
		return GroupCycling
	case Car, Motorcycle, Taxi, Rideshare:
		return GroupCar
	case Bus, Train, Metro:
		return GroupPublicTransport
	default:
		return GroupOther
	}
}

// Active reports whether the mode is human powered.
func (m Mode) Active() bool {
	return m == Walking || m == Cycling
}

type ModeGroup string

const (
	GroupWalking         ModeGroup = "walking"
	GroupCycling         ModeGroup = "cycling"
	GroupCar             ModeGroup = "car"
	GroupPublicTransport ModeGroup = "public_transport"
	GroupOther           ModeGroup = "other"
)

func ModeGroups() []ModeGroup {
	return []ModeGroup{GroupWalking, GroupCycling, GroupCar, GroupPublicTransport, GroupOther}
}

type Purpose string

const (
	Work         Purpose = "work"
	Education    Purpose = "education"
	Shopping     Purpose = "shopping"
	Recreation   Purpose = "recreation"
	Healthcare   Purpose = "healthcare"
	Social       Purpose = "social"
	Personal     Purpose = "personal"
	Tourism      Purpose = "tourism"
	OtherPurpose Purpose = "other"
)

var purposes = []Purpose{Work, Education, Shopping, Recreation, Healthcare, Social, Personal, Tourism, OtherPurpose}

func Purposes() []Purpose {
	out := make([]Purpose, len(purposes))
	copy(out, purposes)
	return out
}

func (p Purpose) Valid() bool {
	for _, known := range purposes {
		if p == known {
			return true
		}
	}
	return false
}

func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(s)
	if !p.Valid() {
		return "", ErrUnknownPurpose
	}
	return p, nil
}
