// Package power turns UPS sensor readings into a shutdown decision.
package power

import (
	"strconv"

	"codeberg.org/mutker/upsguard/internal/sensor"
)

const (
	SourceHWiNFO = "HWiNFO"
	CategoryUPS  = "UPS"

	ReadingChargeLevel = "Charge Level"
	ReadingACPower     = "AC Power"
	ReadingCharging    = "Charging"
	ReadingDischarging = "Discharging"

	maxChargeLevel = 100
)

// Flag is a tri-state boolean sensor value.
type Flag int8

const (
	FlagUnknown Flag = iota
	FlagOff
	FlagOn
)

// ParseFlag maps "1" to FlagOn and "0" to FlagOff. Anything else is unknown.
func ParseFlag(value string) Flag {
	switch value {
	case "1":
		return FlagOn
	case "0":
		return FlagOff
	default:
		return FlagUnknown
	}
}

func (f Flag) String() string {
	switch f {
	case FlagOn:
		return "on"
	case FlagOff:
		return "off"
	default:
		return "unknown"
	}
}

// State is the UPS power state observed in a single poll.
type State struct {
	ChargeLevel      int
	ChargeLevelKnown bool
	ACPower          Flag
	Charging         Flag
	Discharging      Flag
}

// Evaluate extracts the UPS readings. Missing or malformed readings leave
// the corresponding field unknown; it never fails.
func Evaluate(readings []sensor.Reading) State {
	var state State

	if r, ok := lookup(readings, ReadingChargeLevel); ok {
		if level, ok := parseChargeLevel(r.Value); ok {
			state.ChargeLevel = level
			state.ChargeLevelKnown = true
		}
	}

	state.ACPower = lookupFlag(readings, ReadingACPower)
	state.Charging = lookupFlag(readings, ReadingCharging)
	state.Discharging = lookupFlag(readings, ReadingDischarging)

	return state
}

// Missing lists the readings that were absent or could not be interpreted.
func (s State) Missing() []string {
	var missing []string
	if !s.ChargeLevelKnown {
		missing = append(missing, ReadingChargeLevel)
	}
	if s.ACPower == FlagUnknown {
		missing = append(missing, ReadingACPower)
	}
	if s.Charging == FlagUnknown {
		missing = append(missing, ReadingCharging)
	}
	if s.Discharging == FlagUnknown {
		missing = append(missing, ReadingDischarging)
	}

	return missing
}

// Complete reports whether every reading was present and valid.
func (s State) Complete() bool {
	return len(s.Missing()) == 0
}

// parseChargeLevel accepts only a plain decimal percent in 0..100. Signs,
// whitespace and fractions are rejected, like the exact match of ParseFlag.
func parseChargeLevel(value string) (int, bool) {
	if value == "" || len(value) > len("100") {
		return 0, false
	}
	for _, c := range value {
		if c < '0' || c > '9' {
			return 0, false
		}
	}

	level, err := strconv.Atoi(value)
	if err != nil || level > maxChargeLevel {
		return 0, false
	}

	return level, true
}

func lookup(readings []sensor.Reading, name string) (sensor.Reading, bool) {
	return sensor.Find(readings, SourceHWiNFO, CategoryUPS, name)
}

func lookupFlag(readings []sensor.Reading, name string) Flag {
	r, ok := lookup(readings, name)
	if !ok {
		return FlagUnknown
	}

	return ParseFlag(r.Value)
}
