// Package sensor fetches and decodes the telemetry exported by a remote
// sensor monitor (HWiNFO via its remote sensor monitor endpoint).
package sensor

import "time"

// Reading is a single telemetry datum as exported by the sensor monitor.
type Reading struct {
	Source    string    // e.g. "HWiNFO"
	Category  string    // e.g. "UPS"
	Name      string    // e.g. "Charge Level"
	Value     string    // raw value, e.g. "87" or "1"
	Unit      string    // e.g. "%"
	UpdatedAt time.Time // zero when the payload did not carry one
}

// Find returns the first reading matching source, category and name exactly.
func Find(readings []Reading, source, category, name string) (Reading, bool) {
	for _, r := range readings {
		if r.Source == source && r.Category == category && r.Name == name {
			return r, true
		}
	}

	return Reading{}, false
}
