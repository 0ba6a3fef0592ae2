package sensor

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"codeberg.org/mutker/upsguard/internal/errors"
)

// JSONParser decodes the sensor monitor's JSON array of records. Decoding is
// lenient: unknown fields are ignored and missing fields stay empty. Only a
// payload that is not a JSON array of objects fails.
type JSONParser struct{}

// record mirrors one element of the exported array.
type record struct {
	SensorApp        flexString `json:"SensorApp"`
	SensorClass      flexString `json:"SensorClass"`
	SensorName       flexString `json:"SensorName"`
	SensorValue      flexString `json:"SensorValue"`
	SensorUnit       flexString `json:"SensorUnit"`
	SensorUpdateTime flexTime   `json:"SensorUpdateTime"`
}

// Parse decodes raw into readings in payload order.
func (JSONParser) Parse(raw []byte) ([]Reading, error) {
	errFactory := errors.New()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errFactory.WithMessage(ErrFormat, "empty telemetry payload")
	}

	var records []record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, errFactory.Wrap(ErrFormat, err)
	}

	readings := make([]Reading, 0, len(records))
	for _, r := range records {
		readings = append(readings, Reading{
			Source:    string(r.SensorApp),
			Category:  string(r.SensorClass),
			Name:      string(r.SensorName),
			Value:     string(r.SensorValue),
			Unit:      string(r.SensorUnit),
			UpdatedAt: time.Time(r.SensorUpdateTime),
		})
	}

	return readings, nil
}

// flexString accepts a JSON string or number and keeps the literal text.
// Anything else decodes to the empty string.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*s = flexString(num.String())
		return nil
	}

	*s = ""
	return nil
}

// flexTime accepts unix seconds (number or numeric string) or RFC3339.
// Unrecognised values decode to the zero time.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var text flexString
	_ = text.UnmarshalJSON(data)

	if secs, err := strconv.ParseInt(string(text), 10, 64); err == nil {
		*t = flexTime(time.Unix(secs, 0).UTC())
		return nil
	}

	if parsed, err := time.Parse(time.RFC3339, string(text)); err == nil {
		*t = flexTime(parsed)
		return nil
	}

	*t = flexTime(time.Time{})
	return nil
}
