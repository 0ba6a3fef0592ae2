package sensor_test

import (
	"strconv"
	"testing"
	"time"

	"codeberg.org/mutker/upsguard/internal/errors"
	"codeberg.org/mutker/upsguard/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upsPayload = `[
  {"SensorApp":"HWiNFO","SensorClass":"CPU [#0]","SensorName":"Core Temp","SensorValue":"41","SensorUnit":"°C","SensorUpdateTime":1700000000},
  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Charge Level","SensorValue":"87","SensorUnit":"%","SensorUpdateTime":1700000001},
  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"AC Power","SensorValue":"1","SensorUnit":"Yes/No","SensorUpdateTime":1700000001},
  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Charging","SensorValue":"0","SensorUnit":"Yes/No","SensorUpdateTime":1700000001},
  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Discharging","SensorValue":"0","SensorUnit":"Yes/No","SensorUpdateTime":1700000001,"Extra":true}
]`

func TestParsePreservesValues(t *testing.T) {
	readings, err := sensor.JSONParser{}.Parse([]byte(upsPayload))
	require.NoError(t, err)
	require.Len(t, readings, 5)

	want := map[string]string{
		"Charge Level": "87",
		"AC Power":     "1",
		"Charging":     "0",
		"Discharging":  "0",
	}
	for name, value := range want {
		r, ok := sensor.Find(readings, "HWiNFO", "UPS", name)
		require.True(t, ok, name)
		assert.Equal(t, value, r.Value, name)
	}

	r, ok := sensor.Find(readings, "HWiNFO", "UPS", "Charge Level")
	require.True(t, ok)
	assert.Equal(t, "%", r.Unit)
	assert.Equal(t, time.Unix(1700000001, 0).UTC(), r.UpdatedAt)
}

func TestParseLenientFields(t *testing.T) {
	payload := `[
	  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Charge Level","SensorValue":42},
	  {"SensorName":"Orphan"},
	  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Load","SensorValue":"12.5","SensorUpdateTime":"2024-01-02T03:04:05Z"}
	]`

	readings, err := sensor.JSONParser{}.Parse([]byte(payload))
	require.NoError(t, err)
	require.Len(t, readings, 3)

	assert.Equal(t, "42", readings[0].Value)
	assert.True(t, readings[0].UpdatedAt.IsZero())
	assert.Equal(t, "Orphan", readings[1].Name)
	assert.Empty(t, readings[1].Source)
	assert.Equal(t, 2024, readings[2].UpdatedAt.Year())
}

func TestParseEmptyArray(t *testing.T) {
	readings, err := sensor.JSONParser{}.Parse([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, readings)

	readings, err = sensor.JSONParser{}.Parse([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestParseMalformed(t *testing.T) {
	for _, payload := range []string{``, `   `, `{"SensorApp":"HWiNFO"}`, `[{"SensorApp":`, `<html></html>`, `[1,2]`} {
		_, err := sensor.JSONParser{}.Parse([]byte(payload))
		require.Error(t, err, payload)
		assert.True(t, errors.HasCode(err, sensor.ErrFormat), payload)
	}
}

func TestChargeLevelRoundTrip(t *testing.T) {
	for level := 0; level <= 100; level++ {
		value := strconv.Itoa(level)
		payload := `[{"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Charge Level","SensorValue":"` + value + `"}]`

		readings, err := sensor.JSONParser{}.Parse([]byte(payload))
		require.NoError(t, err)

		r, ok := sensor.Find(readings, "HWiNFO", "UPS", "Charge Level")
		require.True(t, ok)
		assert.Equal(t, value, r.Value)
	}
}

func TestFindFirstMatchWins(t *testing.T) {
	readings := []sensor.Reading{
		{Source: "HWiNFO", Category: "Battery", Name: "Charge Level", Value: "5"},
		{Source: "HWiNFO", Category: "UPS", Name: "Charge Level", Value: "80"},
		{Source: "HWiNFO", Category: "UPS", Name: "Charge Level", Value: "10"},
	}

	r, ok := sensor.Find(readings, "HWiNFO", "UPS", "Charge Level")
	require.True(t, ok)
	assert.Equal(t, "80", r.Value)

	_, ok = sensor.Find(readings, "HWiNFO", "ups", "Charge Level")
	assert.False(t, ok)
}
