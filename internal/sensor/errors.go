package sensor

import "codeberg.org/mutker/upsguard/internal/errors"

const (
	// ErrNetwork covers every telemetry fetch failure: transport errors,
	// timeouts and non-2xx responses.
	ErrNetwork = errors.ErrorCode("sensor_network_failed")

	// ErrFormat is returned when a payload cannot be decoded.
	ErrFormat = errors.ErrorCode("sensor_format_invalid")

	// ErrPayloadTooLarge is returned when a response body exceeds the
	// payload limit instead of handing a truncated body to the parser.
	ErrPayloadTooLarge = errors.ErrorCode("sensor_payload_too_large")

	ErrInvalidConfig = errors.ErrorCode("sensor_invalid_config")
)
