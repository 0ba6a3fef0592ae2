package action

import "codeberg.org/mutker/upsguard/internal/errors"

const (
	// ErrAction is returned when a shutdown could not be dispatched.
	ErrAction = errors.ErrorCode("action_dispatch_failed")

	ErrInvalidConfig = errors.ErrorCode("action_invalid_config")
)
