package monitor

import "codeberg.org/mutker/upsguard/internal/errors"

const (
	ErrInvalidInterval = errors.ErrInvalidInterval
	ErrMissingDep      = errors.ErrorCode("monitor_missing_dependency")
)
