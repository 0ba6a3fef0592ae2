package errors

// ErrorCode identifies a failure class. Codes are stable strings so they can
// be logged as error_code and matched with HasCode.
type ErrorCode string

// Error is a coded error. The With* methods return a copy and leave the
// receiver untouched.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds coded errors.
type Factory interface {
	New(code ErrorCode) Error
	// Wrap keeps err reachable through Unwrap, errors.Is and errors.As.
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
