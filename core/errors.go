package core

import "github.com/pkg/errors"

// FieldError ties a validation message to the struct field it concerns.
type FieldError struct {
	Field string
	Error string
}

// ValidationError carries user-input problems the API renders as a 400.
// Fields is optional; without it the top-level message is used.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// shutdown marks errors that should take the whole process down, such as
// an unusable database handle surfacing mid-request.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

// IsShutdown reports whether err (or its cause) requests a shutdown.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
