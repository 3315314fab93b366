package core

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	ErrEmptyRoster        = errors.New("no eligible students found")
	ErrNoSubjectMarks     = errors.New("no subject marks found for student")
	ErrServiceUnavailable = errors.New("service currently unavailable")
	ErrPermissionDenied   = errors.New("permission denied")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// UpstreamRequestError is returned when an external service was reached but the call failed
// (transport error, non-success status or malformed payload).
type UpstreamRequestError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (err *UpstreamRequestError) Error() string {
	msg := err.Service + " request failed"
	if err.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, err.StatusCode)
	}
	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	return msg
}

func (err *UpstreamRequestError) Unwrap() error { return err.Err }

// PersistenceError is returned when a write transaction failed and was rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (err *PersistenceError) Error() string {
	return err.Op + ": " + err.Err.Error()
}

func (err *PersistenceError) Unwrap() error { return err.Err }

func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsValidationError reports whether err is caused by invalid input.
func IsValidationError(err error) bool {
	switch errors.Cause(err).(type) {
	case validator.ValidationErrors, *ValidationError:
		return true
	}
	return false
}

// PublicMessage returns the message that may be shown to end users for err.
// Internal details never leak through it.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		upstreamErr    *UpstreamRequestError
		persistenceErr *PersistenceError
	)
	switch {
	case IsValidationError(err):
		return "invalid request: " + errors.Cause(err).Error()
	case errors.Is(err, ErrEmptyRoster):
		return ErrEmptyRoster.Error()
	case errors.Is(err, ErrNoSubjectMarks):
		return ErrNoSubjectMarks.Error()
	case errors.Is(err, ErrServiceUnavailable):
		return ErrServiceUnavailable.Error()
	case errors.Is(err, ErrPermissionDenied):
		return ErrPermissionDenied.Error()
	case errors.As(err, &upstreamErr):
		return "the external service returned an invalid response, please try again later"
	case errors.As(err, &persistenceErr):
		return "could not save the results, please try again"
	}
	return "an unexpected error occurred"
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
