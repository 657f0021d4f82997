// Package apperr defines the error kinds shared by the booking domains and
// their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Wrap them with the constructors below and test with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRange      = errors.New("start time must be before end time")
	ErrPastDate          = errors.New("date is in the past")
	ErrInvalidDate       = errors.New("cannot book appointments for past dates")
	ErrOverlap           = errors.New("time slot overlaps an existing availability")
	ErrMismatch          = errors.New("availability does not belong to the doctor")
	ErrConflict          = errors.New("conflict")
	ErrAlreadyCanceled   = errors.New("appointment is already canceled")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
)

// Error carries a kind plus a caller-facing message.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Newf wraps kind with a formatted message.
func Newf(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity, e.g. NotFound("doctor", id).
func NotFound(entity string, id interface{}) error {
	return Newf(ErrNotFound, "%s not found with id: %v", entity, id)
}

// NotFoundf reports a missing entity with a custom message.
func NotFoundf(format string, args ...interface{}) error {
	return Newf(ErrNotFound, format, args...)
}

func Conflictf(format string, args ...interface{}) error {
	return Newf(ErrConflict, format, args...)
}

func Validationf(format string, args ...interface{}) error {
	return Newf(ErrValidation, format, args...)
}

func InvalidTransitionf(format string, args ...interface{}) error {
	return Newf(ErrInvalidTransition, format, args...)
}

var kinds = []struct {
	kind   error
	code   string
	status int
}{
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrInvalidRange, "invalid_range", http.StatusBadRequest},
	{ErrPastDate, "past_date", http.StatusBadRequest},
	{ErrInvalidDate, "invalid_date", http.StatusBadRequest},
	{ErrOverlap, "overlap", http.StatusBadRequest},
	{ErrMismatch, "mismatch", http.StatusBadRequest},
	{ErrValidation, "validation", http.StatusBadRequest},
	{ErrConflict, "conflict", http.StatusConflict},
	{ErrAlreadyCanceled, "already_canceled", http.StatusConflict},
	{ErrInvalidTransition, "invalid_transition", http.StatusConflict},
}

// Classify returns the machine readable code and HTTP status for err.
// Unknown errors classify as ("internal", 500).
func Classify(err error) (string, int) {
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.code, k.status
		}
	}
	return "internal", http.StatusInternalServerError
}

// HTTPStatus returns the HTTP status for err.
func HTTPStatus(err error) int {
	_, status := Classify(err)
	return status
}

// Is reports whether err is a known domain error.
func Is(err error) bool {
	_, status := Classify(err)
	return status != http.StatusInternalServerError
}
