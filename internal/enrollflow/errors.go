package enrollflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Input failures that block dispatch.
var (
	ErrNotAuthenticated = errors.New("log in to submit an enrollment request")
	ErrCourseNotLoaded  = errors.New("course details are not loaded yet")
	ErrProofRequired    = errors.New("upload a proof of payment before submitting")
	ErrPaymentDetails   = errors.New("payment details are incomplete")
	ErrInvalidFileType  = errors.New("proof of payment must be an image")
	ErrFileTooLarge     = errors.New("proof of payment must be 5 MB or smaller")
)

// ErrSubmitInProgress rejects a submit issued while another is in flight.
var ErrSubmitInProgress = errors.New("an enrollment submission is already in progress")

// FieldErrors maps payment field keys to messages.
type FieldErrors map[string]string

// String renders the messages sorted by field key.
func (f FieldErrors) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

// UserInputError is recovered locally and rendered inline.
type UserInputError struct {
	Err    error
	Fields FieldErrors
}

func (e *UserInputError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Fields.String())
	}
	return e.Err.Error()
}

func (e *UserInputError) Unwrap() error {
	return e.Err
}

func inputError(err error) *UserInputError {
	return &UserInputError{Err: err}
}

// ConflictError is a submission failure classified as a duplicate enrollment.
type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string {
	return "duplicate enrollment: " + e.Err.Error()
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// ProbeError is a failed status lookup. It never blocks the user.
type ProbeError struct {
	Err error
}

func (e *ProbeError) Error() string {
	return "enrollment status lookup failed: " + e.Err.Error()
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
