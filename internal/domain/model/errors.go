package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error leaving the domain packages matches exactly one
// of these with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate")
	ErrConflict   = errors.New("conflict")
	ErrStorage    = errors.New("storage failure")
)

// FieldError names one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field problem found in one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

// Is reports kind equality.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Add appends a field problem.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it carries any field, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a single-field ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// DuplicateError lists the unique fields that are already taken.
type DuplicateError struct {
	Fields []string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s already taken", ErrDuplicate, strings.Join(e.Fields, ", "))
}

// Is reports kind equality.
func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// Error annotates a cause with the failing operation and its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// E builds an *Error. A nil err yields an error that only carries the kind.
func E(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NotFound reports a missing entity.
func NotFound(op, what, id string) error {
	return &Error{Op: op, Kind: ErrNotFound, Err: fmt.Errorf("%s %q", what, id)}
}

// KindOf returns the sentinel kind err carries, or nil when it carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrDuplicate, ErrConflict, ErrStorage} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
