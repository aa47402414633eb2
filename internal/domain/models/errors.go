package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrMilkingAlreadyBatched indicates a milking record is already claimed by another batch.
	ErrMilkingAlreadyBatched = errors.New("milking record already belongs to a batch")

	// ErrNoApprovedBatches indicates a payment period has nothing to pay for.
	ErrNoApprovedBatches = errors.New("no approved batches in period")

	// ErrConcurrentModification indicates a record changed after it was read.
	ErrConcurrentModification = errors.New("record was modified concurrently")
)

// ValidationError reports malformed input keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// InvalidTransitionError reports an operation attempted from the wrong status.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %q to %q", e.Entity, e.From, e.To)
}

// StorageError wraps persistence failures so callers can tell them apart
// from business rule violations.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a StorageError unless it is nil, already a
// StorageError or a business error that must reach the caller unchanged.
func Storage(op string, err error) error {
	if err == nil || IsBusiness(err) || IsStorage(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsBusiness reports whether err is a business rule violation rather than an
// infrastructure failure.
func IsBusiness(err error) bool {
	var ve *ValidationError
	var te *InvalidTransitionError
	switch {
	case errors.As(err, &ve), errors.As(err, &te):
		return true
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrMilkingAlreadyBatched),
		errors.Is(err, ErrNoApprovedBatches),
		errors.Is(err, ErrConcurrentModification):
		return true
	}
	return false
}

// IsStorage reports whether err originated in the persistence layer.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
