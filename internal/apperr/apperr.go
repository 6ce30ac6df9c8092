// Package apperr defines the error taxonomy shared by the store, the link
// graph and the transports.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks at the transport layer.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("storage conflict")
)

// NotFoundError is returned when a lookup by id or title finds nothing.
// Side is set by two-document operations ("source" or "target").
type NotFoundError struct {
	Kind string
	Key  string
	Side string
}

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "memory"
	}
	if e.Side != "" {
		return fmt.Sprintf("%s %s not found: %s", e.Side, kind, e.Key)
	}
	return fmt.Sprintf("%s not found: %s", kind, e.Key)
}

// Is makes errors.Is(err, ErrNotFound) true.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound builds a NotFoundError for a memory id.
func NotFound(key string) error {
	return &NotFoundError{Kind: "memory", Key: key}
}

// ValidationError enumerates every offending field, not just the first.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "invalid fields"
	}
	if len(e.Fields) == 0 {
		return reason
	}
	return fmt.Sprintf("%s: %s", reason, strings.Join(e.Fields, ", "))
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(reason string, fields ...string) error {
	return &ValidationError{Fields: fields, Reason: reason}
}

// StorageConflictError is returned when a rename target is already occupied.
// Under unique id generation this should never happen.
type StorageConflictError struct {
	Path string
	ID   string
}

func (e *StorageConflictError) Error() string {
	return fmt.Sprintf("storage conflict: %s already exists (renaming memory %s)", e.Path, e.ID)
}

// Is makes errors.Is(err, ErrConflict) true.
func (e *StorageConflictError) Is(target error) bool {
	return target == ErrConflict
}
