// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"strings"
)

// ErrNotFound indicates the requested entity does not exist (or is not visible to the caller).
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the store rejected a write because of a uniqueness or state conflict.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates the input was rejected before any state change.
var ErrValidation = errors.New("validation failed")

// ErrForbidden indicates the actor lacks the role required for an operation.
var ErrForbidden = errors.New("forbidden")

// LockedFieldsError is returned by the field guard when a save touches
// fields the actor may not change. Fields is sorted.
type LockedFieldsError struct {
	Fields []string
}

func (e *LockedFieldsError) Error() string {
	return "You are not allowed to change: " + strings.Join(e.Fields, ", ")
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *LockedFieldsError) Unwrap() error { return ErrValidation }
