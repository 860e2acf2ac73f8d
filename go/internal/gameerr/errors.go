// Package gameerr holds the error taxonomy shared by the game packages.
package gameerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/models"
)

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned by stores when a unique key already exists.
	ErrDuplicate = errors.New("duplicate key")
	// ErrContention means the per-session lock was held by someone else or the
	// store aborted the transaction on a serialization failure. Callers re-poll.
	ErrContention = errors.New("concurrency contention")
)

// ValidationError rejects bad input such as an unknown choice or id.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Msg, e.Err)
	}
	return "validation: " + e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError rejects a request that clashes with existing state.
type ConflictError struct {
	Msg string
	Err error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("conflict: %s: %v", e.Msg, e.Err)
	}
	return "conflict: " + e.Msg
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Conflictf builds a ConflictError.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// ErrAlreadyRecorded is the conflict for a second decision in the same round.
var ErrAlreadyRecorded = &ConflictError{Msg: "decision already recorded for this round", Err: ErrDuplicate}

// StateMismatchError is returned when an operation requires a participant
// state other than the one derived from stored facts.
type StateMismatchError struct {
	Want []models.State
	Got  models.State
}

func (e *StateMismatchError) Error() string {
	want := make([]string, len(e.Want))
	for i, s := range e.Want {
		want[i] = string(s)
	}
	return fmt.Sprintf("participant is in state %q, expected %s", e.Got, strings.Join(want, " or "))
}

// ConsistencyViolation reports a settlement write that found its guard already
// tripped. It is logged, never returned to end users.
type ConsistencyViolation struct {
	SessionID uuid.UUID
	Round     int
	Msg       string
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("consistency violation in session %s round %d: %s", e.SessionID, e.Round, e.Msg)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err is a ConflictError or a StateMismatchError.
func IsConflict(err error) bool {
	var c *ConflictError
	var s *StateMismatchError
	return errors.As(err, &c) || errors.As(err, &s)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsContention reports whether err wraps ErrContention.
func IsContention(err error) bool {
	return errors.Is(err, ErrContention)
}
