// ABOUTME: Error taxonomy shared by the scoring, lifecycle, dedupe and queue packages
// ABOUTME: Distinguishes validation, not-found, conflict, retry-later and soft-ban outcomes
package models

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError rejects bad input before any state change.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Msg
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing or soft-deleted entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ConflictError reports a duplicate identity, e.g. a profile URL already in use.
type ConflictError struct {
	Entity string
	Field  string
	Value  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

// RateLimitedError means "retry later", not failure.
type RateLimitedError struct {
	Reason string
	WaitMs int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (%s), retry in %s", e.Reason, e.Wait())
}

// Wait returns the retry hint as a duration.
func (e *RateLimitedError) Wait() time.Duration {
	return time.Duration(e.WaitMs) * time.Millisecond
}

// ErrSoftBan is returned by the execution side when the sending channel is restricted.
var ErrSoftBan = errors.New("soft ban detected")

// BatchError is one failed item inside a batch run.
type BatchError struct {
	Key string `json:"key"`
	Err string `json:"error"`
}

// NewBatchError records err against key.
func NewBatchError(key string, err error) BatchError {
	return BatchError{Key: key, Err: err.Error()}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// AsRateLimited extracts a RateLimitedError from err.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
