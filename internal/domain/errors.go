package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrLocked              = errors.New("account locked")
	ErrDisabled            = errors.New("account disabled")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAllocationExhausted = errors.New("visa number allocation exhausted")
	ErrRenderingFailed     = errors.New("rendering failed")
	ErrAlreadyDeleted      = errors.New("already deleted")
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionInvalid      = errors.New("session invalid")
)

// PublicNotFoundMessage is the single message returned for every failed public lookup.
const PublicNotFoundMessage = "No record found. Please check your information."

// ErrNoPublicMatch is returned by public lookups regardless of which field mismatched.
var ErrNoPublicMatch = fmt.Errorf("%w: %s", ErrNotFound, PublicNotFoundMessage)

// ErrStaleStatus reports that a record's status changed between read and write.
var ErrStaleStatus = fmt.Errorf("%w: record was changed by another request", ErrConflict)

// ConflictError names the field and value that violated a uniqueness rule.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s already exists", e.Field)
	}
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ValidationError joins every violated field message.
type ValidationError struct {
	Fields []string
}

// NewValidationError builds a ValidationError from one or more messages.
func NewValidationError(msgs ...string) *ValidationError {
	return &ValidationError{Fields: msgs}
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// LockedError exposes only the remaining lock time.
type LockedError struct {
	MinutesLeft int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minute(s)", e.MinutesLeft)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// CredentialsError reports a secret mismatch and the attempts left before lockout.
type CredentialsError struct {
	AttemptsLeft int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempt(s) left", e.AttemptsLeft)
}

func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }
