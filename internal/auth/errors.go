package auth

import (
	"errors"
	"fmt"
)

// Error taxonomy. Provider covers both identity-provider failures and
// persistence failures; callers can not distinguish the two. A persistence
// error on a write path means the in-memory mutation already applied and
// durability is unconfirmed; there is no rollback.
var (
	ErrValidation   = errors.New("auth: validation failed")
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrConflict     = errors.New("auth: conflict")
	ErrProvider     = errors.New("auth: provider failure")
)

// ValidationError carries the offending field alongside the message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("auth: validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func validationErr(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// invalidCodeMessage is deliberately ambiguous: callers must not be able
// to tell a wrong code from an expired or consumed challenge.
const invalidCodeMessage = "code invalid or expired"

func unauthorizedErr(message string) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, message)
}

func forbiddenErr(message string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, message)
}

func providerErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProvider, op, err)
}
