package models

import (
	"errors"
	"fmt"
)

// Error categories. Every domain error wraps exactly one of them.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("not authorized")
	ErrNotFound     = errors.New("not found")
)

var (
	ErrEmailTaken       = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrUsernameTaken    = fmt.Errorf("%w: username already taken", ErrConflict)
	ErrWrongPassword    = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrNotParticipant   = fmt.Errorf("%w: not a participant of the message", ErrUnauthorized)
	ErrAccountNotFound  = fmt.Errorf("%w: account not found", ErrNotFound)
	ErrSenderNotFound   = fmt.Errorf("%w: sender not found", ErrNotFound)
	ErrMessageNotFound  = fmt.Errorf("%w: message not found", ErrNotFound)
	ErrEmptyContent     = fmt.Errorf("%w: message content is empty", ErrInvalidInput)
	ErrInvalidRecipient = fmt.Errorf("%w: invalid recipient", ErrInvalidInput)
	ErrInvalidPage      = fmt.Errorf("%w: page must be a positive number", ErrInvalidInput)
	ErrInvalidLimit     = fmt.Errorf("%w: limit must be a positive number", ErrInvalidInput)
	ErrInvalidID        = fmt.Errorf("%w: malformed id", ErrInvalidInput)
	ErrNoMessageIDs     = fmt.Errorf("%w: no message ids given", ErrInvalidInput)
)

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
