package store

import "errors"

var (
	// ErrNotFound is returned when a row or document does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateEmail is returned when the normalized email is already registered.
	ErrDuplicateEmail = errors.New("store: duplicate email")

	// ErrDuplicateUsername is returned when the username is already taken.
	ErrDuplicateUsername = errors.New("store: duplicate username")

	// ErrMissingAccount is returned when a message references an account that does not exist.
	ErrMissingAccount = errors.New("store: referenced account does not exist")

	// ErrNotConnected is returned when the backend was closed or never opened.
	ErrNotConnected = errors.New("store: not connected")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicateUsername)
}
