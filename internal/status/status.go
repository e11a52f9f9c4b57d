// Package status maps domain errors to the numeric result codes returned by every operation.
package status

import (
	"errors"
	"net/http"

	"chat-engine/internal/models"
)

// Code is the numeric result code carried in every response.
type Code int

const (
	OK           Code = 0
	InvalidInput Code = -1
	Conflict     Code = -2
	Unauthorized Code = -3
	NotFound     Code = -4
	Internal     Code = -500
)

var defaultMessages = map[Code]string{
	OK:           "OK",
	InvalidInput: "Invalid input",
	Conflict:     "User already exists",
	Unauthorized: "Invalid credentials",
	NotFound:     "User not found",
	Internal:     "Internal server error",
}

var httpStatuses = map[Code]int{
	OK:           http.StatusOK,
	InvalidInput: http.StatusBadRequest,
	Conflict:     http.StatusConflict,
	Unauthorized: http.StatusUnauthorized,
	NotFound:     http.StatusNotFound,
	Internal:     http.StatusInternalServerError,
}

// Status is a resolved result code with its human readable message.
type Status struct {
	Code    Code
	Message string
}

// HTTPStatus returns the transport status matching the code.
func (s Status) HTTPStatus() int {
	if st, ok := httpStatuses[s.Code]; ok {
		return st
	}
	return http.StatusInternalServerError
}

// Success is the status of a completed operation.
func Success() Status {
	return Status{Code: OK, Message: defaultMessages[OK]}
}

// CodeOf classifies err by the category it wraps.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, models.ErrInvalidInput):
		return InvalidInput
	case errors.Is(err, models.ErrConflict):
		return Conflict
	case errors.Is(err, models.ErrUnauthorized):
		return Unauthorized
	case errors.Is(err, models.ErrNotFound):
		return NotFound
	default:
		return Internal
	}
}

// FromError resolves err into a status. Internal failures never leak their text.
func FromError(err error) Status {
	code := CodeOf(err)
	switch code {
	case OK, Internal:
		return Status{Code: code, Message: defaultMessages[code]}
	}
	return Status{Code: code, Message: err.Error()}
}

// DefaultMessage returns the canonical message of code.
func DefaultMessage(code Code) string {
	return defaultMessages[code]
}
