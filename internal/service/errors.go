package service

import "errors"

var (
	// ErrNoteNotFound is returned when a note does not exist or the caller cannot see it.
	ErrNoteNotFound = errors.New("note not found")
	// ErrMissingCaller is returned when a request carries no caller id.
	ErrMissingCaller = errors.New("missing caller id")
	// ErrInvalidInput wraps validation failures of service inputs.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoInvitation is returned when accepting an invitation that does not exist.
	ErrNoInvitation = errors.New("no pending invitation for the user")
)
