package ripple_errors

import "errors"

// Common errors
var (
	ErrNoConnection  = errors.New("no connection available")
	ErrConnClosed    = errors.New("connection closed")
	ErrEmptyMessage  = errors.New("empty message")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrChatNotFound  = errors.New("chat not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")
	ErrTooLarge      = errors.New("file too large")
)
