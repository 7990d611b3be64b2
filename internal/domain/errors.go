package domain

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	// ErrTransient marks network or lookup failures that callers degrade around.
	ErrTransient = errors.New("transient failure")
)
