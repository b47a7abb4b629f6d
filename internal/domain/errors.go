package domain

import (
	"errors"
	"fmt"
)

// Domain error kinds. Callers classify failures with errors.Is and the HTTP
// layer maps each kind to a status code.
var (
	// ErrValidation - request or state transition violates a business rule (400)
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized - missing or invalid credentials (401)
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound - referenced entity does not exist (404)
	ErrNotFound = errors.New("not found")
	// ErrConflict - concurrent modification lost the race (409)
	ErrConflict = errors.New("conflict")
)

// Validationf wraps ErrValidation with a formatted message
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// NotFoundf wraps ErrNotFound with a formatted message
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Conflictf wraps ErrConflict with a formatted message
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}
