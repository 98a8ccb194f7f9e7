package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrDuplicateIdentifier = errors.New("identifier already registered")
	ErrValidation          = errors.New("validation failed")
	ErrUserNotFound        = errors.New("user not found")
	ErrTokenRevoked        = errors.New("refresh token revoked")
	ErrForbidden           = errors.New("forbidden")
	ErrUnavailable         = errors.New("service unavailable")
)

// unavailable hides the storage error from callers; it is logged where it
// happens.
func unavailable(op string) error {
	return fmt.Errorf("%s: %w", op, ErrUnavailable)
}

func validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
