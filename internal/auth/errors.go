package auth

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvitationInvalid covers unknown, consumed and expired codes.
	ErrInvitationInvalid   = errors.New("invalid or expired code")
	ErrTokenInvalid        = errors.New("invalid or expired token")
	ErrTokenAlreadyUsed    = errors.New("token has already been used")
	ErrAccountNotFound     = errors.New("account not found")
	ErrOrganizationMissing = errors.New("account is not linked to an organization")
	ErrForbidden           = errors.New("insufficient privileges")
)

// ValidationError lists offending request fields with a message per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

// fieldErrors accumulates per-field problems while validating input.
type fieldErrors map[string]string

func (f fieldErrors) require(field, value string) {
	if strings.TrimSpace(value) == "" {
		f[field] = field + " is required"
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}
