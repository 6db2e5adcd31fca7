// Package common defines shared constants and sentinel errors used across
// the accountkeeper server layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrConflict   = errors.New("account with this email or login already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrTimeout        = errors.New("request timeout")

	// Validation errors. Service code wraps ErrValidation with the field
	// specific reason, e.g. fmt.Errorf("%w: password too short", ErrValidation).
	ErrValidation = errors.New("validation error")

	// Credential errors. ErrInvalidCredentials is shared by the "no such
	// account" and "wrong password" paths.
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountNotActivated = errors.New("account is not activated")
	ErrAlreadyVerified     = errors.New("account is already verified")

	// Token errors.
	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenExpired          = errors.New("token expired")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// Outbound mail errors.
	ErrMailDelivery = errors.New("mail delivery failed")
)
