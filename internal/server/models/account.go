// Package models defines the account domain types shared by the store,
// the lifecycle service and the transports.
package models

import "time"

// Account is the durable identity and credential record of a registered user.
// Empty VerificationToken / ResetToken mean no live token.
type Account struct {
	ID                string
	FirstName         string
	LastName          string
	Login             string
	Email             string
	PasswordHash      string
	IsVerified        bool
	VerificationToken string
	ResetToken        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PublicAccount is the part of an Account that may leave the server.
type PublicAccount struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstname"`
	LastName  string    `json:"lastname"`
	Login     string    `json:"login"`
	Email     string    `json:"email"`
	Verified  bool      `json:"isVerified"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips credentials and tokens.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Login:     a.Login,
		Email:     a.Email,
		Verified:  a.IsVerified,
		CreatedAt: a.CreatedAt,
	}
}

// AccountUpdate lists the fields a store update may touch. Nil fields are left
// as they are; a pointer to "" clears a token.
type AccountUpdate struct {
	PasswordHash      *string
	IsVerified        *bool
	VerificationToken *string
	ResetToken        *string
}

// Apply merges u into a.
func (u AccountUpdate) Apply(a *Account) {
	if u.PasswordHash != nil {
		a.PasswordHash = *u.PasswordHash
	}
	if u.IsVerified != nil && *u.IsVerified {
		a.IsVerified = true
	}
	if u.VerificationToken != nil {
		a.VerificationToken = *u.VerificationToken
	}
	if u.ResetToken != nil {
		a.ResetToken = *u.ResetToken
	}
}

// TokenGuard is the precondition of a compare-and-update: every non-nil field
// must equal the stored value. Guarding on "" never matches.
type TokenGuard struct {
	VerificationToken *string
	ResetToken        *string
}

// Matches reports whether a satisfies the guard.
func (g TokenGuard) Matches(a *Account) bool {
	if g.VerificationToken != nil {
		if *g.VerificationToken == "" || a.VerificationToken != *g.VerificationToken {
			return false
		}
	}
	if g.ResetToken != nil {
		if *g.ResetToken == "" || a.ResetToken != *g.ResetToken {
			return false
		}
	}
	return true
}

// Ptr returns a pointer to v; handy for building AccountUpdate values.
func Ptr[T any](v T) *T {
	return &v
}
