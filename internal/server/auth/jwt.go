// Package auth contains the credential primitives of the account service:
// purpose-scoped signed tokens and password hashing.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose scopes a token to one use. A token is only accepted by Verify for
// the purpose it was issued for.
type Purpose string

const (
	PurposeVerification Purpose = "verification"
	PurposeReset        Purpose = "reset"
	PurposeSession      Purpose = "session"
)

const (
	// MinSecretLength is the minimal HMAC secret size in bytes.
	MinSecretLength = 32

	VerificationTokenTTL = 24 * time.Hour
	ResetTokenTTL        = 1 * time.Hour
)

var (
	ErrWeakSecret  = fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	ErrInvalidTTL  = errors.New("token ttl must be positive")
	ErrUnknownKind = errors.New("unknown token purpose")
)

// Claims are the payload of every token. Verification tokens carry Email as
// subject only, reset tokens carry AccountID, session tokens carry both.
// Inspect fills Email back in from the subject of a verification token.
type Claims struct {
	jwt.RegisteredClaims
	Purpose   Purpose `json:"purpose"`
	AccountID string  `json:"userId,omitempty"`
	Email     string  `json:"email,omitempty"`
}

// TokenIssuer signs and verifies HS256 tokens with a server-held secret.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer refuses secrets shorter than MinSecretLength.
func NewTokenIssuer(secret []byte) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenIssuer{secret: key, now: time.Now}, nil
}

// Issue signs claims for purpose with the given lifetime. Every token gets a
// random ID, so re-issuing for the same subject always yields a new value.
func (i *TokenIssuer) Issue(purpose Purpose, claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}

	switch purpose {
	case PurposeVerification:
		claims.Subject = claims.Email
		claims.Email = ""
	case PurposeReset, PurposeSession:
		claims.Subject = claims.AccountID
	default:
		return "", ErrUnknownKind
	}

	now := i.now()
	claims.Purpose = purpose
	claims.ID = uuid.NewString()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Verify checks signature, expiry and purpose. It returns
// common.ErrTokenExpired for expired tokens and common.ErrInvalidToken for
// everything else.
func (i *TokenIssuer) Verify(tokenString string, purpose Purpose) (*Claims, error) {
	claims, err := i.Inspect(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// Inspect verifies signature and expiry without a purpose expectation.
func (i *TokenIssuer) Inspect(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Purpose == "" || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	if claims.Purpose == PurposeVerification {
		claims.Email = claims.Subject
	}

	return claims, nil
}
