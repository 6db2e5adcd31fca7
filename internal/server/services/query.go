package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// TokenInfo describes a presented token without consuming it.
type TokenInfo struct {
	Valid     bool       `json:"valid"`
	Purpose   string     `json:"purpose,omitempty"`
	Email     string     `json:"email,omitempty"`
	AccountID string     `json:"userId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// InspectToken checks signature and expiry only. Stored tokens are not
// consulted and nothing is modified.
func (s *AccountService) InspectToken(ctx context.Context, token string) TokenInfo {
	claims, err := s.tokens.Inspect(token)
	if err != nil {
		s.logger.Debug(ctx, "inspected token rejected", "error", err)
		return TokenInfo{Valid: false, Error: err.Error()}
	}

	info := TokenInfo{
		Valid:     true,
		Purpose:   string(claims.Purpose),
		Email:     claims.Email,
		AccountID: claims.AccountID,
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time.UTC()
		info.ExpiresAt = &exp
	}
	return info
}

// Me resolves a session token into the public view of its account.
func (s *AccountService) Me(ctx context.Context, sessionToken string) (*models.PublicAccount, error) {
	claims, err := s.tokens.Verify(sessionToken, auth.PurposeSession)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	acc, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, storeError("find account", err)
	}

	pub := acc.Public()
	return &pub, nil
}

// ListAccounts returns every account without credentials.
func (s *AccountService) ListAccounts(ctx context.Context) ([]models.PublicAccount, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, storeError("list accounts", err)
	}

	out := make([]models.PublicAccount, 0, len(list))
	for _, a := range list {
		out = append(out, a.Public())
	}
	return out, nil
}

// DeleteAccount removes the account with the given email. It is an
// administrative operation; the lifecycle itself never deletes accounts.
func (s *AccountService) DeleteAccount(ctx context.Context, email string) error {
	if err := s.repo.Delete(ctx, email); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return storeError("delete account", err)
	}

	s.logger.Info(ctx, "account deleted")
	return nil
}
