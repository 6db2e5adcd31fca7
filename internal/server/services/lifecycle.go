package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// MinPasswordLength applies to registration and password reset alike.
const MinPasswordLength = 6

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token   string
	Account models.PublicAccount
}

// VerifyEmail consumes a verification token and marks its account verified.
// Every failure is reported as common.ErrInvalidOrExpiredToken.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.tokens.Verify(token, auth.PurposeVerification)
	if err != nil {
		s.logger.Debug(ctx, "verification token rejected", "error", err)
		return common.ErrInvalidOrExpiredToken
	}

	ok, err := s.repo.CompareAndUpdate(ctx, claims.Subject,
		models.TokenGuard{VerificationToken: &token},
		models.AccountUpdate{IsVerified: models.Ptr(true), VerificationToken: models.Ptr("")},
	)
	if err != nil {
		return storeError("verify account", err)
	}
	if !ok {
		return common.ErrInvalidOrExpiredToken
	}

	s.logger.Info(ctx, "account verified")
	return nil
}

// Login checks the credentials and issues a session token. Unknown emails and
// wrong passwords both yield common.ErrInvalidCredentials. An unverified
// account with the right password yields common.ErrAccountNotActivated.
func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrValidation)
	}

	acc, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			if digest, derr := s.dummyDigest(); derr == nil {
				s.hasher.Verify(password, digest)
			}
			return nil, common.ErrInvalidCredentials
		}
		return nil, storeError("find account", err)
	}

	if !s.hasher.Verify(password, acc.PasswordHash) {
		return nil, common.ErrInvalidCredentials
	}

	if !acc.IsVerified {
		return nil, common.ErrAccountNotActivated
	}

	token, err := s.issue(auth.PurposeSession, auth.Claims{AccountID: acc.ID, Email: acc.Email}, s.sessionTokenTTL)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "account logged in", "account_id", acc.ID)

	return &LoginResult{Token: token, Account: acc.Public()}, nil
}

// ForgotPassword stores a fresh reset token on a verified account and mails
// the reset link. A previous reset token stops working. Unknown and
// unverified accounts yield common.ErrorNotFound.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: email is required", common.ErrValidation)
	}

	acc, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return storeError("find account", err)
	}
	if !acc.IsVerified {
		return common.ErrorNotFound
	}

	token, err := s.issue(auth.PurposeReset, auth.Claims{AccountID: acc.ID}, s.resetTokenTTL)
	if err != nil {
		return err
	}

	if err := s.repo.Update(ctx, acc.Email, models.AccountUpdate{ResetToken: &token}); err != nil {
		return storeError("store reset token", err)
	}

	link, err := s.actionURL("reset-password", token)
	if err != nil {
		return err
	}

	err = s.mail.Send(ctx, mailer.KindPasswordReset, acc.Email, mailer.Params{
		FirstName: acc.FirstName,
		ActionURL: link,
		ValidFor:  s.resetTokenTTL,
	})
	if err != nil {
		s.logger.Warn(ctx, "password reset email not sent", "account_id", acc.ID, "error", err)
		return mailError(err)
	}

	s.logger.Info(ctx, "password reset requested", "account_id", acc.ID)
	return nil
}

// ResetPassword consumes a reset token and replaces the password hash.
// Token failures are reported as common.ErrInvalidOrExpiredToken.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, MinPasswordLength)
	}

	claims, err := s.tokens.Verify(token, auth.PurposeReset)
	if err != nil {
		s.logger.Debug(ctx, "reset token rejected", "error", err)
		return common.ErrInvalidOrExpiredToken
	}

	acc, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidOrExpiredToken
		}
		return storeError("find account", err)
	}
	if acc.ResetToken == "" || acc.ResetToken != token {
		return common.ErrInvalidOrExpiredToken
	}

	digest, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	ok, err := s.repo.CompareAndUpdate(ctx, acc.Email,
		models.TokenGuard{ResetToken: &token},
		models.AccountUpdate{PasswordHash: &digest, ResetToken: models.Ptr("")},
	)
	if err != nil {
		return storeError("reset password", err)
	}
	if !ok {
		return common.ErrInvalidOrExpiredToken
	}

	s.logger.Info(ctx, "password reset", "account_id", acc.ID)
	return nil
}

// ResendActivation replaces the verification token of an unverified account
// and mails the new link. Links sent earlier stop working.
func (s *AccountService) ResendActivation(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: email is required", common.ErrValidation)
	}

	acc, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return storeError("find account", err)
	}
	if acc.IsVerified {
		return common.ErrAlreadyVerified
	}

	token, err := s.issue(auth.PurposeVerification, auth.Claims{Email: acc.Email}, s.verificationTokenTTL)
	if err != nil {
		return err
	}

	upd := models.AccountUpdate{VerificationToken: &token}
	if acc.VerificationToken == "" {
		err = s.repo.Update(ctx, acc.Email, upd)
	} else {
		// Guarding on the old token loses against a concurrent VerifyEmail,
		// which clears it.
		var ok bool
		ok, err = s.repo.CompareAndUpdate(ctx, acc.Email, models.TokenGuard{VerificationToken: &acc.VerificationToken}, upd)
		if err == nil && !ok {
			return common.ErrAlreadyVerified
		}
	}
	if err != nil {
		return storeError("store verification token", err)
	}

	link, err := s.actionURL("verify", token)
	if err != nil {
		return err
	}

	err = s.mail.Send(ctx, mailer.KindReactivation, acc.Email, mailer.Params{
		FirstName: acc.FirstName,
		ActionURL: link,
		ValidFor:  s.verificationTokenTTL,
	})
	if err != nil {
		s.logger.Warn(ctx, "activation email not resent", "account_id", acc.ID, "error", err)
		return mailError(err)
	}

	s.logger.Info(ctx, "activation email resent", "account_id", acc.ID)
	return nil
}
