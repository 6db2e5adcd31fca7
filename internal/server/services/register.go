package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// RegisterInput is the registration form.
type RegisterInput struct {
	FirstName string `json:"firstname" validate:"required,max=100"`
	LastName  string `json:"lastname" validate:"required,max=100"`
	Login     string `json:"login" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=6"`
}

// RegisterResult reports the new account. MailSent is false when the
// account was stored but the activation email could not be delivered.
type RegisterResult struct {
	AccountID string
	MailSent  bool
}

type registerOutcome struct {
	res *RegisterResult
	err error
}

// Register validates in, stores a new unverified account and sends the
// activation email. The whole operation is bounded by the register timeout:
// when it runs out the caller gets common.ErrTimeout and the remaining
// steps are skipped.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.registerTimeout)
	defer cancel()

	done := make(chan registerOutcome, 1)
	go func() {
		res, err := s.register(ctx, in)
		done <- registerOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		// Work that finished right at the deadline still wins.
		select {
		case out := <-done:
			return out.res, out.err
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Warn(ctx, "registration timed out", "timeout", s.registerTimeout.String())
			return nil, common.ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func (s *AccountService) register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	_, err := s.repo.FindByLoginOrEmail(ctx, in.Login, in.Email)
	switch {
	case err == nil:
		return nil, common.ErrConflict
	case !errors.Is(err, common.ErrorNotFound):
		return nil, storeError("find account", err)
	}

	digest, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	token, err := s.issue(auth.PurposeVerification, auth.Claims{Email: in.Email}, s.verificationTokenTTL)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := s.repo.Insert(ctx, &models.Account{
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		Login:             in.Login,
		Email:             in.Email,
		PasswordHash:      digest,
		VerificationToken: token,
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil, common.ErrConflict
		}
		return nil, storeError("insert account", err)
	}

	s.logger.Info(ctx, "account registered", "account_id", id)

	res := &RegisterResult{AccountID: id}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	link, err := s.actionURL("verify", token)
	if err != nil {
		return nil, err
	}

	err = s.mail.Send(ctx, mailer.KindActivation, in.Email, mailer.Params{
		FirstName: in.FirstName,
		ActionURL: link,
		ValidFor:  s.verificationTokenTTL,
	})
	if err != nil {
		s.logger.Warn(ctx, "activation email not sent", "account_id", id, "error", err)
		return res, nil
	}

	res.MailSent = true
	return res, nil
}
