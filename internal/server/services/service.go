// Package services contains server-side business logic. AccountService owns
// the account lifecycle: registration, email verification, login and the
// password reset flow.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
	"github.com/go-playground/validator/v10"
)

// TokenIssuer is the subset of auth.TokenIssuer the service needs.
type TokenIssuer interface {
	Issue(purpose auth.Purpose, claims auth.Claims, ttl time.Duration) (string, error)
	Verify(token string, purpose auth.Purpose) (*auth.Claims, error)
	Inspect(token string) (*auth.Claims, error)
}

// MailSender delivers templated account emails.
type MailSender interface {
	Send(ctx context.Context, kind mailer.Kind, to string, params mailer.Params) error
}

// Options carry the deployment settings of AccountService.
type Options struct {
	FrontendBaseURL      string
	SessionTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	RegisterTimeout      time.Duration
	Logger               logging.Logger
}

// DefaultRegisterTimeout bounds Register when Options leave it unset.
const DefaultRegisterTimeout = 25 * time.Second

const dummyPassword = "accountkeeper-dummy-password"

// AccountService implements the account lifecycle on top of an injected
// account store, hasher, token issuer and mail sender.
type AccountService struct {
	repo     accounts.Repository
	hasher   auth.PasswordHasher
	tokens   TokenIssuer
	mail     MailSender
	validate *validator.Validate
	logger   logging.Logger

	frontendBaseURL      string
	sessionTokenTTL      time.Duration
	verificationTokenTTL time.Duration
	resetTokenTTL        time.Duration
	registerTimeout      time.Duration

	// dummyDigest is compared against on logins for unknown emails so that
	// they cost as much as logins with a wrong password.
	dummyDigest func() (string, error)
}

// NewAccountService wires the service. FrontendBaseURL and SessionTokenTTL
// have no defaults.
func NewAccountService(repo accounts.Repository, hasher auth.PasswordHasher, tokens TokenIssuer, mail MailSender, opts Options) (*AccountService, error) {
	if opts.FrontendBaseURL == "" {
		return nil, errors.New("frontend base url is required")
	}
	if opts.SessionTokenTTL <= 0 {
		return nil, errors.New("session token ttl is required")
	}
	if opts.VerificationTokenTTL <= 0 {
		opts.VerificationTokenTTL = auth.VerificationTokenTTL
	}
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = auth.ResetTokenTTL
	}
	if opts.RegisterTimeout <= 0 {
		opts.RegisterTimeout = DefaultRegisterTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	s := &AccountService{
		repo:                 repo,
		hasher:               hasher,
		tokens:               tokens,
		mail:                 mail,
		validate:             newValidator(),
		logger:               opts.Logger.With("module", "accounts"),
		frontendBaseURL:      opts.FrontendBaseURL,
		sessionTokenTTL:      opts.SessionTokenTTL,
		verificationTokenTTL: opts.VerificationTokenTTL,
		resetTokenTTL:        opts.ResetTokenTTL,
		registerTimeout:      opts.RegisterTimeout,
	}
	s.dummyDigest = sync.OnceValues(func() (string, error) {
		return hasher.Hash(dummyPassword)
	})

	return s, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validationError turns validator output into a single ErrValidation.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			reasons = append(reasons, fe.Field()+" is required")
		case "email":
			reasons = append(reasons, fe.Field()+" is not a valid email address")
		case "min":
			reasons = append(reasons, fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
		case "max":
			reasons = append(reasons, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			reasons = append(reasons, fe.Field()+" is invalid")
		}
	}

	return fmt.Errorf("%w: %s", common.ErrValidation, strings.Join(reasons, "; "))
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrorInternal, op, err)
}

func mailError(err error) error {
	if errors.Is(err, common.ErrMailDelivery) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrMailDelivery, err)
}

// actionURL builds the frontend link that carries token.
func (s *AccountService) actionURL(path, token string) (string, error) {
	u, err := url.JoinPath(s.frontendBaseURL, path, token)
	if err != nil {
		return "", fmt.Errorf("%w: action url: %v", common.ErrorInternal, err)
	}
	return u, nil
}

func (s *AccountService) hashPassword(plain string) (string, error) {
	digest, err := s.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			return "", err
		}
		return "", fmt.Errorf("%w: hash password: %v", common.ErrorInternal, err)
	}
	return digest, nil
}

func (s *AccountService) issue(purpose auth.Purpose, claims auth.Claims, ttl time.Duration) (string, error) {
	token, err := s.tokens.Issue(purpose, claims, ttl)
	if err != nil {
		return "", fmt.Errorf("%w: issue %s token: %v", common.ErrorInternal, purpose, err)
	}
	return token, nil
}
