// Package config handles configuration for the account server: defaults,
// .env file, environment, JSON overlay and command-line flags, followed by
// fail-fast validation.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/flagx"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
)

// Config holds runtime settings for the account server.
//
// Secrets, the frontend URL, the mail host and the session lifetime have no
// defaults: they must come from the environment, a JSON file or flags.
// An empty DatabaseDSN selects the in-memory store.
type Config struct {
	EndpointAddrHTTP     string `env:"HTTP_ADDR"`
	EndpointAddrGRPC     string `env:"GRPC_ADDR"`
	DatabaseDSN          string `env:"DATABASE_DSN"`
	DatabaseMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS"`

	SecretKey                         string        `env:"SECRET_KEY"`
	SessionTokenValidityDuration      time.Duration `env:"SESSION_TTL"`
	VerificationTokenValidityDuration time.Duration `env:"VERIFICATION_TTL"`
	ResetTokenValidityDuration        time.Duration `env:"RESET_TTL"`
	RegisterTimeout                   time.Duration `env:"REGISTER_TIMEOUT"`

	FrontendBaseURL string `env:"FRONTEND_URL"`

	SMTPHost           string        `env:"SMTP_HOST"`
	SMTPPort           int           `env:"SMTP_PORT"`
	SMTPUsername       string        `env:"SMTP_USERNAME"`
	SMTPPassword       string        `env:"SMTP_PASSWORD"`
	SMTPFrom           string        `env:"SMTP_FROM"`
	SMTPSSL            bool          `env:"SMTP_SSL"`
	MailPoolSize       int           `env:"MAIL_POOL_SIZE"`
	MailSendTimeout    time.Duration `env:"MAIL_SEND_TIMEOUT"`
	MailConnectTimeout time.Duration `env:"MAIL_CONNECT_TIMEOUT"`

	CORSAllowedOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
	AdminKey           string   `env:"ADMIN_KEY"`
	LogLevel           string   `env:"LOG_LEVEL"`
}

// LoadDefaults populates operational knobs only. Nothing security-relevant
// gets a compiled-in value.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.DatabaseMaxOpenConns = 10
	c.VerificationTokenValidityDuration = auth.VerificationTokenTTL
	c.ResetTokenValidityDuration = auth.ResetTokenTTL
	c.RegisterTimeout = 25 * time.Second
	c.MailPoolSize = 3
	c.MailSendTimeout = 10 * time.Second
	c.MailConnectTimeout = 5 * time.Second
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from the .env file, the environment, an optional JSON file and finally
// command-line flags. The result is validated before it is returned.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := loadDotEnv(flagx.EnvFileFlags()); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseJson(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every misconfiguration at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SecretKey) < auth.MinSecretLength {
		errs = append(errs, fmt.Errorf("secret key must be at least %d bytes", auth.MinSecretLength))
	}
	if c.SessionTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("session token validity must be set"))
	}
	if c.VerificationTokenValidityDuration <= 0 || c.ResetTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("verification and reset token validity must be positive"))
	}
	if c.RegisterTimeout <= 0 {
		errs = append(errs, errors.New("register timeout must be positive"))
	}
	if err := validateBaseURL(c.FrontendBaseURL); err != nil {
		errs = append(errs, err)
	}
	if c.EndpointAddrHTTP == "" {
		errs = append(errs, errors.New("http address must be set"))
	}

	if c.SMTPHost == "" {
		errs = append(errs, errors.New("smtp host must be set"))
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		errs = append(errs, fmt.Errorf("smtp port %d is out of range", c.SMTPPort))
	}
	if c.SMTPFrom == "" {
		errs = append(errs, errors.New("smtp sender address must be set"))
	}
	if c.MailPoolSize <= 0 {
		errs = append(errs, errors.New("mail pool size must be positive"))
	}
	if c.MailSendTimeout <= 0 || c.MailConnectTimeout <= 0 {
		errs = append(errs, errors.New("mail timeouts must be positive"))
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("frontend base url must be set")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("frontend base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("frontend base url %q must be an absolute http(s) url", raw)
	}
	return nil
}
