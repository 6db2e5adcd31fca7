package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/flagx"
	"github.com/dmitrijs2005/accountkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the optional JSON config file. Durations
// use timex.Duration, so both "25s" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrHTTP     string `json:"endpoint_addr_http"`
	EndpointAddrGRPC     string `json:"endpoint_addr_grpc"`
	DatabaseDSN          string `json:"database_dsn"`
	DatabaseMaxOpenConns int    `json:"database_max_open_conns"`

	SecretKey                         string         `json:"secret_key"`
	SessionTokenValidityDuration      timex.Duration `json:"session_token_validity_duration"`
	VerificationTokenValidityDuration timex.Duration `json:"verification_token_validity_duration"`
	ResetTokenValidityDuration        timex.Duration `json:"reset_token_validity_duration"`
	RegisterTimeout                   timex.Duration `json:"register_timeout"`

	FrontendBaseURL string `json:"frontend_base_url"`

	SMTPHost           string         `json:"smtp_host"`
	SMTPPort           int            `json:"smtp_port"`
	SMTPUsername       string         `json:"smtp_username"`
	SMTPPassword       string         `json:"smtp_password"`
	SMTPFrom           string         `json:"smtp_from"`
	SMTPSSL            *bool          `json:"smtp_ssl"`
	MailPoolSize       int            `json:"mail_pool_size"`
	MailSendTimeout    timex.Duration `json:"mail_send_timeout"`
	MailConnectTimeout timex.Duration `json:"mail_connect_timeout"`

	CORSAllowedOrigins []string `json:"cors_allowed_origins"`
	AdminKey           string   `json:"admin_key"`
	LogLevel           string   `json:"log_level"`
}

// parseJson overlays values from the JSON file named by -c / -config onto
// config. Keys missing from the file keep their current values.
func parseJson(config *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", jsonConfigFile, err)
	}

	c.applyTo(config)
	return nil
}

func (c *JsonConfig) applyTo(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setInt(&config.DatabaseMaxOpenConns, c.DatabaseMaxOpenConns)

	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.SessionTokenValidityDuration, c.SessionTokenValidityDuration)
	setDuration(&config.VerificationTokenValidityDuration, c.VerificationTokenValidityDuration)
	setDuration(&config.ResetTokenValidityDuration, c.ResetTokenValidityDuration)
	setDuration(&config.RegisterTimeout, c.RegisterTimeout)

	setString(&config.FrontendBaseURL, c.FrontendBaseURL)

	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPUsername, c.SMTPUsername)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SMTPFrom, c.SMTPFrom)
	if c.SMTPSSL != nil {
		config.SMTPSSL = *c.SMTPSSL
	}
	setInt(&config.MailPoolSize, c.MailPoolSize)
	setDuration(&config.MailSendTimeout, c.MailSendTimeout)
	setDuration(&config.MailConnectTimeout, c.MailConnectTimeout)

	if len(c.CORSAllowedOrigins) > 0 {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
	setString(&config.AdminKey, c.AdminKey)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
