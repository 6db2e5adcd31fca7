package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/accountkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-g string     gRPC health bind address, empty disables
//	-d string     PostgreSQL DSN, empty selects the in-memory store
//	-s string     token signing secret (>= 32 bytes)
//	-t duration   session token validity (e.g., "12h")
//	-f string     frontend base URL used in mailed links
//	-m string     SMTP host
//	-p int        SMTP port
//	-u string     SMTP username
//	-w string     SMTP password
//	-o string     SMTP sender address
//	-k string     admin key, empty disables the admin routes
//	-l string     log level
//	-cors string  comma-separated allowed CORS origins
//
// Only the flags above are parsed; os.Args is filtered with flagx.FilterArgs
// so -c / -config and -env-file stay with their own parsers.
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-g", "-d", "-s", "-t", "-f", "-m", "-p", "-u", "-w", "-o", "-k", "-l", "-cors",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "http address and port to run server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "grpc health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "token signing secret")
	fs.DurationVar(&config.SessionTokenValidityDuration, "t", config.SessionTokenValidityDuration, "session token validity")
	fs.StringVar(&config.FrontendBaseURL, "f", config.FrontendBaseURL, "frontend base url")

	fs.StringVar(&config.SMTPHost, "m", config.SMTPHost, "smtp host")
	fs.IntVar(&config.SMTPPort, "p", config.SMTPPort, "smtp port")
	fs.StringVar(&config.SMTPUsername, "u", config.SMTPUsername, "smtp username")
	fs.StringVar(&config.SMTPPassword, "w", config.SMTPPassword, "smtp password")
	fs.StringVar(&config.SMTPFrom, "o", config.SMTPFrom, "smtp sender address")

	fs.StringVar(&config.AdminKey, "k", config.AdminKey, "admin key")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	cors := fs.String("cors", strings.Join(config.CORSAllowedOrigins, ","), "allowed CORS origins")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	if *cors != "" {
		config.CORSAllowedOrigins = strings.Split(*cors, ",")
	} else {
		config.CORSAllowedOrigins = nil
	}
	return nil
}
