// Package server wires the account service together: it selects the store
// backend, builds the lifecycle service and runs the HTTP and gRPC servers
// until the process is asked to stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/accountkeeper/internal/server/grpc"
	hs "github.com/dmitrijs2005/accountkeeper/internal/server/http"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    repomanager.RepositoryManager
	mail     *mailer.SMTPDispatcher
	accounts *services.AccountService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	return newApp(ctx, c, os.Stdout)
}

func newApp(ctx context.Context, c *config.Config, logOut io.Writer) (*App, error) {
	logger, err := logging.NewJSONLogger(logOut, c.LogLevel)
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	issuer, err := auth.NewTokenIssuer([]byte(c.SecretKey))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	mail, err := mailer.NewSMTPDispatcher(mailer.Config{
		Host:           c.SMTPHost,
		Port:           c.SMTPPort,
		Username:       c.SMTPUsername,
		Password:       c.SMTPPassword,
		From:           c.SMTPFrom,
		SSL:            c.SMTPSSL,
		PoolSize:       c.MailPoolSize,
		SendTimeout:    c.MailSendTimeout,
		ConnectTimeout: c.MailConnectTimeout,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	accounts, err := services.NewAccountService(store.Accounts(), auth.NewBcryptHasher(), issuer, mail, services.Options{
		FrontendBaseURL:      c.FrontendBaseURL,
		SessionTokenTTL:      c.SessionTokenValidityDuration,
		VerificationTokenTTL: c.VerificationTokenValidityDuration,
		ResetTokenTTL:        c.ResetTokenValidityDuration,
		RegisterTimeout:      c.RegisterTimeout,
		Logger:               logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{config: c, logger: logger, store: store, mail: mail, accounts: accounts}, nil
}

// newStore picks PostgreSQL when a DSN is configured and the in-memory store
// otherwise.
func newStore(ctx context.Context, c *config.Config, logger logging.Logger) (repomanager.RepositoryManager, error) {
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, using the in-memory account store; data is lost on restart")
		return repomanager.NewInMemoryRepositoryManager(), nil
	}

	m, err := repomanager.NewPostgresRepositoryManager(ctx, c.DatabaseDSN, c.DatabaseMaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	logger.Info(ctx, "using PostgreSQL account store")
	return m, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			app.logger.Info(ctx, "Received signal", "signal", sig.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// probeMail logs whether the mail relay is reachable. A failure is not fatal.
func (app *App) probeMail(ctx context.Context) {
	if err := app.mail.Probe(ctx); err != nil {
		if ctx.Err() == nil {
			app.logger.Warn(ctx, "mail relay unreachable at startup", "error", err)
		}
		return
	}
	app.logger.Info(ctx, "mail relay reachable")
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	h := hs.NewHandler(app.accounts, app.store, app.mail, app.logger)
	router := hs.NewRouter(h, hs.RouterOptions{
		CORSAllowedOrigins: app.config.CORSAllowedOrigins,
		AdminKey:           app.config.AdminKey,
	})

	s := hs.NewHTTPServer(app.config.EndpointAddrHTTP, router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.store)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return fmt.Errorf("grpc server: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, a termination signal arrives or one of
// the servers fails. Resources are released before it returns.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store", app.store.Kind())

	app.initSignalHandler(ctx, cancelFunc)
	go app.probeMail(ctx)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(start func(context.Context, context.CancelFunc) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := start(ctx, cancelFunc); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	run(app.startHTTPServer)
	if app.config.EndpointAddrGRPC != "" {
		run(app.startGRPCServer)
	}

	wg.Wait()

	app.logger.Info(context.Background(), "Stopping app...")
	errs = append(errs, app.close())

	return errors.Join(errs...)
}

func (app *App) close() error {
	return errors.Join(app.mail.Close(), app.store.Close())
}
