package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/netx"
	"gopkg.in/gomail.v2"
)

// Config describes the SMTP relay and the local pool limits.
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	SSL            bool
	PoolSize       int
	SendTimeout    time.Duration
	ConnectTimeout time.Duration
}

func (c Config) validate() error {
	if c.Host == "" {
		return errors.New("missing smtp host")
	}
	if c.Port <= 0 {
		return errors.New("missing smtp port")
	}
	if c.From == "" {
		return errors.New("missing smtp sender")
	}
	if c.PoolSize <= 0 {
		return errors.New("pool size must be positive")
	}
	if c.SendTimeout <= 0 || c.ConnectTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

// SMTPDispatcher sends templated emails through a small pool of reusable
// SMTP connections. At most PoolSize sends are in flight at any time.
type SMTPDispatcher struct {
	cfg    Config
	logger logging.Logger

	dial  func() (gomail.SendCloser, error)
	slots chan struct{}
	idle  chan gomail.SendCloser
}

func NewSMTPDispatcher(cfg Config, logger logging.Logger) (*SMTPDispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("mailer config: %w", err)
	}

	m := &SMTPDispatcher{
		cfg:    cfg,
		logger: logger.With("module", "mailer"),
		slots:  make(chan struct{}, cfg.PoolSize),
		idle:   make(chan gomail.SendCloser, cfg.PoolSize),
	}
	m.dial = m.dialRelay
	return m, nil
}

func (m *SMTPDispatcher) dialRelay() (gomail.SendCloser, error) {
	conn, err := openSMTPConn(context.Background(), m.cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Send renders kind for params and delivers it to the recipient. Failures
// wrap common.ErrMailDelivery.
func (m *SMTPDispatcher) Send(ctx context.Context, kind Kind, to string, params Params) error {
	subject, body, err := Render(kind, params)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrMailDelivery, err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.deliver(ctx, msg); err != nil {
		m.logger.Warn(ctx, "mail delivery failed", "kind", kind.String(), "error", err)
		return fmt.Errorf("%w: %v", common.ErrMailDelivery, err)
	}

	m.logger.Debug(ctx, "mail sent", "kind", kind.String())
	return nil
}

func (m *SMTPDispatcher) deliver(ctx context.Context, msg *gomail.Message) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
	defer cancel()

	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	// A pooled connection may have been dropped by the server while idle, so
	// a failure on a reused connection is retried once on a fresh one.
	for attempt := 0; ; attempt++ {
		conn, reused, err := m.acquire(ctx)
		if err != nil {
			<-m.slots
			return err
		}

		done := make(chan error, 1)
		go func() { done <- gomail.Send(conn, msg) }()

		select {
		case err := <-done:
			if err == nil {
				m.release(conn)
				<-m.slots
				return nil
			}
			_ = conn.Close()
			if reused && attempt == 0 && ctx.Err() == nil {
				continue
			}
			<-m.slots
			return err
		case <-ctx.Done():
			// The slot stays taken until the interrupted send returns.
			if a, ok := conn.(aborter); ok {
				a.abort()
			}
			go func() {
				<-done
				_ = conn.Close()
				<-m.slots
			}()
			return ctx.Err()
		}
	}
}

type dialResult struct {
	conn gomail.SendCloser
	err  error
}

// acquire returns an idle pooled connection or dials a new one within
// ConnectTimeout.
func (m *SMTPDispatcher) acquire(ctx context.Context) (gomail.SendCloser, bool, error) {
	select {
	case conn := <-m.idle:
		return conn, true, nil
	default:
	}

	conn, err := m.dialWithTimeout(ctx)
	return conn, false, err
}

func (m *SMTPDispatcher) dialWithTimeout(ctx context.Context) (gomail.SendCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	res := make(chan dialResult, 1)
	go func() {
		conn, err := m.dial()
		res <- dialResult{conn: conn, err: err}
	}()

	select {
	case r := <-res:
		if r.err != nil {
			return nil, fmt.Errorf("dial smtp: %w", r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-res; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("dial smtp: %w", ctx.Err())
	}
}

func (m *SMTPDispatcher) release(conn gomail.SendCloser) {
	select {
	case m.idle <- conn:
	default:
		_ = conn.Close()
	}
}

// Probe checks that the relay accepts TCP connections and an SMTP session
// (including authentication) within ConnectTimeout. It sends nothing.
func (m *SMTPDispatcher) Probe(ctx context.Context) error {
	addr := netx.HostPort(m.cfg.Host, m.cfg.Port)

	if err := netx.Probe(ctx, addr, m.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMailDelivery, err)
	}

	conn, err := m.dialWithTimeout(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrMailDelivery, err)
	}
	return conn.Close()
}

// Close drops all idle pooled connections.
func (m *SMTPDispatcher) Close() error {
	var errs []error
	for {
		select {
		case conn := <-m.idle:
			if err := conn.Close(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}
