package mailer

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/netx"
)

// smtpConn is a gomail.SendCloser whose socket carries an I/O deadline for
// every exchange, so a relay that stops answering cannot pin a send.
type smtpConn struct {
	conn    net.Conn
	client  *smtp.Client
	timeout time.Duration
}

// aborter is implemented by connections that can interrupt a send in flight.
type aborter interface {
	abort()
}

// openSMTPConn dials the relay and completes the greeting, STARTTLS and
// authentication within cfg.ConnectTimeout.
func openSMTPConn(ctx context.Context, cfg Config) (*smtpConn, error) {
	d := net.Dialer{Timeout: cfg.ConnectTimeout}

	conn, err := d.DialContext(ctx, "tcp", netx.HostPort(cfg.Host, cfg.Port))
	if err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(time.Now().Add(cfg.ConnectTimeout)); err != nil {
		_ = conn.Close()
		return nil, err
	}

	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	if cfg.SSL {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if !cfg.SSL {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = client.Close()
				return nil, err
			}
		}
	}

	if cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
			if err := client.Auth(auth); err != nil {
				_ = client.Close()
				return nil, err
			}
		}
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &smtpConn{conn: conn, client: client, timeout: cfg.SendTimeout}, nil
}

func (c *smtpConn) Send(from string, to []string, msg io.WriterTo) error {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}

	if err := c.client.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := c.client.Rcpt(addr); err != nil {
			return err
		}
	}

	w, err := c.client.Data()
	if err != nil {
		return err
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (c *smtpConn) Close() error {
	_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	if err := c.client.Quit(); err != nil {
		_ = c.conn.Close()
		return err
	}
	return nil
}

// abort closes the socket, which fails any read or write in progress.
func (c *smtpConn) abort() {
	_ = c.conn.Close()
}
