// Package netx holds small network helpers shared by outbound adapters.
package netx

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// HostPort joins host and port into a dialable address.
func HostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Probe checks that a TCP connection to addr can be established within
// timeout. The connection is closed immediately; nothing is written to it.
func Probe(ctx context.Context, addr string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	return conn.Close()
}
