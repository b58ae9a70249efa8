package gree

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// maxDatagramSize bounds a single reply read.
const maxDatagramSize = 8192

// Transport carries one request/response exchange with a unit, or one
// broadcast with a bounded collection window.
//
// Implementations must never block past the given timeout.
type Transport interface {
	// Exchange sends payload to addr and waits for one reply. A missing
	// reply surfaces as ErrNetworkTimeout.
	Exchange(ctx context.Context, addr string, payload []byte, timeout time.Duration) ([]byte, error)

	// Broadcast sends payload to addr and calls onReply for every datagram
	// received until window elapses or ctx is done. Expiry is not an error.
	Broadcast(ctx context.Context, addr string, payload []byte, window time.Duration, onReply func(from *net.UDPAddr, data []byte)) error
}

// UDPTransport opens a fresh socket for every exchange so no socket is
// shared between devices.
type UDPTransport struct {
	dialer net.Dialer
}

// NewUDPTransport creates a UDP transport.
func NewUDPTransport() *UDPTransport {
	return &UDPTransport{}
}

// Exchange implements Transport.
func (t *UDPTransport) Exchange(ctx context.Context, addr string, payload []byte, timeout time.Duration) ([]byte, error) {
	conn, err := t.dialer.DialContext(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close() //nolint:errcheck // best-effort close on short-lived socket

	if err := conn.SetDeadline(deadline(ctx, timeout)); err != nil {
		return nil, fmt.Errorf("setting deadline: %w", err)
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, classifyNetErr(addr, err)
	}

	buf := make([]byte, maxDatagramSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, classifyNetErr(addr, err)
	}
	return buf[:n], nil
}

// Broadcast implements Transport.
func (t *UDPTransport) Broadcast(ctx context.Context, addr string, payload []byte, window time.Duration, onReply func(from *net.UDPAddr, data []byte)) error {
	dst, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", addr, err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return fmt.Errorf("opening broadcast socket: %w", err)
	}
	defer conn.Close() //nolint:errcheck // best-effort close

	if err := conn.SetDeadline(deadline(ctx, window)); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}

	if _, err := conn.WriteToUDP(payload, dst); err != nil {
		return fmt.Errorf("sending broadcast to %s: %w", addr, err)
	}

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			return fmt.Errorf("reading broadcast replies: %w", err)
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		onReply(from, data)
	}
}

// deadline returns the earlier of now+timeout and the context deadline.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func classifyNetErr(addr string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrNetworkTimeout, addr)
	}
	return fmt.Errorf("exchange with %s: %w", addr, err)
}
