package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pion/stun"

	ncerr "gateslam/internal/errors"
)

// STUNProber learns the egress address from a STUN Binding response.
type STUNProber struct {
	Server  string
	Timeout time.Duration // per-request cap when ctx has no earlier deadline
}

// NewSTUNProber returns a prober for the STUN server at host:port.
func NewSTUNProber(server string) *STUNProber {
	return &STUNProber{Server: server, Timeout: 5 * time.Second}
}

// EgressIP implements Prober.
func (p *STUNProber) EgressIP(ctx context.Context) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", p.Server)
	if err != nil {
		return "", ncerr.Wrap("probe", p.Server, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	deadline := time.Now().Add(p.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return "", fmt.Errorf("build binding request: %w", err)
	}
	if _, err := req.WriteTo(conn); err != nil {
		return "", p.fail(ctx, err)
	}

	buf := make([]byte, 1500)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return "", p.fail(ctx, err)
		}

		res := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
		if err := res.Decode(); err != nil {
			return "", ncerr.Wrap("probe", p.Server, fmt.Errorf("decode response: %w", err))
		}
		// Stray datagrams from an earlier transaction are ignored.
		if res.TransactionID != req.TransactionID {
			continue
		}

		var xor stun.XORMappedAddress
		if err := xor.GetFrom(res); err == nil {
			return xor.IP.String(), nil
		}
		var mapped stun.MappedAddress
		if err := mapped.GetFrom(res); err != nil {
			return "", ncerr.Wrap("probe", p.Server, fmt.Errorf("no mapped address in response: %w", err))
		}
		return mapped.IP.String(), nil
	}
}

func (p *STUNProber) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ncerr.Wrap("probe", p.Server, err)
}
