package probe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/stun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "gateslam/internal/errors"
)

// startSTUN answers Binding requests with the given mapped address.  When
// legacy is set the reply carries MAPPED-ADDRESS instead of the XOR form.
func startSTUN(t *testing.T, mapped net.IP, legacy bool) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	go func() {
		buf := make([]byte, 1500)
		for {
			n, from, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			req := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
			if err := req.Decode(); err != nil {
				continue
			}

			var attr stun.Setter = &stun.XORMappedAddress{IP: mapped, Port: 40000}
			if legacy {
				attr = &stun.MappedAddress{IP: mapped, Port: 40000}
			}
			res, err := stun.Build(stun.NewTransactionIDSetter(req.TransactionID), stun.BindingSuccess, attr, stun.Fingerprint)
			if err != nil {
				continue
			}
			_, _ = pc.WriteTo(res.Raw, from)
		}
	}()

	return pc.LocalAddr().String()
}

func TestSTUNProber_XORMappedAddress(t *testing.T) {
	addr := startSTUN(t, net.ParseIP("203.0.113.7").To4(), false)

	ip, err := NewSTUNProber(addr).EgressIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", ip)
}

func TestSTUNProber_MappedAddressFallback(t *testing.T) {
	addr := startSTUN(t, net.ParseIP("198.51.100.23").To4(), true)

	ip, err := NewSTUNProber(addr).EgressIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.23", ip)
}

func TestSTUNProber_NoReply(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = NewSTUNProber(pc.LocalAddr().String()).EgressIP(ctx)
	require.Error(t, err)
	// The socket deadline and the context expire together; either may
	// be observed first.
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ncerr.ErrTransport), err)
}
