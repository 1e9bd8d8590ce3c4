// Package probe reports the host's public (egress) address.
//
// Probes only report; the verification pipeline decides whether the
// address is acceptable.  Every probe opens fresh connections so the
// answer reflects the default route at the time of the call.
package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"gateslam/config"
	ncerr "gateslam/internal/errors"
	"gateslam/util"
)

// maxBody bounds the reply of an address-reporting endpoint.
const maxBody = 4 << 10

// Prober reports the current egress address as text.
type Prober interface {
	EgressIP(ctx context.Context) (string, error)
}

// New builds the prober selected by cfg.ProbeMethod.
func New(cfg *config.Config) (Prober, error) {
	switch cfg.ProbeMethod {
	case "http", "":
		return NewHTTPProber(cfg.ProbeURL), nil
	case "dns":
		server, err := util.EnsurePort(cfg.DNSServer, 53)
		if err != nil {
			return nil, &ncerr.ConfigError{Field: "dns-server", Value: cfg.DNSServer, Message: err.Error()}
		}
		return NewDNSProber(server, cfg.DNSName), nil
	case "stun":
		server, err := util.EnsurePort(cfg.STUNServer, 3478)
		if err != nil {
			return nil, &ncerr.ConfigError{Field: "stun-server", Value: cfg.STUNServer, Message: err.Error()}
		}
		return NewSTUNProber(server), nil
	}
	return nil, &ncerr.ConfigError{
		Field:   "probe",
		Value:   cfg.ProbeMethod,
		Message: "unknown probe method",
		Hint:    "use http, dns or stun",
	}
}

// HTTPProber asks an HTTP endpoint that echoes the caller's address.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// NewHTTPProber returns a prober for url.  Certificate verification is
// off for this lookup and keep-alives are disabled so a connection made
// before the tunnel came up is never reused.
func NewHTTPProber(url string) *HTTPProber {
	tr := &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: -1,
		}).DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // address lookup only
		DisableKeepAlives:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
	return &HTTPProber{URL: url, Client: &http.Client{Transport: tr}}
}

// EgressIP implements Prober.
func (p *HTTPProber) EgressIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return "", ncerr.Wrap("probe", p.URL, err)
	}
	req.Header.Set("User-Agent", "gateslam/1.0")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", ncerr.Wrap("probe", p.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ncerr.NetworkError{
			Op:        "probe",
			Addr:      p.URL,
			Err:       fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", ncerr.Wrap("probe", p.URL, err)
	}
	return strings.TrimSpace(string(body)), nil
}
