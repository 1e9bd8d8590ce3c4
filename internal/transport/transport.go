// Package transport decides how outbound HTTP connections for the relay
// list are made: directly, or forwarded through an SSH gateway when the
// local network blocks the list's host.
package transport

import (
	"context"
	"net"
	"net/http"
	"time"

	"gateslam/config"
	"gateslam/tunnel"
	"gateslam/util"
)

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}

// New returns the Dialer selected by cfg: an SSHDialer when a feed
// gateway is configured, otherwise a TCPDialer.
func New(cfg *config.Config, logger *util.Logger) Dialer {
	if !cfg.GatewayEnabled {
		return &TCPDialer{Timeout: config.DefaultConnTimeout}
	}
	return NewSSHDialer(&tunnel.GatewayConfig{
		User:          cfg.GatewayUser,
		Host:          cfg.GatewayHost,
		Port:          cfg.GatewayPort,
		KeyPath:       cfg.SSHKeyPath,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   config.DefaultConnTimeout,
	}, logger)
}

// HTTPClient returns a client whose connections are opened by d.
// Keep-alives are left on; the feed is polled from one host.
func HTTPClient(d Dialer, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           d.Dial,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          4,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}
}
