package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "gateslam/internal/errors"
	"gateslam/util"
)

// GatewayConfig holds everything needed to dial an SSH gateway.
type GatewayConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

// Addr returns host:port.
func (c *GatewayConfig) Addr() string { return util.FormatAddr(c.Host, c.Port) }

// SSHGateway implements [Gateway] with an SSH client connection whose
// direct-tcpip channels carry the forwarded streams.
type SSHGateway struct {
	config *GatewayConfig
	client *ssh.Client
	logger *util.Logger
	mu     sync.RWMutex
	alive  bool
}

// NewSSHGateway creates a gateway that is ready to [Connect].
func NewSSHGateway(cfg *GatewayConfig, logger *util.Logger) *SSHGateway {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHGateway{config: cfg, logger: logger}
}

// Connect dials the gateway and completes the SSH handshake.
func (g *SSHGateway) Connect(ctx context.Context) error {
	addr := g.config.Addr()

	authMethods, err := BuildAuthMethods(g.config)
	if err != nil {
		return ncerr.Wrap("ssh auth", addr, err)
	}

	hkCallback, err := hostKeyCallback(g.config)
	if err != nil {
		return ncerr.Wrap("ssh hostkey", addr, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            g.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         g.config.ConnTimeout,
	}

	g.logger.Debug("ssh: dialing %s as %s", addr, g.config.User)

	dialer := net.Dialer{Timeout: g.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ncerr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return ncerr.Wrap("ssh handshake", addr, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	g.mu.Lock()
	g.client = client
	g.alive = true
	g.mu.Unlock()

	go g.monitor(client)

	return nil
}

// Dial opens a stream to address through the gateway.
func (g *SSHGateway) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	g.mu.RLock()
	client := g.client
	alive := g.alive
	g.mu.RUnlock()

	if !alive || client == nil {
		return nil, ncerr.ErrNotConnected
	}

	g.logger.Debug("ssh: forwarding %s %s", network, address)

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := client.Dial(network, address)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("gateway dial %s: %w", address, r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close shuts down the SSH connection.
func (g *SSHGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.alive = false
	if g.client != nil {
		err := g.client.Close()
		g.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the gateway is still connected.
func (g *SSHGateway) IsAlive() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.alive
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (g *SSHGateway) monitor(client *ssh.Client) {
	err := client.Wait()

	g.mu.Lock()
	if g.client == client {
		g.alive = false
	}
	g.mu.Unlock()

	if err != nil {
		g.logger.Debug("ssh gateway closed: %v", err)
	} else {
		g.logger.Debug("ssh gateway closed")
	}
}
