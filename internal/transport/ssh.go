package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"gateslam/tunnel"
	"gateslam/util"
)

// SSHDialer routes connections through an SSH gateway.  The gateway is
// connected lazily on the first Dial and reconnected if it has dropped
// between polls.
type SSHDialer struct {
	gateway *tunnel.SSHGateway
	config  *tunnel.GatewayConfig
	logger  *util.Logger
	mu      sync.Mutex
}

// NewSSHDialer creates a dialer that forwards connections through the
// gateway described by cfg.
func NewSSHDialer(cfg *tunnel.GatewayConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		gateway: tunnel.NewSSHGateway(cfg, logger),
		config:  cfg,
		logger:  logger,
	}
}

func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.gateway.IsAlive() {
		return nil
	}

	d.logger.Verbose("connecting to feed gateway %s@%s", d.config.User, d.config.Addr())
	if err := d.gateway.Connect(ctx); err != nil {
		return fmt.Errorf("feed gateway: %w", err)
	}
	d.logger.Verbose("feed gateway established")
	return nil
}

// Dial connects to address through the gateway.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.gateway.Dial(ctx, network, address)
}

// Close tears down the gateway connection.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gateway.Close()
}
