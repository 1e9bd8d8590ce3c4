// Package tunnel drives the tunnel client that carries each candidate's
// traffic, and the SSH gateway used to reach the relay list from
// networks that block it.
package tunnel

import (
	"context"
	"net"
)

// Launcher starts tunnel sessions and can tear down every session it
// may have left behind.
type Launcher interface {
	// Start writes config to disk and spawns the client for candidate
	// index.  It returns once the process is running; readiness is
	// reported by Session.AwaitReady.
	Start(ctx context.Context, index int, config string) (Session, error)

	// TerminateAll kills every running client on the host.
	TerminateAll(ctx context.Context) error
}

// Session is one running tunnel client.
type Session interface {
	// AwaitReady blocks until the client reports that the tunnel is up,
	// the client exits, or ctx is done.
	AwaitReady(ctx context.Context) error
	State() State
	ConfigPath() string
	LogPath() string
	// Close terminates the client.  It is safe to call more than once.
	Close() error
}

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateConfiguring
	StateLaunching
	StateAwaitingReady
	StateReady
	StateTerminating
	StateTerminated
	StateFailed
)

var stateNames = [...]string{
	StateIdle:          "idle",
	StateConfiguring:   "configuring",
	StateLaunching:     "launching",
	StateAwaitingReady: "awaiting-ready",
	StateReady:         "ready",
	StateTerminating:   "terminating",
	StateTerminated:    "terminated",
	StateFailed:        "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Gateway is a connection through which TCP streams can be forwarded.
type Gateway interface {
	// Connect establishes the link to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address through the gateway.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears down the link and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}
