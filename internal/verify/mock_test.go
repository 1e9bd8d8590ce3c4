package verify

import (
	"context"
	"errors"
	"sync"

	ncerr "gateslam/internal/errors"
	"gateslam/tunnel"
)

// fakeLauncher hands out fakeSessions and records every call.
type fakeLauncher struct {
	mu           sync.Mutex
	startErr     error
	readyErr     error // returned by AwaitReady; nil means ready
	hang         bool  // AwaitReady blocks until ctx is done
	terminateErr error
	sessions     []*fakeSession
	terminates   int
}

func (l *fakeLauncher) Start(ctx context.Context, index int, config string) (tunnel.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startErr != nil {
		return nil, l.startErr
	}
	s := &fakeSession{index: index, config: config, readyErr: l.readyErr, hang: l.hang, state: tunnel.StateAwaitingReady}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *fakeLauncher) TerminateAll(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminates++
	return l.terminateErr
}

type fakeSession struct {
	mu       sync.Mutex
	index    int
	config   string
	readyErr error
	hang     bool
	state    tunnel.State
	closes   int
}

func (s *fakeSession) AwaitReady(ctx context.Context) error {
	if s.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readyErr != nil {
		s.state = tunnel.StateFailed
		return s.readyErr
	}
	s.state = tunnel.StateReady
	return nil
}

func (s *fakeSession) State() tunnel.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSession) ConfigPath() string { return "" }
func (s *fakeSession) LogPath() string    { return "" }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.state = tunnel.StateTerminated
	return nil
}

// fakeProber returns a fixed answer, or blocks until ctx is done.
type fakeProber struct {
	ip   string
	err  error
	hang bool
}

func (p *fakeProber) EgressIP(ctx context.Context) (string, error) {
	if p.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return p.ip, p.err
}

var errExited = &ncerr.ProcessError{Op: "wait", Name: "openvpn", Err: errors.New("exit status 1")}
