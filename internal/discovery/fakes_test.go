package discovery

import (
	"context"
	"sync"
	"time"

	ncerr "gateslam/internal/errors"
	"gateslam/internal/feed"
	"gateslam/internal/registry"
	"gateslam/tunnel"
)

// seqFetcher returns snaps in order, repeating the last one, and signals
// every call on fetched.
type seqFetcher struct {
	mu      sync.Mutex
	snaps   []*feed.Snapshot
	calls   int
	fetched chan struct{}
}

func newSeqFetcher(snaps ...*feed.Snapshot) *seqFetcher {
	return &seqFetcher{snaps: snaps, fetched: make(chan struct{}, 64)}
}

func (f *seqFetcher) Fetch(context.Context) (*feed.Snapshot, error) {
	f.mu.Lock()
	i := f.calls
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	f.calls++
	f.mu.Unlock()
	select {
	case f.fetched <- struct{}{}:
	default:
	}
	return f.snaps[i], nil
}

type fixedProber struct {
	mu  sync.Mutex
	ips []string // returned in order, last one repeated
	n   int
}

func (p *fixedProber) EgressIP(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.n
	if i >= len(p.ips) {
		i = len(p.ips) - 1
	}
	p.n++
	return p.ips[i], nil
}

// scriptedVerifier answers per candidate index; unknown indexes fail
// the connect stage.
type scriptedVerifier struct {
	mu       sync.Mutex
	results  map[int]string
	tried    []int
	verified chan int
}

func newScriptedVerifier(results map[int]string) *scriptedVerifier {
	return &scriptedVerifier{results: results, verified: make(chan int, 64)}
}

func (v *scriptedVerifier) Verify(_ context.Context, c feed.Candidate, _ string, _ time.Duration) (string, error) {
	v.mu.Lock()
	v.tried = append(v.tried, c.Index)
	v.mu.Unlock()
	select {
	case v.verified <- c.Index:
	default:
	}
	if ip, ok := v.results[c.Index]; ok {
		return ip, nil
	}
	return "", &ncerr.StageError{Index: c.Index, Stage: ncerr.StageConnect, Kind: ncerr.ErrConnectTimeout}
}

func (v *scriptedVerifier) triedIndexes() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int(nil), v.tried...)
}

// readyLauncher starts sessions that are ready at once.
type readyLauncher struct {
	mu         sync.Mutex
	starts     int
	terminates int
}

func (l *readyLauncher) Start(context.Context, int, string) (tunnel.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts++
	return &readySession{}, nil
}

func (l *readyLauncher) TerminateAll(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminates++
	return ncerr.ErrNoSuchProcess
}

func (l *readyLauncher) counts() (starts, terminates int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts, l.terminates
}

type readySession struct{ closed bool }

func (s *readySession) AwaitReady(context.Context) error { return nil }
func (s *readySession) ConfigPath() string               { return "" }
func (s *readySession) LogPath() string                  { return "" }
func (s *readySession) Close() error                     { s.closed = true; return nil }

func (s *readySession) State() tunnel.State {
	if s.closed {
		return tunnel.StateTerminated
	}
	return tunnel.StateReady
}

// memRecorder reconciles into an in-memory registry without retries.
type memRecorder struct {
	mu  sync.Mutex
	doc registry.Document
}

func (r *memRecorder) Record(_ context.Context, ip string) (registry.Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ch registry.Change
	r.doc, ch = registry.Reconcile(r.doc, ip, time.Unix(1700000000, 0))
	return ch, nil
}

func (r *memRecorder) document() registry.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(registry.Document(nil), r.doc...)
}
