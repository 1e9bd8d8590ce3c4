// Package metrics tracks discovery statistics: passes, candidates tried,
// verified relays, failures by kind, registry writes and feed polls.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	ncerr "gateslam/internal/errors"
)

// Failure labels, one per verification failure kind.
const (
	FailConnectTimeout = "connect_timeout"
	FailConnectFailed  = "connect_failed"
	FailProbeTimeout   = "probe_timeout"
	FailProbeFailed    = "probe_failed"
	FailNoIPChange     = "no_ip_change"
	FailMalformedIP    = "malformed_ip"
	FailOther          = "other"
)

var failureLabels = []string{
	FailConnectTimeout, FailConnectFailed, FailProbeTimeout, FailProbeFailed,
	FailNoIPChange, FailMalformedIP, FailOther,
}

// FailureLabel maps a verification error to its metric label.
func FailureLabel(err error) string {
	switch ncerr.KindOf(err) {
	case ncerr.ErrConnectTimeout:
		return FailConnectTimeout
	case ncerr.ErrConnectFailed:
		return FailConnectFailed
	case ncerr.ErrProbeTimeout:
		return FailProbeTimeout
	case ncerr.ErrProbeFailed:
		return FailProbeFailed
	case ncerr.ErrNoIPChange:
		return FailNoIPChange
	case ncerr.ErrMalformedIP:
		return FailMalformedIP
	}
	return FailOther
}

// Collector tracks runtime metrics for one gateslam process.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	passesStarted   atomic.Int64
	passesCompleted atomic.Int64
	candidatesTried atomic.Int64
	verified        atomic.Int64
	registryWrites  atomic.Int64
	registryErrors  atomic.Int64
	feedPolls       atomic.Int64
	feedChanges     atomic.Int64
	tunnelsActive   atomic.Int64

	failures map[string]*atomic.Int64 // fixed key set, built in New

	mu           sync.RWMutex
	startTime    time.Time
	lastVerified time.Time
	lastIP       string
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	c := &Collector{
		startTime: time.Now(),
		failures:  make(map[string]*atomic.Int64, len(failureLabels)),
	}
	for _, l := range failureLabels {
		c.failures[l] = new(atomic.Int64)
	}
	return c
}

// ── Pass metrics ─────────────────────────────────────────────────────

// PassStarted records the start of a discovery pass.
func (c *Collector) PassStarted() {
	if c == nil {
		return
	}
	c.passesStarted.Add(1)
}

// PassCompleted records the end of a discovery pass.
func (c *Collector) PassCompleted() {
	if c == nil {
		return
	}
	c.passesCompleted.Add(1)
}

// CandidateTried records one verification attempt.
func (c *Collector) CandidateTried() {
	if c == nil {
		return
	}
	c.candidatesTried.Add(1)
}

// Verified records a confirmed egress address.
func (c *Collector) Verified(ip string) {
	if c == nil {
		return
	}
	c.verified.Add(1)
	c.mu.Lock()
	c.lastVerified = time.Now()
	c.lastIP = ip
	c.mu.Unlock()
}

// Failed records a verification failure under err's label.
func (c *Collector) Failed(err error) {
	if c == nil {
		return
	}
	c.failures[FailureLabel(err)].Add(1)
	c.RecordError(err.Error())
}

// Failures returns the count recorded under label.
func (c *Collector) Failures(label string) int64 {
	if c == nil {
		return 0
	}
	if n, ok := c.failures[label]; ok {
		return n.Load()
	}
	return 0
}

// ── Tunnel metrics ───────────────────────────────────────────────────

// TunnelOpened increments the active tunnel gauge.
func (c *Collector) TunnelOpened() {
	if c == nil {
		return
	}
	c.tunnelsActive.Add(1)
}

// TunnelClosed decrements the active tunnel gauge.
func (c *Collector) TunnelClosed() {
	if c == nil {
		return
	}
	c.tunnelsActive.Add(-1)
}

// ── Registry and feed metrics ────────────────────────────────────────

// RegistryWrite records a save attempt and its outcome.
func (c *Collector) RegistryWrite(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.registryErrors.Add(1)
		c.RecordError(err.Error())
		return
	}
	c.registryWrites.Add(1)
}

// FeedPolled records one re-fetch of the relay list.
func (c *Collector) FeedPolled(changed bool) {
	if c == nil {
		return
	}
	c.feedPolls.Add(1)
	if changed {
		c.feedChanges.Add(1)
	}
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError stores msg as the most recent error.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string           `json:"uptime"`
	PassesStarted    int64            `json:"passes_started"`
	PassesCompleted  int64            `json:"passes_completed"`
	CandidatesTried  int64            `json:"candidates_tried"`
	Verified         int64            `json:"verified"`
	Failures         map[string]int64 `json:"failures,omitempty"`
	RegistryWrites   int64            `json:"registry_writes"`
	RegistryErrors   int64            `json:"registry_errors"`
	FeedPolls        int64            `json:"feed_polls"`
	FeedChanges      int64            `json:"feed_changes"`
	TunnelsActive    int64            `json:"tunnels_active"`
	LastVerified     string           `json:"last_verified,omitempty"`
	LastVerifiedIP   string           `json:"last_verified_ip,omitempty"`
	LastError        string           `json:"last_error,omitempty"`
	LastErrorMessage string           `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.  Failure kinds with
// a zero count are omitted.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		PassesStarted:   c.passesStarted.Load(),
		PassesCompleted: c.passesCompleted.Load(),
		CandidatesTried: c.candidatesTried.Load(),
		Verified:        c.verified.Load(),
		RegistryWrites:  c.registryWrites.Load(),
		RegistryErrors:  c.registryErrors.Load(),
		FeedPolls:       c.feedPolls.Load(),
		FeedChanges:     c.feedChanges.Load(),
		TunnelsActive:   c.tunnelsActive.Load(),
	}
	for _, l := range failureLabels {
		if n := c.failures[l].Load(); n > 0 {
			if s.Failures == nil {
				s.Failures = make(map[string]int64)
			}
			s.Failures[l] = n
		}
	}
	if !c.lastVerified.IsZero() {
		s.LastVerified = c.lastVerified.Format(time.RFC3339)
		s.LastVerifiedIP = c.lastIP
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
