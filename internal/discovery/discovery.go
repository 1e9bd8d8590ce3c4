// Package discovery runs verification passes over the relay list and
// re-runs them whenever the list changes.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"gateslam/config"
	ncerr "gateslam/internal/errors"
	"gateslam/internal/feed"
	"gateslam/internal/metrics"
	"gateslam/internal/probe"
	"gateslam/internal/registry"
	"gateslam/tunnel"
	"gateslam/util"
)

// Fetcher retrieves the current relay list.
type Fetcher interface {
	Fetch(ctx context.Context) (*feed.Snapshot, error)
}

// Verifier checks one candidate and returns its egress address.
type Verifier interface {
	Verify(ctx context.Context, c feed.Candidate, initialIP string, stageTimeout time.Duration) (string, error)
}

// Recorder persists a confirmed egress address.
type Recorder interface {
	Record(ctx context.Context, ip string) (registry.Change, error)
}

// Options tunes a Loop.  Zero values fall back to package config
// defaults.
type Options struct {
	StageTimeout time.Duration // fixed per-stage timeout; 0 derives it from PassBudget
	PassBudget   time.Duration
	PollInterval time.Duration
}

// Loop ties the pieces of a discovery run together.
type Loop struct {
	fetcher  Fetcher
	prober   probe.Prober
	verifier Verifier
	recorder Recorder
	launcher tunnel.Launcher
	opts     Options
	clock    clock.Clock
	logger   *util.Logger
	metrics  *metrics.Collector
}

// Deps lists a Loop's collaborators.  Clock, Logger and Metrics are
// optional.
type Deps struct {
	Fetcher  Fetcher
	Prober   probe.Prober
	Verifier Verifier
	Recorder Recorder
	Launcher tunnel.Launcher
	Clock    clock.Clock
	Logger   *util.Logger
	Metrics  *metrics.Collector
}

// New returns a Loop.
func New(d Deps, opts Options) *Loop {
	if opts.PassBudget <= 0 {
		opts.PassBudget = config.DefaultPassBudget
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = config.DefaultPollInterval
	}
	l := &Loop{
		fetcher:  d.Fetcher,
		prober:   d.Prober,
		verifier: d.Verifier,
		recorder: d.Recorder,
		launcher: d.Launcher,
		opts:     opts,
		clock:    d.Clock,
		logger:   d.Logger,
		metrics:  d.Metrics,
	}
	if l.clock == nil {
		l.clock = clock.New()
	}
	if l.logger == nil {
		l.logger = util.Discard()
	}
	return l
}

// Report summarises one pass.
type Report struct {
	ID           string
	Fingerprint  string
	Candidates   int
	StageTimeout time.Duration
	Verified     []string       // egress addresses, in candidate order
	Failures     map[string]int // by metrics failure label
	Duration     time.Duration
	Interrupted  bool // ctx was cancelled before the last candidate
}

// InitialIP asks the prober for the address used before any tunnel is
// up and checks it is a dotted quad.
func (l *Loop) InitialIP(ctx context.Context) (string, error) {
	ip, err := l.prober.EgressIP(ctx)
	if err != nil {
		return "", err
	}
	if !util.IsDottedQuad(ip) {
		return "", fmt.Errorf("%w: got %q", ncerr.ErrMalformedIP, ip)
	}
	return ip, nil
}

// RunPass verifies every candidate in snap in index order, recording
// each confirmed address.  Failures are logged and never stop the pass.
func (l *Loop) RunPass(ctx context.Context, snap *feed.Snapshot, initialIP string) Report {
	start := l.clock.Now()
	n := len(snap.Candidates)
	rep := Report{
		ID:           uuid.NewString(),
		Fingerprint:  snap.Fingerprint,
		Candidates:   n,
		StageTimeout: config.StageTimeout(l.opts.StageTimeout, l.opts.PassBudget, n),
		Failures:     map[string]int{},
	}
	log := l.logger.With("pass", rep.ID[:8])

	l.metrics.PassStarted()
	log.Info("testing %d relays from %s, %s per stage", n, initialIP, rep.StageTimeout)

	for _, c := range snap.Candidates {
		if ctx.Err() != nil {
			rep.Interrupted = true
			break
		}
		l.metrics.CandidateTried()

		ip, err := l.verifier.Verify(ctx, c, initialIP, rep.StageTimeout)
		if err != nil {
			label := metrics.FailureLabel(err)
			rep.Failures[label]++
			l.metrics.Failed(err)
			log.With("candidate", c.Index).Warn("%s failed: %v", c.Label(), err)
			continue
		}

		rep.Verified = append(rep.Verified, ip)
		l.metrics.Verified(ip)
		clog := log.With("candidate", c.Index)
		clog.Info("%s egress %s", c.Label(), ip)

		change, err := l.recorder.Record(ctx, ip)
		if err != nil {
			clog.Error("registry: %v", err)
			continue
		}
		clog.Info("registry: %s", change.Summary())
	}

	l.terminateAll(ctx, log)
	l.metrics.PassCompleted()

	rep.Duration = l.clock.Since(start)
	log.Info("pass done: %d/%d verified in %s", len(rep.Verified), n, rep.Duration.Truncate(time.Second))
	return rep
}

// Poll re-fetches the relay list and reports whether its fingerprint
// differs from fingerprint.
func (l *Loop) Poll(ctx context.Context, fingerprint string) (*feed.Snapshot, bool, error) {
	snap, err := l.fetcher.Fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	changed := snap.Fingerprint != fingerprint
	l.metrics.FeedPolled(changed)
	return snap, changed, nil
}

// Watch polls the relay list every poll interval and runs a new pass
// whenever it changes.  It returns when ctx is cancelled, after a last
// sweep for leftover tunnel clients.
func (l *Loop) Watch(ctx context.Context, fingerprint string) error {
	log := l.logger.With("watch", "feed")
	defer l.terminateAll(ctx, log)

	for {
		log.Verbose("next check in %s", l.opts.PollInterval)
		select {
		case <-ctx.Done():
			log.Info("stopping: %v", context.Cause(ctx))
			return nil
		case <-l.clock.After(l.opts.PollInterval):
		}

		snap, changed, err := l.Poll(ctx, fingerprint)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("re-fetching relay list: %v", err)
			}
			continue
		}
		if !changed {
			log.Info("no change")
			continue
		}

		log.Info("relay list changed, %d candidates", len(snap.Candidates))
		initialIP, err := l.InitialIP(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("determining initial IP: %v", err)
			}
			continue
		}
		l.RunPass(ctx, snap, initialIP)
		fingerprint = snap.Fingerprint
	}
}

// terminateAll sweeps leftover clients.  It runs even when ctx is
// already cancelled.
func (l *Loop) terminateAll(ctx context.Context, log *util.Logger) {
	if l.launcher == nil {
		return
	}
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	err := l.launcher.TerminateAll(tctx)
	switch {
	case err == nil:
		log.Verbose("terminated leftover tunnel clients")
	case errors.Is(err, ncerr.ErrNoSuchProcess):
	default:
		log.Warn("terminating tunnel clients: %v", err)
	}
}
