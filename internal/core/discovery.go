package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"gateslam/internal/discovery"
	ncerr "gateslam/internal/errors"
	"gateslam/internal/metrics"
	"gateslam/internal/probe"
	"gateslam/internal/registry"
	"gateslam/internal/retry"
	"gateslam/internal/transport"
	"gateslam/internal/verify"
	"gateslam/tunnel"
	"gateslam/util"
)

// DiscoveryMode bootstraps the registry, runs a verification pass over
// the relay list, then keeps watching the list for changes.
type DiscoveryMode struct {
	Fetcher  discovery.Fetcher
	Dialer   transport.Dialer // closed when Run returns; may be nil
	Prober   probe.Prober
	Launcher tunnel.Launcher
	Store    registry.Store
	Backoff  *retry.Backoff
	Breaker  *retry.Breaker

	StageTimeout time.Duration
	PassBudget   time.Duration
	PollInterval time.Duration
	Once         bool // stop after the first pass

	MetricsAddr string // serve /metrics here when non-empty
	Metrics     *metrics.Collector
	Clock       clock.Clock
	Logger      *util.Logger
}

// Run performs the startup sequence, each step of which is fatal with
// its own exit code, then the first pass and the watch loop.
func (m *DiscoveryMode) Run(ctx context.Context) error {
	if m.Dialer != nil {
		defer m.Dialer.Close()
	}
	logger := m.Logger
	if logger == nil {
		logger = util.Discard()
	}

	if m.MetricsAddr != "" {
		stop := m.serveMetrics(logger)
		defer stop()
	}

	rec := registry.NewReconciler(m.Store, registry.ReconcilerConfig{
		Clock:   m.Clock,
		Backoff: m.Backoff,
		Breaker: m.Breaker,
		Logger:  logger,
		Metrics: m.Metrics,
	})
	loop := discovery.New(discovery.Deps{
		Fetcher:  m.Fetcher,
		Prober:   m.Prober,
		Verifier: verify.New(m.Launcher, m.Prober, logger, m.Metrics),
		Recorder: rec,
		Launcher: m.Launcher,
		Clock:    m.Clock,
		Logger:   logger,
		Metrics:  m.Metrics,
	}, discovery.Options{
		StageTimeout: m.StageTimeout,
		PassBudget:   m.PassBudget,
		PollInterval: m.PollInterval,
	})

	// ── startup ──────────────────────────────────────────────────
	if err := rec.Load(ctx); err != nil {
		return ncerr.Startup("registry", err)
	}
	logger.Verbose("registry holds %d entries", len(rec.Document()))

	snap, err := m.Fetcher.Fetch(ctx)
	if err != nil {
		return ncerr.Startup("feed", err)
	}
	logger.Info("relay list has %d candidates (%.12s)", len(snap.Candidates), snap.Fingerprint)

	initialIP, err := loop.InitialIP(ctx)
	if err != nil {
		return ncerr.Startup("egress", err)
	}
	logger.Info("initial IP %s", initialIP)

	// ── discovery ────────────────────────────────────────────────
	loop.RunPass(ctx, snap, initialIP)
	if m.Once || ctx.Err() != nil {
		return nil
	}
	return loop.Watch(ctx, snap.Fingerprint)
}

// serveMetrics starts the Prometheus endpoint and returns a function
// that shuts it down.
func (m *DiscoveryMode) serveMetrics(logger *util.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(m.Metrics))
	srv := &http.Server{Addr: m.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint: %v", err)
		}
	}()
	logger.Verbose("serving metrics on %s/metrics", m.MetricsAddr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
