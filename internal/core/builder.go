package core

import (
	"os"

	"gateslam/config"
	ncerr "gateslam/internal/errors"
	"gateslam/internal/feed"
	"gateslam/internal/mediawiki"
	"gateslam/internal/metrics"
	"gateslam/internal/probe"
	"gateslam/internal/registry"
	"gateslam/internal/retry"
	"gateslam/internal/transport"
	"gateslam/tunnel"
	"gateslam/util"
)

// Build constructs the appropriate Mode from the given configuration.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.List {
		return buildList(cfg, logger), nil
	}
	return buildDiscovery(cfg, logger)
}

// ── mode builders ────────────────────────────────────────────────────

func buildDiscovery(cfg *config.Config, logger *util.Logger) (Mode, error) {
	prober, err := probe.New(cfg)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	dialer := transport.New(cfg, logger)

	return &DiscoveryMode{
		Fetcher:  feed.NewFetcher(cfg.FeedURL, transport.HTTPClient(dialer, 2*config.DefaultConnTimeout)),
		Dialer:   dialer,
		Prober:   prober,
		Launcher: buildLauncher(cfg, logger),
		Store:    store,
		Backoff:  buildBackoff(cfg),
		Breaker: retry.NewBreaker(retry.BreakerConfig{
			Threshold: cfg.BreakerFailures,
			Cooldown:  cfg.BreakerReset,
			OnStateChange: func(from, to retry.State) {
				logger.Verbose("registry breaker %s → %s", from, to)
			},
		}),
		StageTimeout: cfg.StageTimeout,
		PassBudget:   cfg.PassBudget,
		PollInterval: cfg.PollInterval,
		Once:         cfg.Once,
		MetricsAddr:  cfg.MetricsAddr,
		Metrics:      metrics.New(),
		Logger:       logger,
	}, nil
}

func buildList(cfg *config.Config, logger *util.Logger) Mode {
	dialer := transport.New(cfg, logger)
	return &ListMode{
		Fetcher: feed.NewFetcher(cfg.FeedURL, transport.HTTPClient(dialer, 2*config.DefaultConnTimeout)),
		Dialer:  dialer,
		Out:     os.Stdout,
		Logger:  logger,
	}
}

// ── shared helpers ───────────────────────────────────────────────────

// buildStore selects the registry backend.
func buildStore(cfg *config.Config) (registry.Store, error) {
	switch cfg.Registry {
	case "wiki":
		client, err := mediawiki.NewClient(cfg.WikiAPI, cfg.WikiToken)
		if err != nil {
			return nil, err
		}
		return mediawiki.NewStore(client, cfg.WikiPage), nil
	case "file":
		return &registry.FileStore{Path: cfg.RegistryFile}, nil
	case "none":
		return registry.NewMemoryStore(nil), nil
	}
	return nil, &ncerr.ConfigError{
		Field:   "registry",
		Value:   cfg.Registry,
		Message: "unknown registry backend",
		Hint:    "use wiki, file or none",
	}
}

func buildLauncher(cfg *config.Config, logger *util.Logger) tunnel.Launcher {
	return tunnel.NewOpenVPN(tunnel.OpenVPNConfig{
		Binary:      cfg.OpenVPNBinary,
		DataCiphers: cfg.DataCiphers,
		UseSudo:     !cfg.NoSudo,
		ConfigDir:   cfg.ConfigDir,
		LogDir:      cfg.LogDir,
	}, logger)
}

func buildBackoff(cfg *config.Config) *retry.Backoff {
	b := retry.DefaultBackoff()
	if cfg.SaveAttempts > 0 {
		b.MaxAttempts = cfg.SaveAttempts
	}
	return b
}
