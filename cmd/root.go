// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"gateslam/config"
	"gateslam/internal/core"
	ncerr "gateslam/internal/errors"
	"gateslam/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X gateslam/cmd.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout is where --version, --help and --list output goes.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// options are the flags that steer Execute itself rather than the run.
type options struct {
	showVersion bool
	showHelp    bool
	dryRun      bool
}

// Execute parses args and runs the selected gateslam mode.
func Execute(ctx context.Context, args []string) error {
	cfg, opts, fs, err := parse(args)
	if err != nil {
		return err
	}
	if opts.showHelp {
		printUsage(fs)
		return nil
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "gateslam %s\n", version)
		return nil
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)
	if opts.dryRun {
		logger.Info("configuration ok (registry=%s, probe=%s)", cfg.Registry, cfg.ProbeMethod)
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	if lm, ok := mode.(*core.ListMode); ok {
		lm.Out = stdout
	}
	return mode.Run(ctx)
}

// parse layers defaults, GATESLAM_* environment variables and flags,
// in increasing precedence.
func parse(args []string) (*config.Config, *options, *flag.FlagSet, error) {
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	opts := &options{}
	fs := flag.NewFlagSet("gateslam", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// ── feed ─────────────────────────────────────────────────────
	fs.StringVar(&cfg.FeedURL, "feed-url", cfg.FeedURL, "Relay list URL")
	fs.StringVar(&cfg.FeedVia, "feed-via", cfg.FeedVia, "Fetch the relay list through SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── egress probe ─────────────────────────────────────────────
	fs.StringVar(&cfg.ProbeMethod, "probe", cfg.ProbeMethod, "Egress probe: http, dns or stun")
	fs.StringVar(&cfg.ProbeURL, "probe-url", cfg.ProbeURL, "Plain-text IP echo URL (http probe)")
	fs.StringVar(&cfg.DNSServer, "dns-server", cfg.DNSServer, "Resolver host:port (dns probe)")
	fs.StringVar(&cfg.DNSName, "dns-name", cfg.DNSName, "Name whose A record is the caller's address (dns probe)")
	fs.StringVar(&cfg.STUNServer, "stun-server", cfg.STUNServer, "STUN server host:port (stun probe)")

	// ── tunnel client ────────────────────────────────────────────
	fs.StringVar(&cfg.OpenVPNBinary, "openvpn", cfg.OpenVPNBinary, "OpenVPN binary")
	fs.BoolVar(&cfg.NoSudo, "no-sudo", cfg.NoSudo, "Run openvpn and killall without sudo")
	fs.StringVar(&cfg.DataCiphers, "data-ciphers", cfg.DataCiphers, "Value for openvpn --data-ciphers")
	fs.StringVar(&cfg.ConfigDir, "config-dir", cfg.ConfigDir, "Directory for per-candidate profiles")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for per-candidate client logs")

	// ── scheduling ───────────────────────────────────────────────
	fs.DurationVar(&cfg.StageTimeout, "stage-timeout", cfg.StageTimeout, "Per-stage timeout (0 = derive from --pass-budget)")
	fs.DurationVar(&cfg.PassBudget, "pass-budget", cfg.PassBudget, "Time budget spread over all candidates of a pass")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Delay between relay list re-fetches")
	fs.BoolVar(&cfg.Once, "once", cfg.Once, "Run a single pass and exit")
	fs.BoolVar(&cfg.List, "list", cfg.List, "Print the decoded relay list and exit")

	// ── registry ─────────────────────────────────────────────────
	fs.StringVar(&cfg.Registry, "registry", cfg.Registry, "Registry backend: wiki, file or none")
	fs.StringVar(&cfg.WikiAPI, "wiki-api", cfg.WikiAPI, "MediaWiki api.php endpoint")
	fs.StringVar(&cfg.WikiPage, "wiki-page", cfg.WikiPage, "Page holding the registry document")
	fs.StringVar(&cfg.WikiToken, "wiki-token", cfg.WikiToken, "OAuth bearer token for wiki edits")
	fs.StringVar(&cfg.RegistryFile, "registry-file", cfg.RegistryFile, "Registry document path (file backend)")
	fs.IntVar(&cfg.SaveAttempts, "save-attempts", cfg.SaveAttempts, "Tries per registry save")
	fs.IntVar(&cfg.BreakerFailures, "breaker-failures", cfg.BreakerFailures, "Consecutive failed saves before pausing writes")
	fs.DurationVar(&cfg.BreakerReset, "breaker-reset", cfg.BreakerReset, "How long registry writes stay paused")

	// ── output ───────────────────────────────────────────────────
	var verbose int
	var quiet bool
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only print errors")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Validate configuration and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.showHelp, "help", "h", false, "Show this help")

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, &ncerr.ConfigError{Field: "flags", Message: err.Error(), Hint: "see --help"}
	}
	if fs.NArg() > 0 {
		return nil, nil, nil, &ncerr.ConfigError{
			Field:   "flags",
			Value:   fs.Arg(0),
			Message: "unexpected argument",
			Hint:    "gateslam takes no positional arguments",
		}
	}

	switch {
	case quiet:
		cfg.Verbose = 0
	case verbose > 0:
		cfg.Verbose = 1 + verbose
	}

	// ── gateway spec ─────────────────────────────────────────────
	if cfg.FeedVia != "" {
		user, host, port, err := config.ParseGatewaySpec(cfg.FeedVia)
		if err != nil {
			return nil, nil, nil, &ncerr.ConfigError{Field: "feed-via", Value: cfg.FeedVia, Message: err.Error()}
		}
		cfg.GatewayEnabled = true
		cfg.GatewayUser = user
		cfg.GatewayHost = host
		cfg.GatewayPort = port
	}

	return cfg, opts, fs, nil
}

// ── helpers ──────────────────────────────────────────────────────────

func printUsage(fs *flag.FlagSet) {
	fs.SetOutput(stdout)
	fmt.Fprintf(stdout, `gateslam v%s

Verifies VPN Gate relays by tunnelling through each one and records the
egress addresses they expose.

Usage:
  gateslam [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stdout, `
Examples:
  gateslam --registry file --once             One pass, registry in ./IPData.json
  gateslam --list                             Show the current relay list
  gateslam --feed-via admin@bastion -v        Fetch the list through SSH
  gateslam --probe dns --metrics-addr :9100   DNS egress probe, Prometheus metrics
`)
}
