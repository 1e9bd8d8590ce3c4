// Package config defines the runtime configuration for gateslam and
// provides helpers for parsing the SSH gateway address.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	ncerr "gateslam/internal/errors"
)

// Config holds every tuneable for a gateslam run.
type Config struct {
	// ── Feed ─────────────────────────────────────────────────────────
	FeedURL string

	// ── SSH gateway for the feed fetch ───────────────────────────────
	FeedVia        string // raw user@host[:port] from --feed-via
	GatewayEnabled bool
	GatewayUser    string
	GatewayHost    string
	GatewayPort    int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Egress probe ─────────────────────────────────────────────────
	ProbeMethod string // http, dns, stun
	ProbeURL    string
	DNSServer   string
	DNSName     string
	STUNServer  string

	// ── Tunnel client ────────────────────────────────────────────────
	OpenVPNBinary string
	NoSudo        bool
	DataCiphers   string
	ConfigDir     string
	LogDir        string

	// ── Pass scheduling ──────────────────────────────────────────────
	StageTimeout time.Duration // 0 → derived from PassBudget
	PassBudget   time.Duration
	PollInterval time.Duration
	Once         bool
	List         bool

	// ── Registry ─────────────────────────────────────────────────────
	Registry        string // wiki, file, none
	WikiAPI         string
	WikiPage        string
	WikiToken       string
	RegistryFile    string
	SaveAttempts    int
	BreakerFailures int
	BreakerReset    time.Duration

	// ── Output ───────────────────────────────────────────────────────
	Verbose     int
	MetricsAddr string
	DryRun      bool
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		FeedURL:         DefaultFeedURL,
		ProbeMethod:     DefaultProbeMethod,
		ProbeURL:        DefaultProbeURL,
		DNSServer:       DefaultDNSServer,
		DNSName:         DefaultDNSName,
		STUNServer:      DefaultSTUNServer,
		OpenVPNBinary:   DefaultOpenVPNBinary,
		DataCiphers:     DefaultDataCiphers,
		ConfigDir:       DefaultConfigDir,
		LogDir:          DefaultLogDir,
		PassBudget:      DefaultPassBudget,
		PollInterval:    DefaultPollInterval,
		Registry:        DefaultRegistry,
		WikiAPI:         DefaultWikiAPI,
		WikiPage:        DefaultWikiPage,
		RegistryFile:    DefaultRegistryFile,
		SaveAttempts:    DefaultSaveAttempts,
		BreakerFailures: DefaultBreakerFailures,
		BreakerReset:    DefaultBreakerReset,
		Verbose:         1,
	}
}

// StageTimeoutFor returns the per-stage deadline for a pass over n
// candidates: the explicit StageTimeout when set, otherwise PassBudget
// spread evenly over n, never below MinStageTimeout.
func (c *Config) StageTimeoutFor(n int) time.Duration {
	return StageTimeout(c.StageTimeout, c.PassBudget, n)
}

// StageTimeout implements [Config.StageTimeoutFor] for callers that
// hold the two durations without a Config.
func StageTimeout(explicit, budget time.Duration, n int) time.Duration {
	if explicit > 0 {
		return explicit
	}
	if n <= 0 {
		n = 1
	}
	d := budget / time.Duration(n)
	if d < MinStageTimeout {
		d = MinStageTimeout
	}
	return d
}

// ── Gateway-spec parser ──────────────────────────────────────────────

// gatewayRe matches [user@]host[:port].
var gatewayRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseGatewaySpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseGatewaySpec(spec string) (user, host string, port int, err error) {
	m := gatewayRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid gateway spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid gateway port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("gateway host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if err := validURL("feed-url", c.FeedURL); err != nil {
		return err
	}

	if c.Once && c.List {
		return &ncerr.ConfigError{
			Field:   "list",
			Message: "--list and --once are mutually exclusive",
			Hint:    "--list only prints the feed; drop --once",
		}
	}

	switch c.ProbeMethod {
	case "http":
		if err := validURL("probe-url", c.ProbeURL); err != nil {
			return err
		}
	case "dns":
		if c.DNSServer == "" || c.DNSName == "" {
			return &ncerr.ConfigError{
				Field:   "dns-server",
				Message: "DNS probe needs both a server and a query name",
			}
		}
	case "stun":
		if c.STUNServer == "" {
			return &ncerr.ConfigError{Field: "stun-server", Message: "required with --probe stun"}
		}
	default:
		return &ncerr.ConfigError{
			Field:   "probe",
			Value:   c.ProbeMethod,
			Message: "unknown probe method",
			Hint:    "use http, dns or stun",
		}
	}

	switch c.Registry {
	case "wiki":
		if err := validURL("wiki-api", c.WikiAPI); err != nil {
			return err
		}
		if c.WikiPage == "" {
			return &ncerr.ConfigError{Field: "wiki-page", Message: "required with --registry wiki"}
		}
	case "file":
		if c.RegistryFile == "" {
			return &ncerr.ConfigError{Field: "registry-file", Message: "required with --registry file"}
		}
	case "none":
	default:
		return &ncerr.ConfigError{
			Field:   "registry",
			Value:   c.Registry,
			Message: "unknown registry backend",
			Hint:    "use wiki, file or none",
		}
	}

	if c.OpenVPNBinary == "" && !c.List {
		return &ncerr.ConfigError{Field: "openvpn", Message: "tunnel client binary is required"}
	}
	if c.StageTimeout < 0 {
		return &ncerr.ConfigError{Field: "stage-timeout", Value: c.StageTimeout, Message: "must not be negative"}
	}
	if c.StageTimeout == 0 && c.PassBudget <= 0 {
		return &ncerr.ConfigError{
			Field:   "pass-budget",
			Value:   c.PassBudget,
			Message: "must be positive when --stage-timeout is not set",
		}
	}
	if c.PollInterval <= 0 && !c.Once && !c.List {
		return &ncerr.ConfigError{
			Field:   "poll-interval",
			Value:   c.PollInterval,
			Message: "must be positive",
			Hint:    "use --once to run a single pass without polling",
		}
	}
	if c.SaveAttempts < 1 {
		return &ncerr.ConfigError{Field: "save-attempts", Value: c.SaveAttempts, Message: "must be at least 1"}
	}

	if c.GatewayEnabled && c.GatewayHost == "" {
		return &ncerr.ConfigError{Field: "feed-via", Message: "gateway host is required"}
	}
	if !c.GatewayEnabled && (c.SSHKeyPath != "" || c.SSHPassword || c.UseSSHAgent) {
		return &ncerr.ConfigError{
			Field:   "ssh-key",
			Message: "SSH options have no effect without a gateway",
			Hint:    "add --feed-via user@host",
		}
	}

	return nil
}

func validURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ncerr.ConfigError{
			Field:   field,
			Value:   raw,
			Message: "must be an absolute http(s) URL",
		}
	}
	return nil
}
