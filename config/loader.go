package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the GATESLAM_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// duration syntax ("90s", "5m") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	envString("GATESLAM_FEED_URL", &cfg.FeedURL)
	envString("GATESLAM_FEED_VIA", &cfg.FeedVia)
	envString("GATESLAM_SSH_KEY", &cfg.SSHKeyPath)
	if envBool("GATESLAM_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("GATESLAM_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	envString("GATESLAM_KNOWN_HOSTS", &cfg.KnownHostsPath)

	// Probe
	envString("GATESLAM_PROBE", &cfg.ProbeMethod)
	envString("GATESLAM_PROBE_URL", &cfg.ProbeURL)
	envString("GATESLAM_DNS_SERVER", &cfg.DNSServer)
	envString("GATESLAM_DNS_NAME", &cfg.DNSName)
	envString("GATESLAM_STUN_SERVER", &cfg.STUNServer)

	// Tunnel client
	envString("GATESLAM_OPENVPN", &cfg.OpenVPNBinary)
	if envBool("GATESLAM_NO_SUDO") {
		cfg.NoSudo = true
	}
	envString("GATESLAM_DATA_CIPHERS", &cfg.DataCiphers)
	envString("GATESLAM_CONFIG_DIR", &cfg.ConfigDir)
	envString("GATESLAM_LOG_DIR", &cfg.LogDir)

	// Scheduling
	envDuration("GATESLAM_STAGE_TIMEOUT", &cfg.StageTimeout)
	envDuration("GATESLAM_PASS_BUDGET", &cfg.PassBudget)
	envDuration("GATESLAM_POLL_INTERVAL", &cfg.PollInterval)

	// Registry
	envString("GATESLAM_REGISTRY", &cfg.Registry)
	envString("GATESLAM_WIKI_API", &cfg.WikiAPI)
	envString("GATESLAM_WIKI_PAGE", &cfg.WikiPage)
	envString("GATESLAM_WIKI_TOKEN", &cfg.WikiToken)
	envString("GATESLAM_REGISTRY_FILE", &cfg.RegistryFile)
	if v := envInt("GATESLAM_SAVE_ATTEMPTS"); v > 0 {
		cfg.SaveAttempts = v
	}

	// Output
	if v := envInt("GATESLAM_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	envString("GATESLAM_METRICS_ADDR", &cfg.MetricsAddr)
}

// ── helpers ──────────────────────────────────────────────────────────

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
	}
}
