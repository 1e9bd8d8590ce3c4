package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"gateslam/config"
	ncerr "gateslam/internal/errors"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	out := captureStdout(t)
	if err := Execute(context.Background(), []string{"--version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "gateslam ") {
		t.Errorf("output = %q", out.String())
	}
}

// TestExecute_Help verifies --help returns without error.
func TestExecute_Help(t *testing.T) {
	out := captureStdout(t)
	if err := Execute(context.Background(), []string{"--help"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "--poll-interval") {
		t.Errorf("usage should list flags:\n%s", out.String())
	}
}

// TestExecute_DryRun verifies --dry-run validates and exits cleanly.
func TestExecute_DryRun(t *testing.T) {
	err := Execute(context.Background(), []string{"--registry", "none", "--once", "--dry-run", "-q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown probe", []string{"--probe", "icmp"}},
		{"unknown registry", []string{"--registry", "etcd"}},
		{"list and once", []string{"--list", "--once"}},
		{"bad feed url", []string{"--feed-url", "ftp://example.com/list"}},
		{"ssh key without gateway", []string{"--ssh-key", "/tmp/id_ed25519"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Execute(context.Background(), append(tt.args, "--dry-run"))
			if ncerr.ExitCode(err) != ncerr.ExitUsage {
				t.Errorf("ExitCode = %d, want %d (err: %v)", ncerr.ExitCode(err), ncerr.ExitUsage, err)
			}
		})
	}
}

// TestExecute_InvalidFlags verifies unknown flags and stray arguments
// produce usage errors.
func TestExecute_InvalidFlags(t *testing.T) {
	for _, args := range [][]string{{"--nonexistent-flag"}, {"example.com"}} {
		err := Execute(context.Background(), args)
		if ncerr.ExitCode(err) != ncerr.ExitUsage {
			t.Errorf("%v: ExitCode = %d, want %d (err: %v)", args, ncerr.ExitCode(err), ncerr.ExitUsage, err)
		}
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, _, _, err := parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FeedURL != config.DefaultFeedURL {
		t.Errorf("FeedURL = %q", cfg.FeedURL)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.Verbose != 1 {
		t.Errorf("Verbose = %d, want 1", cfg.Verbose)
	}
}

// TestParse_Precedence verifies flags override environment variables,
// which override defaults.
func TestParse_Precedence(t *testing.T) {
	t.Setenv("GATESLAM_REGISTRY", "file")
	t.Setenv("GATESLAM_POLL_INTERVAL", "90")

	cfg, _, _, err := parse([]string{"--poll-interval", "2m"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Registry != "file" {
		t.Errorf("Registry = %q, want env value", cfg.Registry)
	}
	if cfg.PollInterval != 2*time.Minute {
		t.Errorf("PollInterval = %v, want flag value", cfg.PollInterval)
	}
}

func TestParse_Verbosity(t *testing.T) {
	tests := []struct {
		args []string
		want int
	}{
		{nil, 1},
		{[]string{"-v"}, 2},
		{[]string{"-vv"}, 3},
		{[]string{"-q"}, 0},
	}
	for _, tt := range tests {
		cfg, _, _, err := parse(tt.args)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Verbose != tt.want {
			t.Errorf("%v: Verbose = %d, want %d", tt.args, cfg.Verbose, tt.want)
		}
	}
}

func TestParse_FeedVia(t *testing.T) {
	cfg, _, _, err := parse([]string{"--feed-via", "admin@bastion.example.com:2222"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.GatewayEnabled || cfg.GatewayUser != "admin" || cfg.GatewayHost != "bastion.example.com" || cfg.GatewayPort != 2222 {
		t.Errorf("gateway = %v %q %q %d", cfg.GatewayEnabled, cfg.GatewayUser, cfg.GatewayHost, cfg.GatewayPort)
	}

	_, _, _, err = parse([]string{"--feed-via", "admin@bastion:99999"})
	if ncerr.ExitCode(err) != ncerr.ExitUsage {
		t.Errorf("bad port: ExitCode = %d (err: %v)", ncerr.ExitCode(err), err)
	}
}
