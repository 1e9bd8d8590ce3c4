package core

import (
	"errors"
	"testing"

	"gateslam/config"
	ncerr "gateslam/internal/errors"
	"gateslam/internal/mediawiki"
	"gateslam/internal/registry"
	"gateslam/util"
)

// TestBuild_Discovery verifies that Build produces a DiscoveryMode for
// the default configuration.
func TestBuild_Discovery(t *testing.T) {
	cfg := config.Default()
	mode, err := Build(cfg, util.Discard())
	if err != nil {
		t.Fatal(err)
	}
	dm, ok := mode.(*DiscoveryMode)
	if !ok {
		t.Fatalf("expected *DiscoveryMode, got %T", mode)
	}
	if _, ok := dm.Store.(*mediawiki.Store); !ok {
		t.Errorf("store = %T, want *mediawiki.Store", dm.Store)
	}
	if dm.Backoff.MaxAttempts != config.DefaultSaveAttempts {
		t.Errorf("save attempts = %d, want %d", dm.Backoff.MaxAttempts, config.DefaultSaveAttempts)
	}
}

// TestBuild_List verifies Build produces a ListMode.
func TestBuild_List(t *testing.T) {
	cfg := config.Default()
	cfg.List = true

	mode, err := Build(cfg, util.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mode.(*ListMode); !ok {
		t.Errorf("expected *ListMode, got %T", mode)
	}
}

func TestBuild_RegistryBackends(t *testing.T) {
	tests := []struct {
		backend string
		check   func(registry.Store) bool
	}{
		{"file", func(s registry.Store) bool { _, ok := s.(*registry.FileStore); return ok }},
		{"none", func(s registry.Store) bool { _, ok := s.(*registry.MemoryStore); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Registry = tt.backend

			mode, err := Build(cfg, util.Discard())
			if err != nil {
				t.Fatal(err)
			}
			if s := mode.(*DiscoveryMode).Store; !tt.check(s) {
				t.Errorf("unexpected store %T", s)
			}
		})
	}
}

// TestBuild_UnknownRegistry verifies an unknown backend is a usage
// error.
func TestBuild_UnknownRegistry(t *testing.T) {
	cfg := config.Default()
	cfg.Registry = "etcd"

	_, err := Build(cfg, util.Discard())
	var ce *ncerr.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if ce.Field != "registry" {
		t.Errorf("field = %q", ce.Field)
	}
}

// TestBuild_UnknownProbe verifies the probe method is checked.
func TestBuild_UnknownProbe(t *testing.T) {
	cfg := config.Default()
	cfg.ProbeMethod = "icmp"

	if _, err := Build(cfg, util.Discard()); ncerr.ExitCode(err) != ncerr.ExitUsage {
		t.Errorf("ExitCode = %d, want %d (err: %v)", ncerr.ExitCode(err), ncerr.ExitUsage, err)
	}
}
