// Package core is the orchestration layer.  It composes the feed,
// tunnel, probe and registry packages into complete operational modes
// and provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport, tunnel, probe, registry  →  verify  →  discovery  →  core  →  cmd (CLI)
package core

import "context"

// Mode represents a complete operational mode of gateslam (discovery
// or list).  Each mode owns its full lifecycle from bootstrap to
// teardown.
type Mode interface {
	Run(ctx context.Context) error
}
