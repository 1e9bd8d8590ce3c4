package core

import (
	"context"
	"fmt"
	"io"

	"gateslam/internal/discovery"
	ncerr "gateslam/internal/errors"
	"gateslam/internal/transport"
	"gateslam/util"
)

// ListMode fetches and decodes the relay list and prints it without
// launching any tunnel.
type ListMode struct {
	Fetcher discovery.Fetcher
	Dialer  transport.Dialer // closed when Run returns; may be nil
	Out     io.Writer
	Logger  *util.Logger
}

// Run prints the fingerprint followed by one line per candidate.
func (m *ListMode) Run(ctx context.Context) error {
	if m.Dialer != nil {
		defer m.Dialer.Close()
	}

	snap, err := m.Fetcher.Fetch(ctx)
	if err != nil {
		return ncerr.Startup("feed", err)
	}

	fmt.Fprintf(m.Out, "fingerprint %s\n", snap.Fingerprint)
	for _, c := range snap.Candidates {
		host, ip, country := orDash(c.Host), orDash(c.RelayIP), orDash(c.Country)
		fmt.Fprintf(m.Out, "%4d  %-24s %-15s %-2s  %6d bytes\n", c.Index, host, ip, country, len(c.Config))
	}
	if m.Logger != nil {
		m.Logger.Verbose("%d candidates", len(snap.Candidates))
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
