// Package verify runs one relay candidate through connect, probe and
// validate, and reports the egress address it produced.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	ncerr "gateslam/internal/errors"
	"gateslam/internal/feed"
	"gateslam/internal/metrics"
	"gateslam/internal/probe"
	"gateslam/tunnel"
	"gateslam/util"
)

// Pipeline verifies candidates one at a time.  It holds no per-candidate
// state between calls.
type Pipeline struct {
	launcher tunnel.Launcher
	prober   probe.Prober
	logger   *util.Logger
	metrics  *metrics.Collector
}

// New returns a Pipeline.  logger and m may be nil.
func New(launcher tunnel.Launcher, prober probe.Prober, logger *util.Logger, m *metrics.Collector) *Pipeline {
	if logger == nil {
		logger = util.Discard()
	}
	return &Pipeline{launcher: launcher, prober: prober, logger: logger, metrics: m}
}

// Verify brings up c's tunnel, asks the prober for the egress address
// and checks it differs from initialIP and is a dotted quad.  Connect
// and probe each get stageTimeout.  Failures are *errors.StageError.
// The tunnel session is closed before Verify returns on every path.
func (p *Pipeline) Verify(ctx context.Context, c feed.Candidate, initialIP string, stageTimeout time.Duration) (ip string, err error) {
	log := p.logger.With("candidate", c.Index)

	sess, err := p.connect(ctx, c, stageTimeout, log)
	if sess != nil {
		p.metrics.TunnelOpened()
		defer func() {
			if cerr := sess.Close(); cerr != nil {
				log.Warn("closing tunnel: %v", cerr)
			}
			p.metrics.TunnelClosed()
		}()
	}
	if err != nil {
		return "", err
	}
	log.Verbose("tunnel up, probing egress")

	ip, err = p.probe(ctx, c.Index, stageTimeout)
	if err != nil {
		return "", err
	}

	if err := Validate(c.Index, ip, initialIP); err != nil {
		return "", err
	}

	// Close this session now so killall below only finds leftovers.
	if cerr := sess.Close(); cerr != nil {
		log.Warn("closing tunnel: %v", cerr)
	}
	if terr := p.launcher.TerminateAll(ctx); terr != nil && !errors.Is(terr, ncerr.ErrNoSuchProcess) {
		log.Warn("terminating tunnel clients: %v", terr)
	}
	return ip, nil
}

func (p *Pipeline) connect(ctx context.Context, c feed.Candidate, timeout time.Duration, log *util.Logger) (tunnel.Session, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Verbose("connecting via %s (timeout %s)", c.Label(), timeout)
	sess, err := p.launcher.Start(cctx, c.Index, c.Config)
	if err != nil {
		return nil, classify(cctx, c.Index, ncerr.StageConnect, ncerr.ErrConnectTimeout, ncerr.ErrConnectFailed, err)
	}
	if err := sess.AwaitReady(cctx); err != nil {
		return sess, classify(cctx, c.Index, ncerr.StageConnect, ncerr.ErrConnectTimeout, ncerr.ErrConnectFailed, err)
	}
	return sess, nil
}

func (p *Pipeline) probe(ctx context.Context, index int, timeout time.Duration) (string, error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ip, err := p.prober.EgressIP(pctx)
	if err != nil {
		return "", classify(pctx, index, ncerr.StageProbe, ncerr.ErrProbeTimeout, ncerr.ErrProbeFailed, err)
	}
	return ip, nil
}

// classify picks the timeout kind when the stage deadline expired and
// the failure kind otherwise.
func classify(stageCtx context.Context, index int, stage ncerr.Stage, timeoutKind, failKind, err error) error {
	kind := failKind
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		kind = timeoutKind
	}
	return &ncerr.StageError{Index: index, Stage: stage, Kind: kind, Err: err}
}

// Validate checks a probed address against the pre-tunnel address.
func Validate(index int, ip, initialIP string) error {
	if ip == initialIP {
		return ncerr.Stagef(index, ncerr.StageValidate, ncerr.ErrNoIPChange, "still %s", ip)
	}
	if !util.IsDottedQuad(ip) {
		return &ncerr.StageError{Index: index, Stage: ncerr.StageValidate, Kind: ncerr.ErrMalformedIP,
			Err: fmt.Errorf("got %q", ip)}
	}
	return nil
}
