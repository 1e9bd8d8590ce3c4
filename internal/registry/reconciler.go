package registry

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	ncerr "gateslam/internal/errors"
	"gateslam/internal/metrics"
	"gateslam/internal/retry"
	"gateslam/util"
)

// ReconcilerConfig wires a Reconciler's collaborators.  Zero fields get
// defaults.
type ReconcilerConfig struct {
	Clock   clock.Clock
	Backoff *retry.Backoff
	Breaker *retry.Breaker
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Reconciler owns the in-memory document for a run and persists it
// after every recorded sighting.
type Reconciler struct {
	store   Store
	doc     Document
	clock   clock.Clock
	backoff *retry.Backoff
	breaker *retry.Breaker
	logger  *util.Logger
	metrics *metrics.Collector
}

// NewReconciler returns a Reconciler over store with an empty document;
// call Load before recording.
func NewReconciler(store Store, cfg ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		store:   store,
		doc:     Document{},
		clock:   cfg.Clock,
		backoff: cfg.Backoff,
		breaker: cfg.Breaker,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.backoff == nil {
		r.backoff = retry.DefaultBackoff()
	}
	if r.backoff.Clock == nil {
		r.backoff.Clock = r.clock
	}
	if r.backoff.OnRetry == nil {
		r.backoff.OnRetry = func(attempt int, err error, wait time.Duration) {
			r.logger.Debug("registry save attempt %d: %v (next in %s)", attempt, err, wait.Truncate(time.Millisecond))
		}
	}
	if r.breaker == nil {
		r.breaker = retry.NewBreaker(retry.BreakerConfig{Clock: r.clock})
	}
	if r.logger == nil {
		r.logger = util.Discard()
	}
	return r
}

// Load fetches the stored document and makes it the working copy.
func (r *Reconciler) Load(ctx context.Context) error {
	doc, err := r.store.Load(ctx)
	if err != nil {
		return err
	}
	r.doc = doc
	r.logger.Verbose("registry loaded: %d entries", len(doc))
	return nil
}

// Document returns a copy of the working document.
func (r *Reconciler) Document() Document { return clone(r.doc) }

// Record reconciles a sighting of ip into the working document and
// saves the whole document.  On save failure the working document keeps
// the change and the error is a *errors.RegistryError; the next
// successful save carries it.
func (r *Reconciler) Record(ctx context.Context, ip string) (Change, error) {
	doc, change := Reconcile(r.doc, ip, r.clock.Now())
	r.doc = doc

	err := r.breaker.Execute(func() error {
		return r.backoff.Do(ctx, func(int) error {
			err := r.store.Save(ctx, doc, change.Summary())
			if err != nil && ctx.Err() != nil {
				return retry.Permanent(err)
			}
			return err
		})
	})
	r.metrics.RegistryWrite(err)
	var held *retry.OpenError
	if errors.As(err, &held) {
		r.logger.Warn("registry save for %s held back: %d pending, retry in %s",
			ip, held.Held, held.RetryIn.Truncate(time.Second))
	}
	if err != nil {
		var re *ncerr.RegistryError
		if !errors.As(err, &re) || re.Op != "save" {
			err = &ncerr.RegistryError{Op: "save", Doc: "registry", Err: err}
		}
		return change, err
	}
	return change, nil
}
