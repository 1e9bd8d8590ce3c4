package retry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrOpen matches every *OpenError.
var ErrOpen = errors.New("circuit open")

// State is the breaker position.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are held back until the cooldown ends
	StateHalfOpen              // one trial call decides between closed and open
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// OpenError is returned by Execute for a call the breaker held back.
type OpenError struct {
	Failures int           // consecutive failures that opened the breaker
	Held     int           // calls held back since it opened, this one included
	RetryIn  time.Duration // time left in the cooldown
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%v: %d consecutive failures, %d held back, retry in %v",
		ErrOpen, e.Failures, e.Held, e.RetryIn.Truncate(time.Second))
}

func (e *OpenError) Is(target error) bool { return target == ErrOpen }

// BreakerConfig configures a Breaker.  Zero fields take defaults.
type BreakerConfig struct {
	Threshold     int           // consecutive failures that open the breaker (5)
	Cooldown      time.Duration // how long it stays open (10m)
	OnStateChange func(from, to State)
	Clock         clock.Clock
}

// Breaker stops calling a failing operation for a cooldown period once
// it has failed Threshold times in a row.  After the cooldown a single
// trial call closes it again or restarts the cooldown.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    State
	failures int
	held     int
	openedAt time.Time
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Breaker{cfg: cfg}
}

// Execute calls fn unless the breaker is open, in which case it returns
// an *OpenError without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	left := b.cfg.Cooldown - b.cfg.Clock.Since(b.openedAt)
	if left <= 0 {
		b.moveTo(StateHalfOpen)
		return nil
	}
	b.held++
	return &OpenError{Failures: b.failures, Held: b.held, RetryIn: left}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.held = 0
		b.moveTo(StateClosed)
		return
	}
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
		b.openedAt = b.cfg.Clock.Now()
		b.held = 0
		b.moveTo(StateOpen)
	}
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
