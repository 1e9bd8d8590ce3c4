package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func fast(attempts int) *Backoff {
	return &Backoff{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: attempts}
}

func TestBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fast(5).Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return fmt.Errorf("edit conflict")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestBackoff_PermanentStopsAtOnce(t *testing.T) {
	calls := 0
	cause := errors.New("protected page")
	err := fast(5).Do(context.Background(), func(int) error {
		calls++
		return Permanent(cause)
	})
	if err != cause {
		t.Errorf("err = %v, want the unwrapped cause", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoff_GivesUpAfterMaxAttempts(t *testing.T) {
	cause := errors.New("HTTP 503")
	var retried []int
	b := fast(3)
	b.OnRetry = func(attempt int, err error, _ time.Duration) {
		if err != cause {
			t.Errorf("OnRetry err = %v", err)
		}
		retried = append(retried, attempt)
	}

	err := b.Do(context.Background(), func(int) error { return cause })
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want wrapped cause", err)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
}

func TestBackoff_ContextCancelled(t *testing.T) {
	b := &Backoff{InitialDelay: time.Hour, Clock: clock.NewMock()}
	ctx, cancel := context.WithCancel(context.Background())
	b.OnRetry = func(int, error, time.Duration) { cancel() }

	err := b.Do(ctx, func(int) error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := &Backoff{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := b.delay(tt.attempt); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	zero := &Backoff{}
	if got := zero.delay(1); got != time.Second {
		t.Errorf("zero config delay = %v, want 1s", got)
	}
}

func TestJitter_Range(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		if j := jitter(d); j < 75*time.Millisecond || j > 125*time.Millisecond {
			t.Fatalf("jitter(%v) = %v, outside ±25%%", d, j)
		}
	}
}

func TestBackoff_WaitsOnInjectedClock(t *testing.T) {
	mock := clock.NewMock()
	b := &Backoff{InitialDelay: time.Second, MaxAttempts: 2, Clock: mock}
	waiting := make(chan struct{}, 1)
	b.OnRetry = func(int, error, time.Duration) { waiting <- struct{}{} }

	done := make(chan error, 1)
	go func() { done <- b.Do(context.Background(), func(int) error { return errors.New("fail") }) }()

	<-waiting
	select {
	case <-done:
		t.Fatal("Do returned before the clock advanced")
	case <-time.After(20 * time.Millisecond):
	}
	for {
		select {
		case err := <-done:
			if err == nil {
				t.Fatal("expected error")
			}
			return
		default:
			mock.Add(time.Second)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"permanent", Permanent(errors.New("x")), true},
		{"wrapped permanent", fmt.Errorf("save: %w", Permanent(errors.New("x"))), true},
		{"plain", errors.New("x"), false},
		{"nil", Permanent(nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultBackoff(t *testing.T) {
	b := DefaultBackoff()
	if b.MaxAttempts != 3 || !b.Jitter {
		t.Errorf("DefaultBackoff() = %+v", b)
	}
}
