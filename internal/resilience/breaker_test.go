package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/mindtrace/voiceid/internal/apperrors"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(Config{Threshold: 3, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})
	fail := apperrors.New(apperrors.CodeModelUnavailable, "down")

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return fail }); !errors.Is(err, fail) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	// Calls now fail fast without invoking fn.
	calls := 0
	err := b.Execute(func() error { calls++; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("error = %v, want ErrOpen", err)
	}
	if calls != 0 {
		t.Errorf("fn calls while open = %d, want 0", calls)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(Config{Threshold: 3, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})
	fail := apperrors.New(apperrors.CodeModelUnavailable, "down")

	b.Execute(func() error { return fail })
	b.Execute(func() error { return fail })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return fail })
	b.Execute(func() error { return fail })

	if b.State() != Closed {
		t.Errorf("state = %v, want closed (success reset the count)", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(Config{Threshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenSuccesses: 2})

	b.Failure()
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	// First allowed call moves to half-open.
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow after reset timeout: %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}

	b.Success()
	if b.State() != HalfOpen {
		t.Errorf("state = %v, want half-open after 1 success", b.State())
	}
	b.Success()
	if b.State() != Closed {
		t.Errorf("state = %v, want closed after 2 successes", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(Config{Threshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenSuccesses: 2})

	b.Failure()
	time.Sleep(20 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Fatal(err)
	}

	b.Failure()
	if b.State() != Open {
		t.Errorf("state = %v, want open", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})
	b.Failure()
	if b.State() != Open {
		t.Fatal("expected open")
	}

	b.Reset()
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow after reset: %v", err)
	}
}

func TestBreakerHook(t *testing.T) {
	var transitions []State
	b := NewBreaker(Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenSuccesses: 1}).
		WithHook(func(_, to State) { transitions = append(transitions, to) })

	b.Failure()
	b.Reset()

	if len(transitions) != 2 || transitions[0] != Open || transitions[1] != Closed {
		t.Errorf("transitions = %v, want [open closed]", transitions)
	}
}

func TestExecuteWithResult(t *testing.T) {
	b := NewBreaker(Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})

	got, err := ExecuteWithResult(b, func() ([]float64, error) {
		return []float64{0.5}, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if len(got) != 1 || got[0] != 0.5 {
		t.Errorf("result = %v", got)
	}

	fail := apperrors.New(apperrors.CodeModelUnavailable, "down")
	_, err = ExecuteWithResult(b, func() ([]float64, error) { return nil, fail })
	if !errors.Is(err, fail) {
		t.Errorf("error = %v, want %v", err, fail)
	}
	if b.State() != Open {
		t.Errorf("state = %v, want open", b.State())
	}

	_, err = ExecuteWithResult(b, func() ([]float64, error) { return nil, nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("error = %v, want ErrOpen", err)
	}
}
