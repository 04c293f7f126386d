package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 3, ResetTimeout: time.Hour})
	fail := func(context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), fail)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestErrCircuitOpen_IsNotRetried(t *testing.T) {
	// An open circuit fails fast: retry loops must not classify the
	// rejection as transient and back off against a down provider.
	if IsTransient(ErrCircuitOpen) {
		t.Error("ErrCircuitOpen must not be transient")
	}
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 3, ResetTimeout: time.Hour})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	_ = cb.Execute(context.Background(), func(context.Context) error { return nil })
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after reset, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	time.Sleep(15 * time.Millisecond)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}

	// Successful probe closes the circuit again.
	if err := cb.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after probe, got %s", cb.State())
	}
}

func TestBreakers_PerProviderIsolation(t *testing.T) {
	bs := NewBreakers(CircuitConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_ = bs.Get("overpass").Execute(context.Background(), func(context.Context) error { return errors.New("down") })

	if bs.Get("overpass").State() != CircuitOpen {
		t.Error("overpass breaker should be open")
	}
	if bs.Get("mailer").State() != CircuitClosed {
		t.Error("mailer breaker should be unaffected")
	}

	states := bs.States()
	if len(states) != 2 {
		t.Errorf("expected 2 breakers, got %d", len(states))
	}
}

func TestExecuteVal_PreservesValue(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{})
	got, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Errorf("got (%d, %v)", got, err)
	}
}
