package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          2,
		Timeout:              time.Minute,
		HalfOpenMaxSuccesses: 1,
	})

	boom := errors.New("upstream down")
	fail := func() (interface{}, error) { return nil, boom }

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(context.Background(), fail); !errors.Is(err, boom) {
			t.Fatalf("call %d: got %v, want upstream error", i, err)
		}
	}

	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		t.Fatal("function should not run while circuit is open")
		return nil, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
	if cb.State() != "open" {
		t.Errorf("state = %q, want open", cb.State())
	}
}

func TestCircuitBreakerPassesSuccessThrough(t *testing.T) {
	cb := NewCircuitBreaker()
	got, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.(string) != "ok" {
		t.Errorf("got %v, want ok", got)
	}
	if cb.State() != "closed" {
		t.Errorf("state = %q, want closed", cb.State())
	}
}
