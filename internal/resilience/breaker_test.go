package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 3, CoolDown: time.Hour})

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected errBoom, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	// Calls while open fail fast without invoking fn.
	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("fn was called while breaker open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(Config{MaxFailures: 2, CoolDown: time.Hour})

	b.Do(func() error { return errBoom })
	b.Do(func() error { return nil })
	b.Do(func() error { return errBoom })

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed (failure streak broken)", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := New(Config{MaxFailures: 1, CoolDown: time.Millisecond})

	b.Do(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(5 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cool-down", b.State())
	}

	// Failed probe re-opens.
	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}

	// Successful probe closes.
	time.Sleep(5 * time.Millisecond)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := New(Config{MaxFailures: 1, CoolDown: time.Hour})
	b.Do(func() error { return errBoom })
	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after reset", b.State())
	}
}
