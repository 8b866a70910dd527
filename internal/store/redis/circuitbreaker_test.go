package redis

import (
	"errors"
	"testing"
	"time"
)

var errRedisDown = errors.New("dial tcp: connection refused")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(max int, cooldown time.Duration) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(max, cooldown)
	cb.now = clk.now
	return cb, clk
}

func fail() error    { return errRedisDown }
func succeed() error { return nil }

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	if cb.CurrentState() != StateClosed {
		t.Fatalf("initial state = %v", cb.CurrentState())
	}
	for i := 0; i < 3; i++ {
		if err := cb.Execute(fail); !errors.Is(err, errRedisDown) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.CurrentState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("open breaker: err = %v called = %v", err, called)
	}
	st := cb.Stats()
	if st.Trips != 1 || st.Rejected != 1 || st.LastErrorMsg != errRedisDown.Error() {
		t.Errorf("stats = %+v", st)
	}
}

func TestBreaker_SuccessClearsFailureStreak(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	cb.Execute(fail)
	cb.Execute(fail)
	cb.Execute(succeed)
	cb.Execute(fail)
	cb.Execute(fail)
	if cb.CurrentState() != StateClosed {
		t.Errorf("state = %v, want closed", cb.CurrentState())
	}
	if got := cb.Stats().Failures; got != 2 {
		t.Errorf("failures = %d, want 2", got)
	}
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	tests := []struct {
		name  string
		probe func() error
		want  State
	}{
		{"success closes", succeed, StateClosed},
		{"failure reopens", fail, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clk := newTestBreaker(2, 5*time.Second)
			cb.Execute(fail)
			cb.Execute(fail)

			clk.advance(4 * time.Second)
			if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
				t.Fatalf("before cooldown: err = %v", err)
			}

			clk.advance(time.Second)
			cb.Execute(tt.probe)
			if cb.CurrentState() != tt.want {
				t.Errorf("state = %v, want %v", cb.CurrentState(), tt.want)
			}
		})
	}
}

func TestBreaker_SingleProbeInFlight(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	cb.Execute(fail)
	clk.advance(time.Second)

	var inner error
	err := cb.Execute(func() error {
		inner = cb.Execute(succeed)
		return nil
	})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !errors.Is(inner, ErrCircuitOpen) {
		t.Errorf("concurrent call during probe: err = %v", inner)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("state = %v", cb.CurrentState())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	var got []string
	cb.OnStateChange = func(from, to State) {
		got = append(got, from.String()+">"+to.String())
		_ = cb.CurrentState() // must not deadlock
	}

	cb.Execute(fail)
	clk.advance(2 * time.Second)
	cb.Execute(succeed)

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, got[i], want[i])
		}
	}
}
