package reconcile

import (
	"testing"
	"time"

	"zerosum_client/internal/clock"
)

func TestDebouncerFirstTriggerRunsImmediately(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	runs := 0
	d := NewDebouncer(clk, 2*time.Second, func() { runs++ })

	d.Trigger()
	if runs != 1 {
		t.Fatalf("expected immediate run, got %d", runs)
	}
}

func TestDebouncerBurstCollapsesToOneTrailingRun(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	var at []time.Time
	d := NewDebouncer(clk, 2*time.Second, func() { at = append(at, clk.Now()) })

	d.Trigger() // t=0, runs
	clk.Advance(500 * time.Millisecond)
	d.Trigger() // inside window, scheduled for t=2s
	clk.Advance(500 * time.Millisecond)
	d.Trigger() // absorbed
	d.Trigger() // absorbed

	if len(at) != 1 {
		t.Fatalf("expected 1 run inside the window, got %d", len(at))
	}
	if !d.Pending() {
		t.Fatalf("expected a trailing run to be pending")
	}

	clk.Advance(time.Second)
	if len(at) != 2 {
		t.Fatalf("expected trailing run at window end, got %d runs", len(at))
	}
	if got := at[1].Sub(at[0]); got != 2*time.Second {
		t.Fatalf("trailing run fired %s after the first, want 2s", got)
	}

	clk.Advance(10 * time.Second)
	if len(at) != 2 {
		t.Fatalf("no extra runs expected, got %d", len(at))
	}
}

func TestDebouncerOutsideWindowRunsNow(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	runs := 0
	d := NewDebouncer(clk, 2*time.Second, func() { runs++ })

	d.Trigger()
	clk.Advance(2 * time.Second)
	d.Trigger()
	if runs != 2 {
		t.Fatalf("expected run at window boundary, got %d", runs)
	}
}

func TestDebouncerRateBound(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	runs := 0
	d := NewDebouncer(clk, 2*time.Second, func() { runs++ })

	// a trigger every 100ms for 10s
	for i := 0; i < 100; i++ {
		d.Trigger()
		clk.Advance(100 * time.Millisecond)
	}
	clk.Advance(2 * time.Second)

	// at most one run per window plus the leading one
	if runs > 6 {
		t.Fatalf("expected at most 6 runs over 10s, got %d", runs)
	}
	if runs < 5 {
		t.Fatalf("expected steady trailing runs, got %d", runs)
	}
}

func TestDebouncerMarkDelaysNextRun(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	runs := 0
	d := NewDebouncer(clk, 2*time.Second, func() { runs++ })

	d.Mark()
	d.Trigger()
	if runs != 0 {
		t.Fatalf("trigger right after an explicit refresh must wait")
	}
	clk.Advance(2 * time.Second)
	if runs != 1 {
		t.Fatalf("expected trailing run, got %d", runs)
	}
}

func TestDebouncerStop(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	runs := 0
	d := NewDebouncer(clk, 2*time.Second, func() { runs++ })

	d.Trigger()
	clk.Advance(time.Second)
	d.Trigger()
	d.Stop()
	clk.Advance(5 * time.Second)
	d.Trigger()
	if runs != 1 {
		t.Fatalf("stopped debouncer must not run, got %d", runs)
	}
}
