package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var order []int

	f.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	f.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	stopped := f.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	if !stopped.Stop() {
		t.Fatalf("expected Stop on armed timer to report true")
	}

	f.Advance(5 * time.Second)

	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Fatalf("unexpected firing order %v", order)
	}
	if got := f.Now(); !got.Equal(time.Unix(5, 0)) {
		t.Fatalf("now = %v; want 5s", got)
	}
}

func TestFakeChainedTimer(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var at []time.Time

	f.AfterFunc(time.Second, func() {
		at = append(at, f.Now())
		f.AfterFunc(time.Second, func() { at = append(at, f.Now()) })
	})

	f.Advance(2 * time.Second)

	if len(at) != 2 {
		t.Fatalf("expected chained timer to fire, got %d calls", len(at))
	}
	if !at[1].Equal(time.Unix(2, 0)) {
		t.Fatalf("chained timer fired at %v", at[1])
	}
	if f.Pending() != 0 {
		t.Fatalf("expected no pending timers")
	}
}
