package clock

import "time"

// Timer is the part of *time.Timer the sync layer needs.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time and delayed callbacks so cache expiry, debounce
// windows and countdowns can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Func adapts a plain now-function; AfterFunc still uses real timers.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

func (f Func) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
