package events

import "sync"

// DefaultDedupeSize is how many event keys a Deduper remembers.
const DefaultDedupeSize = 1024

// Deduper remembers recently seen event keys (see domain.Event.Key) so
// consumers can tolerate at-least-once delivery. The oldest key is forgotten
// once the bound is reached.
type Deduper struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	next  int
	max   int
}

func NewDeduper(max int) *Deduper {
	if max <= 0 {
		max = DefaultDedupeSize
	}
	return &Deduper{
		seen:  make(map[string]struct{}, max),
		order: make([]string, 0, max),
		max:   max,
	}
}

// Seen records key and reports whether it had been recorded before.
func (d *Deduper) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}

	if len(d.order) < d.max {
		d.order = append(d.order, key)
	} else {
		delete(d.seen, d.order[d.next])
		d.order[d.next] = key
		d.next = (d.next + 1) % d.max
	}
	d.seen[key] = struct{}{}
	return false
}

// Len is the number of remembered keys.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
