package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zerosum_client/internal/domain"
	"zerosum_client/internal/logger"
)

// AllGames subscribes to events of every game.
const AllGames uint64 = 0

// Handler receives one decoded contract event.
type Handler func(ev domain.Event)

// Source yields contract events by block range. *chain.Contract implements it.
type Source interface {
	LatestBlock(ctx context.Context) (uint64, error)
	FetchEvents(ctx context.Context, from, to uint64) ([]domain.Event, error)
}

// Config tunes the poll loop.
type Config struct {
	PollInterval  time.Duration
	MaxBlockRange uint64
	// StartBlock is the first block to fetch. Zero starts after the head
	// block seen on the first poll.
	StartBlock uint64
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 4 * time.Second
	}
	if c.MaxBlockRange == 0 {
		c.MaxBlockRange = 2000
	}
	return c
}

// Bridge runs a single poll loop shared by all subscribers and dispatches
// each event to the handlers of its game and to AllGames handlers. The loop
// starts with the first subscription and stops when the last one is
// released; the block cursor survives restarts. Delivery is at-least-once.
type Bridge struct {
	src Source
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]map[int]Handler
	nextID int
	refs   int
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// pollMu serialises polls so a stopping loop and a fresh one never fetch
	// the same range concurrently.
	pollMu sync.Mutex
	cursor uint64
	primed bool
}

func NewBridge(src Source, cfg Config) *Bridge {
	cfg = cfg.withDefaults()
	b := &Bridge{
		src:  src,
		cfg:  cfg,
		log:  logger.Component("events"),
		subs: make(map[uint64]map[int]Handler),
	}
	if cfg.StartBlock > 0 {
		b.cursor = cfg.StartBlock
		b.primed = true
	}
	return b
}

// Subscribe registers h for gameID (or AllGames). The returned function
// releases the subscription; calling it more than once is harmless.
func (b *Bridge) Subscribe(gameID uint64, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[gameID] == nil {
		b.subs[gameID] = make(map[int]Handler)
	}
	b.subs[gameID][id] = h
	b.refs++
	if b.refs == 1 {
		b.startLocked()
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.release(gameID, id) })
	}
}

func (b *Bridge) release(gameID uint64, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set := b.subs[gameID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(b.subs, gameID)
		}
	}
	b.refs--
	if b.refs == 0 {
		b.stopLocked()
	}
}

// Running reports whether the poll loop is active.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

// Subscribers is the number of live subscriptions.
func (b *Bridge) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs
}

// Cursor is the next block to be fetched, 0 before the first poll.
func (b *Bridge) Cursor() uint64 {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()
	return b.cursor
}

func (b *Bridge) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go b.run(ctx)
	b.log.Debug("poll loop started", "interval", b.cfg.PollInterval)
}

// stopLocked cancels the loop without waiting; a handler may be the caller.
func (b *Bridge) stopLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
		b.log.Debug("poll loop stopped")
	}
}

// Close drops every subscription and waits for the loop to exit.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.subs = make(map[uint64]map[int]Handler)
	b.refs = 0
	b.stopLocked()
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()

	b.poll(ctx)

	t := time.NewTicker(b.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.poll(ctx)
		}
	}
}

// poll fetches everything between the cursor and the head in chunks of
// MaxBlockRange and dispatches it. On error the cursor stays put and the
// range is retried next tick.
func (b *Bridge) poll(ctx context.Context) {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	head, err := b.src.LatestBlock(ctx)
	if err != nil {
		if ctx.Err() == nil {
			pollErrors.WithLabelValues("head").Inc()
			b.log.Warn("latest block lookup failed", "error", err)
		}
		return
	}

	if !b.primed {
		b.cursor = head + 1
		b.primed = true
		blockCursor.Set(float64(b.cursor))
		return
	}

	for b.cursor <= head {
		to := b.cursor + b.cfg.MaxBlockRange - 1
		if to > head {
			to = head
		}

		evs, err := b.src.FetchEvents(ctx, b.cursor, to)
		if err != nil {
			if ctx.Err() == nil {
				pollErrors.WithLabelValues("fetch").Inc()
				b.log.Warn("event fetch failed", "from", b.cursor, "to", to, "error", err)
			}
			return
		}
		for _, ev := range evs {
			if ctx.Err() != nil {
				return
			}
			b.dispatch(ev)
		}
		b.cursor = to + 1
		blockCursor.Set(float64(b.cursor))
	}
}

func (b *Bridge) dispatch(ev domain.Event) {
	b.mu.Lock()
	var handlers []Handler
	for _, h := range b.subs[ev.GameID] {
		handlers = append(handlers, h)
	}
	if ev.GameID != AllGames {
		for _, h := range b.subs[AllGames] {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	if len(handlers) == 0 {
		return
	}
	eventsDispatched.WithLabelValues(string(ev.Kind)).Inc()
	b.log.Debug("dispatch", "kind", ev.Kind, "game_id", ev.GameID, "block", ev.BlockNumber, "handlers", len(handlers))

	for _, h := range handlers {
		b.invoke(h, ev)
	}
}

func (b *Bridge) invoke(h Handler, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			pollErrors.WithLabelValues("handler").Inc()
			b.log.Error("event handler panicked", "kind", ev.Kind, "game_id", ev.GameID, "panic", fmt.Sprint(r))
		}
	}()
	h(ev)
}

// Emit dispatches ev as if it had been polled. Used for locally known events
// and in tests.
func (b *Bridge) Emit(ev domain.Event) {
	b.dispatch(ev)
}
