package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"zerosum_client/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchCall struct{ from, to uint64 }

type fakeSource struct {
	mu       sync.Mutex
	head     uint64
	byBlock  map[uint64][]domain.Event
	fetches  []fetchCall
	fetchErr error
}

func newFakeSource(head uint64) *fakeSource {
	return &fakeSource{head: head, byBlock: make(map[uint64][]domain.Event)}
}

func (s *fakeSource) LatestBlock(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, nil
}

func (s *fakeSource) FetchEvents(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, fetchCall{from, to})
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []domain.Event
	for b := from; b <= to; b++ {
		out = append(out, s.byBlock[b]...)
	}
	return out, nil
}

func (s *fakeSource) emitAt(block uint64, ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.BlockNumber = block
	ev.TxHash = common.BigToHash(common.Big1)
	ev.LogIndex = uint(len(s.byBlock[block]))
	s.byBlock[block] = append(s.byBlock[block], ev)
	if block > s.head {
		s.head = block
	}
}

// newIdleBridge builds a bridge whose ticker never fires during a test, so
// polls are driven by calling poll directly.
func newIdleBridge(src Source, cfg Config) *Bridge {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Hour
	}
	return NewBridge(src, cfg)
}

func TestFirstPollPrimesCursorAtHead(t *testing.T) {
	src := newFakeSource(100)
	src.emitAt(90, domain.Event{Kind: domain.EventMoveMade, GameID: 3})
	b := newIdleBridge(src, Config{})

	b.poll(context.Background())
	assert.Equal(t, uint64(101), b.Cursor())
	assert.Empty(t, src.fetches, "history before the first poll is not replayed")
}

func TestDispatchByGameAndAll(t *testing.T) {
	src := newFakeSource(10)
	b := newIdleBridge(src, Config{StartBlock: 11})

	var mu sync.Mutex
	var game3, all []domain.EventKind
	unsub3 := b.Subscribe(3, func(ev domain.Event) {
		mu.Lock()
		game3 = append(game3, ev.Kind)
		mu.Unlock()
	})
	unsubAll := b.Subscribe(AllGames, func(ev domain.Event) {
		mu.Lock()
		all = append(all, ev.Kind)
		mu.Unlock()
	})
	defer unsub3()
	defer unsubAll()

	src.emitAt(11, domain.Event{Kind: domain.EventPlayerJoined, GameID: 3})
	src.emitAt(12, domain.Event{Kind: domain.EventGameCreated, GameID: 4})
	src.emitAt(12, domain.Event{Kind: domain.EventMoveMade, GameID: 3})

	b.poll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.EventKind{domain.EventPlayerJoined, domain.EventMoveMade}, game3)
	assert.Equal(t, []domain.EventKind{domain.EventPlayerJoined, domain.EventGameCreated, domain.EventMoveMade}, all)
	assert.Equal(t, uint64(13), b.Cursor())
}

func TestPollChunksByMaxBlockRange(t *testing.T) {
	src := newFakeSource(25)
	b := newIdleBridge(src, Config{StartBlock: 1, MaxBlockRange: 10})

	b.poll(context.Background())

	assert.Equal(t, []fetchCall{{1, 10}, {11, 20}, {21, 25}}, src.fetches)
	assert.Equal(t, uint64(26), b.Cursor())
}

func TestFetchErrorKeepsCursor(t *testing.T) {
	src := newFakeSource(20)
	src.fetchErr = errors.New("429 too many requests")
	b := newIdleBridge(src, Config{StartBlock: 15})

	b.poll(context.Background())
	assert.Equal(t, uint64(15), b.Cursor())

	src.mu.Lock()
	src.fetchErr = nil
	src.mu.Unlock()
	b.poll(context.Background())
	assert.Equal(t, uint64(21), b.Cursor())
}

func TestLoopIsReferenceCounted(t *testing.T) {
	src := newFakeSource(1)
	b := newIdleBridge(src, Config{})
	defer b.Close()

	assert.False(t, b.Running())

	u1 := b.Subscribe(1, func(domain.Event) {})
	u2 := b.Subscribe(AllGames, func(domain.Event) {})
	assert.True(t, b.Running())
	assert.Equal(t, 2, b.Subscribers())

	u1()
	u1()
	assert.True(t, b.Running(), "second subscriber keeps the loop alive")
	assert.Equal(t, 1, b.Subscribers())

	u2()
	assert.False(t, b.Running())
	assert.Equal(t, 0, b.Subscribers())
}

func TestCursorSurvivesRestart(t *testing.T) {
	src := newFakeSource(50)
	b := NewBridge(src, Config{PollInterval: 5 * time.Millisecond})
	defer b.Close()

	got := make(chan domain.Event, 4)
	unsub := b.Subscribe(7, func(ev domain.Event) { got <- ev })
	require.Eventually(t, func() bool { return b.Cursor() == 51 }, time.Second, 5*time.Millisecond)
	unsub()

	// produced while nobody listens
	src.emitAt(52, domain.Event{Kind: domain.EventMoveMade, GameID: 7})

	unsub = b.Subscribe(7, func(ev domain.Event) { got <- ev })
	defer unsub()

	select {
	case ev := <-got:
		assert.Equal(t, uint64(52), ev.BlockNumber)
	case <-time.After(time.Second):
		t.Fatalf("event emitted between subscriptions was not delivered")
	}
}

func TestHandlerPanicDoesNotStopDispatch(t *testing.T) {
	src := newFakeSource(1)
	b := newIdleBridge(src, Config{})
	defer b.Close()

	delivered := 0
	u1 := b.Subscribe(2, func(domain.Event) { panic("boom") })
	u2 := b.Subscribe(2, func(domain.Event) { delivered++ })
	defer u1()
	defer u2()

	b.Emit(domain.Event{Kind: domain.EventMoveMade, GameID: 2})
	assert.Equal(t, 1, delivered)
}

func TestDeduper(t *testing.T) {
	d := NewDeduper(2)
	assert.False(t, d.Seen("a"))
	assert.True(t, d.Seen("a"))
	assert.False(t, d.Seen("b"))
	assert.False(t, d.Seen("c"), "evicts a")
	assert.Equal(t, 2, d.Len())
	assert.False(t, d.Seen("a"), "a was forgotten")
	assert.True(t, d.Seen("c"))
}
