package reconcile

import (
	"context"
	"math/big"
	"sync"
	"time"

	"zerosum_client/internal/chain"
	"zerosum_client/internal/clock"
	"zerosum_client/internal/domain"
	"zerosum_client/internal/events"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000c0c")
)

func syncExec(f func()) { f() }

func testConfig() Config {
	return Config{
		DebounceWindow:   2 * time.Second,
		RefreshDelay:     2500 * time.Millisecond,
		AutoUnstickDelay: 30 * time.Second,
		FetchTimeout:     time.Second,
		Exec:             syncExec,
	}
}

// fakeReader serves one mutable game per id. beforeGet, if set, runs inside
// GetGame before the snapshot is taken, which lets tests interleave work
// with an in-flight fetch.
type fakeReader struct {
	mu          sync.Mutex
	viewer      common.Address
	games       map[uint64]domain.Game
	views       map[uint64]domain.PlayerView
	gets        int
	invalidated int
	beforeGet   func(call int)
}

func newFakeReader(viewer common.Address) *fakeReader {
	return &fakeReader{
		viewer: viewer,
		games:  make(map[uint64]domain.Game),
		views:  make(map[uint64]domain.PlayerView),
	}
}

func (r *fakeReader) put(g domain.Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.ID] = g.Clone()
}

func (r *fakeReader) putView(id uint64, v domain.PlayerView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[id] = v
}

func (r *fakeReader) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

func (r *fakeReader) Viewer() common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewer
}

func (r *fakeReader) SetViewer(addr common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewer = addr
}

func (r *fakeReader) GetGame(ctx context.Context, id uint64) (*domain.Game, error) {
	r.mu.Lock()
	r.gets++
	call := r.gets
	hook := r.beforeGet
	r.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	if !ok {
		return nil, chain.ErrGameNotFound
	}
	c := g.Clone()
	return &c, nil
}

func (r *fakeReader) GetPlayerView(ctx context.Context, id uint64) *domain.PlayerView {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.games[id]
	if !g.HasPlayer(r.viewer) {
		return nil
	}
	v, ok := r.views[id]
	if !ok {
		v = domain.PlayerView{
			YourTurn: g.Status == domain.StatusActive && g.CurrentPlayer == r.viewer,
			TimeLeft: 90,
		}
	}
	return &v
}

func (r *fakeReader) GetUserGames(ctx context.Context, user common.Address, offset, limit uint64) domain.UserGames {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := domain.UserGames{GameIDs: []uint64{}, Source: domain.SourceIndexed}
	for id := uint64(1); id <= 100; id++ {
		if g, ok := r.games[id]; ok && g.HasPlayer(user) {
			res.GameIDs = append(res.GameIDs, id)
		}
	}
	res.Total = uint64(len(res.GameIDs))
	return res
}

func (r *fakeReader) GetGamesBatch(ctx context.Context, ids []uint64) []domain.Game {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Game, 0, len(ids))
	for _, id := range ids {
		if g, ok := r.games[id]; ok {
			out = append(out, g.Clone())
		}
	}
	return out
}

func (r *fakeReader) InvalidateGame(ctx context.Context, id uint64) {
	r.mu.Lock()
	r.invalidated++
	r.mu.Unlock()
}

type fakeWriter struct {
	mu       sync.Mutex
	moves    []uint64
	timeouts []uint64
	budgets  []time.Duration
	fail     error
	onMove   func(g domain.Game, sub uint64)
	hooks    []func(chain.Confirmation)
}

func (w *fakeWriter) MakeMove(ctx context.Context, g domain.Game, sub uint64) *chain.TxResult {
	w.mu.Lock()
	w.moves = append(w.moves, sub)
	fail := w.fail
	onMove := w.onMove
	w.mu.Unlock()

	res := &chain.TxResult{Action: chain.MethodMakeMove, GameID: g.ID, TxHash: common.HexToHash("0x01")}
	if fail != nil {
		res.Err = fail
		res.Reason = fail.Error()
		return res
	}
	if onMove != nil {
		onMove(g, sub)
	}
	res.Success = true
	return res
}

func (w *fakeWriter) HandleTimeout(ctx context.Context, id uint64) *chain.TxResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeouts = append(w.timeouts, id)
	if dl, ok := ctx.Deadline(); ok {
		w.budgets = append(w.budgets, time.Until(dl))
	}
	return &chain.TxResult{Action: chain.MethodHandleTimeout, GameID: id, Success: true}
}

func (w *fakeWriter) OnConfirmed(fn func(chain.Confirmation)) {
	w.mu.Lock()
	w.hooks = append(w.hooks, fn)
	w.mu.Unlock()
}

func (w *fakeWriter) confirm(c chain.Confirmation) {
	w.mu.Lock()
	hooks := append([]func(chain.Confirmation){}, w.hooks...)
	w.mu.Unlock()
	for _, fn := range hooks {
		fn(c)
	}
}

func (w *fakeWriter) timeoutCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timeouts)
}

type fakeBus struct {
	mu   sync.Mutex
	subs map[uint64]map[int]events.Handler
	next int
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[uint64]map[int]events.Handler)}
}

func (b *fakeBus) Subscribe(gameID uint64, h events.Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	if b.subs[gameID] == nil {
		b.subs[gameID] = make(map[int]events.Handler)
	}
	b.subs[gameID][id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[gameID], id)
	}
}

func (b *fakeBus) emit(ev domain.Event) {
	b.mu.Lock()
	var hs []events.Handler
	for _, h := range b.subs[ev.GameID] {
		hs = append(hs, h)
	}
	if ev.GameID != events.AllGames {
		for _, h := range b.subs[events.AllGames] {
			hs = append(hs, h)
		}
	}
	b.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (b *fakeBus) count(gameID uint64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[gameID])
}

func quickDraw(id uint64, number uint64, current common.Address) domain.Game {
	return domain.Game{
		ID:              id,
		Mode:            domain.ModeQuickDraw,
		Status:          domain.StatusActive,
		CurrentNumber:   number,
		CurrentPlayer:   current,
		Players:         []common.Address{alice, bob},
		EntryFee:        big.NewInt(1000),
		PrizePool:       big.NewInt(2000),
		NumberGenerated: true,
	}
}

func moveEvent(id uint64, player common.Address, sub, newNumber uint64, logIndex uint) domain.Event {
	return domain.Event{
		Kind:        domain.EventMoveMade,
		GameID:      id,
		Player:      player,
		Subtraction: sub,
		NewNumber:   newNumber,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0xfeed"),
		LogIndex:    logIndex,
	}
}

type harness struct {
	clk    *clock.Fake
	reader *fakeReader
	writer *fakeWriter
	bus    *fakeBus
	rec    *Reconciler
}

func newHarness(viewer common.Address) *harness {
	h := &harness{
		clk:    clock.NewFake(time.Unix(1_700_000_000, 0)),
		reader: newFakeReader(viewer),
		writer: &fakeWriter{},
		bus:    newFakeBus(),
	}
	h.rec = New(h.reader, h.writer, h.bus, h.clk, testConfig())
	return h
}
