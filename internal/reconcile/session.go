package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"zerosum_client/internal/chain"
	"zerosum_client/internal/clock"
	"zerosum_client/internal/domain"
	"zerosum_client/internal/events"
	"zerosum_client/internal/logger"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotLoaded     = errors.New("game state not loaded yet")
	ErrSessionClosed = errors.New("session closed")
)

// StateReader is the read side the reconciler depends on. *chain.Reader
// implements it.
type StateReader interface {
	Viewer() common.Address
	SetViewer(addr common.Address)
	GetGame(ctx context.Context, id uint64) (*domain.Game, error)
	GetPlayerView(ctx context.Context, id uint64) *domain.PlayerView
	GetUserGames(ctx context.Context, user common.Address, offset, limit uint64) domain.UserGames
	GetGamesBatch(ctx context.Context, ids []uint64) []domain.Game
	InvalidateGame(ctx context.Context, id uint64)
}

// MoveWriter is the write side the reconciler depends on. *chain.Writer
// implements it.
type MoveWriter interface {
	MakeMove(ctx context.Context, g domain.Game, sub uint64) *chain.TxResult
	HandleTimeout(ctx context.Context, id uint64) *chain.TxResult
}

// View is the reconciled state of one game as seen by one viewer.
type View struct {
	GameID        uint64             `json:"game_id"`
	Viewer        common.Address     `json:"viewer"`
	Game          *domain.Game       `json:"game,omitempty"`
	PlayerView    *domain.PlayerView `json:"player_view,omitempty"`
	IsMyTurn      bool               `json:"is_my_turn"`
	TurnDeadline  time.Time          `json:"turn_deadline"`
	LegalMoves    *domain.MoveRange  `json:"legal_moves,omitempty"`
	Terminal      bool               `json:"terminal"`
	Optimistic    bool               `json:"optimistic"`
	AutoUnstickAt time.Time          `json:"auto_unstick_at"`
	Generation    uint64             `json:"generation"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Loaded reports whether at least one snapshot has been applied.
func (v View) Loaded() bool { return v.Game != nil }

func (v View) clone() View {
	c := v
	if v.Game != nil {
		g := v.Game.Clone()
		c.Game = &g
	}
	if v.PlayerView != nil {
		pv := *v.PlayerView
		c.PlayerView = &pv
	}
	if v.LegalMoves != nil {
		r := *v.LegalMoves
		c.LegalMoves = &r
	}
	return c
}

// Session reconciles one game for one viewer: authoritative fetches,
// optimistic patches and contract events all funnel into a single View
// guarded by a generation counter.
type Session struct {
	id     uint64
	viewer common.Address
	reader StateReader
	writer MoveWriter
	clock  clock.Clock
	cfg    Config
	log    *slog.Logger

	ctx      context.Context
	debounce *Debouncer
	dedupe   *events.Deduper

	mu                sync.Mutex
	view              View
	dispatched        uint64
	terminalEv        *domain.Event
	refreshTimer      clock.Timer
	unstickTimer      clock.Timer
	unstickSuppressed bool
	listeners         map[int]func(View)
	nextListener      int
	holds             []func()
	closed            bool
	done              chan struct{}
}

func newSession(ctx context.Context, id uint64, viewer common.Address, reader StateReader, writer MoveWriter, clk clock.Clock, cfg Config) *Session {
	s := &Session{
		id:        id,
		viewer:    viewer,
		reader:    reader,
		writer:    writer,
		clock:     clk,
		cfg:       cfg,
		log:       logger.Component("reconcile").With("game_id", id),
		ctx:       ctx,
		dedupe:    events.NewDeduper(events.DefaultDedupeSize),
		view:      View{GameID: id, Viewer: viewer},
		listeners: make(map[int]func(View)),
		done:      make(chan struct{}),
	}
	s.debounce = NewDebouncer(clk, cfg.DebounceWindow, func() {
		s.cfg.Exec(func() { s.background("debounced") })
	})
	return s
}

func (s *Session) ID() uint64 { return s.id }

func (s *Session) Viewer() common.Address { return s.viewer }

// Done is closed when the session is disposed.
func (s *Session) Done() <-chan struct{} { return s.done }

// View returns a copy of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

// OnChange registers fn to receive every new View. The returned function
// removes it.
func (s *Session) OnChange(fn func(View)) (cancel func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// publishLocked snapshots the view and listeners; the caller must unlock
// and then call the returned function.
func (s *Session) publishLocked() func() {
	v := s.view.clone()
	fns := make([]func(View), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(v)
		}
	}
}

func (s *Session) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.cfg.FetchTimeout)
}

// beginLocked hands out the next generation. Every fetch dispatch and every
// local patch takes one; only the latest may write the view.
func (s *Session) beginLocked() uint64 {
	s.dispatched++
	return s.dispatched
}

// Refresh drops the cached state of the game and fetches it again.
func (s *Session) Refresh(ctx context.Context) error {
	s.debounce.Mark()
	s.reader.InvalidateGame(ctx, s.id)
	return s.fetch(ctx, "explicit")
}

// load fetches the initial state. Unlike Refresh it keeps cached entries, so
// short-lived sessions are served from the state cache.
func (s *Session) load(ctx context.Context) error {
	s.debounce.Mark()
	return s.fetch(ctx, "open")
}

// RequestRefresh asks for a refresh subject to the debounce window.
func (s *Session) RequestRefresh() {
	s.debounce.Trigger()
}

func (s *Session) background(trigger string) {
	ctx, cancel := s.opCtx()
	defer cancel()
	s.reader.InvalidateGame(ctx, s.id)
	if err := s.fetch(ctx, trigger); err != nil {
		s.log.Warn("background refresh failed", "trigger", trigger, "error", err)
	}
}

func (s *Session) fetch(ctx context.Context, trigger string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	gen := s.beginLocked()
	s.mu.Unlock()

	refreshes.WithLabelValues(trigger).Inc()

	g, err := s.reader.GetGame(ctx, s.id)
	if err != nil {
		return err
	}
	if g == nil {
		s.log.Debug("fetch returned no data, keeping current view", "trigger", trigger)
		return nil
	}
	pv := s.reader.GetPlayerView(ctx, s.id)

	s.apply(gen, g, pv)
	return nil
}

// apply installs an authoritative snapshot if gen is still the latest
// dispatched generation.
func (s *Session) apply(gen uint64, g *domain.Game, pv *domain.PlayerView) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if gen != s.dispatched {
		staleResults.Inc()
		s.log.Debug("discarding stale fetch", "generation", gen, "latest", s.dispatched)
		s.mu.Unlock()
		return false
	}
	if cur := s.view.Game; cur != nil && !cur.Status.CanAdvanceTo(g.Status) {
		s.log.Debug("discarding regressive snapshot", "have", cur.Status, "got", g.Status)
		s.mu.Unlock()
		return false
	}
	if s.terminalEv != nil && !g.Status.Terminal() {
		patchTerminal(g, *s.terminalEv)
	}

	now := s.clock.Now()
	s.view.Game = g
	s.view.PlayerView = pv
	s.view.Generation = gen
	s.view.UpdatedAt = now
	s.view.Optimistic = false
	s.deriveLocked(now)
	s.reconcileUnstickLocked(now)

	publish := s.publishLocked()
	s.mu.Unlock()
	publish()
	return true
}

func (s *Session) deriveLocked(now time.Time) {
	g := s.view.Game
	pv := s.view.PlayerView
	active := g.Status == domain.StatusActive

	s.view.Terminal = g.Status.Terminal()

	switch {
	case !active || s.viewer == (common.Address{}):
		s.view.IsMyTurn = false
	case pv != nil:
		s.view.IsMyTurn = pv.YourTurn
	default:
		s.view.IsMyTurn = g.CurrentPlayer == s.viewer
	}

	switch {
	case !active:
		s.view.TurnDeadline = time.Time{}
	case pv != nil:
		s.view.TurnDeadline = now.Add(time.Duration(pv.TimeLeft) * time.Second)
	case !g.LastMoveAt.IsZero():
		s.view.TurnDeadline = g.LastMoveAt.Add(domain.TurnWindow)
	default:
		s.view.TurnDeadline = time.Time{}
	}

	if active && g.NumberGenerated {
		r := domain.LegalMoves(g.Mode, g.CurrentNumber)
		s.view.LegalMoves = &r
	} else {
		s.view.LegalMoves = nil
	}

	if s.view.Terminal {
		s.stopTimersLocked()
	}
}

// SubmitMove validates sub locally, patches the view optimistically and
// sends the transaction. A confirmed move is re-fetched after RefreshDelay;
// a failed one is re-fetched immediately to roll the patch back.
func (s *Session) SubmitMove(ctx context.Context, sub uint64) *chain.TxResult {
	res := &chain.TxResult{Action: chain.MethodMakeMove, GameID: s.id}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		res.Err = ErrSessionClosed
		return res
	}
	if s.view.Game == nil {
		s.mu.Unlock()
		res.Err = ErrNotLoaded
		return res
	}
	g := s.view.Game.Clone()
	if err := domain.ValidateMove(g, sub); err != nil {
		s.mu.Unlock()
		res.Err = err
		return res
	}
	if sub > g.CurrentNumber {
		s.mu.Unlock()
		res.Err = fmt.Errorf("%w: %d exceeds current number %d", domain.ErrInvalidMove, sub, g.CurrentNumber)
		return res
	}
	if !s.view.IsMyTurn {
		s.mu.Unlock()
		res.Err = chain.ErrNotYourTurn
		return res
	}

	now := s.clock.Now()
	gen := s.beginLocked()
	patched := g.Clone()
	patched.CurrentNumber -= sub
	if next, ok := g.Opponent(s.viewer); ok {
		patched.CurrentPlayer = next
	}
	patched.LastMoveAt = now
	s.patchTurnLocked(&patched, false, gen, now)
	publish := s.publishLocked()
	s.mu.Unlock()

	optimisticPatches.WithLabelValues("own_move").Inc()
	publish()

	res = s.writer.MakeMove(ctx, g, sub)
	if res.Success {
		s.scheduleRefresh(s.cfg.RefreshDelay, "post_move")
		return res
	}

	s.log.Warn("move failed, rolling back", "subtraction", sub, "reason", res.Error())
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("rollback refresh failed", "error", err)
	}
	return res
}

// patchTurnLocked installs a locally derived game after a move: the turn
// window restarts for whoever moves next.
func (s *Session) patchTurnLocked(g *domain.Game, myTurn bool, gen uint64, now time.Time) {
	s.view.Game = g
	s.view.IsMyTurn = myTurn
	s.view.TurnDeadline = now.Add(domain.TurnWindow)
	if g.NumberGenerated {
		r := domain.LegalMoves(g.Mode, g.CurrentNumber)
		s.view.LegalMoves = &r
	}
	if s.view.PlayerView != nil {
		pv := *s.view.PlayerView
		pv.YourTurn = myTurn
		pv.TimeLeft = uint64(domain.TurnWindow / time.Second)
		s.view.PlayerView = &pv
	}
	s.view.Optimistic = true
	s.view.Generation = gen
	s.view.UpdatedAt = now
}

// HandleEvent folds a contract event into the view. Redelivered events are
// ignored.
func (s *Session) HandleEvent(ev domain.Event) {
	if ev.GameID != s.id {
		return
	}
	if s.dedupe.Seen(ev.Key()) {
		s.log.Debug("duplicate event ignored", "kind", ev.Kind, "key", ev.Key())
		return
	}

	switch ev.Kind {
	case domain.EventMoveMade:
		s.applyMoveEvent(ev)
	case domain.EventGameFinished, domain.EventGameCancelled:
		s.applyTerminalEvent(ev)
	default:
		s.RequestRefresh()
	}
}

func (s *Session) applyMoveEvent(ev domain.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	g := s.view.Game
	var next common.Address
	ok := false
	if g != nil && g.Status == domain.StatusActive && ev.NewNumber <= g.CurrentNumber {
		next, ok = g.Opponent(ev.Player)
	}
	if !ok {
		s.mu.Unlock()
		s.log.Debug("move event does not fit local state, refetching", "player", ev.Player.Hex(), "new_number", ev.NewNumber)
		s.cfg.Exec(func() { s.background("inconsistent_event") })
		return
	}

	now := s.clock.Now()
	gen := s.beginLocked()
	patched := g.Clone()
	patched.CurrentNumber = ev.NewNumber
	patched.CurrentPlayer = next
	patched.LastMoveAt = now
	myTurn := s.viewer != (common.Address{}) && next == s.viewer
	s.patchTurnLocked(&patched, myTurn, gen, now)
	publish := s.publishLocked()
	s.mu.Unlock()

	optimisticPatches.WithLabelValues("move_event").Inc()
	publish()
	s.scheduleRefresh(s.cfg.RefreshDelay, "post_event")
}

func patchTerminal(g *domain.Game, ev domain.Event) {
	if ev.Kind == domain.EventGameCancelled {
		g.Status = domain.StatusCancelled
		return
	}
	g.Status = domain.StatusFinished
	g.Winner = ev.Winner
	if ev.Prize != nil {
		g.PrizePool = new(big.Int).Set(ev.Prize)
	}
}

func (s *Session) applyTerminalEvent(ev domain.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	evCopy := ev
	s.terminalEv = &evCopy

	if s.view.Game == nil {
		s.mu.Unlock()
		s.cfg.Exec(func() { s.background("terminal_event") })
		return
	}

	now := s.clock.Now()
	gen := s.beginLocked()
	patched := s.view.Game.Clone()
	patchTerminal(&patched, ev)
	s.view.Game = &patched
	s.view.Generation = gen
	s.view.UpdatedAt = now
	s.view.Optimistic = false
	s.deriveLocked(now)
	s.view.AutoUnstickAt = time.Time{}
	publish := s.publishLocked()
	s.mu.Unlock()

	s.log.Info("game reached terminal state", "kind", ev.Kind, "winner", ev.Winner.Hex())
	publish()

	s.cfg.Exec(func() {
		ctx, cancel := s.opCtx()
		defer cancel()
		s.reader.InvalidateGame(ctx, s.id)
	})
}

func (s *Session) scheduleRefresh(delay time.Duration, trigger string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.view.Terminal {
		return
	}
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}

	var t clock.Timer
	t = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.refreshTimer != t || s.closed {
			s.mu.Unlock()
			return
		}
		s.refreshTimer = nil
		s.mu.Unlock()

		s.debounce.Mark()
		s.cfg.Exec(func() {
			s.background(trigger)
			s.runHolds()
		})
	})
	s.refreshTimer = t
}

// holdUntilRefreshed calls release once the pending delayed refresh has run,
// or right away when none is armed.
func (s *Session) holdUntilRefreshed(release func()) {
	s.mu.Lock()
	if s.closed || s.refreshTimer == nil {
		s.mu.Unlock()
		release()
		return
	}
	s.holds = append(s.holds, release)
	s.mu.Unlock()
}

func (s *Session) runHolds() {
	s.mu.Lock()
	if s.refreshTimer != nil && !s.closed {
		// rescheduled meanwhile; the next run releases them
		s.mu.Unlock()
		return
	}
	hs := s.holds
	s.holds = nil
	s.mu.Unlock()
	for _, fn := range hs {
		fn()
	}
}

// RefreshScheduled reports whether a delayed refresh is armed.
func (s *Session) RefreshScheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshTimer != nil
}

func (s *Session) reconcileUnstickLocked(now time.Time) {
	g := s.view.Game
	pv := s.view.PlayerView
	stuck := g != nil && g.Status == domain.StatusActive && pv != nil && pv.GameStuck
	if !stuck {
		s.disarmUnstickLocked()
		s.unstickSuppressed = false
		return
	}
	if s.unstickTimer != nil || s.unstickSuppressed {
		return
	}

	s.view.AutoUnstickAt = now.Add(s.cfg.AutoUnstickDelay)
	s.unstickTimer = s.clock.AfterFunc(s.cfg.AutoUnstickDelay, func() {
		s.cfg.Exec(s.autoUnstick)
	})
	s.log.Info("game stuck, auto-unstick armed", "stuck_player", pv.StuckPlayer.Hex(), "at", s.view.AutoUnstickAt)
}

func (s *Session) disarmUnstickLocked() {
	if s.unstickTimer != nil {
		s.unstickTimer.Stop()
		s.unstickTimer = nil
	}
	s.view.AutoUnstickAt = time.Time{}
}

func (s *Session) autoUnstick() {
	s.mu.Lock()
	if s.closed || s.unstickTimer == nil {
		s.mu.Unlock()
		return
	}
	s.unstickTimer = nil
	s.view.AutoUnstickAt = time.Time{}
	s.mu.Unlock()

	wctx, wcancel := context.WithTimeout(s.ctx, s.cfg.WriteTimeout)
	res := s.writer.HandleTimeout(wctx, s.id)
	wcancel()
	if res.Success {
		autoUnsticks.WithLabelValues("success").Inc()
		s.log.Info("auto-unstick claimed timeout", "tx", res.TxHash.Hex())
	} else {
		autoUnsticks.WithLabelValues("failed").Inc()
		s.log.Warn("auto-unstick failed", "reason", res.Error())
	}

	ctx, cancel := s.opCtx()
	defer cancel()
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("refresh after auto-unstick failed", "error", err)
	}
}

// CancelAutoUnstick stops a running countdown. It stays off until a fetch
// shows the game is no longer stuck.
func (s *Session) CancelAutoUnstick() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.disarmUnstickLocked()
	s.unstickSuppressed = true
	publish := s.publishLocked()
	s.mu.Unlock()
	publish()
}

func (s *Session) stopTimersLocked() {
	s.debounce.Stop()
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	s.disarmUnstickLocked()
	if len(s.holds) > 0 {
		// released outside the lock: a release may close this session
		hs := s.holds
		s.holds = nil
		go func() {
			for _, fn := range hs {
				fn()
			}
		}()
	}
}

// Close stops every timer and drops listeners. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimersLocked()
	s.listeners = make(map[int]func(View))
	close(s.done)
}
