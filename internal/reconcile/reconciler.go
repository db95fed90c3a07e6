package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"zerosum_client/internal/chain"
	"zerosum_client/internal/clock"
	"zerosum_client/internal/domain"
	"zerosum_client/internal/events"
	"zerosum_client/internal/logger"

	"github.com/ethereum/go-ethereum/common"
)

var ErrDisposed = errors.New("reconciler disposed")

// EventBus delivers contract events. *events.Bridge implements it.
type EventBus interface {
	Subscribe(gameID uint64, h events.Handler) (unsubscribe func())
}

// ConfirmationSource notifies about mined transactions. *chain.Writer
// implements it.
type ConfirmationSource interface {
	OnConfirmed(fn func(chain.Confirmation))
}

// Config holds the timing knobs of sessions and the my-games poller.
type Config struct {
	DebounceWindow   time.Duration
	RefreshDelay     time.Duration
	AutoUnstickDelay time.Duration
	FetchTimeout     time.Duration
	// WriteTimeout bounds transactions sent by sessions themselves and
	// must cover the writer's confirmation wait.
	WriteTimeout time.Duration
	// Exec runs background work. Defaults to a new goroutine per call.
	Exec func(func())
}

func DefaultConfig() Config {
	return Config{
		DebounceWindow:   DefaultDebounceWindow,
		RefreshDelay:     2500 * time.Millisecond,
		AutoUnstickDelay: 30 * time.Second,
		FetchTimeout:     15 * time.Second,
		WriteTimeout:     90 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = d.DebounceWindow
	}
	if c.RefreshDelay <= 0 {
		c.RefreshDelay = d.RefreshDelay
	}
	if c.AutoUnstickDelay <= 0 {
		c.AutoUnstickDelay = d.AutoUnstickDelay
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.Exec == nil {
		c.Exec = func(f func()) { go f() }
	}
	return c
}

type sessionEntry struct {
	session *Session
	refs    int
	unsub   func()
}

// Reconciler owns the live sessions. Sessions are shared per game and
// reference counted; all of them are dropped when the viewer changes.
type Reconciler struct {
	reader StateReader
	writer MoveWriter
	bus    EventBus
	clock  clock.Clock
	cfg    Config
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[uint64]*sessionEntry
	disposed bool
}

// New wires a Reconciler. If writer also implements ConfirmationSource,
// confirmed transactions trigger a refresh of the affected session.
func New(reader StateReader, writer MoveWriter, bus EventBus, clk clock.Clock, cfg Config) *Reconciler {
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		reader:   reader,
		writer:   writer,
		bus:      bus,
		clock:    clk,
		cfg:      cfg.withDefaults(),
		log:      logger.Component("reconcile"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[uint64]*sessionEntry),
	}
	if src, ok := writer.(ConfirmationSource); ok {
		src.OnConfirmed(r.onConfirmed)
	}
	return r
}

func (r *Reconciler) Config() Config { return r.cfg }

// Viewer is the connected wallet.
func (r *Reconciler) Viewer() common.Address { return r.reader.Viewer() }

// Open returns the session for id, creating and loading it on first use.
// Every successful Open must be paired with a call to release.
func (r *Reconciler) Open(ctx context.Context, id uint64) (*Session, func(), error) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil, nil, ErrDisposed
	}
	if e, ok := r.sessions[id]; ok {
		e.refs++
		r.mu.Unlock()
		return e.session, r.releaser(id, e.session), nil
	}

	s := newSession(r.ctx, id, r.reader.Viewer(), r.reader, r.writer, r.clock, r.cfg)
	e := &sessionEntry{session: s, refs: 1}
	r.sessions[id] = e
	r.mu.Unlock()

	if r.bus != nil {
		unsub := r.bus.Subscribe(id, s.HandleEvent)
		r.mu.Lock()
		if cur, ok := r.sessions[id]; ok && cur == e {
			e.unsub = unsub
			unsub = nil
		}
		r.mu.Unlock()
		if unsub != nil {
			unsub()
		}
	}

	if err := s.load(ctx); err != nil {
		r.releaser(id, s)()
		return nil, nil, err
	}

	r.log.Debug("session opened", "game_id", id, "viewer", s.Viewer().Hex())
	return s, r.releaser(id, s), nil
}

func (r *Reconciler) releaser(id uint64, s *Session) func() {
	var once sync.Once
	return func() {
		once.Do(func() { r.release(id, s) })
	}
}

func (r *Reconciler) release(id uint64, s *Session) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok || e.session != s {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	r.closeEntry(e)
	r.log.Debug("session released", "game_id", id)
}

func (r *Reconciler) closeEntry(e *sessionEntry) {
	if e.unsub != nil {
		e.unsub()
	}
	e.session.Close()
}

// Session returns the live session for id, if any.
func (r *Reconciler) Session(id uint64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Sessions is the number of live sessions.
func (r *Reconciler) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SetViewer switches wallets: every session is closed (their Done channels
// fire) and the read cache is cleared.
func (r *Reconciler) SetViewer(addr common.Address) {
	r.reader.SetViewer(addr)

	r.mu.Lock()
	old := r.sessions
	r.sessions = make(map[uint64]*sessionEntry)
	r.mu.Unlock()

	// watchers reopening on Done must already see the new viewer
	for _, e := range old {
		r.closeEntry(e)
	}
	r.log.Info("viewer switched", "viewer", addr.Hex(), "closed_sessions", len(old))
}

// Dispose closes every session and refuses new ones.
func (r *Reconciler) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	old := r.sessions
	r.sessions = make(map[uint64]*sessionEntry)
	r.mu.Unlock()

	r.cancel()
	for _, e := range old {
		r.closeEntry(e)
	}
}

func (r *Reconciler) onConfirmed(c chain.Confirmation) {
	if c.GameID == 0 {
		return
	}
	s, ok := r.Session(c.GameID)
	if !ok {
		return
	}
	// moves schedule their own delayed refresh
	if c.Action == chain.MethodMakeMove {
		return
	}
	s.RequestRefresh()
}

// SubmitMove routes a move through the game's session when one is open, so
// the optimistic patch is visible to every watcher of that game. A session
// opened only for this move stays alive until its post-move refresh ran.
func (r *Reconciler) SubmitMove(ctx context.Context, id uint64, sub uint64) *chain.TxResult {
	s, release, err := r.Open(ctx, id)
	if err != nil {
		return &chain.TxResult{Action: chain.MethodMakeMove, GameID: id, Err: err}
	}
	res := s.SubmitMove(ctx, sub)
	s.holdUntilRefreshed(release)
	return res
}

// Snapshot opens the session for id just long enough to read its view.
func (r *Reconciler) Snapshot(ctx context.Context, id uint64, refresh bool) (View, error) {
	s, release, err := r.Open(ctx, id)
	if err != nil {
		return View{}, err
	}
	defer release()
	if refresh {
		if err := s.Refresh(ctx); err != nil {
			return View{}, err
		}
	}
	v := s.View()
	if !v.Loaded() {
		return v, ErrNotLoaded
	}
	return v, nil
}

// LegalMovesFor is a convenience for presentation layers.
func LegalMovesFor(v View) (domain.MoveRange, bool) {
	if v.LegalMoves == nil {
		return domain.MoveRange{}, false
	}
	return *v.LegalMoves, true
}
