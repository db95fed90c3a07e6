package reconcile

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"zerosum_client/internal/clock"
	"zerosum_client/internal/domain"
	"zerosum_client/internal/events"
	"zerosum_client/internal/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Tier is the polling cadence class of the viewer's game list.
type Tier string

const (
	TierUrgent Tier = "urgent"
	TierActive Tier = "active"
	TierIdle   Tier = "idle"
)

// Poll intervals per tier.
const (
	UrgentInterval = 30 * time.Second
	ActiveInterval = 2 * time.Minute
	IdleInterval   = 5 * time.Minute
)

// MyGamesLimit is the page size of the viewer's game list.
const MyGamesLimit = 50

// GameSummary is one row of the viewer's game list.
type GameSummary struct {
	ID            uint64            `json:"game_id"`
	Mode          domain.GameMode   `json:"mode"`
	Status        domain.GameStatus `json:"status"`
	CurrentNumber uint64            `json:"current_number"`
	CurrentPlayer common.Address    `json:"current_player"`
	EntryFee      *big.Int          `json:"entry_fee"`
	PrizePool     *big.Int          `json:"prize_pool"`
	Winner        common.Address    `json:"winner"`
	MyTurn        bool              `json:"my_turn"`
}

// Summary is the viewer's game list with its cadence classification.
type Summary struct {
	Viewer    common.Address `json:"viewer"`
	Games     []GameSummary  `json:"games"`
	Total     uint64         `json:"total"`
	Source    string         `json:"source"`
	Tier      Tier           `json:"tier"`
	Interval  time.Duration  `json:"interval"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// CadenceFor picks the poll tier for s: urgent when any game waits on the
// viewer, active when any game is in progress, idle otherwise.
func CadenceFor(s Summary) (Tier, time.Duration) {
	active := false
	for _, g := range s.Games {
		if g.MyTurn {
			return TierUrgent, UrgentInterval
		}
		if g.Status == domain.StatusActive {
			active = true
		}
	}
	if active {
		return TierActive, ActiveInterval
	}
	return TierIdle, IdleInterval
}

// MyGames keeps the viewer's game list fresh on a cadence that tightens
// while the viewer has something to do. Bridge events touching one of the
// listed games (or the viewer) trigger a debounced re-poll.
type MyGames struct {
	reader StateReader
	bus    EventBus
	clock  clock.Clock
	cfg    Config
	log    *slog.Logger

	debounce *Debouncer

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	current   Summary
	ids       map[uint64]struct{}
	timer     clock.Timer
	unsub     func()
	listeners map[int]func(Summary)
	nextID    int
	running   bool
}

func NewMyGames(reader StateReader, bus EventBus, clk clock.Clock, cfg Config) *MyGames {
	if clk == nil {
		clk = clock.Real()
	}
	m := &MyGames{
		reader:    reader,
		bus:       bus,
		clock:     clk,
		cfg:       cfg.withDefaults(),
		log:       logger.Component("mygames"),
		ids:       make(map[uint64]struct{}),
		listeners: make(map[int]func(Summary)),
	}
	m.debounce = NewDebouncer(clk, m.cfg.DebounceWindow, func() {
		m.cfg.Exec(func() { m.pollBackground() })
	})
	return m
}

// Start subscribes to the bridge and runs the first poll.
func (m *MyGames) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if m.bus != nil {
		unsub := m.bus.Subscribe(events.AllGames, m.handleEvent)
		m.mu.Lock()
		m.unsub = unsub
		m.mu.Unlock()
	}
	m.pollBackground()
}

// Stop cancels the schedule and the bridge subscription.
func (m *MyGames) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	unsub := m.unsub
	m.unsub = nil
	cancel := m.cancel
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
}

// Current returns the last polled summary.
func (m *MyGames) Current() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnUpdate registers fn for every new summary.
func (m *MyGames) OnUpdate(fn func(Summary)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Trigger requests a debounced re-poll.
func (m *MyGames) Trigger() {
	m.debounce.Trigger()
}

func (m *MyGames) handleEvent(ev domain.Event) {
	viewer := m.reader.Viewer()
	m.mu.Lock()
	_, listed := m.ids[ev.GameID]
	m.mu.Unlock()

	if listed || ev.Involves(viewer) {
		m.Trigger()
	}
}

func (m *MyGames) pollBackground() {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()
	m.Poll(pctx)
}

// Poll fetches the list now, publishes it and re-arms the timer for the
// resulting tier.
func (m *MyGames) Poll(ctx context.Context) Summary {
	m.debounce.Mark()
	viewer := m.reader.Viewer()

	s := Summary{Viewer: viewer, Games: []GameSummary{}, Source: domain.SourceIndexed}
	if viewer != (common.Address{}) {
		list := m.reader.GetUserGames(ctx, viewer, 0, MyGamesLimit)
		s.Total = list.Total
		s.Source = list.Source

		for _, g := range m.reader.GetGamesBatch(ctx, list.GameIDs) {
			s.Games = append(s.Games, GameSummary{
				ID:            g.ID,
				Mode:          g.Mode,
				Status:        g.Status,
				CurrentNumber: g.CurrentNumber,
				CurrentPlayer: g.CurrentPlayer,
				EntryFee:      g.EntryFee,
				PrizePool:     g.PrizePool,
				Winner:        g.Winner,
				MyTurn:        g.Status == domain.StatusActive && g.CurrentPlayer == viewer,
			})
		}
	}
	s.Tier, s.Interval = CadenceFor(s)
	s.FetchedAt = m.clock.Now()
	myGamesPolls.WithLabelValues(string(s.Tier)).Inc()

	m.mu.Lock()
	m.current = s
	m.ids = make(map[uint64]struct{}, len(s.Games))
	for _, g := range s.Games {
		m.ids[g.ID] = struct{}{}
	}
	if m.running {
		if m.timer != nil {
			m.timer.Stop()
		}
		m.timer = m.clock.AfterFunc(s.Interval, func() {
			m.cfg.Exec(m.pollBackground)
		})
	}
	fns := make([]func(Summary), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	m.log.Debug("my games polled", "viewer", viewer.Hex(), "games", len(s.Games), "tier", s.Tier, "source", s.Source)
	for _, fn := range fns {
		fn(s)
	}
	return s
}
