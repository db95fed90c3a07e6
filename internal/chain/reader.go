package chain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"zerosum_client/internal/cache"
	"zerosum_client/internal/clock"
	"zerosum_client/internal/domain"
	"zerosum_client/internal/logger"

	"github.com/ethereum/go-ethereum/common"
)

// ReaderConfig tunes caching and retry behaviour of Reader.
type ReaderConfig struct {
	ActiveTTL    time.Duration
	IdleTTL      time.Duration
	RetryBackoff time.Duration
	ScanCap      uint64
}

// DefaultReaderConfig returns the production defaults.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		ActiveTTL:    30 * time.Second,
		IdleTTL:      5 * time.Minute,
		RetryBackoff: time.Second,
		ScanCap:      50,
	}
}

func (c ReaderConfig) withDefaults() ReaderConfig {
	d := DefaultReaderConfig()
	if c.ActiveTTL <= 0 {
		c.ActiveTTL = d.ActiveTTL
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = d.IdleTTL
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.ScanCap == 0 {
		c.ScanCap = d.ScanCap
	}
	return c
}

// Reader wraps contract reads with caching, one retry on rate limiting and
// well-defined defaults. Transport errors never leave this type.
type Reader struct {
	contract  GameContract
	cache     *cache.Cache
	snapshots *cache.RedisSnapshots
	cfg       ReaderConfig
	log       *slog.Logger

	mu     sync.RWMutex
	viewer common.Address
}

// NewReader builds a Reader. snapshots may be nil.
func NewReader(contract GameContract, c *cache.Cache, snapshots *cache.RedisSnapshots, cfg ReaderConfig) *Reader {
	if c == nil {
		c = cache.New(cache.DefaultCapacity, clock.Real())
	}
	return &Reader{
		contract:  contract,
		cache:     c,
		snapshots: snapshots,
		cfg:       cfg.withDefaults(),
		log:       logger.Component("chain.reader"),
	}
}

// Cache exposes the underlying state cache.
func (r *Reader) Cache() *cache.Cache { return r.cache }

// Config returns the effective configuration.
func (r *Reader) Config() ReaderConfig { return r.cfg }

// Viewer returns the connected wallet address, zero if none.
func (r *Reader) Viewer() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewer
}

// SetViewer switches the connected wallet and clears every cached entry.
func (r *Reader) SetViewer(addr common.Address) {
	r.mu.Lock()
	changed := r.viewer != addr
	r.viewer = addr
	r.mu.Unlock()

	n := r.cache.Invalidate("")
	if changed {
		r.log.Info("viewer changed", "viewer", addr.Hex(), "dropped", n)
	}
}

// InvalidateGame drops every cached entry of id, in memory and in Redis.
func (r *Reader) InvalidateGame(ctx context.Context, id uint64) {
	n := r.cache.Invalidate(cache.GameScope(id))
	r.snapshots.Drop(ctx, id)
	r.log.Debug("game invalidated", "game_id", id, "dropped", n)
}

// InvalidateUserGames drops cached user-game lists and the counter.
func (r *Reader) InvalidateUserGames() {
	r.cache.Invalidate(cache.KindUserGames + "/")
	r.cache.Invalidate(cache.CounterKey())
}

// TTLFor returns the cache lifetime for a game in status s.
func (r *Reader) TTLFor(s domain.GameStatus) time.Duration {
	if s == domain.StatusActive {
		return r.cfg.ActiveTTL
	}
	return r.cfg.IdleTTL
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withRetry runs fn and, on a rate-limit signal, waits RetryBackoff and runs
// it exactly once more.
func withRetry[T any](ctx context.Context, r *Reader, method string, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !IsRateLimited(err) {
		return v, err
	}

	rpcRetries.WithLabelValues(method).Inc()
	r.log.Debug("rate limited, retrying once", "method", method, "backoff", r.cfg.RetryBackoff)
	if werr := wait(ctx, r.cfg.RetryBackoff); werr != nil {
		return v, err
	}
	return fn(ctx)
}

func (r *Reader) recoverable(method string, err error, args ...any) {
	rpcFailures.WithLabelValues(method, failureReason(err)).Inc()
	r.log.Warn("contract read failed, using default", append([]any{"method", method, "error", err}, args...)...)
}

// GameCounter returns the number of games created, 0 on failure.
func (r *Reader) GameCounter(ctx context.Context) uint64 {
	key := cache.CounterKey()
	if n, ok := cache.Get[uint64](r.cache, key); ok {
		return n
	}

	n, err := withRetry(ctx, r, MethodGameCounter, r.contract.GameCounter)
	if err != nil {
		r.recoverable(MethodGameCounter, err)
		return 0
	}
	r.cache.Set(key, n, r.cfg.ActiveTTL)
	return n
}

// GetGame returns game id with its players. The only error is
// ErrGameNotFound; a transient failure yields (nil, nil), meaning the game
// has not been fetched yet.
func (r *Reader) GetGame(ctx context.Context, id uint64) (*domain.Game, error) {
	if id == 0 {
		return nil, ErrGameNotFound
	}

	key := cache.GameKey(id, r.Viewer())
	if g, ok := cache.Get[domain.Game](r.cache, key); ok {
		c := g.Clone()
		return &c, nil
	}
	if g, ok := r.snapshots.Load(ctx, id); ok {
		r.cache.Set(key, g.Clone(), r.TTLFor(g.Status))
		return &g, nil
	}

	g, err := withRetry(ctx, r, MethodGetGame, func(ctx context.Context) (domain.Game, error) {
		return r.contract.GetGame(ctx, id)
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrGameNotFound
		}
		r.recoverable(MethodGetGame, err, "game_id", id)
		return nil, nil
	}

	players, err := r.fetchPlayers(ctx, id)
	if err != nil {
		// a game without its roster would poison turn and participant checks
		r.recoverable(MethodGetPlayers, err, "game_id", id)
		return nil, nil
	}
	g.Players = players

	ttl := r.TTLFor(g.Status)
	r.cache.Set(key, g.Clone(), ttl)
	r.snapshots.Save(ctx, g, ttl)
	return &g, nil
}

// GetPlayers returns the participants of id, empty on failure.
func (r *Reader) GetPlayers(ctx context.Context, id uint64) []common.Address {
	players, err := r.fetchPlayers(ctx, id)
	if err != nil {
		r.recoverable(MethodGetPlayers, err, "game_id", id)
		return nil
	}
	return players
}

func (r *Reader) fetchPlayers(ctx context.Context, id uint64) ([]common.Address, error) {
	key := cache.PlayersKey(id, r.Viewer())
	if p, ok := cache.Get[[]common.Address](r.cache, key); ok {
		return append([]common.Address(nil), p...), nil
	}

	players, err := withRetry(ctx, r, MethodGetPlayers, func(ctx context.Context) ([]common.Address, error) {
		return r.contract.GetPlayers(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	// the roster is fixed once both seats are taken
	ttl := r.cfg.ActiveTTL
	if len(players) >= domain.MaxPlayers {
		ttl = r.cfg.IdleTTL
	}
	r.cache.Set(key, append([]common.Address(nil), players...), ttl)
	return players, nil
}

// GetPlayerView returns the viewer-scoped turn state, or nil when no viewer
// is connected, the viewer is not a participant, or the call fails.
func (r *Reader) GetPlayerView(ctx context.Context, id uint64) *domain.PlayerView {
	viewer := r.Viewer()
	if viewer == (common.Address{}) {
		return nil
	}

	participant := false
	for _, p := range r.GetPlayers(ctx, id) {
		if p == viewer {
			participant = true
			break
		}
	}
	if !participant {
		return nil
	}

	key := cache.PlayerViewKey(id, viewer)
	if v, ok := cache.Get[domain.PlayerView](r.cache, key); ok {
		return &v
	}

	v, err := withRetry(ctx, r, MethodGetPlayerView, func(ctx context.Context) (domain.PlayerView, error) {
		return r.contract.GetPlayerView(ctx, id, viewer)
	})
	if err != nil {
		if IsNotVisible(err) {
			r.log.Debug("player view not visible", "game_id", id, "viewer", viewer.Hex())
			return nil
		}
		r.recoverable(MethodGetPlayerView, err, "game_id", id)
		return nil
	}

	r.cache.Set(key, v, r.cfg.ActiveTTL)
	return &v
}

// GetUserGames lists the games user takes part in. It prefers the indexed
// contract lookup and falls back to scanning the most recent ScanCap games.
func (r *Reader) GetUserGames(ctx context.Context, user common.Address, offset, limit uint64) domain.UserGames {
	empty := domain.UserGames{GameIDs: []uint64{}, Source: domain.SourceIndexed}
	if user == (common.Address{}) {
		return empty
	}

	key := cache.UserGamesKey(user, offset, limit)
	if res, ok := cache.Get[domain.UserGames](r.cache, key); ok {
		return res
	}

	res, err := withRetry(ctx, r, MethodGetUserGames, func(ctx context.Context) (domain.UserGames, error) {
		return r.contract.GetUserGames(ctx, user, offset, limit)
	})
	if err == nil {
		res.Source = domain.SourceIndexed
		if res.GameIDs == nil {
			res.GameIDs = []uint64{}
		}
		userGamesSource.WithLabelValues(domain.SourceIndexed).Inc()
		r.cache.Set(key, res, r.cfg.ActiveTTL)
		return res
	}

	r.log.Warn("indexed user games lookup failed, scanning", "user", user.Hex(), "error", err)
	res = r.scanUserGames(ctx, user, offset, limit)
	userGamesSource.WithLabelValues(domain.SourceScan).Inc()
	r.cache.Set(key, res, r.cfg.ActiveTTL)
	return res
}

// scanUserGames walks ids newest first, at most ScanCap of them, checking
// membership. It issues at most ScanCap+1 contract calls and never retries.
func (r *Reader) scanUserGames(ctx context.Context, user common.Address, offset, limit uint64) domain.UserGames {
	res := domain.UserGames{GameIDs: []uint64{}, Source: domain.SourceScan}

	counter, err := r.contract.GameCounter(ctx)
	if err != nil {
		r.recoverable(MethodGameCounter, err, "path", "scan")
		return res
	}

	var found []uint64
	for i := uint64(0); i < r.cfg.ScanCap && counter > i; i++ {
		if ctx.Err() != nil {
			break
		}
		id := counter - i
		players, err := r.contract.GetPlayers(ctx, id)
		if err != nil {
			r.log.Debug("scan: players lookup failed", "game_id", id, "error", err)
			continue
		}
		for _, p := range players {
			if p == user {
				found = append(found, id)
				break
			}
		}
	}

	res.Total = uint64(len(found))
	if offset >= uint64(len(found)) {
		return res
	}
	end := uint64(len(found))
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	res.GameIDs = append(res.GameIDs, found[offset:end]...)
	return res
}

// GetGamesBatch fetches several games at once. On batch failure it falls
// back to individual GetGame reads; unavailable games are omitted.
func (r *Reader) GetGamesBatch(ctx context.Context, ids []uint64) []domain.Game {
	if len(ids) == 0 {
		return []domain.Game{}
	}

	games, err := withRetry(ctx, r, MethodGetGamesBatch, func(ctx context.Context) ([]domain.Game, error) {
		return r.contract.GetGamesBatch(ctx, ids)
	})
	if err == nil {
		return games
	}
	r.recoverable(MethodGetGamesBatch, err, "count", len(ids))

	out := make([]domain.Game, 0, len(ids))
	for _, id := range ids {
		g, err := r.GetGame(ctx, id)
		if err != nil || g == nil {
			continue
		}
		out = append(out, *g)
	}
	return out
}

// IsGameBettable reports whether spectators may bet on id, false on failure.
func (r *Reader) IsGameBettable(ctx context.Context, id uint64) bool {
	key := cache.BettableKey(id, r.Viewer())
	if b, ok := cache.Get[bool](r.cache, key); ok {
		return b
	}

	b, err := withRetry(ctx, r, MethodIsGameBettable, func(ctx context.Context) (bool, error) {
		return r.contract.IsGameBettable(ctx, id)
	})
	if err != nil {
		r.recoverable(MethodIsGameBettable, err, "game_id", id)
		return false
	}
	r.cache.Set(key, b, r.cfg.ActiveTTL)
	return b
}
