// Package chaintest provides an in-memory ZeroSum contract for tests. It
// implements chain.GameContract, chain.TxContract and events.Source:
// transactions are applied when mined, and every state change is logged as
// the contract would, one block per transaction.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"zerosum_client/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Method names, mirrored from the chain package to keep this package
// importable from chain's own tests.
const (
	methodGameCounter   = "gameCounter"
	methodGetGame       = "getGame"
	methodGetPlayers    = "getPlayers"
	methodGetPlayerView = "getPlayerView"
	methodGetUserGames  = "getUserGames"
	methodGetGamesBatch = "getGamesBatch"
	methodIsBettable    = "isGameBettable"
)

// StartNumber is the number drawn when a second player joins.
const StartNumber = 100

type minedLog struct {
	ev domain.Event
}

// Sim is a scripted contract.
type Sim struct {
	mu      sync.Mutex
	now     func() time.Time
	block   uint64
	counter uint64
	games   map[uint64]domain.Game
	players map[uint64][]common.Address
	views   map[uint64]map[common.Address]domain.PlayerView
	calls   map[string]int
	fail    map[string]error
	nonce   uint64
	pending map[common.Hash]func(hash common.Hash) []domain.Event
	logs    map[common.Hash][]minedLog
	history []domain.Event

	revertNext   bool
	revertReason string
	reverted     map[common.Hash]string
}

func NewSim() *Sim {
	return &Sim{
		now:      time.Now,
		block:    100,
		games:    make(map[uint64]domain.Game),
		players:  make(map[uint64][]common.Address),
		views:    make(map[uint64]map[common.Address]domain.PlayerView),
		calls:    make(map[string]int),
		fail:     make(map[string]error),
		pending:  make(map[common.Hash]func(common.Hash) []domain.Event),
		logs:     make(map[common.Hash][]minedLog),
		reverted: make(map[common.Hash]string),
	}
}

// SetNow replaces the time source used for CreatedAt and LastMoveAt.
func (s *Sim) SetNow(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Put installs g with players and raises the counter to g.ID if needed.
func (s *Sim) Put(g domain.Game, players ...common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.Players = nil
	s.games[g.ID] = g.Clone()
	s.players[g.ID] = append([]common.Address(nil), players...)
	if g.ID > s.counter {
		s.counter = g.ID
	}
}

// PutView overrides the player view served to viewer for id.
func (s *Sim) PutView(id uint64, viewer common.Address, v domain.PlayerView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views[id] == nil {
		s.views[id] = make(map[common.Address]domain.PlayerView)
	}
	s.views[id][viewer] = v
}

// Game returns the current on-chain state of id.
func (s *Sim) Game(id uint64) (domain.Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return domain.Game{}, false
	}
	g = g.Clone()
	g.Players = append([]common.Address(nil), s.players[id]...)
	return g, true
}

// Calls returns how often method was invoked.
func (s *Sim) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// FailWith makes every later call to method return err; nil clears it.
func (s *Sim) FailWith(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

// Emit appends ev to the log history in a new block, as if another client
// had transacted.
func (s *Sim) Emit(ev domain.Event) domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block++
	ev.BlockNumber = s.block
	if ev.TxHash == (common.Hash{}) {
		ev.TxHash = common.BigToHash(new(big.Int).SetUint64(s.block))
	}
	s.history = append(s.history, ev)
	return ev
}

func (s *Sim) enter(method string) error {
	s.calls[method]++
	return s.fail[method]
}

func (s *Sim) GameCounter(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(methodGameCounter); err != nil {
		return 0, err
	}
	return s.counter, nil
}

func (s *Sim) GetGame(ctx context.Context, id uint64) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(methodGetGame); err != nil {
		return domain.Game{}, err
	}
	g, ok := s.games[id]
	if !ok {
		return domain.Game{}, errors.New("execution reverted: game does not exist")
	}
	return g.Clone(), nil
}

func (s *Sim) GetPlayers(ctx context.Context, id uint64) ([]common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(methodGetPlayers); err != nil {
		return nil, err
	}
	return append([]common.Address(nil), s.players[id]...), nil
}

func (s *Sim) GetPlayerView(ctx context.Context, id uint64, viewer common.Address) (domain.PlayerView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(methodGetPlayerView); err != nil {
		return domain.PlayerView{}, err
	}
	if v, ok := s.views[id][viewer]; ok {
		return v, nil
	}
	g, ok := s.games[id]
	if !ok || !s.seatedLocked(id, viewer) {
		return domain.PlayerView{}, errors.New("execution reverted: not a player")
	}
	v := domain.PlayerView{YourTurn: g.Status == domain.StatusActive && g.CurrentPlayer == viewer}
	if g.Status == domain.StatusActive && !g.LastMoveAt.IsZero() {
		left := domain.TurnWindow - s.now().Sub(g.LastMoveAt)
		if left > 0 {
			v.TimeLeft = uint64(left / time.Second)
		}
	}
	return v, nil
}

func (s *Sim) GetUserGames(ctx context.Context, user common.Address, offset, limit uint64) (domain.UserGames, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(methodGetUserGames); err != nil {
		return domain.UserGames{}, err
	}
	var all []uint64
	for id := uint64(1); id <= s.counter; id++ {
		if s.seatedLocked(id, user) {
			all = append(all, id)
		}
	}
	res := domain.UserGames{GameIDs: []uint64{}, Total: uint64(len(all)), Source: domain.SourceIndexed}
	for i := offset; i < uint64(len(all)) && (limit == 0 || i < offset+limit); i++ {
		res.GameIDs = append(res.GameIDs, all[i])
	}
	return res, nil
}

func (s *Sim) GetGamesBatch(ctx context.Context, ids []uint64) ([]domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(methodGetGamesBatch); err != nil {
		return nil, err
	}
	out := make([]domain.Game, 0, len(ids))
	for _, id := range ids {
		g, ok := s.games[id]
		if !ok {
			continue
		}
		g = g.Clone()
		g.Players = append([]common.Address(nil), s.players[id]...)
		out = append(out, g)
	}
	return out, nil
}

func (s *Sim) IsGameBettable(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(methodIsBettable); err != nil {
		return false, err
	}
	g, ok := s.games[id]
	return ok && g.Status == domain.StatusWaiting, nil
}

func (s *Sim) seatedLocked(id uint64, addr common.Address) bool {
	for _, p := range s.players[id] {
		if p == addr {
			return true
		}
	}
	return false
}

// Transact validates method against the current state and queues its
// effect for WaitMined. Rejected calls fail like a reverted eth_estimateGas.
func (s *Sim) Transact(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(method); err != nil {
		return nil, err
	}

	from := opts.From
	value := new(big.Int)
	if opts.Value != nil {
		value.Set(opts.Value)
	}
	argID := func() uint64 {
		if len(args) == 0 {
			return 0
		}
		if b, ok := args[0].(*big.Int); ok {
			return b.Uint64()
		}
		return 0
	}

	var apply func(hash common.Hash) []domain.Event
	switch method {
	case "createQuickDraw", "createStrategic":
		mode := domain.ModeQuickDraw
		if method == "createStrategic" {
			mode = domain.ModeStrategic
		}
		apply = func(hash common.Hash) []domain.Event {
			s.counter++
			id := s.counter
			s.games[id] = domain.Game{
				ID:        id,
				Mode:      mode,
				Status:    domain.StatusWaiting,
				EntryFee:  new(big.Int).Set(value),
				PrizePool: new(big.Int).Set(value),
				CreatedAt: s.now(),
			}
			s.players[id] = []common.Address{from}
			return []domain.Event{{Kind: domain.EventGameCreated, GameID: id, Player: from, Mode: mode, EntryFee: new(big.Int).Set(value)}}
		}

	case "joinGame":
		id := argID()
		g, ok := s.games[id]
		if !ok || g.Status != domain.StatusWaiting {
			return nil, errors.New("execution reverted: game not joinable")
		}
		if g.EntryFee != nil && value.Cmp(g.EntryFee) != 0 {
			return nil, errors.New("execution reverted: wrong entry fee")
		}
		apply = func(hash common.Hash) []domain.Event {
			g := s.games[id]
			creator := s.players[id][0]
			s.players[id] = append(s.players[id], from)
			g.Status = domain.StatusActive
			g.PrizePool = new(big.Int).Add(g.PrizePool, value)
			g.CurrentNumber = StartNumber
			g.NumberGenerated = true
			g.CurrentPlayer = creator
			g.LastMoveAt = s.now()
			s.games[id] = g
			return []domain.Event{
				{Kind: domain.EventPlayerJoined, GameID: id, Player: from},
				{Kind: domain.EventNumberGenerated, GameID: id, Number: StartNumber},
			}
		}

	case "makeMove":
		id := argID()
		sub := args[1].(*big.Int).Uint64()
		g, ok := s.games[id]
		if !ok || g.Status != domain.StatusActive {
			return nil, errors.New("execution reverted: game not active")
		}
		if g.CurrentPlayer != from {
			return nil, errors.New("execution reverted: not your turn")
		}
		if err := domain.ValidateMove(g, sub); err != nil {
			return nil, fmt.Errorf("execution reverted: %v", err)
		}
		apply = func(hash common.Hash) []domain.Event {
			g := s.games[id]
			g.CurrentNumber -= sub
			g.LastMoveAt = s.now()
			evs := []domain.Event{{Kind: domain.EventMoveMade, GameID: id, Player: from, Subtraction: sub, NewNumber: g.CurrentNumber}}
			if g.CurrentNumber == 0 {
				g.Status = domain.StatusFinished
				g.Winner = from
				evs = append(evs, domain.Event{Kind: domain.EventGameFinished, GameID: id, Winner: from, Prize: new(big.Int).Set(g.PrizePool)})
			} else {
				g.CurrentPlayer = s.otherLocked(id, from)
			}
			s.games[id] = g
			return evs
		}

	case "handleTimeout":
		id := argID()
		g, ok := s.games[id]
		if !ok || g.Status != domain.StatusActive {
			return nil, errors.New("execution reverted: game not active")
		}
		apply = func(hash common.Hash) []domain.Event {
			g := s.games[id]
			slow := g.CurrentPlayer
			g.CurrentPlayer = s.otherLocked(id, slow)
			g.LastMoveAt = s.now()
			s.games[id] = g
			return []domain.Event{{Kind: domain.EventTimeoutHandled, GameID: id, Player: slow, TimeoutCount: 1}}
		}

	case "cancelWaitingGame":
		id := argID()
		g, ok := s.games[id]
		if !ok || g.Status != domain.StatusWaiting {
			return nil, errors.New("execution reverted: game not waiting")
		}
		apply = func(hash common.Hash) []domain.Event {
			g := s.games[id]
			g.Status = domain.StatusFinished
			s.games[id] = g
			return []domain.Event{{Kind: domain.EventGameCancelled, GameID: id, Player: from}}
		}

	case "forceFinishInactiveGame":
		id := argID()
		g, ok := s.games[id]
		if !ok || g.Status != domain.StatusActive {
			return nil, errors.New("execution reverted: game not active")
		}
		apply = func(hash common.Hash) []domain.Event {
			g := s.games[id]
			g.Status = domain.StatusFinished
			g.Winner = s.otherLocked(id, g.CurrentPlayer)
			s.games[id] = g
			return []domain.Event{{Kind: domain.EventGameFinished, GameID: id, Winner: g.Winner, Prize: new(big.Int).Set(g.PrizePool)}}
		}

	case "withdraw":
		apply = func(hash common.Hash) []domain.Event { return nil }

	default:
		return nil, fmt.Errorf("sim: unsupported method %s", method)
	}

	s.nonce++
	tx := types.NewTx(&types.LegacyTx{Nonce: s.nonce, Value: value})
	s.pending[tx.Hash()] = apply
	return tx, nil
}

// RevertNext makes the next mined transaction fail on chain.
func (s *Sim) RevertNext() {
	s.RevertNextWith("")
}

// RevertNextWith is RevertNext with a reason recoverable by ReplayRevert.
func (s *Sim) RevertNextWith(reason string) {
	s.mu.Lock()
	s.revertNext = true
	s.revertReason = reason
	s.mu.Unlock()
}

// ReplayRevert returns the reason a mined transaction reverted with.
func (s *Sim) ReplayRevert(ctx context.Context, tx *types.Transaction, from common.Address, block *big.Int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reverted[tx.Hash()]
}

func (s *Sim) otherLocked(id uint64, addr common.Address) common.Address {
	for _, p := range s.players[id] {
		if p != addr {
			return p
		}
	}
	return addr
}

// WaitMined applies a queued transaction in a new block.
func (s *Sim) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := tx.Hash()
	apply, ok := s.pending[hash]
	if !ok {
		return nil, fmt.Errorf("sim: unknown transaction %s", hash.Hex())
	}
	delete(s.pending, hash)

	s.block++
	receipt := &types.Receipt{TxHash: hash, BlockNumber: new(big.Int).SetUint64(s.block)}
	if s.revertNext {
		s.revertNext = false
		s.reverted[hash] = s.revertReason
		receipt.Status = types.ReceiptStatusFailed
		return receipt, nil
	}

	receipt.Status = types.ReceiptStatusSuccessful
	for i, ev := range apply(hash) {
		ev.BlockNumber = s.block
		ev.TxHash = hash
		ev.LogIndex = uint(i)
		s.logs[hash] = append(s.logs[hash], minedLog{ev: ev})
		s.history = append(s.history, ev)
		receipt.Logs = append(receipt.Logs, &types.Log{TxHash: hash, Index: uint(i), BlockNumber: s.block})
	}
	return receipt, nil
}

// DecodeLog resolves a receipt log produced by WaitMined.
func (s *Sim) DecodeLog(lg types.Log) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.logs[lg.TxHash]
	if int(lg.Index) >= len(logs) {
		return domain.Event{}, errors.New("sim: unknown log")
	}
	return logs[lg.Index].ev, nil
}

// LatestBlock is the block of the last mined transaction.
func (s *Sim) LatestBlock(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.block, nil
}

// FetchEvents returns every logged event in [from, to].
func (s *Sim) FetchEvents(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, ev := range s.history {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Wallet is a chain.Wallet that signs nothing; the Sim trusts From.
type Wallet common.Address

func (w Wallet) Address() common.Address { return common.Address(w) }

func (w Wallet) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: common.Address(w), Context: ctx}, nil
}
