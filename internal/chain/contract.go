package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"zerosum_client/internal/domain"
	"zerosum_client/internal/logger"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is what the binding needs from a node connection. *ethclient.Client
// satisfies it; simulated backends do too.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// GameContract is the read surface of the contract used by Reader.
type GameContract interface {
	GameCounter(ctx context.Context) (uint64, error)
	GetGame(ctx context.Context, id uint64) (domain.Game, error)
	GetPlayers(ctx context.Context, id uint64) ([]common.Address, error)
	GetPlayerView(ctx context.Context, id uint64, viewer common.Address) (domain.PlayerView, error)
	GetUserGames(ctx context.Context, user common.Address, offset, limit uint64) (domain.UserGames, error)
	GetGamesBatch(ctx context.Context, ids []uint64) ([]domain.Game, error)
	IsGameBettable(ctx context.Context, id uint64) (bool, error)
}

// TxContract is the write surface used by Writer.
type TxContract interface {
	Transact(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	DecodeLog(lg types.Log) (domain.Event, error)
}

// RevertReplayer recovers the reason of a mined transaction that reverted.
// TxContract implementations may provide it.
type RevertReplayer interface {
	ReplayRevert(ctx context.Context, tx *types.Transaction, from common.Address, block *big.Int) string
}

// Contract binds the ZeroSum ABI to a deployed address.
type Contract struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	backend Backend
	topics  []common.Hash
}

// NewContract binds address on backend.
func NewContract(address common.Address, backend Backend) (*Contract, error) {
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	topics := make([]common.Hash, 0, len(domain.AllEventKinds))
	for _, kind := range domain.AllEventKinds {
		ev, ok := parsed.Events[string(kind)]
		if !ok {
			return nil, fmt.Errorf("abi missing event %s", kind)
		}
		topics = append(topics, ev.ID)
	}

	return &Contract{
		address: address,
		abi:     parsed,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend: backend,
		topics:  topics,
	}, nil
}

// Dial connects to rpcURL and binds the contract at address.
func Dial(ctx context.Context, rpcURL string, address common.Address) (*Contract, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	c, err := NewContract(address, client)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return c, client, nil
}

func (c *Contract) Address() common.Address { return c.address }

func (c *Contract) ABI() abi.ABI { return c.abi }

func (c *Contract) Backend() Backend { return c.backend }

func (c *Contract) call(ctx context.Context, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: from}
	if err := c.bound.Call(opts, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func bigID(id uint64) *big.Int {
	return new(big.Int).SetUint64(id)
}

func (c *Contract) GameCounter(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, common.Address{}, MethodGameCounter)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("decode gameCounter: want 1 output, got %d", len(out))
	}
	return asUint64(out[0])
}

// GetGame returns the contract's view of id without players. A zero
// CreatedAt means the id was never created.
func (c *Contract) GetGame(ctx context.Context, id uint64) (domain.Game, error) {
	out, err := c.call(ctx, common.Address{}, MethodGetGame, bigID(id))
	if err != nil {
		return domain.Game{}, err
	}
	g, err := gameFromOutputs(out)
	if err != nil {
		return domain.Game{}, err
	}
	if g.CreatedAt.IsZero() && g.ID == 0 {
		return domain.Game{}, fmt.Errorf("%s(%d): %w", MethodGetGame, id, ErrGameNotFound)
	}
	return g, nil
}

func (c *Contract) GetPlayers(ctx context.Context, id uint64) ([]common.Address, error) {
	out, err := c.call(ctx, common.Address{}, MethodGetPlayers, bigID(id))
	if err != nil {
		return nil, err
	}
	return playersFromOutputs(out)
}

// GetPlayerView calls getPlayerView with msg.sender set to viewer.
func (c *Contract) GetPlayerView(ctx context.Context, id uint64, viewer common.Address) (domain.PlayerView, error) {
	out, err := c.call(ctx, viewer, MethodGetPlayerView, bigID(id))
	if err != nil {
		return domain.PlayerView{}, err
	}
	return playerViewFromOutputs(out)
}

func (c *Contract) GetUserGames(ctx context.Context, user common.Address, offset, limit uint64) (domain.UserGames, error) {
	out, err := c.call(ctx, user, MethodGetUserGames, user, bigID(offset), bigID(limit))
	if err != nil {
		return domain.UserGames{}, err
	}
	return userGamesFromOutputs(out)
}

func (c *Contract) GetGamesBatch(ctx context.Context, ids []uint64) ([]domain.Game, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]*big.Int, len(ids))
	for i, id := range ids {
		args[i] = bigID(id)
	}
	out, err := c.call(ctx, common.Address{}, MethodGetGamesBatch, args)
	if err != nil {
		return nil, err
	}
	return gamesFromBatch(ids, out)
}

func (c *Contract) IsGameBettable(ctx context.Context, id uint64) (bool, error) {
	out, err := c.call(ctx, common.Address{}, MethodIsGameBettable, bigID(id))
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, fmt.Errorf("decode isGameBettable: want 1 output, got %d", len(out))
	}
	return asBool(out[0])
}

// Transact packs and sends method with opts.
func (c *Contract) Transact(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	return c.bound.Transact(opts, method, args...)
}

// WaitMined blocks until tx has a receipt or ctx is done.
func (c *Contract) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, c.backend, tx)
}

// ReplayRevert re-executes tx as a call against the state at block and
// returns the revert reason, empty when none can be recovered.
func (c *Contract) ReplayRevert(ctx context.Context, tx *types.Transaction, from common.Address, block *big.Int) string {
	msg := ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	_, err := c.backend.CallContract(ctx, msg, block)
	return RevertReason(err)
}

func (c *Contract) DecodeLog(lg types.Log) (domain.Event, error) {
	return DecodeLog(c.abi, lg)
}

func (c *Contract) LatestBlock(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}

// FetchEvents returns the contract's game events in [from, to], ordered by
// block and log index. Removed (reorged) logs and undecodable logs are skipped.
func (c *Contract) FetchEvents(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{c.topics},
	}
	logs, err := c.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	events := make([]domain.Event, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := DecodeLog(c.abi, lg)
		if err != nil {
			logger.Warn("skipping undecodable log", "tx", lg.TxHash.Hex(), "index", lg.Index, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
