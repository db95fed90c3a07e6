package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"zerosum_client/internal/domain"
	"zerosum_client/internal/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultConfirmTimeout bounds how long a submitted transaction may wait for
// its receipt.
const DefaultConfirmTimeout = 60 * time.Second

// Wallet signs transactions for one address.
type Wallet interface {
	Address() common.Address
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// KeyWallet is a Wallet backed by a raw secp256k1 private key.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
	address common.Address
}

// NewKeyWallet parses a hex private key (with or without 0x).
func NewKeyWallet(hexKey string, chainID *big.Int) (*KeyWallet, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("wallet: invalid chain id")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: parse key: %w", err)
	}
	return &KeyWallet{
		key:     key,
		chainID: new(big.Int).Set(chainID),
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (w *KeyWallet) Address() common.Address { return w.address }

func (w *KeyWallet) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// TxResult is the outcome of one mutator call. Err is nil iff Success.
type TxResult struct {
	Action  string         `json:"action"`
	GameID  uint64         `json:"game_id,omitempty"`
	Success bool           `json:"success"`
	TxHash  common.Hash    `json:"tx_hash"`
	Receipt *types.Receipt `json:"-"`
	Err     error          `json:"-"`
	Reason  string         `json:"reason,omitempty"`
}

// Error returns the failure message, "" on success.
func (r *TxResult) Error() string {
	if r == nil || r.Err == nil {
		return ""
	}
	if r.Reason != "" {
		return r.Reason
	}
	return r.Err.Error()
}

// Confirmation is sent to hooks after a transaction is mined successfully.
type Confirmation struct {
	Action string
	GameID uint64
	TxHash common.Hash
}

// Invalidator is the cache surface the writer clears after a confirmed tx.
type Invalidator interface {
	InvalidateGame(ctx context.Context, id uint64)
	InvalidateUserGames()
}

// WriterConfig tunes Writer.
type WriterConfig struct {
	ConfirmTimeout time.Duration
}

// Writer submits state-changing transactions and waits for their receipts.
type Writer struct {
	contract    TxContract
	invalidator Invalidator
	cfg         WriterConfig
	log         *slog.Logger

	mu     sync.RWMutex
	wallet Wallet
	hooks  []func(Confirmation)
}

// NewWriter builds a Writer. wallet may be nil; every mutator then fails
// with ErrNoWallet.
func NewWriter(contract TxContract, invalidator Invalidator, wallet Wallet, cfg WriterConfig) *Writer {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &Writer{
		contract:    contract,
		invalidator: invalidator,
		cfg:         cfg,
		wallet:      wallet,
		log:         logger.Component("chain.writer"),
	}
}

// SetWallet swaps the signer. nil disconnects.
func (w *Writer) SetWallet(wallet Wallet) {
	w.mu.Lock()
	w.wallet = wallet
	w.mu.Unlock()
}

// Address is the signer address, zero without a wallet.
func (w *Writer) Address() common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.wallet == nil {
		return common.Address{}
	}
	return w.wallet.Address()
}

// OnConfirmed registers fn to run after every successful transaction.
func (w *Writer) OnConfirmed(fn func(Confirmation)) {
	w.mu.Lock()
	w.hooks = append(w.hooks, fn)
	w.mu.Unlock()
}

func (w *Writer) currentWallet() Wallet {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.wallet
}

func (w *Writer) fail(res *TxResult, outcome string, err error) *TxResult {
	res.Success = false
	res.Err = err
	if res.Reason == "" {
		res.Reason = RevertReason(err)
	}
	txOutcomes.WithLabelValues(res.Action, outcome).Inc()
	w.log.Error("transaction failed",
		"action", res.Action,
		"game_id", res.GameID,
		"tx", res.TxHash.Hex(),
		"outcome", outcome,
		"reason", res.Reason,
		"error", err,
	)
	return res
}

// submit signs and sends method, then waits for the receipt under
// ConfirmTimeout.
func (w *Writer) submit(ctx context.Context, action string, gameID uint64, value *big.Int, args ...interface{}) *TxResult {
	res := &TxResult{Action: action, GameID: gameID}

	wallet := w.currentWallet()
	if wallet == nil {
		return w.fail(res, "no_wallet", ErrNoWallet)
	}

	opts, err := wallet.TransactOpts(ctx)
	if err != nil {
		return w.fail(res, "signer", fmt.Errorf("%s: signer: %w", action, err))
	}
	if value != nil && value.Sign() > 0 {
		opts.Value = new(big.Int).Set(value)
	}

	tx, err := w.contract.Transact(opts, action, args...)
	if err != nil {
		if reason := RevertReason(err); reason != "" {
			res.Reason = reason
			return w.fail(res, "rejected", fmt.Errorf("%w: %s", ErrTxReverted, reason))
		}
		return w.fail(res, "rejected", fmt.Errorf("%s: submit: %w", action, err))
	}
	res.TxHash = tx.Hash()
	w.log.Info("transaction submitted", "action", action, "game_id", gameID, "tx", res.TxHash.Hex())

	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.ConfirmTimeout)
	defer cancel()

	receipt, err := w.contract.WaitMined(waitCtx, tx)
	if err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return w.fail(res, "timeout", fmt.Errorf("%w after %s", ErrTxTimeout, w.cfg.ConfirmTimeout))
		}
		return w.fail(res, "error", fmt.Errorf("%s: wait: %w", action, err))
	}
	res.Receipt = receipt

	if receipt.Status != types.ReceiptStatusSuccessful {
		if gameID != 0 && w.invalidator != nil {
			w.invalidator.InvalidateGame(ctx, gameID)
		}
		// the receipt carries no reason; replaying the call recovers it
		if rp, ok := w.contract.(RevertReplayer); ok {
			res.Reason = rp.ReplayRevert(ctx, tx, opts.From, receipt.BlockNumber)
		}
		if res.Reason != "" {
			return w.fail(res, "reverted", fmt.Errorf("%w: %s", ErrTxReverted, res.Reason))
		}
		return w.fail(res, "reverted", ErrTxReverted)
	}

	if res.GameID == 0 {
		res.GameID = w.createdGameID(receipt)
	}

	res.Success = true
	txOutcomes.WithLabelValues(action, "success").Inc()
	w.log.Info("transaction confirmed",
		"action", action,
		"game_id", res.GameID,
		"tx", res.TxHash.Hex(),
		"block", receipt.BlockNumber,
	)

	w.afterConfirm(ctx, res)
	return res
}

func (w *Writer) createdGameID(receipt *types.Receipt) uint64 {
	for _, lg := range receipt.Logs {
		if lg == nil {
			continue
		}
		ev, err := w.contract.DecodeLog(*lg)
		if err != nil {
			continue
		}
		if ev.Kind == domain.EventGameCreated {
			return ev.GameID
		}
	}
	return 0
}

func (w *Writer) afterConfirm(ctx context.Context, res *TxResult) {
	if w.invalidator != nil {
		if res.GameID != 0 {
			w.invalidator.InvalidateGame(ctx, res.GameID)
		}
		switch res.Action {
		case MethodCreateQuickDraw, MethodCreateStrategic, MethodJoinGame,
			MethodCancelWaiting, MethodForceFinish:
			w.invalidator.InvalidateUserGames()
		}
	}

	w.mu.RLock()
	hooks := append([]func(Confirmation){}, w.hooks...)
	w.mu.RUnlock()

	c := Confirmation{Action: res.Action, GameID: res.GameID, TxHash: res.TxHash}
	for _, fn := range hooks {
		fn(c)
	}
}

func checkFee(fee *big.Int) error {
	if fee == nil || fee.Sign() < 0 {
		return fmt.Errorf("%w: entry fee", domain.ErrInvalidAmount)
	}
	return nil
}

// CreateQuickDraw opens a QuickDraw game staking fee wei.
func (w *Writer) CreateQuickDraw(ctx context.Context, fee *big.Int) *TxResult {
	if err := checkFee(fee); err != nil {
		return w.fail(&TxResult{Action: MethodCreateQuickDraw}, "invalid", err)
	}
	return w.submit(ctx, MethodCreateQuickDraw, 0, fee)
}

// CreateStrategic opens a Strategic game staking fee wei.
func (w *Writer) CreateStrategic(ctx context.Context, fee *big.Int) *TxResult {
	if err := checkFee(fee); err != nil {
		return w.fail(&TxResult{Action: MethodCreateStrategic}, "invalid", err)
	}
	return w.submit(ctx, MethodCreateStrategic, 0, fee)
}

// JoinGame takes the second seat of id, paying fee wei.
func (w *Writer) JoinGame(ctx context.Context, id uint64, fee *big.Int) *TxResult {
	if err := checkFee(fee); err != nil {
		return w.fail(&TxResult{Action: MethodJoinGame, GameID: id}, "invalid", err)
	}
	return w.submit(ctx, MethodJoinGame, id, fee, bigID(id))
}

// MakeMove validates sub against g locally, then submits it.
func (w *Writer) MakeMove(ctx context.Context, g domain.Game, sub uint64) *TxResult {
	res := &TxResult{Action: MethodMakeMove, GameID: g.ID}
	if err := domain.ValidateMove(g, sub); err != nil {
		return w.fail(res, "invalid", err)
	}
	if addr := w.Address(); addr != (common.Address{}) && g.CurrentPlayer != addr {
		return w.fail(res, "invalid", ErrNotYourTurn)
	}
	return w.submit(ctx, MethodMakeMove, g.ID, nil, bigID(g.ID), new(big.Int).SetUint64(sub))
}

// HandleTimeout claims a timeout against the player to move in id.
func (w *Writer) HandleTimeout(ctx context.Context, id uint64) *TxResult {
	return w.submit(ctx, MethodHandleTimeout, id, nil, bigID(id))
}

// CancelWaitingGame cancels id while it still waits for an opponent.
func (w *Writer) CancelWaitingGame(ctx context.Context, id uint64) *TxResult {
	return w.submit(ctx, MethodCancelWaiting, id, nil, bigID(id))
}

// ForceFinishInactiveGame resolves an Active game idle past the inactivity limit.
func (w *Writer) ForceFinishInactiveGame(ctx context.Context, id uint64) *TxResult {
	return w.submit(ctx, MethodForceFinish, id, nil, bigID(id))
}

// Withdraw pulls the viewer's pending balance.
func (w *Writer) Withdraw(ctx context.Context) *TxResult {
	return w.submit(ctx, MethodWithdraw, 0, nil)
}
