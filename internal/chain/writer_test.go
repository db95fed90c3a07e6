package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"zerosum_client/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentTx struct {
	method string
	value  *big.Int
	args   []interface{}
}

type fakeTxContract struct {
	mu        sync.Mutex
	sent      []sentTx
	submitErr error
	status    uint64
	block     bool
	logs      []*types.Log
	nonce     uint64
}

func (f *fakeTxContract) Transact(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.sent = append(f.sent, sentTx{method: method, value: opts.Value, args: args})
	f.nonce++
	return types.NewTx(&types.LegacyTx{Nonce: f.nonce, Value: opts.Value}), nil
}

func (f *fakeTxContract) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	f.mu.Lock()
	block := f.block
	status := f.status
	logs := f.logs
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &types.Receipt{Status: status, TxHash: tx.Hash(), Logs: logs, BlockNumber: big.NewInt(10)}, nil
}

func (f *fakeTxContract) DecodeLog(lg types.Log) (domain.Event, error) {
	parsed, err := ParseABI()
	if err != nil {
		return domain.Event{}, err
	}
	return DecodeLog(parsed, lg)
}

type fakeWallet struct {
	addr common.Address
}

func (w fakeWallet) Address() common.Address { return w.addr }

func (w fakeWallet) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: w.addr, Context: ctx}, nil
}

type recordingInvalidator struct {
	mu        sync.Mutex
	games     []uint64
	userGames int
}

func (r *recordingInvalidator) InvalidateGame(ctx context.Context, id uint64) {
	r.mu.Lock()
	r.games = append(r.games, id)
	r.mu.Unlock()
}

func (r *recordingInvalidator) InvalidateUserGames() {
	r.mu.Lock()
	r.userGames++
	r.mu.Unlock()
}

func newTestWriter(f *fakeTxContract, inv *recordingInvalidator, wallet Wallet) *Writer {
	return NewWriter(f, inv, wallet, WriterConfig{ConfirmTimeout: 50 * time.Millisecond})
}

func TestMutatorsRequireWallet(t *testing.T) {
	f := &fakeTxContract{status: types.ReceiptStatusSuccessful}
	w := newTestWriter(f, &recordingInvalidator{}, nil)

	res := w.HandleTimeout(context.Background(), 3)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNoWallet)
	assert.Empty(t, f.sent)
}

func TestMakeMoveValidatesLocally(t *testing.T) {
	f := &fakeTxContract{status: types.ReceiptStatusSuccessful}
	w := newTestWriter(f, &recordingInvalidator{}, fakeWallet{addr: alice})

	g := activeGame(3, alice, bob)
	res := w.MakeMove(context.Background(), g, 2)
	assert.ErrorIs(t, res.Err, ErrInvalidMove, "quick draw only allows 1")
	assert.Empty(t, f.sent)

	g.CurrentPlayer = bob
	res = w.MakeMove(context.Background(), g, 1)
	assert.ErrorIs(t, res.Err, ErrNotYourTurn)
	assert.Empty(t, f.sent)
}

func TestMakeMoveSuccessInvalidatesAndNotifies(t *testing.T) {
	f := &fakeTxContract{status: types.ReceiptStatusSuccessful}
	inv := &recordingInvalidator{}
	w := newTestWriter(f, inv, fakeWallet{addr: alice})

	var got []Confirmation
	w.OnConfirmed(func(c Confirmation) { got = append(got, c) })

	res := w.MakeMove(context.Background(), activeGame(3, alice, bob), 1)
	require.True(t, res.Success, "err: %v", res.Err)
	assert.NoError(t, res.Err)
	assert.NotEqual(t, common.Hash{}, res.TxHash)

	require.Len(t, f.sent, 1)
	assert.Equal(t, MethodMakeMove, f.sent[0].method)
	assert.Equal(t, big.NewInt(3), f.sent[0].args[0])
	assert.Equal(t, big.NewInt(1), f.sent[0].args[1])

	assert.Equal(t, []uint64{3}, inv.games)
	require.Len(t, got, 1)
	assert.Equal(t, Confirmation{Action: MethodMakeMove, GameID: 3, TxHash: res.TxHash}, got[0])
}

func TestRevertedReceipt(t *testing.T) {
	f := &fakeTxContract{status: types.ReceiptStatusFailed}
	w := newTestWriter(f, &recordingInvalidator{}, fakeWallet{addr: alice})

	notified := false
	w.OnConfirmed(func(Confirmation) { notified = true })

	res := w.HandleTimeout(context.Background(), 3)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrTxReverted)
	assert.False(t, notified)
}

func TestSubmitRevertSurfacesReason(t *testing.T) {
	f := &fakeTxContract{submitErr: errors.New("execution reverted: Game is full")}
	w := newTestWriter(f, &recordingInvalidator{}, fakeWallet{addr: alice})

	res := w.JoinGame(context.Background(), 3, big.NewInt(1000))
	assert.ErrorIs(t, res.Err, ErrTxReverted)
	assert.Equal(t, "Game is full", res.Reason)
	assert.Equal(t, "Game is full", res.Error())
}

func TestConfirmTimeout(t *testing.T) {
	f := &fakeTxContract{block: true}
	w := newTestWriter(f, &recordingInvalidator{}, fakeWallet{addr: alice})

	res := w.CancelWaitingGame(context.Background(), 3)
	assert.ErrorIs(t, res.Err, ErrTxTimeout)
	assert.NotEqual(t, common.Hash{}, res.TxHash, "hash is known even when the receipt is not")
}

func TestCreateParsesGameID(t *testing.T) {
	parsed := mustABI(t)
	lg := eventLog(t, parsed, "GameCreated", 6, &alice, uint8(0), big.NewInt(1000))
	f := &fakeTxContract{status: types.ReceiptStatusSuccessful, logs: []*types.Log{&lg}}
	inv := &recordingInvalidator{}
	w := newTestWriter(f, inv, fakeWallet{addr: alice})

	res := w.CreateQuickDraw(context.Background(), big.NewInt(1000))
	require.True(t, res.Success)
	assert.Equal(t, uint64(6), res.GameID)
	assert.Equal(t, big.NewInt(1000), f.sent[0].value)
	assert.Equal(t, 1, inv.userGames)
}

func TestCreateRejectsNegativeFee(t *testing.T) {
	f := &fakeTxContract{status: types.ReceiptStatusSuccessful}
	w := newTestWriter(f, &recordingInvalidator{}, fakeWallet{addr: alice})

	res := w.CreateStrategic(context.Background(), big.NewInt(-1))
	assert.ErrorIs(t, res.Err, domain.ErrInvalidAmount)
	assert.Empty(t, f.sent)
}

func TestKeyWallet(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	w, err := NewKeyWallet(hexKey, big.NewInt(31337))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), w.Address())

	opts, err := w.TransactOpts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, w.Address(), opts.From)

	_, err = NewKeyWallet("not-a-key", big.NewInt(1))
	assert.Error(t, err)
	_, err = NewKeyWallet(hexKey, nil)
	assert.Error(t, err)
}

type replayingTxContract struct {
	*fakeTxContract
	reason string
	block  *big.Int
}

func (r *replayingTxContract) ReplayRevert(ctx context.Context, tx *types.Transaction, from common.Address, block *big.Int) string {
	r.block = block
	return r.reason
}

func TestRevertedReceiptRecoversReason(t *testing.T) {
	f := &replayingTxContract{
		fakeTxContract: &fakeTxContract{status: types.ReceiptStatusFailed},
		reason:         "Not your turn",
	}
	inv := &recordingInvalidator{}
	w := NewWriter(f, inv, fakeWallet{addr: alice}, WriterConfig{ConfirmTimeout: 50 * time.Millisecond})

	res := w.MakeMove(context.Background(), activeGame(3, alice, bob), 1)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrTxReverted)
	assert.Equal(t, "Not your turn", res.Reason)
	assert.Equal(t, big.NewInt(10), f.block, "replayed at the receipt's block")
	assert.Equal(t, []uint64{3}, inv.games)
}
