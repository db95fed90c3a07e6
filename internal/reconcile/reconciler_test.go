package reconcile

import (
	"context"
	"testing"
	"time"

	"zerosum_client/internal/cache"
	"zerosum_client/internal/chain"
	"zerosum_client/internal/chain/chaintest"
	"zerosum_client/internal/clock"
	"zerosum_client/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenIsReferenceCounted(t *testing.T) {
	h := newHarness(alice)
	h.reader.put(quickDraw(3, 42, alice))
	ctx := context.Background()

	s1, rel1, err := h.rec.Open(ctx, 3)
	require.NoError(t, err)
	s2, rel2, err := h.rec.Open(ctx, 3)
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, h.bus.count(3), "one bridge subscription per game")
	assert.Equal(t, 1, h.reader.getCount(), "second open reuses the loaded session")

	rel1()
	rel1()
	_, ok := h.rec.Session(3)
	assert.True(t, ok)

	rel2()
	_, ok = h.rec.Session(3)
	assert.False(t, ok)
	assert.Equal(t, 0, h.bus.count(3))
}

func TestSetViewerDisposesSessions(t *testing.T) {
	h := newHarness(alice)
	h.reader.put(quickDraw(3, 42, alice))
	s := openSession(t, h, 3)

	h.rec.SetViewer(bob)

	select {
	case <-s.Done():
	default:
		t.Fatalf("session must be closed on viewer change")
	}
	assert.Equal(t, bob, h.reader.Viewer())
	assert.Equal(t, 0, h.rec.Sessions())

	s2 := openSession(t, h, 3)
	assert.NotSame(t, s, s2)
	assert.Equal(t, bob, s2.Viewer())
	assert.False(t, s2.View().IsMyTurn)
}

func TestDisposeRefusesNewSessions(t *testing.T) {
	h := newHarness(alice)
	h.reader.put(quickDraw(3, 42, alice))
	s := openSession(t, h, 3)

	h.rec.Dispose()
	h.rec.Dispose()

	<-s.Done()
	_, _, err := h.rec.Open(context.Background(), 3)
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestConfirmationTriggersRefresh(t *testing.T) {
	h := newHarness(alice)
	g := quickDraw(5, 0, common.Address{})
	g.Status = domain.StatusWaiting
	g.Players = []common.Address{bob}
	g.NumberGenerated = false
	h.reader.put(g)
	s := openSession(t, h, 5)
	gets := h.reader.getCount()

	joined := quickDraw(5, 77, bob)
	h.reader.put(joined)
	h.writer.confirm(chain.Confirmation{Action: chain.MethodJoinGame, GameID: 5})
	h.clk.Advance(2 * time.Second)

	assert.Equal(t, gets+1, h.reader.getCount())
	assert.Equal(t, domain.StatusActive, s.View().Game.Status)
}

func TestSnapshot(t *testing.T) {
	h := newHarness(alice)
	h.reader.put(quickDraw(3, 42, alice))

	v, err := h.rec.Snapshot(context.Background(), 3, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v.Game.CurrentNumber)
	assert.Equal(t, 0, h.rec.Sessions(), "snapshot does not keep the session alive")

	_, err = h.rec.Snapshot(context.Background(), 8, true)
	assert.ErrorIs(t, err, chain.ErrGameNotFound)
}

func TestSubmitMoveKeepsSessionUntilRefreshed(t *testing.T) {
	h := newHarness(alice)
	h.reader.put(quickDraw(3, 42, alice))
	h.writer.onMove = func(g domain.Game, sub uint64) {
		g.CurrentNumber -= sub
		g.CurrentPlayer = bob
		h.reader.put(g)
	}

	res := h.rec.SubmitMove(context.Background(), 3, 1)
	require.True(t, res.Success)

	s, ok := h.rec.Session(3)
	require.True(t, ok, "session outlives the call until its delayed refresh")
	assert.True(t, s.View().Optimistic)
	assert.True(t, s.RefreshScheduled())

	gets := h.reader.getCount()
	h.clk.Advance(2500 * time.Millisecond)
	assert.Equal(t, gets+1, h.reader.getCount())
	assert.Equal(t, 0, h.rec.Sessions())
	<-s.Done()
}

func TestFailedSubmitMoveReleasesAtOnce(t *testing.T) {
	h := newHarness(alice)
	h.reader.put(quickDraw(3, 42, bob))

	res := h.rec.SubmitMove(context.Background(), 3, 1)
	assert.ErrorIs(t, res.Err, chain.ErrNotYourTurn)
	assert.Equal(t, 0, h.rec.Sessions())
}

func TestSnapshotServesFromCache(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	sim := chaintest.NewSim()
	sim.SetNow(clk.Now)
	sim.Put(quickDraw(1, 42, alice), alice, bob)
	reader := chain.NewReader(sim, cache.New(cache.DefaultCapacity, clk), nil, chain.ReaderConfig{RetryBackoff: time.Millisecond})
	reader.SetViewer(alice)
	rec := New(reader, nil, nil, clk, testConfig())
	defer rec.Dispose()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := rec.Snapshot(ctx, 1, false)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), v.Game.CurrentNumber)
	}
	assert.Equal(t, 1, sim.Calls(chain.MethodGetGame))
	assert.Equal(t, 1, sim.Calls(chain.MethodGetPlayers))

	_, err := rec.Snapshot(ctx, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 2, sim.Calls(chain.MethodGetGame), "an explicit refresh goes to the chain")
}
