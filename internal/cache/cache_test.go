package cache

import (
	"fmt"
	"testing"
	"time"

	"zerosum_client/internal/clock"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var viewer = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func TestGetRespectsTTL(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_000, 0))
	c := New(10, clk)

	c.Set("game/1/x", "v1", 30*time.Second)

	clk.Advance(30 * time.Second)
	v, ok := c.Get("game/1/x")
	require.True(t, ok, "entry must be served up to and including its TTL")
	assert.Equal(t, "v1", v)

	clk.Advance(time.Millisecond)
	_, ok = c.Get("game/1/x")
	assert.False(t, ok, "entry must not be served past its TTL")
	assert.Equal(t, 0, c.Len(), "expired entry is evicted on access")

	_, ok = c.Get("game/1/x")
	assert.False(t, ok)
}

func TestTypedGet(t *testing.T) {
	c := New(10, clock.NewFake(time.Unix(0, 0)))
	c.Set("counter", uint64(7), time.Minute)

	n, ok := Get[uint64](c, "counter")
	require.True(t, ok)
	assert.Equal(t, uint64(7), n)

	_, ok = Get[string](c, "counter")
	assert.False(t, ok, "wrong type is a miss")
}

func TestSetOverwritesAndRefreshesTimestamp(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	c := New(10, clk)

	c.Set("k", 1, 10*time.Second)
	clk.Advance(8 * time.Second)
	c.Set("k", 2, 10*time.Second)
	clk.Advance(8 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestNonPositiveTTLIsNotStored(t *testing.T) {
	c := New(10, clock.NewFake(time.Unix(0, 0)))
	c.Set("k", 1, 0)
	assert.Equal(t, 0, c.Len())
}

func TestCapacityEvictsExpiredFirst(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	c := New(4, clk)

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Second)
	c.Set("c", 3, time.Hour)
	c.Set("d", 4, time.Hour)
	clk.Advance(2 * time.Second)

	c.Set("e", 5, time.Hour)

	assert.Equal(t, 3, c.Len(), "only the two expired entries go")
	for _, k := range []string{"c", "d", "e"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
}

func TestCapacityEvictsOldestToHalf(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	c := New(4, clk)

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, time.Hour)
		clk.Advance(time.Second)
	}

	assert.Equal(t, 2, c.Len())
	for _, k := range []string{"k3", "k4"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "newest entries survive: %s", k)
	}
	_, ok := c.Get("k0")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New(20, clock.NewFake(time.Unix(0, 0)))
	other := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	c.Set(GameKey(3, viewer), 1, time.Minute)
	c.Set(PlayersKey(3, viewer), 1, time.Minute)
	c.Set(PlayerViewKey(3, viewer), 1, time.Minute)
	c.Set(GameKey(13, viewer), 1, time.Minute)
	c.Set(GameKey(31, viewer), 1, time.Minute)
	c.Set(UserGamesKey(viewer, 0, 50), 1, time.Minute)
	c.Set(GameKey(3, other), 1, time.Minute)

	assert.Equal(t, 4, c.Invalidate(GameScope(3)))
	_, ok := c.Get(GameKey(13, viewer))
	assert.True(t, ok, "game 13 must not match the scope of game 3")
	_, ok = c.Get(UserGamesKey(viewer, 0, 50))
	assert.True(t, ok)

	assert.Equal(t, 3, c.Invalidate(""))
	assert.Equal(t, 0, c.Len())
}

func TestViewerScope(t *testing.T) {
	c := New(20, clock.NewFake(time.Unix(0, 0)))
	other := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	c.Set(GameKey(1, viewer), 1, time.Minute)
	c.Set(UserGamesKey(viewer, 0, 50), 1, time.Minute)
	c.Set(GameKey(1, other), 1, time.Minute)

	assert.Equal(t, 2, c.Invalidate(ViewerScope(viewer)))
	assert.Equal(t, 1, c.Len())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindGame, kindOf(GameKey(1, viewer)))
	assert.Equal(t, KindUserGames, kindOf(UserGamesKey(viewer, 0, 10)))
	assert.Equal(t, KindCounter, kindOf(CounterKey()))
}
