package cache

import (
	"context"
	"math/big"
	"os"
	"strconv"
	"testing"
	"time"

	"zerosum_client/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

func TestDisabledSnapshotsAreNoops(t *testing.T) {
	s := NewRedisSnapshots("", "", 0)
	if s.Enabled() {
		t.Fatalf("expected disabled store without addr")
	}
	s.Save(context.Background(), domain.Game{ID: 1}, time.Minute)
	if _, ok := s.Load(context.Background(), 1); ok {
		t.Fatalf("disabled store must always miss")
	}
	s.Drop(context.Background(), 1)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

// Integration-style test: runs only if REDIS_ADDR env is set.
func TestRedisSnapshotsIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}

	s := NewRedisSnapshots(addr, os.Getenv("REDIS_PASSWORD"), db)
	if !s.Enabled() {
		t.Fatalf("expected redis to be reachable at %s", addr)
	}
	defer s.Close()

	ctx := context.Background()
	g := domain.Game{
		ID:            987654,
		Mode:          domain.ModeStrategic,
		Status:        domain.StatusActive,
		CurrentNumber: 42,
		CurrentPlayer: viewer,
		Players:       []common.Address{viewer},
		EntryFee:      big.NewInt(1_000),
		PrizePool:     big.NewInt(2_000),
	}

	s.Save(ctx, g, 2*time.Second)
	got, ok := s.Load(ctx, g.ID)
	if !ok {
		t.Fatalf("expected snapshot to load")
	}
	if got.CurrentNumber != 42 || got.Mode != domain.ModeStrategic || got.PrizePool.Int64() != 2_000 {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	s.Drop(ctx, g.ID)
	if _, ok := s.Load(ctx, g.ID); ok {
		t.Fatalf("expected snapshot to be dropped")
	}
}
