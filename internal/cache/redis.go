package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"zerosum_client/internal/domain"
	"zerosum_client/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

// RedisSnapshots is an optional shared tier for viewer-independent game
// snapshots, so several processes watching the same contract share reads.
// A nil client makes every call a no-op (fail-open).
type RedisSnapshots struct {
	client *redis.Client
	prefix string
}

// NewRedisSnapshots connects to addr. An empty addr or a failed ping returns
// a disabled store rather than an error.
func NewRedisSnapshots(addr, password string, db int) *RedisSnapshots {
	s := &RedisSnapshots{prefix: "zerosum:game:"}
	if addr == "" {
		return s
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis snapshot tier disabled", "addr", addr, "error", err)
		_ = client.Close()
		return s
	}

	s.client = client
	return s
}

// NewRedisSnapshotsWithClient wraps an existing client.
func NewRedisSnapshotsWithClient(client *redis.Client) *RedisSnapshots {
	return &RedisSnapshots{client: client, prefix: "zerosum:game:"}
}

// Enabled reports whether a Redis client is configured.
func (s *RedisSnapshots) Enabled() bool {
	return s != nil && s.client != nil
}

// Client exposes the underlying client so the API rate limiter can share it.
func (s *RedisSnapshots) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

func (s *RedisSnapshots) key(id uint64) string {
	return s.prefix + strconv.FormatUint(id, 10)
}

// Load returns a stored snapshot. Redis enforces the TTL via EX.
func (s *RedisSnapshots) Load(ctx context.Context, id uint64) (domain.Game, bool) {
	if !s.Enabled() {
		return domain.Game{}, false
	}

	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			snapshotErrors.WithLabelValues("load").Inc()
		}
		return domain.Game{}, false
	}

	var g domain.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		snapshotErrors.WithLabelValues("decode").Inc()
		return domain.Game{}, false
	}
	return g, true
}

// Save stores g for ttl.
func (s *RedisSnapshots) Save(ctx context.Context, g domain.Game, ttl time.Duration) {
	if !s.Enabled() || ttl <= 0 {
		return
	}

	raw, err := json.Marshal(g)
	if err != nil {
		snapshotErrors.WithLabelValues("encode").Inc()
		return
	}
	if err := s.client.Set(ctx, s.key(g.ID), raw, ttl).Err(); err != nil {
		snapshotErrors.WithLabelValues("save").Inc()
	}
}

// Drop removes the snapshot for id.
func (s *RedisSnapshots) Drop(ctx context.Context, id uint64) {
	if !s.Enabled() {
		return
	}
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		snapshotErrors.WithLabelValues("drop").Inc()
	}
}

// Close releases the client.
func (s *RedisSnapshots) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Close()
}
