package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SyncStats reports the state of the sync layer for health output.
type SyncStats struct {
	Sessions     func() int
	Watchers     func() int
	BridgeCursor func() uint64
	RedisEnabled bool
}

type HealthHandler struct {
	head      Head
	db        *pgxpool.Pool // nil when the journal is disabled
	stats     SyncStats
	startTime time.Time
	version   string
}

func NewHealthHandler(head Head, db *pgxpool.Pool, version string) *HealthHandler {
	return &HealthHandler{
		head:      head,
		db:        db,
		startTime: time.Now(),
		version:   version,
	}
}

// WithStats adds sync-layer counters to the readiness output.
func (h *HealthHandler) WithStats(s SyncStats) *HealthHandler {
	h.stats = s
	return h
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Liveness returns simple alive status (for k8s liveness probe)
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness checks the RPC node and, when configured, the journal database.
// Sync counters are informational and never fail the probe.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	head, err := h.head.LatestBlock(ctx)
	if err != nil {
		checks["rpc"] = "unhealthy: " + err.Error()
		ready = false
	} else {
		checks["rpc"] = "healthy"
		checks["head_block"] = strconv.FormatUint(head, 10)
	}

	switch {
	case h.db == nil:
		checks["database"] = "disabled"
	case h.db.Ping(ctx) != nil:
		checks["database"] = "unhealthy"
		ready = false
	default:
		checks["database"] = "healthy"
	}

	h.addStats(checks, head)

	status, code := "healthy", http.StatusOK
	if !ready {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:    status,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

func (h *HealthHandler) addStats(checks map[string]string, head uint64) {
	if h.stats.Sessions != nil {
		checks["sessions"] = strconv.Itoa(h.stats.Sessions())
	}
	if h.stats.Watchers != nil {
		checks["ws_clients"] = strconv.Itoa(h.stats.Watchers())
	}
	if h.stats.BridgeCursor != nil {
		cursor := h.stats.BridgeCursor()
		checks["bridge_cursor"] = strconv.FormatUint(cursor, 10)
		// cursor is the next block to fetch
		if head > 0 && cursor > 0 && cursor <= head {
			checks["bridge_lag_blocks"] = strconv.FormatUint(head-cursor+1, 10)
		}
	}
	if h.stats.RedisEnabled {
		checks["redis"] = "enabled"
	} else {
		checks["redis"] = "disabled"
	}
}

// Health is a quick check of the RPC node.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.head.LatestBlock(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "rpc unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
	})
}
