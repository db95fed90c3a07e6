package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type clientInfo struct {
	start time.Time
	count int
}

// windowTable counts hits per key in fixed windows. It backs the limiters
// when Redis is not configured.
type windowTable struct {
	window time.Duration

	mu        sync.Mutex
	clients   map[string]*clientInfo
	lastSweep time.Time
}

func newWindowTable(window time.Duration) *windowTable {
	return &windowTable{
		window:    window,
		clients:   make(map[string]*clientInfo),
		lastSweep: time.Now(),
	}
}

// hit records one request for key and returns the count in its window.
func (t *windowTable) hit(key string) int {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastSweep) > t.window {
		for k, ci := range t.clients {
			if now.Sub(ci.start) > t.window {
				delete(t.clients, k)
			}
		}
		t.lastSweep = now
	}
	ci, ok := t.clients[key]
	if !ok || now.Sub(ci.start) > t.window {
		ci = &clientInfo{start: now}
		t.clients[key] = ci
	}
	ci.count++
	return ci.count
}

func (t *windowTable) limit(c *gin.Context, key string, maxRequests int, endpoint string) {
	if t.hit(key) > maxRequests {
		RLBlocked.WithLabelValues(endpoint).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"retry_after": int(t.window.Seconds()),
		})
		return
	}

	RLRequests.WithLabelValues(endpoint).Inc()
	c.Next()
}

// SimpleRateLimit is the in-process fixed-window limiter keyed by client IP.
// Each returned handler keeps its own table.
func SimpleRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	table := newWindowTable(window)
	return func(c *gin.Context) {
		table.limit(c, c.ClientIP(), maxRequests, c.FullPath())
	}
}
