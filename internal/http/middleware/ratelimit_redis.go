package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"zerosum_client/internal/logger"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// InitRedisRateLimiter initializes a shared Redis client used by the middleware.
// Provide addr (host:port), password and db index. If connection fails, redisClient remains nil
// and the middleware falls back to the in-process limiter.
func InitRedisRateLimiter(addr, password string, db int) {
	if addr == "" {
		return
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis rate limiter disabled", "addr", addr, "error", err)
		_ = client.Close()
		return
	}
	redisClient = client
}

// UseRedisClient shares an already connected client with the limiter.
func UseRedisClient(client *redis.Client) {
	redisClient = client
}

// RedisRateLimit implements a fixed-window rate limiter using Redis INCR/EXPIRE,
// keyed by client IP. key format: rl:<window_seconds>:<ip>
func RedisRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	fallback := SimpleRateLimit(maxRequests, window)
	return func(c *gin.Context) {
		if redisClient == nil {
			fallback(c)
			return
		}
		key := "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()
		limitByKey(c, key, maxRequests, window, c.FullPath(), "X-RateLimit")
	}
}

// TxRateLimit limits write requests per token subject, in Redis when
// configured and in process otherwise. Requires JWT to run before it.
func TxRateLimit(maxTx int, window time.Duration) gin.HandlerFunc {
	fallback := newWindowTable(window)
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		endpoint := "tx:" + c.FullPath()
		if redisClient == nil {
			fallback.limit(c, claims.Subject, maxTx, endpoint)
			return
		}
		key := "tx_rl:" + claims.Subject + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
		limitByKey(c, key, maxTx, window, endpoint, "X-TxRateLimit")
	}
}

func limitByKey(c *gin.Context, key string, limit int, window time.Duration, endpoint, header string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()

	val, err := redisClient.Incr(ctx, key).Result()
	if err != nil {
		// fail-open
		c.Header(header+"-Error", "redis-error")
		c.Next()
		return
	}
	if val == 1 {
		redisClient.Expire(ctx, key, window)
	}

	c.Header(header+"-Limit", strconv.Itoa(limit))
	c.Header(header+"-Remaining", strconv.FormatInt(max(0, int64(limit)-val), 10))

	if val > int64(limit) {
		RLBlocked.WithLabelValues(endpoint).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"retry_after": int(window.Seconds()),
		})
		return
	}

	RLRequests.WithLabelValues(endpoint).Inc()
	c.Next()
}
