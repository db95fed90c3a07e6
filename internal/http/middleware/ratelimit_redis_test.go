package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"zerosum_client/internal/service"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

func newTxRouter(limit int, window time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/games/:id/move", JWT(), TxRateLimit(limit, window), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func postMove(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/games/3/move", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func operatorToken(t *testing.T, sub string) string {
	t.Helper()
	tok, err := service.GenerateJWT(sub, service.RoleOperator, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func retryAfter(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var body struct {
		RetryAfter int `json:"retry_after"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode 429 body: %v", err)
	}
	return body.RetryAfter
}

func TestTxRateLimitInProcessPerSubject(t *testing.T) {
	UseRedisClient(nil)
	service.InitJWT("test-secret")
	r := newTxRouter(2, 30*time.Second)
	desk, bot := operatorToken(t, "desk"), operatorToken(t, "bot")

	for i := 0; i < 2; i++ {
		if w := postMove(r, desk); w.Code != http.StatusOK {
			t.Fatalf("tx %d = %d, want 200", i, w.Code)
		}
	}
	w := postMove(r, desk)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third tx = %d, want 429", w.Code)
	}
	if got := retryAfter(t, w); got != 30 {
		t.Fatalf("retry_after = %d, want 30", got)
	}

	// budgets are per subject, not per IP
	if w := postMove(r, bot); w.Code != http.StatusOK {
		t.Fatalf("other subject = %d, want 200", w.Code)
	}
}

func TestTxRateLimitNeedsClaims(t *testing.T) {
	UseRedisClient(nil)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/withdraw", TxRateLimit(5, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/withdraw", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func redisFromEnv(t *testing.T) *redis.Client {
	t.Helper()
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
	InitRedisRateLimiter(addr, os.Getenv("REDIS_PASSWORD"), db)
	if redisClient == nil {
		t.Fatalf("expected redis to be reachable at %s", addr)
	}
	client := redisClient
	t.Cleanup(func() {
		UseRedisClient(nil)
		_ = client.Close()
	})
	return client
}

// Integration-style test: runs only if REDIS_ADDR env is set.
func TestRedisTxRateLimitHeaders(t *testing.T) {
	redisFromEnv(t)
	service.InitJWT("test-secret")
	r := newTxRouter(2, 5*time.Second)
	// fresh subject per run so leftover keys never count
	tok := operatorToken(t, "desk-"+strconv.FormatInt(time.Now().UnixNano(), 10))

	for i, want := range []string{"1", "0"} {
		w := postMove(r, tok)
		if w.Code != http.StatusOK {
			t.Fatalf("tx %d = %d, want 200", i, w.Code)
		}
		if got := w.Header().Get("X-TxRateLimit-Limit"); got != "2" {
			t.Fatalf("limit header = %q", got)
		}
		if got := w.Header().Get("X-TxRateLimit-Remaining"); got != want {
			t.Fatalf("tx %d remaining = %q, want %q", i, got, want)
		}
	}

	w := postMove(r, tok)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third tx = %d, want 429", w.Code)
	}
	if got := w.Header().Get("X-TxRateLimit-Remaining"); got != "0" {
		t.Fatalf("remaining after limit = %q", got)
	}
	if got := retryAfter(t, w); got != 5 {
		t.Fatalf("retry_after = %d, want 5", got)
	}
}

// Integration-style test: runs only if REDIS_ADDR env is set.
func TestRedisRateLimitPerIP(t *testing.T) {
	redisFromEnv(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/v1/counter", RedisRateLimit(1, 3*time.Second), func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/counter", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	n := strconv.Itoa(int(time.Now().UnixNano() % 250))
	ip, other := "10.9."+n+".1", "10.9."+n+".2"
	if w := get(ip); w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("first = %d remaining %q", w.Code, w.Header().Get("X-RateLimit-Remaining"))
	}
	if w := get(ip); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d, want 429", w.Code)
	}
	if w := get(other); w.Code != http.StatusOK {
		t.Fatalf("other ip = %d, want 200", w.Code)
	}
}
