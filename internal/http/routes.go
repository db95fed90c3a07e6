package http

import (
	"time"

	"zerosum_client/internal/http/handlers"
	"zerosum_client/internal/http/middleware"
	"zerosum_client/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Limits are the per-window request budgets of the API.
type Limits struct {
	API       int
	APIWindow time.Duration
	Tx        int
	TxWindow  time.Duration
}

type Deps struct {
	Handler       *handlers.Handler
	Health        *handlers.HealthHandler
	Hub           *ws.Hub
	AllowedOrigin string
	Limits        Limits
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health checks (no rate limiting)
	r.GET("/health", d.Health.Health)
	r.GET("/healthz", d.Health.Liveness)
	r.GET("/readyz", d.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if d.Hub != nil {
		r.GET("/ws", handlers.WS(d.Hub, d.AllowedOrigin))
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Metrics())
	if d.Limits.API > 0 {
		v1.Use(middleware.RedisRateLimit(d.Limits.API, d.Limits.APIWindow))
	}
	registerAPIRoutes(v1, d.Handler, d.Limits)
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, l Limits) {
	// Reads
	api.GET("/counter", h.Counter)
	api.GET("/games/:id", h.GetGame)
	api.GET("/games/:id/moves", h.Moves)
	api.GET("/games/:id/events", h.Events)
	api.GET("/me/games", h.MyGames)

	// Writes sign with the server wallet, so only operators may call them.
	tx := api.Group("")
	tx.Use(middleware.JWT(), middleware.Operator())
	if l.Tx > 0 {
		tx.Use(middleware.TxRateLimit(l.Tx, l.TxWindow))
	}
	{
		tx.POST("/games", h.CreateGame)
		tx.POST("/games/:id/join", h.JoinGame)
		tx.POST("/games/:id/move", h.MakeMove)
		tx.POST("/games/:id/timeout", h.HandleTimeout)
		tx.POST("/games/:id/cancel", h.CancelGame)
		tx.POST("/games/:id/force-finish", h.ForceFinish)
		tx.POST("/games/:id/unstick/cancel", h.CancelUnstick)
		tx.POST("/withdraw", h.Withdraw)
		tx.POST("/viewer", h.SetViewer)
	}
}
