package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"zerosum_client/internal/cache"
	"zerosum_client/internal/chain"
	"zerosum_client/internal/clock"
	"zerosum_client/internal/config"
	"zerosum_client/internal/db"
	"zerosum_client/internal/events"
	httpServer "zerosum_client/internal/http"
	"zerosum_client/internal/http/handlers"
	"zerosum_client/internal/http/middleware"
	"zerosum_client/internal/logger"
	"zerosum_client/internal/reconcile"
	"zerosum_client/internal/service"
	"zerosum_client/internal/ws"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancelDial := context.WithTimeout(ctx, 15*time.Second)
	contract, client, err := chain.Dial(dialCtx, cfg.RPCURL, cfg.ContractAddress)
	cancelDial()
	if err != nil {
		logger.Fatal("failed to connect to rpc", "error", err, "rpc", cfg.RPCURL)
	}
	defer client.Close()

	chainID := cfg.ChainID
	if chainID == nil {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			logger.Fatal("failed to read chain id", "error", err)
		}
	}
	logger.Info("connected to chain", "chain_id", chainID, "contract", cfg.ContractAddress.Hex())

	clk := clock.Real()
	snapshots := cache.NewRedisSnapshots(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	middleware.UseRedisClient(snapshots.Client())

	reader := chain.NewReader(contract, cache.New(cfg.CacheCapacity, clk), snapshots, chain.ReaderConfig{
		ActiveTTL:    cfg.ActiveTTL,
		IdleTTL:      cfg.IdleTTL,
		RetryBackoff: cfg.RetryBackoff,
		ScanCap:      cfg.ScanCap,
	})

	var wallet chain.Wallet
	if cfg.PrivateKey != "" {
		kw, err := chain.NewKeyWallet(cfg.PrivateKey, chainID)
		if err != nil {
			logger.Fatal("invalid PRIVATE_KEY", "error", err)
		}
		wallet = kw
		logger.Info("wallet loaded", "address", kw.Address().Hex())
	} else {
		logger.Warn("PRIVATE_KEY not set, write endpoints disabled")
	}

	viewer := cfg.ViewerAddress
	if viewer == (common.Address{}) && wallet != nil {
		viewer = wallet.Address()
	}
	reader.SetViewer(viewer)

	writer := chain.NewWriter(contract, reader, wallet, chain.WriterConfig{ConfirmTimeout: cfg.ConfirmTimeout})

	pool := db.Connect(ctx, cfg.DatabaseURL)
	if pool != nil {
		defer pool.Close()
	}
	journal := service.NewJournal(pool)

	start := cfg.StartBlock
	if resume := journal.ResumeBlock(ctx); resume > start {
		start = resume
	}
	bridge := events.NewBridge(contract, events.Config{
		PollInterval: cfg.EventPoll,
		StartBlock:   start,
	})
	defer bridge.Close()
	detach := journal.Attach(bridge)
	defer detach()

	rcfg := reconcile.DefaultConfig()
	rec := reconcile.New(reader, writer, bridge, clk, rcfg)
	defer rec.Dispose()

	mine := reconcile.NewMyGames(reader, bridge, clk, rcfg)
	mine.Start(ctx)
	defer mine.Stop()

	hub := ws.NewHub(rec, mine, bridge, journal)
	defer hub.Close()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORS(cfg.AllowedOrigin))

	httpServer.RegisterRoutes(r, httpServer.Deps{
		Handler:       handlers.NewHandler(rec, mine, reader, writer, journal),
		Health: handlers.NewHealthHandler(contract, pool, version).WithStats(handlers.SyncStats{
			Sessions:     rec.Sessions,
			Watchers:     hub.Clients,
			BridgeCursor: bridge.Cursor,
			RedisEnabled: snapshots.Enabled(),
		}),
		Hub:           hub,
		AllowedOrigin: cfg.AllowedOrigin,
		Limits: httpServer.Limits{
			API:       cfg.APIRateLimit,
			APIWindow: cfg.APIRateWindow,
			Tx:        cfg.TxRateLimit,
			TxWindow:  cfg.TxRateWindow,
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server started", "port", cfg.AppPort, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		return
	}
	logger.Info("server exited")
}
