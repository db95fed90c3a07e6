package config

import (
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"zerosum_client/internal/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	AllowedOrigin string
	LogLevel      string
	LogJSON       bool

	// Chain
	RPCURL          string
	ContractAddress common.Address
	ChainID         *big.Int // nil: ask the node
	PrivateKey      string
	ViewerAddress   common.Address

	// Optional backends
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	// Sync tuning
	CacheCapacity  int
	ActiveTTL      time.Duration
	IdleTTL        time.Duration
	RetryBackoff   time.Duration
	ScanCap        uint64
	EventPoll      time.Duration
	StartBlock     uint64
	ConfirmTimeout time.Duration

	// API limits
	APIRateLimit  int
	APIRateWindow time.Duration
	TxRateLimit   int
	TxRateWindow  time.Duration
}

// Load reads the environment (and .env when present).
func Load() *Config {
	_ = godotenv.Load()

	rpcURL := os.Getenv("RPC_URL")
	if rpcURL == "" {
		logger.Fatal("RPC_URL is not set")
	}

	contract := os.Getenv("CONTRACT_ADDRESS")
	if !common.IsHexAddress(contract) {
		logger.Fatal("CONTRACT_ADDRESS is not set or invalid", "value", contract)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	var chainID *big.Int
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, ok := new(big.Int).SetString(v, 10)
		if !ok || id.Sign() <= 0 {
			logger.Fatal("CHAIN_ID is invalid", "value", v)
		}
		chainID = id
	}

	var viewer common.Address
	if v := os.Getenv("VIEWER_ADDRESS"); v != "" {
		if !common.IsHexAddress(v) {
			logger.Fatal("VIEWER_ADDRESS is invalid", "value", v)
		}
		viewer = common.HexToAddress(v)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		AppPort:       port,
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),
		LogLevel:      logLevel,
		LogJSON:       os.Getenv("LOG_JSON") == "true",

		RPCURL:          rpcURL,
		ContractAddress: common.HexToAddress(contract),
		ChainID:         chainID,
		PrivateKey:      strings.TrimSpace(os.Getenv("PRIVATE_KEY")),
		ViewerAddress:   viewer,

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intEnv("REDIS_DB", 0),

		JWTSecret: jwtSecret,

		CacheCapacity:  intEnv("CACHE_CAPACITY", 100),
		ActiveTTL:      secondsEnv("CACHE_ACTIVE_TTL_SECONDS", 30*time.Second),
		IdleTTL:        secondsEnv("CACHE_IDLE_TTL_SECONDS", 5*time.Minute),
		RetryBackoff:   time.Duration(intEnv("RETRY_BACKOFF_MS", 1000)) * time.Millisecond,
		ScanCap:        uint64(intEnv("SCAN_CAP", 50)),
		EventPoll:      secondsEnv("EVENT_POLL_SECONDS", 4*time.Second),
		StartBlock:     uint64(intEnv("EVENT_START_BLOCK", 0)),
		ConfirmTimeout: secondsEnv("CONFIRM_TIMEOUT_SECONDS", 60*time.Second),

		APIRateLimit:  intEnv("API_RATE_LIMIT", 120),
		APIRateWindow: secondsEnv("API_RATE_WINDOW_SECONDS", time.Minute),
		TxRateLimit:   intEnv("TX_RATE_LIMIT", 20),
		TxRateWindow:  secondsEnv("TX_RATE_WINDOW_SECONDS", time.Minute),
	}
}

// intEnv returns a positive integer from key, def when unset or invalid.
func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		logger.Warn("ignoring invalid env value", "key", key, "value", v)
		return def
	}
	return n
}

func secondsEnv(key string, def time.Duration) time.Duration {
	n := intEnv(key, -1)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
