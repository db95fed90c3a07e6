package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"zerosum_client/internal/logger"
	"zerosum_client/internal/service"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

// ws_smoke connects to a running server, watches one game and prints every
// message it receives until -for elapses.
func main() {
	_ = godotenv.Load()

	game := flag.Uint64("game", 1, "game id to watch")
	addr := flag.String("addr", "", "server host:port (default 127.0.0.1:$APP_PORT)")
	dur := flag.Duration("for", 10*time.Second, "how long to listen")
	move := flag.Uint64("move", 0, "submit this subtraction once state arrives (operator token)")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Fatal("JWT_SECRET not set")
	}
	if *addr == "" {
		port := os.Getenv("APP_PORT")
		if port == "" {
			port = "8080"
		}
		// use 127.0.0.1 to prefer IPv4
		*addr = "127.0.0.1:" + port
	}

	service.InitJWT(secret)
	token, err := service.GenerateJWT("ws_smoke", service.RoleOperator, time.Hour)
	if err != nil {
		logger.Fatal("generate token", "error", err)
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	q := u.Query()
	q.Set("game", fmt.Sprint(*game))
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatal("dial", "error", err, "url", u.Redacted())
	}
	defer conn.Close()

	moved := false
	deadline := time.Now().Add(*dur)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var msg struct {
			Type string `json:"type"`
			Data any    `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			logger.Warn("read", "error", err)
			break
		}
		fmt.Printf("%s %s %v\n", time.Now().Format(time.TimeOnly), msg.Type, msg.Data)

		if msg.Type == "state" && *move > 0 && !moved {
			moved = true
			if err := conn.WriteJSON(map[string]any{"type": "move", "subtraction": *move}); err != nil {
				logger.Fatal("write move", "error", err)
			}
		}
	}

	logger.Info("smoke test finished")
}
