package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"zerosum_client/internal/logger"
	"zerosum_client/internal/service"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	sendBuffer = 256
)

type Client struct {
	Claims service.Claims
	GameID uint64 // 0 subscribes to the game list only
	Conn   *websocket.Conn
	Send   chan []byte

	Hub  *Hub
	Done chan struct{}

	log       *slog.Logger
	closeOnce sync.Once
	sendMu    sync.Mutex
	closed    bool
}

func NewClient(claims service.Claims, conn *websocket.Conn, hub *Hub, gameID uint64) *Client {
	return &Client{
		Claims: claims,
		GameID: gameID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		Hub:    hub,
		Done:   make(chan struct{}),
		log:    logger.Component("ws").With("sub", claims.Subject, "game_id", gameID),
	}
}

// Run starts the pumps, joins the hub and blocks until the socket closes.
func (c *Client) Run() {
	go c.writePump()
	c.send(encode(MsgReady, map[string]any{"game_id": c.GameID}))

	c.Hub.Register(c)
	c.readPump()
	c.Hub.Unregister(c)
	c.close()
}

// send queues msg without blocking; a client that cannot keep up is dropped.
func (c *Client) send(msg []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- msg:
	default:
		c.log.Warn("send buffer full, dropping client")
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		if !c.closed {
			c.closed = true
			close(c.Send)
		}
		c.sendMu.Unlock()
		close(c.Done)
	})
}

func (c *Client) readPump() {
	defer func() { _ = c.Conn.Close() }()

	c.Conn.SetReadLimit(4096)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read error", "error", err)
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			c.send(encode(MsgError, ErrorPayload{Message: "invalid message"}))
			continue
		}
		c.Hub.HandleMessage(c, in)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
