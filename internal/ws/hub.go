package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"zerosum_client/internal/events"
	"zerosum_client/internal/logger"
	"zerosum_client/internal/reconcile"
	"zerosum_client/internal/service"
)

// EventBus is the part of the event bridge rooms listen on.
type EventBus interface {
	Subscribe(gameID uint64, h events.Handler) (unsubscribe func())
}

// Hub tracks connected sockets and the per-game rooms they watch.
type Hub struct {
	rec     *reconcile.Reconciler
	my      *reconcile.MyGames
	bus     EventBus
	journal *service.Journal

	opTimeout time.Duration

	mu      sync.RWMutex
	rooms   map[uint64]*Room
	clients map[*Client]struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopMine func()
	log      *slog.Logger
}

// NewHub builds a hub over rec. my and journal are optional.
func NewHub(rec *reconcile.Reconciler, my *reconcile.MyGames, bus EventBus, journal *service.Journal) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		rec:       rec,
		my:        my,
		bus:       bus,
		journal:   journal,
		opTimeout: 90 * time.Second,
		rooms:     make(map[uint64]*Room),
		clients:   make(map[*Client]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		log:       logger.Component("ws.hub"),
	}
	if my != nil {
		h.stopMine = my.OnUpdate(h.broadcastMyGames)
	}
	return h
}

func (h *Hub) broadcastMyGames(s reconcile.Summary) {
	msg := encode(MsgMyGames, s)
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.send(msg)
	}
}

// Register adds c and, when it watches a game, puts it in that game's room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	var room *Room
	if c.GameID != 0 {
		room = h.rooms[c.GameID]
		if room == nil {
			room = newRoom(c.GameID, h)
			h.rooms[c.GameID] = room
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				room.Run(h.ctx)
			}()
			h.log.Debug("room opened", "game_id", c.GameID)
		}
	}
	h.mu.Unlock()

	if room != nil {
		room.add(c)
	}
	if h.my != nil {
		c.send(encode(MsgMyGames, h.my.Current()))
	}
}

// Unregister removes c; the last client leaving a room stops it.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	var empty *Room
	if room := h.rooms[c.GameID]; room != nil && room.remove(c) {
		delete(h.rooms, c.GameID)
		empty = room
	}
	h.mu.Unlock()

	if empty != nil {
		empty.stop()
		h.log.Debug("room closed", "game_id", c.GameID)
	}
}

// HandleMessage serves one inbound message from c.
func (h *Hub) HandleMessage(c *Client, in Inbound) {
	if in.Type == MsgPing {
		c.send(encode(MsgPong, nil))
		return
	}

	h.mu.RLock()
	room := h.rooms[c.GameID]
	h.mu.RUnlock()
	if room == nil {
		c.send(encode(MsgError, ErrorPayload{Message: "no game selected"}))
		return
	}
	room.handle(c, in)
}

// Rooms returns the number of open rooms.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Clients returns the number of connected sockets.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops every room and tells connected clients to go away.
func (h *Hub) Close() {
	if h.stopMine != nil {
		h.stopMine()
	}

	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[uint64]*Room)
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, r := range rooms {
		select {
		case <-r.quit:
		default:
			close(r.quit)
		}
	}
	h.cancel()
	h.wg.Wait()

	for c := range clients {
		c.send(encode(MsgClosed, map[string]any{"reason": "server shutting down"}))
		c.close()
	}
}
