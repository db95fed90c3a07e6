package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"zerosum_client/internal/chain"
	"zerosum_client/internal/domain"
	"zerosum_client/internal/logger"
	"zerosum_client/internal/reconcile"

	"github.com/ethereum/go-ethereum/common"
)

// reopenDelay spaces attempts to reopen a session that failed to load.
const reopenDelay = 5 * time.Second

// Room fans one game's session out to every socket watching it. It holds
// the session open while at least one client is connected and reopens it
// when the viewer changes.
type Room struct {
	GameID uint64

	hub *Hub
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	session *reconcile.Session
	last    []byte

	quit chan struct{}
	done chan struct{}
}

func newRoom(id uint64, hub *Hub) *Room {
	return &Room{
		GameID:  id,
		hub:     hub,
		log:     logger.Component("ws.room").With("game_id", id),
		clients: make(map[*Client]struct{}),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (r *Room) add(c *Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	last := r.last
	r.mu.Unlock()
	if last != nil {
		c.send(last)
	}
}

// remove reports whether the room is now empty.
func (r *Room) remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	return len(r.clients) == 0
}

func (r *Room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Room) broadcast(msg []byte) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()
	for _, c := range clients {
		c.send(msg)
	}
}

func (r *Room) publishState(v reconcile.View) {
	msg := encode(MsgState, v)
	r.mu.Lock()
	r.last = msg
	r.mu.Unlock()
	r.broadcast(msg)
}

func (r *Room) currentSession() *reconcile.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session
}

func (r *Room) stop() {
	select {
	case <-r.quit:
	default:
		close(r.quit)
	}
	<-r.done
}

// Run keeps a session open until stop is called.
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)

	for {
		s, release, err := r.hub.rec.Open(ctx, r.GameID)
		if err != nil {
			r.log.Warn("open session failed", "error", err)
			r.broadcast(encode(MsgError, ErrorPayload{Message: err.Error()}))
			if errors.Is(err, chain.ErrGameNotFound) || errors.Is(err, reconcile.ErrDisposed) {
				r.broadcast(encode(MsgClosed, map[string]any{"game_id": r.GameID, "reason": err.Error()}))
				select {
				case <-r.quit:
				case <-ctx.Done():
				}
				return
			}
			select {
			case <-time.After(reopenDelay):
				continue
			case <-r.quit:
				return
			case <-ctx.Done():
				return
			}
		}

		r.mu.Lock()
		r.session = s
		r.mu.Unlock()

		stopViews := s.OnChange(r.publishState)
		stopEvents := r.hub.bus.Subscribe(r.GameID, func(ev domain.Event) {
			r.broadcast(encode(MsgEvent, ev))
		})
		if v := s.View(); v.Loaded() {
			r.publishState(v)
		}

		reopen := false
		select {
		case <-s.Done():
			reopen = true
		case <-r.quit:
		case <-ctx.Done():
		}

		stopEvents()
		stopViews()
		release()
		r.mu.Lock()
		r.session = nil
		r.last = nil
		r.mu.Unlock()

		if !reopen {
			return
		}
		r.log.Debug("session closed, reopening")
	}
}

// handle serves one client request against the room's session.
func (r *Room) handle(c *Client, in Inbound) {
	s := r.currentSession()
	if s == nil {
		c.send(encode(MsgError, ErrorPayload{Message: "game not loaded"}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.hub.opTimeout)
	defer cancel()

	switch in.Type {
	case MsgRefresh:
		if err := s.Refresh(ctx); err != nil {
			c.send(encode(MsgError, ErrorPayload{Message: err.Error()}))
		}

	case MsgMove:
		if !c.Claims.IsOperator() {
			c.send(encode(MsgError, ErrorPayload{Message: "operator role required"}))
			return
		}
		res := s.SubmitMove(ctx, in.Subtraction)
		r.hub.journal.RecordTx(ctx, c.Claims.Subject, "ws", "", res, map[string]interface{}{"subtraction": in.Subtraction})
		p := TxPayload{Action: res.Action, GameID: res.GameID, Success: res.Success, Error: res.Error()}
		if res.TxHash != (common.Hash{}) {
			p.TxHash = res.TxHash.Hex()
		}
		c.send(encode(MsgTx, p))

	case MsgCancelUnstick:
		if !c.Claims.IsOperator() {
			c.send(encode(MsgError, ErrorPayload{Message: "operator role required"}))
			return
		}
		s.CancelAutoUnstick()

	default:
		c.send(encode(MsgError, ErrorPayload{Message: "unknown message type " + in.Type}))
	}
}
