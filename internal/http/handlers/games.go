package handlers

import (
	"net/http"
	"strconv"

	"zerosum_client/internal/reconcile"

	"github.com/gin-gonic/gin"
)

const (
	defaultEventLimit = 200
	maxEventLimit     = 1000
)

// GetGame returns the reconciled view of a game. ?refresh=1 forces a chain read.
func (h *Handler) GetGame(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}

	refresh := c.Query("refresh") == "1" || c.Query("refresh") == "true"
	v, err := h.Reconciler.Snapshot(c.Request.Context(), id, refresh)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := gin.H{"view": v}
	if r, ok := reconcile.LegalMovesFor(v); ok {
		resp["legal_moves"] = r
	}
	c.JSON(http.StatusOK, resp)
}

// Moves lists the journaled moves of a game.
func (h *Handler) Moves(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}

	moves, err := h.Journal.Moves(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_id": id, "moves": moves})
}

// Events lists the journaled events and write requests of a game.
func (h *Handler) Events(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}

	limit := defaultEventLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxEventLimit)
		}
	}

	ctx := c.Request.Context()
	entries, err := h.Journal.GameEvents(ctx, id, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	audit, err := h.Journal.GameAudit(ctx, id, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_id": id, "events": entries, "requests": audit})
}

// Counter returns the number of games created on the contract.
func (h *Handler) Counter(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"game_counter": h.Reader.GameCounter(c.Request.Context())})
}

// MyGames returns the viewer's game list, polling it first if it was never
// fetched. ?refresh=1 forces a poll.
func (h *Handler) MyGames(c *gin.Context) {
	s := h.Mine.Current()
	if s.FetchedAt.IsZero() || c.Query("refresh") == "1" {
		s = h.Mine.Poll(c.Request.Context())
	}
	c.JSON(http.StatusOK, s)
}
