package handlers

import (
	"errors"
	"net/http"

	"zerosum_client/internal/chain"
	"zerosum_client/internal/domain"
	"zerosum_client/internal/logger"
	"zerosum_client/internal/reconcile"
	"zerosum_client/internal/service"

	"github.com/gin-gonic/gin"
)

// statusFor maps sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chain.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidMove),
		errors.Is(err, domain.ErrGameNotLive),
		errors.Is(err, domain.ErrNumberNotSet),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, chain.ErrNotYourTurn),
		errors.Is(err, chain.ErrTxReverted):
		return http.StatusConflict
	case errors.Is(err, chain.ErrTxTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, chain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, chain.ErrNoWallet),
		errors.Is(err, reconcile.ErrNotLoaded),
		errors.Is(err, reconcile.ErrDisposed),
		errors.Is(err, reconcile.ErrSessionClosed),
		errors.Is(err, service.ErrJournalDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// respondTx writes a transaction outcome and records it in the audit log.
func (h *Handler) respondTx(c *gin.Context, res *chain.TxResult, details map[string]interface{}) {
	h.Journal.RecordTx(c.Request.Context(), operator(c), c.ClientIP(), c.Request.UserAgent(), res, details)

	log := logger.WithContext(c.Request.Context())
	if res.Success {
		log.Info("tx confirmed", "action", res.Action, "game_id", res.GameID, "tx", res.TxHash.Hex())
		c.JSON(http.StatusOK, res)
		return
	}
	log.Warn("tx failed", "action", res.Action, "game_id", res.GameID, "error", res.Error())
	c.JSON(statusFor(res.Err), gin.H{
		"action":  res.Action,
		"game_id": res.GameID,
		"tx_hash": res.TxHash,
		"error":   res.Error(),
	})
}
