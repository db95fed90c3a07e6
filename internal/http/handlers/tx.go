package handlers

import (
	"math/big"
	"net/http"

	"zerosum_client/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type createRequest struct {
	Mode        string `json:"mode" binding:"required,oneof=quick_draw strategic"`
	EntryFee    string `json:"entry_fee"`     // ether, decimal
	EntryFeeWei string `json:"entry_fee_wei"` // wei, takes precedence
}

type feeRequest struct {
	EntryFee    string `json:"entry_fee"`
	EntryFeeWei string `json:"entry_fee_wei"`
}

type moveRequest struct {
	Subtraction uint64 `json:"subtraction" binding:"required"`
}

type viewerRequest struct {
	Address string `json:"address" binding:"required"`
}

func parseFee(ether, wei string) (*big.Int, error) {
	if wei != "" {
		v, ok := new(big.Int).SetString(wei, 10)
		if !ok || v.Sign() < 0 {
			return nil, domain.ErrInvalidAmount
		}
		return v, nil
	}
	if ether == "" {
		return new(big.Int), nil
	}
	return domain.ParseEther(ether)
}

// CreateGame opens a new game with the configured wallet.
func (h *Handler) CreateGame(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fee, err := parseFee(req.EntryFee, req.EntryFeeWei)
	if err != nil {
		abortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	details := map[string]interface{}{"mode": req.Mode, "entry_fee_wei": fee.String()}
	if req.Mode == domain.ModeStrategic.String() {
		h.respondTx(c, h.Writer.CreateStrategic(ctx, fee), details)
		return
	}
	h.respondTx(c, h.Writer.CreateQuickDraw(ctx, fee), details)
}

// JoinGame takes the open seat. Without a fee in the body the game's entry
// fee is paid.
func (h *Handler) JoinGame(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}
	var req feeRequest
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	var fee *big.Int
	if req.EntryFee != "" || req.EntryFeeWei != "" {
		f, err := parseFee(req.EntryFee, req.EntryFeeWei)
		if err != nil {
			abortWithError(c, err)
			return
		}
		fee = f
	} else {
		g, err := h.Reader.GetGame(ctx, id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if g == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "game state unavailable"})
			return
		}
		fee = g.EntryFee
	}

	h.respondTx(c, h.Writer.JoinGame(ctx, id, fee), map[string]interface{}{"entry_fee_wei": fee.String()})
}

// MakeMove submits a subtraction through the game's session, so watchers
// see the optimistic state at once.
func (h *Handler) MakeMove(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res := h.Reconciler.SubmitMove(c.Request.Context(), id, req.Subtraction)
	h.respondTx(c, res, map[string]interface{}{"subtraction": req.Subtraction})
}

func (h *Handler) HandleTimeout(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}
	h.respondTx(c, h.Writer.HandleTimeout(c.Request.Context(), id), nil)
}

func (h *Handler) CancelGame(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}
	h.respondTx(c, h.Writer.CancelWaitingGame(c.Request.Context(), id), nil)
}

func (h *Handler) ForceFinish(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}
	h.respondTx(c, h.Writer.ForceFinishInactiveGame(c.Request.Context(), id), nil)
}

// CancelUnstick stops the automatic timeout claim of a live session.
func (h *Handler) CancelUnstick(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}
	s, ok := h.Reconciler.Session(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live session for game"})
		return
	}
	s.CancelAutoUnstick()
	c.JSON(http.StatusOK, gin.H{"view": s.View()})
}

func (h *Handler) Withdraw(c *gin.Context) {
	h.respondTx(c, h.Writer.Withdraw(c.Request.Context()), nil)
}

// SetViewer switches the address the sync layer reads for.
func (h *Handler) SetViewer(c *gin.Context) {
	var req viewerRequest
	if err := c.ShouldBindJSON(&req); err != nil || !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	addr := common.HexToAddress(req.Address)
	h.Reconciler.SetViewer(addr)
	s := h.Mine.Poll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"viewer": addr, "my_games": s})
}
