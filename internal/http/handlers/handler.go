package handlers

import (
	"context"
	"strconv"

	"zerosum_client/internal/chain"
	"zerosum_client/internal/http/middleware"
	"zerosum_client/internal/reconcile"
	"zerosum_client/internal/service"

	"github.com/gin-gonic/gin"
)

// Head reports the latest block of the node.
type Head interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

type Handler struct {
	Reconciler *reconcile.Reconciler
	Mine       *reconcile.MyGames
	Reader     *chain.Reader
	Writer     *chain.Writer
	Journal    *service.Journal
}

func NewHandler(rec *reconcile.Reconciler, my *reconcile.MyGames, reader *chain.Reader, writer *chain.Writer, journal *service.Journal) *Handler {
	if journal == nil {
		journal = service.NewJournal(nil)
	}
	return &Handler{
		Reconciler: rec,
		Mine:       my,
		Reader:     reader,
		Writer:     writer,
		Journal:    journal,
	}
}

// gameID parses the :id path parameter.
func gameID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// operator is the subject of the caller's token.
func operator(c *gin.Context) string {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return ""
	}
	return claims.Subject
}
