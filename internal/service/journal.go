package service

import (
	"context"
	"errors"
	"time"

	"zerosum_client/internal/chain"
	"zerosum_client/internal/domain"
	"zerosum_client/internal/events"
	"zerosum_client/internal/logger"
	"zerosum_client/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrJournalDisabled is returned by reads when no database is configured.
var ErrJournalDisabled = errors.New("event journal disabled")

const recordTimeout = 5 * time.Second

var journalWrites = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "journal_writes_total",
		Help: "Journal inserts by table and outcome",
	},
	[]string{"table", "outcome"},
)

func init() {
	prometheus.MustRegister(journalWrites)
}

// Subscriber is the part of the event bridge the journal listens on.
type Subscriber interface {
	Subscribe(gameID uint64, h events.Handler) func()
}

// Journal persists bridge events and write-request outcomes. A Journal
// built with a nil pool is disabled: writes are dropped, reads fail with
// ErrJournalDisabled.
type Journal struct {
	events *repository.EventRepository
	audit  *repository.AuditRepository
}

func NewJournal(db *pgxpool.Pool) *Journal {
	if db == nil {
		return &Journal{}
	}
	return &Journal{
		events: repository.NewEventRepository(db),
		audit:  repository.NewAuditRepository(db),
	}
}

// Enabled reports whether a database is attached.
func (j *Journal) Enabled() bool { return j != nil && j.events != nil }

// Attach records every event the bridge delivers until the returned
// function is called.
func (j *Journal) Attach(bus Subscriber) (detach func()) {
	if !j.Enabled() {
		return func() {}
	}
	return bus.Subscribe(events.AllGames, func(ev domain.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		j.Record(ctx, ev)
	})
}

// Record stores ev; duplicates are ignored.
func (j *Journal) Record(ctx context.Context, ev domain.Event) {
	if !j.Enabled() {
		return
	}
	inserted, err := j.events.Record(ctx, ev)
	switch {
	case err != nil:
		journalWrites.WithLabelValues("game_events", "error").Inc()
		logger.Error("failed to journal event", "error", err, "kind", ev.Kind, "game_id", ev.GameID, "tx", ev.TxHash.Hex())
	case inserted:
		journalWrites.WithLabelValues("game_events", "inserted").Inc()
	default:
		journalWrites.WithLabelValues("game_events", "duplicate").Inc()
	}
}

// RecordTx stores the outcome of a write request made by operator.
func (j *Journal) RecordTx(ctx context.Context, operator, ip, userAgent string, res *chain.TxResult, details map[string]interface{}) {
	if !j.Enabled() || res == nil {
		return
	}
	a := &domain.TxAudit{
		Operator:  operator,
		Action:    res.Action,
		GameID:    res.GameID,
		Success:   res.Success,
		Reason:    res.Error(),
		Details:   details,
		IP:        ip,
		UserAgent: userAgent,
	}
	if res.TxHash != (common.Hash{}) {
		a.TxHash = res.TxHash.Hex()
	}
	if err := j.audit.Create(ctx, a); err != nil {
		journalWrites.WithLabelValues("tx_audit", "error").Inc()
		logger.Error("failed to create audit entry", "error", err, "action", res.Action, "operator", operator)
		return
	}
	journalWrites.WithLabelValues("tx_audit", "inserted").Inc()
}

// GameEvents returns the journaled events of gameID.
func (j *Journal) GameEvents(ctx context.Context, gameID uint64, limit int) ([]domain.JournalEntry, error) {
	if !j.Enabled() {
		return nil, ErrJournalDisabled
	}
	return j.events.ListByGame(ctx, gameID, limit)
}

// Moves returns the journaled moves of gameID.
func (j *Journal) Moves(ctx context.Context, gameID uint64) ([]domain.Event, error) {
	if !j.Enabled() {
		return nil, ErrJournalDisabled
	}
	return j.events.ListMoves(ctx, gameID)
}

// GameAudit returns the write requests made against gameID.
func (j *Journal) GameAudit(ctx context.Context, gameID uint64, limit int) ([]*domain.TxAudit, error) {
	if !j.Enabled() {
		return nil, ErrJournalDisabled
	}
	return j.audit.GetByGame(ctx, gameID, limit)
}

// ResumeBlock is the block after the last journaled one, 0 when the journal
// is empty or disabled.
func (j *Journal) ResumeBlock(ctx context.Context) uint64 {
	if !j.Enabled() {
		return 0
	}
	last, err := j.events.LastBlock(ctx)
	if err != nil {
		logger.Warn("failed to read journal position", "error", err)
		return 0
	}
	if last == 0 {
		return 0
	}
	return last + 1
}
