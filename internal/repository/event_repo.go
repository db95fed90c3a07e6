package repository

import (
	"context"
	"encoding/json"
	"time"

	"zerosum_client/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository stores decoded contract events. Each log is stored once,
// keyed by (tx_hash, log_index), so replays are harmless.
type EventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Record inserts ev. It reports false when the log was already stored.
func (r *EventRepository) Record(ctx context.Context, ev domain.Event) (bool, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, err
	}

	var player *string
	if ev.Player != (common.Address{}) {
		p := ev.Player.Hex()
		player = &p
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO game_events (tx_hash, log_index, block_number, game_id, kind, player, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`, ev.TxHash.Hex(), int32(ev.LogIndex), int64(ev.BlockNumber), int64(ev.GameID), string(ev.Kind), player, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByGame returns the events of gameID in chain order.
func (r *EventRepository) ListByGame(ctx context.Context, gameID uint64, limit int) ([]domain.JournalEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, payload, recorded_at
		FROM game_events
		WHERE game_id = $1
		ORDER BY block_number, log_index
		LIMIT $2
	`, int64(gameID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListMoves returns the MoveMade events of gameID in chain order.
func (r *EventRepository) ListMoves(ctx context.Context, gameID uint64) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, payload, recorded_at
		FROM game_events
		WHERE game_id = $1 AND kind = $2
		ORDER BY block_number, log_index
	`, int64(gameID), string(domain.EventMoveMade))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	moves := make([]domain.Event, 0, len(entries))
	for _, e := range entries {
		moves = append(moves, e.Event)
	}
	return moves, nil
}

// LastBlock returns the highest journaled block, 0 when empty.
func (r *EventRepository) LastBlock(ctx context.Context) (uint64, error) {
	var last int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(block_number), 0) FROM game_events`).Scan(&last)
	if err != nil {
		return 0, err
	}
	return uint64(last), nil
}

func scanEntries(rows pgx.Rows) ([]domain.JournalEntry, error) {
	var res []domain.JournalEntry
	for rows.Next() {
		var (
			e       domain.JournalEntry
			payload []byte
			at      time.Time
		)
		if err := rows.Scan(&e.ID, &payload, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &e.Event); err != nil {
			return nil, err
		}
		e.RecordedAt = at
		res = append(res, e)
	}
	return res, rows.Err()
}
