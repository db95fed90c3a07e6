package repository

import (
	"context"
	"encoding/json"

	"zerosum_client/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository stores the outcome of every write request.
type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a new audit entry
func (r *AuditRepository) Create(ctx context.Context, a *domain.TxAudit) error {
	detailsJSON, err := json.Marshal(a.Details)
	if err != nil || a.Details == nil {
		detailsJSON = []byte("{}")
	}

	return r.db.QueryRow(ctx, `
		INSERT INTO tx_audit (operator, action, game_id, tx_hash, success, reason, details, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, a.Operator, a.Action, int64(a.GameID), a.TxHash, a.Success, a.Reason, detailsJSON, a.IP, a.UserAgent,
	).Scan(&a.ID, &a.CreatedAt)
}

// GetByGame returns the audit entries of one game, newest first
func (r *AuditRepository) GetByGame(ctx context.Context, gameID uint64, limit int) ([]*domain.TxAudit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, operator, action, game_id, tx_hash, success, reason, details, ip, user_agent, created_at
		FROM tx_audit
		WHERE game_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, int64(gameID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAudits(rows)
}

// GetRecent returns the most recent audit entries
func (r *AuditRepository) GetRecent(ctx context.Context, limit int) ([]*domain.TxAudit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, operator, action, game_id, tx_hash, success, reason, details, ip, user_agent, created_at
		FROM tx_audit
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAudits(rows)
}

func scanAudits(rows pgx.Rows) ([]*domain.TxAudit, error) {
	var res []*domain.TxAudit
	for rows.Next() {
		var (
			a           domain.TxAudit
			gameID      int64
			detailsJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.Operator, &a.Action, &gameID, &a.TxHash, &a.Success, &a.Reason, &detailsJSON, &a.IP, &a.UserAgent, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.GameID = uint64(gameID)
		if err := json.Unmarshal(detailsJSON, &a.Details); err != nil {
			a.Details = make(map[string]interface{})
		}
		res = append(res, &a)
	}
	return res, rows.Err()
}
