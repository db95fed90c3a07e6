package domain

import "time"

// TxAudit records one state-changing request made through the API.
type TxAudit struct {
	ID        int64                  `db:"id" json:"id"`
	Operator  string                 `db:"operator" json:"operator"`
	Action    string                 `db:"action" json:"action"`
	GameID    uint64                 `db:"game_id" json:"game_id,omitempty"`
	TxHash    string                 `db:"tx_hash" json:"tx_hash,omitempty"`
	Success   bool                   `db:"success" json:"success"`
	Reason    string                 `db:"reason" json:"reason,omitempty"`
	Details   map[string]interface{} `db:"details" json:"details,omitempty"`
	IP        string                 `db:"ip" json:"ip,omitempty"`
	UserAgent string                 `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// JournalEntry is an event as stored in the journal.
type JournalEntry struct {
	ID         int64     `json:"id"`
	Event      Event     `json:"event"`
	RecordedAt time.Time `json:"recorded_at"`
}
