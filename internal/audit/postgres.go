package audit

import (
	"context"
	"database/sql"

	"quicklaunch.dev/internal/ids"
)

var (
	_ Store  = (*PGStore)(nil)
	_ Reader = (*PGStore)(nil)
)

const (
	defaultReadLimit = 50
	maxReadLimit     = 500
)

// PGStore persists audit entries in PostgreSQL. The audit_log table has
// no tenant policy of its own: only the audit subsystem writes it and
// reads are restricted to the admin surface.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	payload := entry.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, workspace_id, account_id, user_id, event_name, event_type, payload, occurred_at)
		 values($1, nullif($2,'')::uuid, nullif($3,'')::uuid, nullif($4,'')::uuid, $5, $6, $7, $8)`,
		entry.ID, entry.WorkspaceID, entry.AccountID, entry.UserID,
		entry.EventName, entry.EventType, []byte(payload), entry.OccurredAt,
	)
	return err
}

// Recent lists the newest entries. Entry ids are ULIDs, so ordering by
// id descending is ordering by creation time.
func (s *PGStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultReadLimit
	}
	if limit > maxReadLimit {
		limit = maxReadLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, coalesce(workspace_id::text, ''), coalesce(account_id::text, ''),
		        coalesce(user_id::text, ''), event_name, event_type, payload, occurred_at
		 from audit_log order by id desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry   Entry
			payload []byte
		)
		if err := rows.Scan(&entry.ID, &entry.WorkspaceID, &entry.AccountID,
			&entry.UserID, &entry.EventName, &entry.EventType, &payload, &entry.OccurredAt,
		); err != nil {
			return nil, err
		}
		entry.Payload = payload
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
