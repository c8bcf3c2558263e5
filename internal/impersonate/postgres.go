package impersonate

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error code for unique_violation.
const uniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Sessions are only ever
// inserted and stamped with ended_at; there is no delete path.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const sessionColumns = `id, admin_user_id, target_user_id, reason, started_at, expires_at, ended_at`

// Create inserts the session. A partial unique index on target_user_id
// over non-ended rows backs the one-active-session invariant, so two
// racing inserts cannot both succeed; the loser gets
// ErrActiveSessionExists. Rows that lapsed without an explicit end are
// retired first so the index only ever sees truly live sessions.
func (s *PGStore) Create(ctx context.Context, session *Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`update impersonation_sessions set ended_at = expires_at
		 where target_user_id=$1 and ended_at is null and expires_at <= $2`,
		session.TargetUserID, session.StartedAt,
	); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`insert into impersonation_sessions(`+sessionColumns+`)
		 values($1,$2,$3,$4,$5,$6,null)`,
		session.ID, session.AdminUserID, session.TargetUserID,
		session.Reason, session.StartedAt, session.ExpiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrActiveSessionExists
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) Find(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from impersonation_sessions where id=$1`, id)
	return scanSession(row)
}

// End stamps ended_at exactly once. The `ended_at is null` guard makes a
// repeated call a no-op even under concurrent enders.
func (s *PGStore) End(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update impersonation_sessions set ended_at=$2 where id=$1 and ended_at is null`,
		id, endedAt,
	)
	return err
}

func (s *PGStore) FindActiveByAdmin(ctx context.Context, adminUserID uuid.UUID, now time.Time) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+sessionColumns+` from impersonation_sessions
		 where admin_user_id=$1 and ended_at is null and expires_at > $2
		 order by started_at asc`,
		adminUserID, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

func (s *PGStore) FindActiveByTarget(ctx context.Context, targetUserID uuid.UUID, now time.Time) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from impersonation_sessions
		 where target_user_id=$1 and ended_at is null and expires_at > $2`,
		targetUserID, now,
	)
	return scanSession(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (*Session, error) {
	session, err := scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func scanSessionRow(row rowScanner) (*Session, error) {
	var (
		session Session
		endedAt sql.NullTime
	)
	if err := row.Scan(
		&session.ID, &session.AdminUserID, &session.TargetUserID,
		&session.Reason, &session.StartedAt, &session.ExpiresAt, &endedAt,
	); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}
	return &session, nil
}
