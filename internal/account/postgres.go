package account

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"quicklaunch.dev/internal/rbac"
)

var _ Store = (*PGStore)(nil)

// PGStore reads the directory tables. Accounts and users are exempt
// from row level security so that sign in works before a tenant scope
// is established.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) FindAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	var acc Account
	err := s.db.QueryRowContext(ctx,
		`select id, name, created_at from accounts where id=$1`, id,
	).Scan(&acc.ID, &acc.Name, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

const userColumns = `id, account_id, email, password_hash, role, status, created_at`

func (s *PGStore) FindUser(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email)=lower($1)`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		user User
		role string
	)
	err := row.Scan(&user.ID, &user.AccountID, &user.Email,
		&user.PasswordHash, &role, &user.Status, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Role, err = rbac.ParseRole(role)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
