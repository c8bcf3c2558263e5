package workspace

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"quicklaunch.dev/internal/rbac"
	"quicklaunch.dev/internal/tenant"
)

// Postgres error code for unique_violation.
const uniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// PGStore persists workspaces behind row level security. Every
// tenant-scoped method runs inside tenant.RunTx so the policies see the
// caller's scope for exactly one transaction.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateWorkspace(ctx context.Context, tc tenant.Context, ws *Workspace, owner *Member) error {
	return tenant.RunTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`insert into workspaces(id, account_id, name, created_by, created_at)
			 values($1,$2,$3,$4,$5)`,
			ws.ID, ws.AccountID, ws.Name, ws.CreatedBy, ws.CreatedAt,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrNameTaken
		}
		if err != nil {
			return err
		}
		return insertMember(ctx, tx, owner)
	})
}

func (s *PGStore) FindWorkspace(ctx context.Context, tc tenant.Context, id uuid.UUID) (*Workspace, error) {
	var ws Workspace
	err := tenant.RunTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`select id, account_id, name, created_by, created_at
			 from workspaces where id=$1`, id,
		).Scan(&ws.ID, &ws.AccountID, &ws.Name, &ws.CreatedBy, &ws.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *PGStore) ListWorkspaces(ctx context.Context, tc tenant.Context) ([]Workspace, error) {
	var out []Workspace
	err := tenant.RunTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`select id, account_id, name, created_by, created_at
			 from workspaces order by created_at asc`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var ws Workspace
			if err := rows.Scan(&ws.ID, &ws.AccountID, &ws.Name, &ws.CreatedBy, &ws.CreatedAt); err != nil {
				return err
			}
			out = append(out, ws)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PGStore) ListMembers(ctx context.Context, tc tenant.Context, workspaceID uuid.UUID) ([]Member, error) {
	var out []Member
	err := tenant.RunTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`select workspace_id, user_id, role, added_at
			 from workspace_members where workspace_id=$1 order by added_at asc`,
			workspaceID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				m    Member
				role string
			)
			if err := rows.Scan(&m.WorkspaceID, &m.UserID, &role, &m.AddedAt); err != nil {
				return err
			}
			if m.Role, err = rbac.ParseRole(role); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PGStore) CreateInvite(ctx context.Context, tc tenant.Context, inv *Invite) error {
	return tenant.RunTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`insert into invites(id, workspace_id, email, role, token_hash,
			                     created_by, created_at, expires_at)
			 values($1,$2,$3,$4,$5,$6,$7,$8)`,
			inv.ID, inv.WorkspaceID, inv.Email, inv.Role.String(), inv.TokenHash,
			inv.CreatedBy, inv.CreatedAt, inv.ExpiresAt,
		)
		return err
	})
}

// redemptionScope bypasses tenancy for invite redemption. The acceptor
// has no scope for the inviting account until the membership exists.
var redemptionScope = tenant.Context{IsAdmin: true}

func (s *PGStore) FindInviteForRedemption(ctx context.Context, id uuid.UUID) (*Invite, error) {
	var (
		inv  Invite
		role string
	)
	err := tenant.RunTx(ctx, s.db, redemptionScope, func(tx *sql.Tx) error {
		var (
			acceptedAt sql.NullTime
			acceptedBy uuid.NullUUID
		)
		err := tx.QueryRowContext(ctx,
			`select id, workspace_id, email, role, token_hash, created_by,
			        created_at, expires_at, accepted_at, accepted_by
			 from invites where id=$1`, id,
		).Scan(&inv.ID, &inv.WorkspaceID, &inv.Email, &role, &inv.TokenHash,
			&inv.CreatedBy, &inv.CreatedAt, &inv.ExpiresAt, &acceptedAt, &acceptedBy)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if acceptedAt.Valid {
			t := acceptedAt.Time
			inv.AcceptedAt = &t
		}
		if acceptedBy.Valid {
			u := acceptedBy.UUID
			inv.AcceptedBy = &u
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if inv.Role, err = rbac.ParseRole(role); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *PGStore) RedeemInvite(ctx context.Context, inv *Invite, userID uuid.UUID, acceptedAt time.Time) error {
	return tenant.RunTx(ctx, s.db, redemptionScope, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`update invites set accepted_at=$2, accepted_by=$3
			 where id=$1 and accepted_at is null`,
			inv.ID, acceptedAt, userID,
		)
		if err != nil {
			return err
		}
		// A concurrent redemption wins the update; this one must not
		// add a second membership.
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrInviteAccepted
		}
		return insertMember(ctx, tx, &Member{
			WorkspaceID: inv.WorkspaceID,
			UserID:      userID,
			Role:        inv.Role,
			AddedAt:     acceptedAt,
		})
	})
}

func insertMember(ctx context.Context, tx *sql.Tx, m *Member) error {
	_, err := tx.ExecContext(ctx,
		`insert into workspace_members(workspace_id, user_id, role, added_at)
		 values($1,$2,$3,$4)
		 on conflict (workspace_id, user_id) do nothing`,
		m.WorkspaceID, m.UserID, m.Role.String(), m.AddedAt,
	)
	return err
}
