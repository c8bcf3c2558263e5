package workspace

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"quicklaunch.dev/internal/rbac"
	"quicklaunch.dev/internal/tenant"
)

var (
	ErrNotFound       = errors.New("workspace: not found")
	ErrInvalidName    = errors.New("workspace: name must be between 1 and 100 characters")
	ErrNameTaken      = errors.New("workspace: name already in use for this account")
	ErrInviteInvalid  = errors.New("workspace: invite token is invalid")
	ErrInviteExpired  = errors.New("workspace: invite has expired")
	ErrInviteAccepted = errors.New("workspace: invite was already accepted")
)

// Workspace is a named collaboration space inside an account.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Name      string    `json:"name"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Member links a user to a workspace. The membership row carries no
// account_id of its own; tenancy is resolved through the workspace.
type Member struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	UserID      uuid.UUID `json:"user_id"`
	Role        rbac.Role `json:"role"`
	AddedAt     time.Time `json:"added_at"`
}

// Invite is a pending offer to join a workspace. Only a hash of the
// invite secret is stored; the plaintext token exists once, in the
// creation response.
type Invite struct {
	ID          uuid.UUID  `json:"id"`
	WorkspaceID uuid.UUID  `json:"workspace_id"`
	Email       string     `json:"email"`
	Role        rbac.Role  `json:"role"`
	TokenHash   []byte     `json:"-"`
	CreatedBy   uuid.UUID  `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy  *uuid.UUID `json:"accepted_by,omitempty"`
}

// Store persists workspaces, memberships, and invites. Methods taking a
// tenant.Context run inside a tenant-scoped transaction; redemption
// methods run unscoped because the acceptor holds no tenant scope for
// the inviting account yet.
type Store interface {
	// CreateWorkspace inserts the workspace and its founding membership
	// in one transaction: a workspace either exists with its owner
	// enrolled or not at all.
	CreateWorkspace(ctx context.Context, tc tenant.Context, ws *Workspace, owner *Member) error
	FindWorkspace(ctx context.Context, tc tenant.Context, id uuid.UUID) (*Workspace, error)
	ListWorkspaces(ctx context.Context, tc tenant.Context) ([]Workspace, error)

	ListMembers(ctx context.Context, tc tenant.Context, workspaceID uuid.UUID) ([]Member, error)

	CreateInvite(ctx context.Context, tc tenant.Context, inv *Invite) error
	FindInviteForRedemption(ctx context.Context, id uuid.UUID) (*Invite, error)

	// RedeemInvite stamps accepted_at and inserts the membership in one
	// transaction.
	RedeemInvite(ctx context.Context, inv *Invite, userID uuid.UUID, acceptedAt time.Time) error
}
