package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"quicklaunch.dev/internal/rbac"
)

var (
	ErrNotFound           = errors.New("account: not found")
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	ErrUserSuspended      = errors.New("account: user is suspended")
)

// User statuses. Suspended users keep their rows but cannot sign in or
// be impersonated.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Account is the tenant boundary. Every user and workspace belongs to
// exactly one account.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a member of an account with a single account-wide role.
type User struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         rbac.Role `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store looks up directory records. Lookups here run outside the tenant
// scope: authentication and impersonation must resolve users before any
// tenant context exists.
type Store interface {
	FindAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	FindUser(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}
