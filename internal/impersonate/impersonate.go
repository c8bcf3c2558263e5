package impersonate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("impersonate: session not found")
	ErrReasonTooShort      = errors.New("impersonate: reason is too short")
	ErrSelfImpersonation   = errors.New("impersonate: cannot impersonate yourself")
	ErrActiveSessionExists = errors.New("impersonate: target already has an active session")
)

// Session is one admin-initiated delegation window. Sessions are never
// deleted; ended and expired ones stay behind for audit.
type Session struct {
	ID           uuid.UUID  `json:"id"`
	AdminUserID  uuid.UUID  `json:"admin_user_id"`
	TargetUserID uuid.UUID  `json:"target_user_id"`
	Reason       string     `json:"reason"`
	StartedAt    time.Time  `json:"started_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// IsActive reports whether the session is usable at the given instant.
// Expiry is not a stored transition: it is inferred here and in every
// read path that surfaces active sessions.
func (s Session) IsActive(now time.Time) bool {
	return s.EndedAt == nil && s.ExpiresAt.After(now)
}

// Store persists impersonation sessions.
type Store interface {
	// Create inserts the session. The store enforces at most one
	// non-ended, non-expired session per target; a racing insert for an
	// already-covered target fails with ErrActiveSessionExists.
	Create(ctx context.Context, session *Session) error
	Find(ctx context.Context, id uuid.UUID) (*Session, error)

	// End stamps ended_at once. Ending an already-ended session must
	// leave the original timestamp untouched and report no error.
	End(ctx context.Context, id uuid.UUID, endedAt time.Time) error

	FindActiveByAdmin(ctx context.Context, adminUserID uuid.UUID, now time.Time) ([]Session, error)
	FindActiveByTarget(ctx context.Context, targetUserID uuid.UUID, now time.Time) (*Session, error)
}
