package impersonate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"quicklaunch.dev/internal/audit"
	"quicklaunch.dev/internal/rbac"
)

const (
	defaultSessionTTL   = 30 * time.Minute
	defaultMinReasonLen = 10
)

// TokenMinter issues the delegated credential for the target user. The
// token carries the session id so later requests correlate back to the
// session for revocation and audit.
type TokenMinter interface {
	IssueImpersonation(targetUserID, accountID uuid.UUID, role rbac.Role, sessionID uuid.UUID, ttl time.Duration) (string, time.Time, error)
}

// Target identifies the user being impersonated, resolved by the caller
// from the directory before starting a session.
type Target struct {
	UserID    uuid.UUID
	AccountID uuid.UUID
	Role      rbac.Role
}

// Service manages the impersonation session lifecycle.
type Service struct {
	store  Store
	minter TokenMinter
	audits *audit.Publisher

	now          func() time.Time
	ttl          time.Duration
	minReasonLen int
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithSessionTTL overrides the fixed session duration.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMinReasonLength overrides the minimum reason length policy.
func WithMinReasonLength(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.minReasonLen = n
		}
	}
}

// WithClock overrides the time source. Test use.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the lifecycle service.
func NewService(store Store, minter TokenMinter, audits *audit.Publisher, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("impersonate: store is required")
	}
	if minter == nil {
		return nil, errors.New("impersonate: token minter is required")
	}
	svc := &Service{
		store:        store,
		minter:       minter,
		audits:       audits,
		now:          time.Now,
		ttl:          defaultSessionTTL,
		minReasonLen: defaultMinReasonLen,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// StartResult is the outcome of a successful Start.
type StartResult struct {
	Session        Session
	Token          string
	TokenExpiresAt time.Time
}

// Start opens a session letting admin act as target until the fixed TTL
// elapses or the session is ended. A target with an active session is
// rejected with ErrActiveSessionExists; the caller decides whether to
// end the prior session first.
func (s *Service) Start(ctx context.Context, adminUserID uuid.UUID, target Target, reason string) (StartResult, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < s.minReasonLen {
		return StartResult{}, ErrReasonTooShort
	}
	if adminUserID == uuid.Nil || target.UserID == uuid.Nil {
		return StartResult{}, errors.New("impersonate: admin and target user ids are required")
	}
	if adminUserID == target.UserID {
		return StartResult{}, ErrSelfImpersonation
	}

	// Early conflict check for a clean error; the store's uniqueness
	// guarantee is what actually holds under concurrent starts.
	now := s.now().UTC()
	existing, err := s.store.FindActiveByTarget(ctx, target.UserID, now)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return StartResult{}, fmt.Errorf("impersonate: check active session: %w", err)
	}
	if existing != nil && existing.IsActive(now) {
		return StartResult{}, ErrActiveSessionExists
	}

	session := Session{
		ID:           uuid.New(),
		AdminUserID:  adminUserID,
		TargetUserID: target.UserID,
		Reason:       reason,
		StartedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, &session); err != nil {
		return StartResult{}, err
	}

	token, tokenExp, err := s.minter.IssueImpersonation(target.UserID, target.AccountID, target.Role, session.ID, s.ttl)
	if err != nil {
		// The session exists but no credential was minted; end it so it
		// does not block the target.
		_ = s.store.End(ctx, session.ID, s.now().UTC())
		return StartResult{}, fmt.Errorf("impersonate: mint token: %w", err)
	}

	s.publish("impersonation.started", session, map[string]string{
		"reason": reason,
	})
	return StartResult{Session: session, Token: token, TokenExpiresAt: tokenExp}, nil
}

// End closes the session. Ending a session that already ended is a
// no-op; the stored ended_at keeps its first value.
func (s *Service) End(ctx context.Context, id uuid.UUID, endedBy uuid.UUID) (Session, error) {
	session, err := s.store.Find(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if session.EndedAt != nil {
		return *session, nil
	}

	endedAt := s.now().UTC()
	if err := s.store.End(ctx, id, endedAt); err != nil {
		return Session{}, err
	}
	session.EndedAt = &endedAt

	s.publish("impersonation.ended", *session, map[string]string{
		"ended_by": endedBy.String(),
	})
	return *session, nil
}

// FindActiveByAdmin lists sessions the admin currently holds. Lazily
// expired sessions are filtered by the store.
func (s *Service) FindActiveByAdmin(ctx context.Context, adminUserID uuid.UUID) ([]Session, error) {
	return s.store.FindActiveByAdmin(ctx, adminUserID, s.now().UTC())
}

// FindActiveByTarget returns the active session against a target, or
// ErrNotFound.
func (s *Service) FindActiveByTarget(ctx context.Context, targetUserID uuid.UUID) (*Session, error) {
	session, err := s.store.FindActiveByTarget(ctx, targetUserID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

func (s *Service) publish(event string, session Session, extra map[string]string) {
	if s.audits == nil {
		return
	}
	payload := map[string]string{
		"session_id":     session.ID.String(),
		"admin_user_id":  session.AdminUserID.String(),
		"target_user_id": session.TargetUserID.String(),
	}
	for k, v := range extra {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	s.audits.Publish(audit.Entry{
		EventName: event,
		EventType: audit.EventTypeDomain,
		UserID:    session.AdminUserID.String(),
		Payload:   raw,
	})
}
