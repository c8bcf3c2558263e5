package workspace

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
	"quicklaunch.dev/internal/tenant"
)

const (
	maxNameLen       = 100
	defaultInviteTTL = 7 * 24 * time.Hour
)

// Service implements workspace and invite operations on top of a
// tenant-scoped store.
type Service struct {
	store  Store
	audits *audit.Publisher

	now       func() time.Time
	inviteTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithInviteTTL overrides how long invites stay redeemable.
func WithInviteTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.inviteTTL = ttl
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

func NewService(store Store, audits *audit.Publisher, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("workspace: store is required")
	}
	svc := &Service{
		store:     store,
		audits:    audits,
		now:       time.Now,
		inviteTTL: defaultInviteTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create makes a workspace and enrolls the creator as its first member.
func (s *Service) Create(ctx context.Context, tc tenant.Context, creatorUserID uuid.UUID, name string) (*Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return nil, ErrInvalidName
	}
	if creatorUserID == uuid.Nil {
		return nil, errors.New("workspace: creator user id is required")
	}

	now := s.now().UTC()
	ws := &Workspace{
		ID:        uuid.New(),
		AccountID: tc.AccountID,
		Name:      name,
		CreatedBy: creatorUserID,
		CreatedAt: now,
	}
	owner := &Member{
		WorkspaceID: ws.ID,
		UserID:      creatorUserID,
		Role:        rbac.RoleOwner,
		AddedAt:     now,
	}
	if err := s.store.CreateWorkspace(ctx, tc, ws, owner); err != nil {
		return nil, err
	}

	s.publish("workspace.created", tc, creatorUserID, ws.ID, map[string]string{"name": name})
	return ws, nil
}

// List returns the workspaces visible in the caller's tenant scope.
func (s *Service) List(ctx context.Context, tc tenant.Context) ([]Workspace, error) {
	return s.store.ListWorkspaces(ctx, tc)
}

// Members lists the membership of one workspace.
func (s *Service) Members(ctx context.Context, tc tenant.Context, workspaceID uuid.UUID) ([]Member, error) {
	if _, err := s.store.FindWorkspace(ctx, tc, workspaceID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, tc, workspaceID)
}

// InviteResult carries the one-time plaintext token next to the stored
// invite.
type InviteResult struct {
	Invite Invite
	Token  string
}

// CreateInvite issues an invite into the workspace. The returned token
// is shown once and never stored.
func (s *Service) CreateInvite(ctx context.Context, tc tenant.Context, createdBy, workspaceID uuid.UUID, email string, role rbac.Role) (InviteResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return InviteResult{}, errors.New("workspace: a valid email is required")
	}
	if !role.Valid() {
		return InviteResult{}, fmt.Errorf("workspace: invalid invite role %d", role)
	}
	if _, err := s.store.FindWorkspace(ctx, tc, workspaceID); err != nil {
		return InviteResult{}, err
	}

	now := s.now().UTC()
	inv := Invite{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Email:       email,
		Role:        role,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.inviteTTL),
	}
	token, hash, err := newInviteToken(inv.ID)
	if err != nil {
		return InviteResult{}, fmt.Errorf("workspace: mint invite token: %w", err)
	}
	inv.TokenHash = hash

	if err := s.store.CreateInvite(ctx, tc, &inv); err != nil {
		return InviteResult{}, err
	}

	s.publish("invite.created", tc, createdBy, workspaceID, map[string]string{
		"invite_id": inv.ID.String(),
		"email":     email,
		"role":      role.String(),
	})
	return InviteResult{Invite: inv, Token: token}, nil
}

// AcceptInvite redeems a presented token for the given user. Expired
// and already-accepted invites are rejected; a token whose secret does
// not match the stored hash is indistinguishable from an unknown one.
func (s *Service) AcceptInvite(ctx context.Context, token string, userID uuid.UUID) (*Member, error) {
	if userID == uuid.Nil {
		return nil, errors.New("workspace: user id is required")
	}
	id, presentedHash, err := parseInviteToken(token)
	if err != nil {
		return nil, err
	}

	inv, err := s.store.FindInviteForRedemption(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInviteInvalid
	}
	if err != nil {
		return nil, err
	}
	if !tokenHashMatches(inv.TokenHash, presentedHash) {
		return nil, ErrInviteInvalid
	}
	if inv.AcceptedAt != nil {
		return nil, ErrInviteAccepted
	}
	now := s.now().UTC()
	if !inv.ExpiresAt.After(now) {
		return nil, ErrInviteExpired
	}

	if err := s.store.RedeemInvite(ctx, inv, userID, now); err != nil {
		return nil, err
	}

	s.publish("invite.accepted", tenant.Context{}, userID, inv.WorkspaceID, map[string]string{
		"invite_id": inv.ID.String(),
	})
	return &Member{
		WorkspaceID: inv.WorkspaceID,
		UserID:      userID,
		Role:        inv.Role,
		AddedAt:     now,
	}, nil
}

func (s *Service) publish(event string, tc tenant.Context, userID, workspaceID uuid.UUID, extra map[string]string) {
	if s.audits == nil {
		return
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return
	}
	entry := audit.Entry{
		EventName:   event,
		EventType:   audit.EventTypeDomain,
		UserID:      userID.String(),
		WorkspaceID: workspaceID.String(),
		Payload:     raw,
	}
	if tc.AccountID != uuid.Nil {
		entry.AccountID = tc.AccountID.String()
	}
	s.audits.Publish(entry)
}
