package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"quicklaunch.dev/internal/account"
	"quicklaunch.dev/internal/audit"
	"quicklaunch.dev/internal/auth"
	"quicklaunch.dev/internal/impersonate"
	"quicklaunch.dev/internal/rbac"
	"quicklaunch.dev/internal/tenant"
	"quicklaunch.dev/internal/workspace"
)

// --- in-memory stores ---

type memDirectory struct {
	mu    sync.Mutex
	users map[uuid.UUID]*account.User
}

func (s *memDirectory) FindAccount(_ context.Context, id uuid.UUID) (*account.Account, error) {
	return &account.Account{ID: id, Name: "test"}, nil
}

func (s *memDirectory) FindUser(_ context.Context, id uuid.UUID) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return user, nil
}

func (s *memDirectory) FindUserByEmail(_ context.Context, email string) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return nil, account.ErrNotFound
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*impersonate.Session
}

func (s *memSessions) Create(_ context.Context, session *impersonate.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.TargetUserID == session.TargetUserID && existing.IsActive(session.StartedAt) {
			return impersonate.ErrActiveSessionExists
		}
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *memSessions) Find(_ context.Context, id uuid.UUID) (*impersonate.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, impersonate.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *memSessions) End(_ context.Context, id uuid.UUID, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return impersonate.ErrNotFound
	}
	if session.EndedAt == nil {
		session.EndedAt = &endedAt
	}
	return nil
}

func (s *memSessions) FindActiveByAdmin(_ context.Context, adminUserID uuid.UUID, now time.Time) ([]impersonate.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []impersonate.Session
	for _, session := range s.sessions {
		if session.AdminUserID == adminUserID && session.IsActive(now) {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (s *memSessions) FindActiveByTarget(_ context.Context, targetUserID uuid.UUID, now time.Time) (*impersonate.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.TargetUserID == targetUserID && session.IsActive(now) {
			copied := *session
			return &copied, nil
		}
	}
	return nil, impersonate.ErrNotFound
}

type memWorkspaces struct {
	mu         sync.Mutex
	workspaces map[uuid.UUID]*workspace.Workspace
	members    map[uuid.UUID][]workspace.Member
	invites    map[uuid.UUID]*workspace.Invite
}

func (s *memWorkspaces) visible(tc tenant.Context, accountID uuid.UUID) bool {
	return tc.IsAdmin || tc.AccountID == accountID
}

func (s *memWorkspaces) CreateWorkspace(_ context.Context, _ tenant.Context, ws *workspace.Workspace, owner *workspace.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *ws
	s.workspaces[ws.ID] = &copied
	s.members[ws.ID] = append(s.members[ws.ID], *owner)
	return nil
}

func (s *memWorkspaces) FindWorkspace(_ context.Context, tc tenant.Context, id uuid.UUID) (*workspace.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok || !s.visible(tc, ws.AccountID) {
		return nil, workspace.ErrNotFound
	}
	copied := *ws
	return &copied, nil
}

func (s *memWorkspaces) ListWorkspaces(_ context.Context, tc tenant.Context) ([]workspace.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []workspace.Workspace
	for _, ws := range s.workspaces {
		if s.visible(tc, ws.AccountID) {
			out = append(out, *ws)
		}
	}
	return out, nil
}

func (s *memWorkspaces) ListMembers(_ context.Context, _ tenant.Context, workspaceID uuid.UUID) ([]workspace.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[workspaceID], nil
}

func (s *memWorkspaces) CreateInvite(_ context.Context, _ tenant.Context, inv *workspace.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *inv
	s.invites[inv.ID] = &copied
	return nil
}

func (s *memWorkspaces) FindInviteForRedemption(_ context.Context, id uuid.UUID) (*workspace.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok {
		return nil, workspace.ErrNotFound
	}
	copied := *inv
	return &copied, nil
}

func (s *memWorkspaces) RedeemInvite(_ context.Context, inv *workspace.Invite, userID uuid.UUID, acceptedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.invites[inv.ID]
	if !ok {
		return workspace.ErrNotFound
	}
	if stored.AcceptedAt != nil {
		return workspace.ErrInviteAccepted
	}
	stored.AcceptedAt = &acceptedAt
	stored.AcceptedBy = &userID
	s.members[inv.WorkspaceID] = append(s.members[inv.WorkspaceID], workspace.Member{
		WorkspaceID: inv.WorkspaceID,
		UserID:      userID,
		Role:        inv.Role,
		AddedAt:     acceptedAt,
	})
	return nil
}

type memAuditLog struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *memAuditLog) append(entries ...audit.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
}

func (s *memAuditLog) Recent(_ context.Context, limit int) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]audit.Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// --- test fixture ---

type seededUser struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Email     string
	Password  string
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	directory *memDirectory
	auditLog  *memAuditLog

	superAdmin seededUser
	admin      seededUser
	member     seededUser
	outsider   seededUser
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	issuer, err := auth.NewIssuer("test-secret-test-secret-test-secret")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	directory := &memDirectory{users: make(map[uuid.UUID]*account.User)}
	accounts, err := account.NewService(directory)
	if err != nil {
		t.Fatalf("account service: %v", err)
	}

	sessions, err := impersonate.NewService(
		&memSessions{sessions: make(map[uuid.UUID]*impersonate.Session)}, issuer, nil)
	if err != nil {
		t.Fatalf("impersonate service: %v", err)
	}

	workspaces, err := workspace.NewService(&memWorkspaces{
		workspaces: make(map[uuid.UUID]*workspace.Workspace),
		members:    make(map[uuid.UUID][]workspace.Member),
		invites:    make(map[uuid.UUID]*workspace.Invite),
	}, nil)
	if err != nil {
		t.Fatalf("workspace service: %v", err)
	}

	gate, err := rbac.NewGate(rbac.DefaultRequirements)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}

	auditLog := &memAuditLog{}

	api := New(ReadyProbe{}, "test", Deps{
		Issuer:     issuer,
		Accounts:   accounts,
		Sessions:   sessions,
		Workspaces: workspaces,
		Gate:       gate,
		AuditLog:   auditLog,
	})
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	c := &apiClient{
		baseURL:   srv.URL,
		client:    srv.Client(),
		t:         t,
		directory: directory,
		auditLog:  auditLog,
	}

	mainAccount := uuid.New()
	otherAccount := uuid.New()
	c.superAdmin = c.seedUser("root@example.com", mainAccount, rbac.RoleSuperAdmin)
	c.admin = c.seedUser("admin@example.com", mainAccount, rbac.RoleAdmin)
	c.member = c.seedUser("member@example.com", mainAccount, rbac.RoleMember)
	c.outsider = c.seedUser("outsider@example.com", otherAccount, rbac.RoleAdmin)
	return c
}

func (c *apiClient) seedUser(email string, accountID uuid.UUID, role rbac.Role) seededUser {
	c.t.Helper()
	password := "password-for-" + email
	hash, err := auth.HashPassword(password)
	if err != nil {
		c.t.Fatalf("hash password: %v", err)
	}
	user := &account.User{
		ID:           uuid.New(),
		AccountID:    accountID,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       account.StatusActive,
	}
	c.directory.mu.Lock()
	c.directory.users[user.ID] = user
	c.directory.mu.Unlock()
	return seededUser{ID: user.ID, AccountID: accountID, Email: email, Password: password}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(user seededUser) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{
		"email":    user.Email,
		"password": user.Password,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func authHeaderFor(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// --- basic endpoint tests ---

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestTokenEndpoint(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/token", map[string]any{
		"email":    api.member.Email,
		"password": api.member.Password,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	payload := decode[tokenResponse](t, resp)
	if payload.Role != "member" {
		t.Fatalf("unexpected role: %s", payload.Role)
	}
	if !payload.ExpiresAt.After(time.Now()) {
		t.Fatalf("token already expired: %v", payload.ExpiresAt)
	}
}

func TestTokenEndpointRejectsBadCredentials(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/token", map[string]any{
		"email":    api.member.Email,
		"password": "wrong",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = api.post("/v1/auth/token", map[string]any{"email": ""}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/workspaces", map[string]any{"name": "x"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
	errBody := decode[map[string]any](t, resp)
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}
}
