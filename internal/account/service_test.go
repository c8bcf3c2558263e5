package account

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"quicklaunch.dev/internal/auth"
	"quicklaunch.dev/internal/rbac"
)

type memStore struct {
	accounts map[uuid.UUID]*Account
	users    map[uuid.UUID]*User
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uuid.UUID]*Account),
		users:    make(map[uuid.UUID]*User),
	}
}

func (s *memStore) FindAccount(_ context.Context, id uuid.UUID) (*Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return acc, nil
}

func (s *memStore) FindUser(_ context.Context, id uuid.UUID) (*User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *memStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return nil, ErrNotFound
}

func seedUser(t *testing.T, store *memStore, email, password, status string) *User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &User{
		ID:           uuid.New(),
		AccountID:    uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         rbac.RoleMember,
		Status:       status,
	}
	store.users[user.ID] = user
	return user
}

func TestAuthenticate(t *testing.T) {
	store := newMemStore()
	seeded := seedUser(t, store, "kim@example.com", "correct horse", StatusActive)
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	user, err := svc.Authenticate(context.Background(), "  Kim@Example.com ", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != seeded.ID {
		t.Fatalf("wrong user: %s", user.ID)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	store := newMemStore()
	seedUser(t, store, "kim@example.com", "correct horse", StatusActive)
	svc, _ := NewService(store)

	if _, err := svc.Authenticate(context.Background(), "kim@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc, _ := NewService(newMemStore())

	if _, err := svc.Authenticate(context.Background(), "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateSuspendedUser(t *testing.T) {
	store := newMemStore()
	seedUser(t, store, "kim@example.com", "correct horse", StatusSuspended)
	svc, _ := NewService(store)

	if _, err := svc.Authenticate(context.Background(), "kim@example.com", "correct horse"); !errors.Is(err, ErrUserSuspended) {
		t.Fatalf("expected ErrUserSuspended, got %v", err)
	}
}

func TestLookupSuspendedUser(t *testing.T) {
	store := newMemStore()
	user := seedUser(t, store, "kim@example.com", "correct horse", StatusSuspended)
	svc, _ := NewService(store)

	if _, err := svc.Lookup(context.Background(), user.ID); !errors.Is(err, ErrUserSuspended) {
		t.Fatalf("expected ErrUserSuspended, got %v", err)
	}
}
