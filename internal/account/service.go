package account

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"quicklaunch.dev/internal/auth"
)

// Service answers directory questions for the rest of the system.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("account: store is required")
	}
	return &Service{store: store}, nil
}

// Authenticate verifies the password for the given email and returns
// the user. Unknown emails and wrong passwords are indistinguishable to
// the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != StatusActive {
		return nil, ErrUserSuspended
	}
	return user, nil
}

// Lookup returns the user by id. Suspended users resolve with
// ErrUserSuspended so callers cannot impersonate or act as them.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.store.FindUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Status != StatusActive {
		return nil, ErrUserSuspended
	}
	return user, nil
}

// LookupAccount returns the account record.
func (s *Service) LookupAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.store.FindAccount(ctx, id)
}
