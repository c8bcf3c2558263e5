package auth

import (
	"context"

	"github.com/google/uuid"

	"quicklaunch.dev/internal/rbac"
)

// Actor is the authenticated identity attached to a request.
type Actor struct {
	UserID    uuid.UUID
	AccountID uuid.UUID
	Role      rbac.Role

	// ImpersonationSessionID is set when the request runs under a
	// delegated token minted by an impersonation session.
	ImpersonationSessionID uuid.UUID
}

// Impersonated reports whether the actor operates under a delegated token.
func (a Actor) Impersonated() bool {
	return a.ImpersonationSessionID != uuid.Nil
}

type actorContextKey struct{}

// ContextWithActor attaches the authenticated actor to the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the authenticated actor from the context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.UserID == uuid.Nil {
		return Actor{}, false
	}
	return actor, true
}

// ActorFromClaims builds an Actor from verified token claims.
func ActorFromClaims(claims *Claims) (Actor, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, ErrInvalidToken
	}
	accountID, err := uuid.Parse(claims.AccountID)
	if err != nil {
		return Actor{}, ErrInvalidToken
	}
	role, err := rbac.ParseRole(claims.Role)
	if err != nil {
		return Actor{}, ErrInvalidToken
	}
	actor := Actor{UserID: userID, AccountID: accountID, Role: role}
	if claims.ImpersonationSessionID != "" {
		sessionID, err := uuid.Parse(claims.ImpersonationSessionID)
		if err != nil {
			return Actor{}, ErrInvalidToken
		}
		actor.ImpersonationSessionID = sessionID
	}
	return actor, nil
}
