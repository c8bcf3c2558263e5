package rbac

import (
	"errors"
	"fmt"
)

// ErrRoleMissing indicates the caller carried no resolvable role.
var ErrRoleMissing = errors.New("rbac: role missing")

// DeniedError reports an insufficient role, naming both sides so the
// caller can surface required vs. actual in diagnostics.
type DeniedError struct {
	Operation string
	Required  Role
	Actual    Role
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rbac: %s requires at least %s, actor is %s", e.Operation, e.Required, e.Actual)
}

// Requirement is the set of roles declared for an operation. It is
// interpreted as "minimum sufficient role": a caller qualifies when its
// level reaches the lowest level among the declared roles. An empty
// requirement means the operation is not role-protected.
type Requirement []Role

// Gate decides whether an actor's role satisfies an operation's declared
// requirement. The operation table is resolved once at construction;
// there is no runtime registration.
type Gate struct {
	minLevel map[string]Role
}

// NewGate resolves the requirement table. Unknown roles in a requirement
// are a configuration error and fail construction.
func NewGate(requirements map[string]Requirement) (*Gate, error) {
	resolved := make(map[string]Role, len(requirements))
	for op, req := range requirements {
		if len(req) == 0 {
			continue
		}
		min := req[0]
		for _, role := range req {
			if !role.Valid() {
				return nil, fmt.Errorf("rbac: operation %s declares invalid role %d", op, role)
			}
			if role.Level() < min.Level() {
				min = role
			}
		}
		resolved[op] = min
	}
	return &Gate{minLevel: resolved}, nil
}

// Authorize grants or denies the operation for the given actor role.
//
// An operation absent from the table is unprotected and always allowed.
// A caller with no resolvable role is rejected with ErrRoleMissing; an
// insufficient role yields a *DeniedError.
func (g *Gate) Authorize(operation string, actor Role) error {
	required, ok := g.minLevel[operation]
	if !ok {
		return nil
	}
	if !actor.Valid() {
		return ErrRoleMissing
	}
	if actor.Level() >= required.Level() {
		return nil
	}
	return &DeniedError{Operation: operation, Required: required, Actual: actor}
}
