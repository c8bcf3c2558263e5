package rbac

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is a tier in the permission hierarchy. The numeric value is the
// hierarchy level: a higher level holds every privilege of the levels
// below it.
type Role uint8

const (
	RoleMember Role = iota + 1
	RoleAdmin
	RoleOwner
	RoleSuperAdmin
)

// Roles lists every valid role in ascending hierarchy order.
var Roles = []Role{RoleMember, RoleAdmin, RoleOwner, RoleSuperAdmin}

var roleNames = map[Role]string{
	RoleMember:     "member",
	RoleAdmin:      "admin",
	RoleOwner:      "owner",
	RoleSuperAdmin: "super_admin",
}

// Level returns the hierarchy level. Zero means "no role".
func (r Role) Level() int { return int(r) }

// Valid reports whether r is one of the four defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON renders the role by name on the wire.
func (r Role) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("rbac: cannot marshal invalid role %d", uint8(r))
	}
	return json.Marshal(r.String())
}

// UnmarshalJSON parses a role name.
func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	role, err := ParseRole(name)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// ParseRole maps a wire-format role name to its Role value.
func ParseRole(name string) (Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	for role, n := range roleNames {
		if n == name {
			return role, nil
		}
	}
	return 0, fmt.Errorf("rbac: unknown role %q", name)
}
