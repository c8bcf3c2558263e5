package rbac

import "testing"

func TestRoleOrdering(t *testing.T) {
	if !(RoleMember.Level() < RoleAdmin.Level() &&
		RoleAdmin.Level() < RoleOwner.Level() &&
		RoleOwner.Level() < RoleSuperAdmin.Level()) {
		t.Fatal("role levels are not strictly increasing")
	}
}

func TestParseRoleRoundTrip(t *testing.T) {
	for _, role := range Roles {
		parsed, err := ParseRole(role.String())
		if err != nil {
			t.Fatalf("parse %s: %v", role, err)
		}
		if parsed != role {
			t.Fatalf("round trip mismatch: %s -> %s", role, parsed)
		}
	}
}

func TestParseRoleNormalizes(t *testing.T) {
	parsed, err := ParseRole("  SUPER_ADMIN ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != RoleSuperAdmin {
		t.Fatalf("expected super_admin, got %s", parsed)
	}
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	if _, err := ParseRole("root"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestZeroRoleInvalid(t *testing.T) {
	var r Role
	if r.Valid() {
		t.Fatal("zero role must be invalid")
	}
	if r.String() != "unknown" {
		t.Fatalf("unexpected name: %s", r.String())
	}
}
