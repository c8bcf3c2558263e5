package rbac

// Operation identifiers used across the HTTP layer.
const (
	OpImpersonationStart = "impersonation.start"
	OpImpersonationEnd   = "impersonation.end"
	OpImpersonationList  = "impersonation.list"
	OpWorkspaceCreate    = "workspace.create"
	OpWorkspaceList      = "workspace.list"
	OpWorkspaceMembers   = "workspace.members"
	OpInviteCreate       = "invite.create"
	OpInviteAccept       = "invite.accept"
	OpAuditRead          = "audit.read"
)

// DefaultRequirements is the static route-protection table. Declaring
// RoleMember means "any authenticated user"; operations not listed here
// are unprotected.
var DefaultRequirements = map[string]Requirement{
	OpImpersonationStart: {RoleSuperAdmin},
	OpImpersonationEnd:   {RoleSuperAdmin},
	OpImpersonationList:  {RoleSuperAdmin},
	OpWorkspaceCreate:    {RoleAdmin},
	OpWorkspaceList:      {RoleMember},
	OpWorkspaceMembers:   {RoleMember},
	OpInviteCreate:       {RoleAdmin},
	OpInviteAccept:       {RoleMember},
	OpAuditRead:          {RoleSuperAdmin},
}
