package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"quicklaunch.dev/internal/rbac"
	"quicklaunch.dev/internal/workspace"
)

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

type listWorkspacesResponse struct {
	Items []workspace.Workspace `json:"items"`
	AsOf  time.Time             `json:"as_of"`
}

type listMembersResponse struct {
	Items []workspace.Member `json:"items"`
}

type createInviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type createInviteResponse struct {
	Invite workspace.Invite `json:"invite"`
	Token  string           `json:"token"`
}

type acceptInviteRequest struct {
	Token string `json:"token"`
}

func (a *API) handleWorkspacesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createWorkspace(w, r)
	case http.MethodGet:
		a.listWorkspaces(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleWorkspaceResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/workspaces/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "workspace not found")
		return
	}
	switch parts[1] {
	case "members":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listMembers(w, r, id)
	case "invites":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.createInvite(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createWorkspace(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.authorize(w, r, rbac.OpWorkspaceCreate)
	if !ok {
		return
	}
	var req createWorkspaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ws, err := a.workspaces.Create(r.Context(), tenantScope(actor), actor.UserID, req.Name)
	if err != nil {
		handleWorkspaceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/workspaces/"+ws.ID.String())
	writeJSON(w, http.StatusCreated, ws)
}

func (a *API) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.authorize(w, r, rbac.OpWorkspaceList)
	if !ok {
		return
	}

	items, err := a.workspaces.List(r.Context(), tenantScope(actor))
	if err != nil {
		handleWorkspaceError(w, r, err)
		return
	}
	if items == nil {
		items = []workspace.Workspace{}
	}
	writeJSON(w, http.StatusOK, listWorkspacesResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request, workspaceID uuid.UUID) {
	actor, ok := a.authorize(w, r, rbac.OpWorkspaceMembers)
	if !ok {
		return
	}

	members, err := a.workspaces.Members(r.Context(), tenantScope(actor), workspaceID)
	if err != nil {
		handleWorkspaceError(w, r, err)
		return
	}
	if members == nil {
		members = []workspace.Member{}
	}
	writeJSON(w, http.StatusOK, listMembersResponse{Items: members})
}

func (a *API) createInvite(w http.ResponseWriter, r *http.Request, workspaceID uuid.UUID) {
	actor, ok := a.authorize(w, r, rbac.OpInviteCreate)
	if !ok {
		return
	}
	var req createInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "role must be one of member, admin, owner, super_admin")
		return
	}

	res, err := a.workspaces.CreateInvite(r.Context(), tenantScope(actor), actor.UserID, workspaceID, req.Email, role)
	if err != nil {
		handleWorkspaceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createInviteResponse{
		Invite: res.Invite,
		Token:  res.Token,
	})
}

func (a *API) handleInviteAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.authorize(w, r, rbac.OpInviteAccept)
	if !ok {
		return
	}
	var req acceptInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	member, err := a.workspaces.AcceptInvite(r.Context(), strings.TrimSpace(req.Token), actor.UserID)
	if err != nil {
		handleWorkspaceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func handleWorkspaceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, workspace.ErrInvalidName):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, workspace.ErrNameTaken):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, workspace.ErrInviteInvalid):
		writeError(w, r, http.StatusNotFound, "invite not found")
	case errors.Is(err, workspace.ErrInviteExpired):
		writeError(w, r, http.StatusGone, err.Error())
	case errors.Is(err, workspace.ErrInviteAccepted):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, workspace.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "workspace not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "workspace operation failed")
	}
}
