package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"quicklaunch.dev/internal/account"
	"quicklaunch.dev/internal/impersonate"
	"quicklaunch.dev/internal/rbac"
)

type startImpersonationRequest struct {
	TargetUserID string `json:"target_user_id"`
	Reason       string `json:"reason"`
}

type startImpersonationResponse struct {
	Session        impersonate.Session `json:"session"`
	Token          string              `json:"token"`
	TokenExpiresAt time.Time           `json:"token_expires_at"`
}

type listSessionsResponse struct {
	Items []impersonate.Session `json:"items"`
	AsOf  time.Time             `json:"as_of"`
}

func (a *API) handleImpersonationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.startImpersonation(w, r)
	case http.MethodGet:
		a.listImpersonations(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleImpersonationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/impersonations/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "end" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "session not found")
		return
	}
	a.endImpersonation(w, r, id)
}

func (a *API) startImpersonation(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.authorize(w, r, rbac.OpImpersonationStart)
	if !ok {
		return
	}
	if actor.Impersonated() {
		writeError(w, r, http.StatusForbidden, "impersonated sessions cannot start further impersonations")
		return
	}

	var req startImpersonationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	targetID, err := uuid.Parse(strings.TrimSpace(req.TargetUserID))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "target_user_id must be a valid uuid")
		return
	}

	target, err := a.accounts.Lookup(r.Context(), targetID)
	switch {
	case errors.Is(err, account.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "target user not found")
		return
	case errors.Is(err, account.ErrUserSuspended):
		writeError(w, r, http.StatusConflict, "target user is suspended")
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "target lookup failed")
		return
	}

	res, err := a.sessions.Start(r.Context(), actor.UserID, impersonate.Target{
		UserID:    target.ID,
		AccountID: target.AccountID,
		Role:      target.Role,
	}, req.Reason)
	if err != nil {
		handleImpersonationError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/impersonations/"+res.Session.ID.String())
	writeJSON(w, http.StatusCreated, startImpersonationResponse{
		Session:        res.Session,
		Token:          res.Token,
		TokenExpiresAt: res.TokenExpiresAt,
	})
}

func (a *API) endImpersonation(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	actor, ok := a.authorize(w, r, rbac.OpImpersonationEnd)
	if !ok {
		return
	}

	session, err := a.sessions.End(r.Context(), id, actor.UserID)
	if err != nil {
		handleImpersonationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) listImpersonations(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.authorize(w, r, rbac.OpImpersonationList)
	if !ok {
		return
	}

	var (
		sessions []impersonate.Session
		err      error
	)
	switch view := r.URL.Query().Get("role"); view {
	case "", "admin":
		sessions, err = a.sessions.FindActiveByAdmin(r.Context(), actor.UserID)
	case "target":
		targetID, parseErr := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("user_id")))
		if parseErr != nil {
			writeError(w, r, http.StatusBadRequest, "user_id must be a valid uuid when role=target")
			return
		}
		var session *impersonate.Session
		session, err = a.sessions.FindActiveByTarget(r.Context(), targetID)
		if err == nil {
			sessions = []impersonate.Session{*session}
		} else if errors.Is(err, impersonate.ErrNotFound) {
			err = nil
		}
	default:
		writeError(w, r, http.StatusBadRequest, "role must be admin or target")
		return
	}
	if err != nil {
		handleImpersonationError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []impersonate.Session{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{
		Items: sessions,
		AsOf:  time.Now().UTC(),
	})
}

func handleImpersonationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, impersonate.ErrReasonTooShort),
		errors.Is(err, impersonate.ErrSelfImpersonation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, impersonate.ErrActiveSessionExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, impersonate.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "session not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "impersonation operation failed")
	}
}
