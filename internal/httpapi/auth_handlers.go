package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"quicklaunch.dev/internal/account"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.accounts == nil || a.issuer == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication unavailable")
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := a.accounts.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	case errors.Is(err, account.ErrUserSuspended):
		writeError(w, r, http.StatusForbidden, "user is suspended")
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "authentication failed")
		return
	}

	token, expiresAt, err := a.issuer.Issue(user.ID, user.AccountID, user.Role)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	a.auditEvent(r, "auth.token.issued", user.AccountID.String(), user.ID.String(), map[string]string{
		"role":       user.Role.String(),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Role:      user.Role.String(),
	})
}
