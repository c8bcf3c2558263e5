package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"quicklaunch.dev/internal/auth"
	"quicklaunch.dev/internal/rbac"
	"quicklaunch.dev/internal/tenant"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a.issuer == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="quicklaunch"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.issuer.ParseAndValidate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="quicklaunch", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		actor, err := auth.ActorFromClaims(claims)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="quicklaunch", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithActor(r.Context(), actor)))
	})
}

// authorize resolves the actor and checks the operation's role
// requirement. It writes the error response itself; callers bail out
// when ok is false.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, operation string) (auth.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="quicklaunch"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Actor{}, false
	}
	if a.gate == nil {
		return actor, true
	}

	err := a.gate.Authorize(operation, actor.Role)
	if err == nil {
		return actor, true
	}
	var denied *rbac.DeniedError
	switch {
	case errors.Is(err, rbac.ErrRoleMissing):
		w.Header().Set("WWW-Authenticate", `Bearer realm="quicklaunch"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.As(err, &denied):
		writeError(w, r, http.StatusForbidden, denied.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "authorization error")
	}
	return auth.Actor{}, false
}

// tenantScope derives the row-level-security scope from the actor. Only
// a platform operator bypasses tenancy.
func tenantScope(actor auth.Actor) tenant.Context {
	return tenant.Context{
		AccountID: actor.AccountID,
		IsAdmin:   actor.Role == rbac.RoleSuperAdmin,
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
