package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"quicklaunch.dev/internal/account"
	"quicklaunch.dev/internal/audit"
	"quicklaunch.dev/internal/auth"
	"quicklaunch.dev/internal/impersonate"
	"quicklaunch.dev/internal/obs"
	"quicklaunch.dev/internal/rbac"
	"quicklaunch.dev/internal/workspace"
)

// ReadyProbe checks backing dependencies for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries the services the HTTP layer exposes.
type Deps struct {
	Issuer     *auth.Issuer
	Accounts   *account.Service
	Sessions   *impersonate.Service
	Workspaces *workspace.Service
	Gate       *rbac.Gate
	Audits     *audit.Publisher
	AuditLog   audit.Reader

	// Zero values fall back to defaults.
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	issuer     *auth.Issuer
	accounts   *account.Service
	sessions   *impersonate.Service
	workspaces *workspace.Service
	gate       *rbac.Gate
	audits     *audit.Publisher
	auditLog   audit.Reader

	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,

		issuer:     deps.Issuer,
		accounts:   deps.Accounts,
		sessions:   deps.Sessions,
		workspaces: deps.Workspaces,
		gate:       deps.Gate,
		audits:     deps.Audits,
		auditLog:   deps.AuditLog,

		rateBurst:    100,
		ratePerSec:   50,
		maxBodyBytes: 1 << 20,
	}
	if deps.RateBurst > 0 {
		a.rateBurst = deps.RateBurst
	}
	if deps.RatePerSec > 0 {
		a.ratePerSec = deps.RatePerSec
	}
	if deps.MaxBodyBytes > 0 {
		a.maxBodyBytes = deps.MaxBodyBytes
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/impersonations", a.handleImpersonationsCollection)
	a.mux.HandleFunc("/v1/impersonations/", a.handleImpersonationResource)

	a.mux.HandleFunc("/v1/workspaces", a.handleWorkspacesCollection)
	a.mux.HandleFunc("/v1/workspaces/", a.handleWorkspaceResource)
	a.mux.HandleFunc("/v1/invites/accept", a.handleInviteAccept)

	a.mux.HandleFunc("/v1/audit", a.handleAuditLog)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully assembled handler chain for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "quicklaunch-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "quicklaunch-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
