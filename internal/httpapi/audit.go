package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"quicklaunch.dev/internal/audit"
	"quicklaunch.dev/internal/rbac"
)

type listAuditResponse struct {
	Items []audit.Entry `json:"items"`
	AsOf  time.Time     `json:"as_of"`
}

func (a *API) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.authorize(w, r, rbac.OpAuditRead); !ok {
		return
	}
	if a.auditLog == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := a.auditLog.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit read failed")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, listAuditResponse{
		Items: entries,
		AsOf:  time.Now().UTC(),
	})
}

// auditEvent records an HTTP-level audit entry. The request id rides in
// the payload so operators can join audit rows with request logs.
func (a *API) auditEvent(r *http.Request, event, accountID, userID string, meta map[string]string) {
	if a.audits == nil {
		return
	}
	payload := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		payload[k] = v
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	a.audits.Publish(audit.Entry{
		EventName: event,
		EventType: audit.EventTypeDomain,
		AccountID: accountID,
		UserID:    userID,
		Payload:   raw,
	})
}
