package httpapi

import (
	"net/http"
	"net/url"
	"testing"
)

func TestImpersonationFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken(api.superAdmin)
	headers := authHeaderFor(token)

	// Start a session against the member.
	resp := api.post("/v1/impersonations", map[string]any{
		"target_user_id": api.member.ID.String(),
		"reason":         "investigating a billing report",
	}, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected start status: %d", resp.StatusCode)
	}
	if resp.Header.Get("Location") == "" {
		t.Fatal("expected Location header")
	}
	started := decode[startImpersonationResponse](t, resp)
	if started.Token == "" {
		t.Fatal("expected delegated token")
	}
	sessionID := started.Session.ID

	// The delegated token authenticates as the member.
	resp = api.get("/v1/workspaces", nil, authHeaderFor(started.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delegated token rejected: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The delegated token must not start a nested impersonation.
	resp = api.post("/v1/impersonations", map[string]any{
		"target_user_id": api.admin.ID.String(),
		"reason":         "nested impersonation attempt",
	}, authHeaderFor(started.Token))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for nested impersonation, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The session shows up in the active list.
	resp = api.get("/v1/impersonations", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected list status: %d", resp.StatusCode)
	}
	listed := decode[listSessionsResponse](t, resp)
	if len(listed.Items) != 1 || listed.Items[0].ID != sessionID {
		t.Fatalf("unexpected active list: %+v", listed.Items)
	}

	// A second session against the same target conflicts.
	resp = api.post("/v1/impersonations", map[string]any{
		"target_user_id": api.member.ID.String(),
		"reason":         "duplicate session attempt",
	}, headers)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// End the session; a repeated end stays 200 and keeps ended_at.
	resp = api.post("/v1/impersonations/"+sessionID.String()+"/end", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected end status: %d", resp.StatusCode)
	}
	ended := decode[map[string]any](t, resp)
	firstEndedAt, ok := ended["ended_at"].(string)
	if !ok || firstEndedAt == "" {
		t.Fatalf("expected ended_at, got %v", ended)
	}

	resp = api.post("/v1/impersonations/"+sessionID.String()+"/end", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected repeated end status: %d", resp.StatusCode)
	}
	endedAgain := decode[map[string]any](t, resp)
	if endedAgain["ended_at"] != firstEndedAt {
		t.Fatalf("repeated end changed ended_at: %v vs %v", endedAgain["ended_at"], firstEndedAt)
	}

	// The list is empty again.
	resp = api.get("/v1/impersonations", nil, headers)
	listed = decode[listSessionsResponse](t, resp)
	if len(listed.Items) != 0 {
		t.Fatalf("expected empty list, got %+v", listed.Items)
	}
}

func TestImpersonationListByTarget(t *testing.T) {
	api := newTestAPI(t)
	headers := authHeaderFor(api.obtainToken(api.superAdmin))
	targetParams := url.Values{
		"role":    {"target"},
		"user_id": {api.member.ID.String()},
	}

	// No session yet.
	resp := api.get("/v1/impersonations", targetParams, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected list status: %d", resp.StatusCode)
	}
	listed := decode[listSessionsResponse](t, resp)
	if len(listed.Items) != 0 {
		t.Fatalf("expected empty list, got %+v", listed.Items)
	}

	resp = api.post("/v1/impersonations", map[string]any{
		"target_user_id": api.member.ID.String(),
		"reason":         "checking the target view",
	}, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected start status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/impersonations", targetParams, headers)
	listed = decode[listSessionsResponse](t, resp)
	if len(listed.Items) != 1 || listed.Items[0].TargetUserID != api.member.ID {
		t.Fatalf("unexpected target list: %+v", listed.Items)
	}

	// role=target needs a valid user_id.
	resp = api.get("/v1/impersonations", url.Values{"role": {"target"}}, headers)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without user_id, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/impersonations", url.Values{"role": {"bogus"}}, headers)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown view, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestImpersonationRequiresSuperAdmin(t *testing.T) {
	api := newTestAPI(t)
	headers := authHeaderFor(api.obtainToken(api.admin))

	resp := api.post("/v1/impersonations", map[string]any{
		"target_user_id": api.member.ID.String(),
		"reason":         "admins may not impersonate",
	}, headers)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	msg, _ := body["error"].(string)
	if msg == "" {
		t.Fatal("expected error message naming the required role")
	}
}

func TestImpersonationValidation(t *testing.T) {
	api := newTestAPI(t)
	headers := authHeaderFor(api.obtainToken(api.superAdmin))

	// Short reason.
	resp := api.post("/v1/impersonations", map[string]any{
		"target_user_id": api.member.ID.String(),
		"reason":         "short",
	}, headers)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for short reason, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown target.
	resp = api.post("/v1/impersonations", map[string]any{
		"target_user_id": "00000000-0000-0000-0000-000000000001",
		"reason":         "unknown target user id",
	}, headers)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown target, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Self-impersonation.
	resp = api.post("/v1/impersonations", map[string]any{
		"target_user_id": api.superAdmin.ID.String(),
		"reason":         "attempting self impersonation",
	}, headers)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for self impersonation, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown session end.
	resp = api.post("/v1/impersonations/00000000-0000-0000-0000-000000000002/end", nil, headers)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
