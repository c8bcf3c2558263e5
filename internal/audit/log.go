package audit

import (
	"time"

	"quicklaunch.dev/internal/obs"
)

// logEntry mirrors an audit entry to the shared JSON log.
func logEntry(entry Entry) {
	line := map[string]any{
		"ts":    entry.OccurredAt.UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": entry.EventName,
	}
	if entry.AccountID != "" {
		line["account_id"] = entry.AccountID
	}
	if entry.WorkspaceID != "" {
		line["workspace_id"] = entry.WorkspaceID
	}
	if entry.UserID != "" {
		line["user_id"] = entry.UserID
	}
	if len(entry.Payload) > 0 {
		line["payload"] = string(entry.Payload)
	}
	obs.LogRequest(line)
}
