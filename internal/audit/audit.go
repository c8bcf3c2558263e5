package audit

import (
	"context"
	"encoding/json"
	"time"
)

// EventType distinguishes events raised by the domain itself from those
// triggered by external integrations.
const (
	EventTypeDomain      = "domain"
	EventTypeIntegration = "integration"
)

// Entry is one append-only audit record. Scope fields are optional; an
// entry may relate to a workspace, an account, a user, any combination,
// or none of them.
type Entry struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	AccountID   string          `json:"account_id,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	EventName   string          `json:"event_name"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Store appends immutable entries. The application never updates or
// deletes audit rows.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
}

// Reader serves the admin-only audit surface.
type Reader interface {
	// Recent returns the newest entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
