package unified

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/shared"
)

const (
	// AggregateTypeRecord tags events about canonical records.
	AggregateTypeRecord = "UnifiedRecord"

	// EventTypeRecordPushed is saved to the outbox once per committed push.
	EventTypeRecordPushed = "unified.record.pushed"
)

// RecordPushedEvent carries the hydrated record of a committed push to the
// webhook fan-out. The event id doubles as the webhook correlation id.
type RecordPushedEvent struct {
	shared.BaseDomainEvent
	WebhookType  string          `json:"webhook_type"`
	ConnectionID uuid.UUID       `json:"connection_id"`
	Provider     string          `json:"provider"`
	Record       json.RawMessage `json:"record"`
}

// NewRecordPushedEvent snapshots view as JSON so the webhook sees exactly
// what the caller got back.
func NewRecordPushedEvent(conn *Connection, view *UnifiedRecord, created bool) (*RecordPushedEvent, error) {
	body, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	action := ActionUpdated
	if created {
		action = ActionCreated
	}
	return &RecordPushedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRecordPushed, AggregateTypeRecord, view.Record.ID, conn.TenantID),
		WebhookType:     EventType(view.Record.EntityType, action),
		ConnectionID:    conn.ID,
		Provider:        conn.Provider,
		Record:          body,
	}, nil
}
