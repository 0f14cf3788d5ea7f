package unified

import (
	"time"

	"github.com/google/uuid"
)

// AuditStatus is the outcome recorded on an audit event.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFail    AuditStatus = "fail"
)

// Direction tells which way data moved relative to the hub.
type Direction string

const (
	// DirectionOutbound is hub -> provider (push).
	DirectionOutbound Direction = "outbound"
	// DirectionInbound is provider data served from the hub (pull).
	DirectionInbound Direction = "inbound"
)

// AuditEvent is append-only; nothing updates it once written.
type AuditEvent struct {
	ID           uuid.UUID   `json:"id"`
	ConnectionID uuid.UUID   `json:"connection_id"`
	TenantID     uuid.UUID   `json:"tenant_id"`
	Type         string      `json:"type"`
	Method       string      `json:"method"`
	Status       AuditStatus `json:"status"`
	Provider     string      `json:"provider"`
	Direction    Direction   `json:"direction"`
	Timestamp    time.Time   `json:"timestamp"`
	LinkedUserID string      `json:"linked_user_id,omitempty"`
}

// NewAuditEvent stamps an event for the given connection.
func NewAuditEvent(conn *Connection, eventType, method string, status AuditStatus, dir Direction, now time.Time) *AuditEvent {
	return &AuditEvent{
		ID:           uuid.New(),
		ConnectionID: conn.ID,
		TenantID:     conn.TenantID,
		Type:         eventType,
		Method:       method,
		Status:       status,
		Provider:     conn.Provider,
		Direction:    dir,
		Timestamp:    now.UTC(),
		LinkedUserID: conn.LinkedUserID,
	}
}
