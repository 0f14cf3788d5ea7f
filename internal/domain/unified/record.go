package unified

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is a canonical entity row. (RemoteID, ConnectionID) is unique
// when RemoteID is set and is the upsert key of a sync cycle; ID is
// assigned here and never changes.
type Record struct {
	ID           uuid.UUID
	RemoteID     *string
	ConnectionID uuid.UUID
	TenantID     uuid.UUID
	EntityType   EntityType
	Fields       map[string]any
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// NewRecord creates a record with a fresh id.
func NewRecord(conn *Connection, entity EntityType, remoteID *string, fields map[string]any, now time.Time) *Record {
	now = now.UTC().Truncate(time.Microsecond)
	return &Record{
		ID:           uuid.New(),
		RemoteID:     remoteID,
		ConnectionID: conn.ID,
		TenantID:     conn.TenantID,
		EntityType:   entity,
		Fields:       cloneFields(fields),
		CreatedAt:    now,
		ModifiedAt:   now,
	}
}

// Apply overwrites the mutable fields from a newer sync cycle and moves
// ModifiedAt forward. Fields absent from the update are kept.
func (r *Record) Apply(fields map[string]any, now time.Time) {
	if r.Fields == nil {
		r.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		r.Fields[k] = v
	}
	r.Touch(now)
}

// Touch sets ModifiedAt to now, or one microsecond past the previous value
// when the clock has not advanced at storage precision.
func (r *Record) Touch(now time.Time) {
	now = now.UTC().Truncate(time.Microsecond)
	if floor := r.ModifiedAt.Add(time.Microsecond); now.Before(floor) {
		now = floor
	}
	r.ModifiedAt = now
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// UnifiedRecord is the caller-facing view of a record: canonical fields
// flattened next to the identity columns, overlay fields under
// field_mappings, and the optional raw snapshot under remote_data.
type UnifiedRecord struct {
	Record     *Record
	Overlay    OverlayValues
	RemoteData json.RawMessage
}

// MarshalJSON flattens canonical fields next to the record metadata.
func (u UnifiedRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Record.Fields)+8)
	for k, v := range u.Record.Fields {
		out[k] = v
	}
	out["id"] = u.Record.ID
	out["remote_id"] = u.Record.RemoteID
	out["connection_id"] = u.Record.ConnectionID
	out["created_at"] = u.Record.CreatedAt
	out["modified_at"] = u.Record.ModifiedAt
	overlay := u.Overlay
	if overlay == nil {
		overlay = OverlayValues{}
	}
	out["field_mappings"] = overlay
	if len(u.RemoteData) > 0 {
		out["remote_data"] = u.RemoteData
	} else {
		out["remote_data"] = nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
