package unified

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConnection() *Connection {
	return &Connection{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		Provider:     "echo",
		Category:     CategoryTicketing,
		LinkedUserID: "lu-1",
		Status:       ConnectionActive,
	}
}

func TestRecord_ApplyAdvancesModifiedAt(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	remote := "rt-1"
	rec := NewRecord(testConnection(), EntityTicket, &remote, map[string]any{"name": "Bug", "status": "open"}, now)

	rec.Apply(map[string]any{"status": "closed"}, now)

	assert.Equal(t, now, rec.CreatedAt)
	assert.True(t, rec.ModifiedAt.After(rec.CreatedAt))
	assert.Equal(t, "Bug", rec.Fields["name"])
	assert.Equal(t, "closed", rec.Fields["status"])

	later := now.Add(time.Hour)
	rec.Apply(nil, later)
	assert.Equal(t, later, rec.ModifiedAt)
}

func TestNewRecord_CopiesFields(t *testing.T) {
	fields := map[string]any{"name": "Bug"}
	rec := NewRecord(testConnection(), EntityTicket, nil, fields, time.Now())

	fields["name"] = "changed"
	assert.Equal(t, "Bug", rec.Fields["name"])
	assert.Nil(t, rec.RemoteID)
}

func TestUnifiedRecord_MarshalJSON(t *testing.T) {
	conn := testConnection()
	remote := "rt-1"
	rec := NewRecord(conn, EntityTicket, &remote, map[string]any{"name": "Bug & co"}, time.Now())

	t.Run("without snapshot", func(t *testing.T) {
		raw, err := json.Marshal(UnifiedRecord{Record: rec})
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, rec.ID.String(), got["id"])
		assert.Equal(t, "rt-1", got["remote_id"])
		assert.Equal(t, conn.ID.String(), got["connection_id"])
		assert.Equal(t, "Bug & co", got["name"])
		assert.Equal(t, map[string]any{}, got["field_mappings"])
		assert.Contains(t, got, "remote_data")
		assert.Nil(t, got["remote_data"])
	})

	t.Run("with overlay and snapshot", func(t *testing.T) {
		view := UnifiedRecord{
			Record:     rec,
			Overlay:    OverlayValues{{Slug: "priority_custom", Value: "high"}},
			RemoteData: json.RawMessage(`{"id":"rt-1"}`),
		}
		raw, err := json.Marshal(view)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, map[string]any{"priority_custom": "high"}, got["field_mappings"])
		assert.Equal(t, map[string]any{"id": "rt-1"}, got["remote_data"])
	})
}

func TestNewAuditEvent(t *testing.T) {
	conn := testConnection()
	ev := NewAuditEvent(conn, EventType(EntityTicket, ActionPush), "POST", AuditSuccess, DirectionOutbound, time.Now())

	assert.Equal(t, "ticketing.ticket.push", ev.Type)
	assert.Equal(t, conn.Provider, ev.Provider)
	assert.Equal(t, conn.TenantID, ev.TenantID)
	assert.Equal(t, "lu-1", ev.LinkedUserID)
}

func TestNewRecordPushedEvent(t *testing.T) {
	conn := testConnection()
	rec := NewRecord(conn, EntityTicket, nil, map[string]any{"name": "Bug"}, time.Now())

	created, err := NewRecordPushedEvent(conn, &UnifiedRecord{Record: rec}, true)
	require.NoError(t, err)
	assert.Equal(t, "ticketing.ticket.created", created.WebhookType)
	assert.Equal(t, EventTypeRecordPushed, created.EventType())
	assert.Equal(t, rec.ID, created.AggregateID())
	assert.Equal(t, conn.TenantID, created.TenantID())

	updated, err := NewRecordPushedEvent(conn, &UnifiedRecord{Record: rec}, false)
	require.NoError(t, err)
	assert.Equal(t, "ticketing.ticket.updated", updated.WebhookType)
}
