package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/unified"
	"gorm.io/datatypes"
)

// TenantModel is the persistence model for tenants.
type TenantModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (TenantModel) TableName() string {
	return "tenants"
}

func (m *TenantModel) ToDomain() *unified.Tenant {
	return &unified.Tenant{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt}
}

func TenantModelFromDomain(t *unified.Tenant) *TenantModel {
	return &TenantModel{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

// ConnectionModel is the persistence model for provider connections.
type ConnectionModel struct {
	ID           uuid.UUID                `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID                `gorm:"type:uuid;not null;index"`
	Provider     string                   `gorm:"type:varchar(64);not null"`
	Category     unified.Category         `gorm:"type:varchar(32);not null"`
	LinkedUserID string                   `gorm:"type:varchar(255)"`
	Status       unified.ConnectionStatus `gorm:"type:varchar(20);not null"`
	CreatedAt    time.Time                `gorm:"not null"`
}

func (ConnectionModel) TableName() string {
	return "connections"
}

func (m *ConnectionModel) ToDomain() *unified.Connection {
	return &unified.Connection{
		ID:           m.ID,
		TenantID:     m.TenantID,
		Provider:     m.Provider,
		Category:     m.Category,
		LinkedUserID: m.LinkedUserID,
		Status:       m.Status,
		CreatedAt:    m.CreatedAt,
	}
}

func ConnectionModelFromDomain(c *unified.Connection) *ConnectionModel {
	return &ConnectionModel{
		ID:           c.ID,
		TenantID:     c.TenantID,
		Provider:     c.Provider,
		Category:     c.Category,
		LinkedUserID: c.LinkedUserID,
		Status:       c.Status,
		CreatedAt:    c.CreatedAt,
	}
}

// RecordModel is the persistence model for canonical records. The unique
// index on (remote_id, connection_id) ignores rows whose remote_id is NULL.
type RecordModel struct {
	ID           uuid.UUID          `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID          `gorm:"type:uuid;not null;index:idx_records_tenant_entity,priority:1"`
	ConnectionID uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_records_remote_conn,priority:2;index:idx_records_page,priority:1"`
	RemoteID     *string            `gorm:"type:varchar(255);uniqueIndex:idx_records_remote_conn,priority:1"`
	EntityType   unified.EntityType `gorm:"type:varchar(32);not null;index:idx_records_tenant_entity,priority:2;index:idx_records_page,priority:2"`
	Fields       datatypes.JSON     `gorm:"not null"`
	CreatedAt    time.Time          `gorm:"not null;index:idx_records_page,priority:3"`
	ModifiedAt   time.Time          `gorm:"not null"`
}

func (RecordModel) TableName() string {
	return "unified_records"
}

func (m *RecordModel) ToDomain() (*unified.Record, error) {
	fields, err := decodeObject(m.Fields)
	if err != nil {
		return nil, err
	}
	return &unified.Record{
		ID:           m.ID,
		RemoteID:     m.RemoteID,
		ConnectionID: m.ConnectionID,
		TenantID:     m.TenantID,
		EntityType:   m.EntityType,
		Fields:       fields,
		CreatedAt:    m.CreatedAt.UTC(),
		ModifiedAt:   m.ModifiedAt.UTC(),
	}, nil
}

func RecordModelFromDomain(r *unified.Record) (*RecordModel, error) {
	fields := r.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return &RecordModel{
		ID:           r.ID,
		TenantID:     r.TenantID,
		ConnectionID: r.ConnectionID,
		RemoteID:     r.RemoteID,
		EntityType:   r.EntityType,
		Fields:       datatypes.JSON(raw),
		CreatedAt:    r.CreatedAt,
		ModifiedAt:   r.ModifiedAt,
	}, nil
}

// OverlayRuleModel maps one tenant overlay slug to a provider field.
type OverlayRuleModel struct {
	ID           uuid.UUID          `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_overlay_rules_scope_slug,priority:1"`
	Provider     string             `gorm:"type:varchar(64);not null;uniqueIndex:idx_overlay_rules_scope_slug,priority:2"`
	EntityType   unified.EntityType `gorm:"type:varchar(32);not null;uniqueIndex:idx_overlay_rules_scope_slug,priority:3"`
	Slug         string             `gorm:"type:varchar(128);not null;uniqueIndex:idx_overlay_rules_scope_slug,priority:4"`
	RemoteField  string             `gorm:"type:varchar(255);not null"`
	DefaultValue datatypes.JSON
	Position     int       `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (OverlayRuleModel) TableName() string {
	return "overlay_rules"
}

func (m *OverlayRuleModel) ToDomain() (unified.OverlayRule, error) {
	rule := unified.OverlayRule{Slug: m.Slug, RemoteField: m.RemoteField, Position: m.Position}
	if len(m.DefaultValue) > 0 {
		v, err := DecodeValue(m.DefaultValue)
		if err != nil {
			return rule, err
		}
		rule.Default = v
	}
	return rule, nil
}

// OverlayValueModel is one overlay field of a record.
type OverlayValueModel struct {
	ID       uuid.UUID      `gorm:"type:uuid;primaryKey"`
	RecordID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_overlay_values_record_slug,priority:1"`
	Slug     string         `gorm:"type:varchar(128);not null;uniqueIndex:idx_overlay_values_record_slug,priority:2"`
	Value    datatypes.JSON `gorm:"not null"`
	Position int            `gorm:"not null"`
}

func (OverlayValueModel) TableName() string {
	return "overlay_values"
}

// SnapshotModel holds the latest raw provider payload of a record. Payload
// is empty when the body was offloaded to ObjectKey.
type SnapshotModel struct {
	RecordID   uuid.UUID      `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID      `gorm:"type:uuid;not null;index"`
	Payload    datatypes.JSON
	ObjectKey  string    `gorm:"type:varchar(512)"`
	CapturedAt time.Time `gorm:"not null"`
}

func (SnapshotModel) TableName() string {
	return "raw_snapshots"
}

func (m *SnapshotModel) ToDomain() *unified.RawSnapshot {
	return &unified.RawSnapshot{
		RecordID:   m.RecordID,
		TenantID:   m.TenantID,
		Payload:    json.RawMessage(m.Payload),
		ObjectKey:  m.ObjectKey,
		CapturedAt: m.CapturedAt.UTC(),
	}
}

// AuditEventModel is append-only.
type AuditEventModel struct {
	ID           uuid.UUID           `gorm:"type:uuid;primaryKey"`
	ConnectionID uuid.UUID           `gorm:"type:uuid;not null;index:idx_audit_conn_ts,priority:1"`
	TenantID     uuid.UUID           `gorm:"type:uuid;not null;index"`
	Type         string              `gorm:"type:varchar(128);not null"`
	Method       string              `gorm:"type:varchar(16);not null"`
	Status       unified.AuditStatus `gorm:"type:varchar(16);not null"`
	Provider     string              `gorm:"type:varchar(64);not null"`
	Direction    unified.Direction   `gorm:"type:varchar(16);not null"`
	Timestamp    time.Time           `gorm:"column:occurred_at;not null;index:idx_audit_conn_ts,priority:2"`
	LinkedUserID string              `gorm:"type:varchar(255)"`
}

func (AuditEventModel) TableName() string {
	return "audit_events"
}

func (m *AuditEventModel) ToDomain() *unified.AuditEvent {
	return &unified.AuditEvent{
		ID:           m.ID,
		ConnectionID: m.ConnectionID,
		TenantID:     m.TenantID,
		Type:         m.Type,
		Method:       m.Method,
		Status:       m.Status,
		Provider:     m.Provider,
		Direction:    m.Direction,
		Timestamp:    m.Timestamp.UTC(),
		LinkedUserID: m.LinkedUserID,
	}
}

func AuditEventModelFromDomain(e *unified.AuditEvent) *AuditEventModel {
	return &AuditEventModel{
		ID:           e.ID,
		ConnectionID: e.ConnectionID,
		TenantID:     e.TenantID,
		Type:         e.Type,
		Method:       e.Method,
		Status:       e.Status,
		Provider:     e.Provider,
		Direction:    e.Direction,
		Timestamp:    e.Timestamp,
		LinkedUserID: e.LinkedUserID,
	}
}

// WebhookEndpointModel is a tenant's webhook subscription.
type WebhookEndpointModel struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID      `gorm:"type:uuid;not null;index"`
	URL        string         `gorm:"type:varchar(1024);not null"`
	Secret     string         `gorm:"type:varchar(255)"`
	EventTypes datatypes.JSON `gorm:"not null"`
	Active     bool           `gorm:"not null;default:true"`
	CreatedAt  time.Time      `gorm:"not null"`
}

func (WebhookEndpointModel) TableName() string {
	return "webhook_endpoints"
}

func (m *WebhookEndpointModel) ToDomain() (*unified.WebhookEndpoint, error) {
	var types []string
	if len(m.EventTypes) > 0 {
		if err := json.Unmarshal(m.EventTypes, &types); err != nil {
			return nil, err
		}
	}
	return &unified.WebhookEndpoint{
		ID:         m.ID,
		TenantID:   m.TenantID,
		URL:        m.URL,
		Secret:     m.Secret,
		EventTypes: types,
		Active:     m.Active,
		CreatedAt:  m.CreatedAt,
	}, nil
}

func WebhookEndpointModelFromDomain(w *unified.WebhookEndpoint) (*WebhookEndpointModel, error) {
	types := w.EventTypes
	if types == nil {
		types = []string{}
	}
	raw, err := json.Marshal(types)
	if err != nil {
		return nil, err
	}
	return &WebhookEndpointModel{
		ID:         w.ID,
		TenantID:   w.TenantID,
		URL:        w.URL,
		Secret:     w.Secret,
		EventTypes: datatypes.JSON(raw),
		Active:     w.Active,
		CreatedAt:  w.CreatedAt,
	}, nil
}

// UnifiedModels lists every model of the sync pipeline, for AutoMigrate in
// tests and local development.
func UnifiedModels() []any {
	return []any{
		&TenantModel{},
		&ConnectionModel{},
		&RecordModel{},
		&OverlayRuleModel{},
		&OverlayValueModel{},
		&SnapshotModel{},
		&AuditEventModel{},
		&WebhookEndpointModel{},
		&OutboxEntryModel{},
	}
}

// decodeObject keeps numbers as json.Number so values round-trip exactly.
func decodeObject(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeValue decodes a stored JSON scalar or document.
func DecodeValue(raw []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
