package unified

import (
	"context"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/shared"
)

// TenantRepository reads tenants.
type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	Save(ctx context.Context, tenant *Tenant) error
}

// ConnectionRepository reads connections within a tenant.
type ConnectionRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Connection, error)
	Save(ctx context.Context, conn *Connection) error
}

// RecordRepository persists canonical records.
type RecordRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Record, error)
	FindByRemoteID(ctx context.Context, connectionID uuid.UUID, remoteID string) (*Record, error)
	// ExistingIDs returns the subset of ids that are records of entity in
	// tenant scope.
	ExistingIDs(ctx context.Context, tenantID uuid.UUID, entity EntityType, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	// Create fails with shared.ErrAlreadyExists when (remote_id,
	// connection_id) is taken. The enclosing transaction stays usable.
	Create(ctx context.Context, record *Record) error
	Update(ctx context.Context, record *Record) error
	// ListPage returns up to q.Size records in (created_at, id) order.
	ListPage(ctx context.Context, q PageQuery) ([]*Record, error)
}

// PageQuery selects one page of records.
type PageQuery struct {
	TenantID     uuid.UUID
	ConnectionID uuid.UUID
	EntityType   EntityType
	// Start is the first record of the page; nil starts at the beginning.
	Start *Record
	Size  int
}

// OverlayRepository is the field-mapping overlay store.
type OverlayRepository interface {
	// Rules returns the rules for (provider, tenant, entity) in position order.
	Rules(ctx context.Context, tenantID uuid.UUID, provider string, entity EntityType) (OverlayRules, error)
	SaveRule(ctx context.Context, tenantID uuid.UUID, provider string, entity EntityType, rule OverlayRule) error
	// Values returns a record's overlay in stored order.
	Values(ctx context.Context, recordID uuid.UUID) (OverlayValues, error)
	// Put replaces a record's overlay set.
	Put(ctx context.Context, recordID uuid.UUID, values OverlayValues) error
}

// SnapshotRepository keeps the latest raw provider payload per record.
type SnapshotRepository interface {
	// Latest returns nil without error when the record has no snapshot.
	Latest(ctx context.Context, recordID uuid.UUID) (*RawSnapshot, error)
	Replace(ctx context.Context, snap *RawSnapshot) error
}

// AuditRepository appends audit events.
type AuditRepository interface {
	Append(ctx context.Context, event *AuditEvent) error
	ListByConnection(ctx context.Context, tenantID, connectionID uuid.UUID, limit int) ([]*AuditEvent, error)
}

// EventSink saves domain events for post-commit delivery.
type EventSink interface {
	Save(ctx context.Context, events ...shared.DomainEvent) error
}

// Stores groups the repositories that share one transaction.
type Stores interface {
	Tenants() TenantRepository
	Connections() ConnectionRepository
	Records() RecordRepository
	Overlays() OverlayRepository
	Snapshots() SnapshotRepository
	Audits() AuditRepository
	Events() EventSink
}

// UnitOfWork runs fn against stores bound to one transaction. Everything
// fn writes, events included, commits together or not at all.
type UnitOfWork interface {
	Stores() Stores
	Do(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
