package persistence

import (
	"context"

	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
	"gorm.io/gorm"
)

// GormUnitOfWork hands out repositories bound to one *gorm.DB, either the
// pool or an open transaction.
type GormUnitOfWork struct {
	db               *gorm.DB
	outbox           shared.OutboxEventSaver
	blobs            unified.BlobStore
	offloadThreshold int
}

// UnitOfWorkOption configures a GormUnitOfWork
type UnitOfWorkOption func(*GormUnitOfWork)

// WithSnapshotOffload sends raw snapshots larger than threshold bytes to blobs.
func WithSnapshotOffload(blobs unified.BlobStore, threshold int) UnitOfWorkOption {
	return func(u *GormUnitOfWork) {
		u.blobs = blobs
		u.offloadThreshold = threshold
	}
}

func NewGormUnitOfWork(db *gorm.DB, outbox shared.OutboxEventSaver, opts ...UnitOfWorkOption) *GormUnitOfWork {
	u := &GormUnitOfWork{db: db, outbox: outbox}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Stores returns repositories outside any transaction.
func (u *GormUnitOfWork) Stores() unified.Stores {
	return u.bind(u.db)
}

// Do commits when fn returns nil and rolls back otherwise.
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, stores unified.Stores) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, u.bind(tx))
	})
}

func (u *GormUnitOfWork) bind(db *gorm.DB) *gormStores {
	return &gormStores{
		tenants:     NewGormTenantRepository(db),
		connections: NewGormConnectionRepository(db),
		records:     NewGormRecordRepository(db),
		overlays:    NewGormOverlayRepository(db),
		snapshots:   NewGormSnapshotRepository(db, u.blobs, u.offloadThreshold),
		audits:      NewGormAuditRepository(db),
		events:      &outboxSink{db: db, saver: u.outbox},
	}
}

type gormStores struct {
	tenants     *GormTenantRepository
	connections *GormConnectionRepository
	records     *GormRecordRepository
	overlays    *GormOverlayRepository
	snapshots   *GormSnapshotRepository
	audits      *GormAuditRepository
	events      *outboxSink
}

func (s *gormStores) Tenants() unified.TenantRepository         { return s.tenants }
func (s *gormStores) Connections() unified.ConnectionRepository { return s.connections }
func (s *gormStores) Records() unified.RecordRepository         { return s.records }
func (s *gormStores) Overlays() unified.OverlayRepository       { return s.overlays }
func (s *gormStores) Snapshots() unified.SnapshotRepository     { return s.snapshots }
func (s *gormStores) Audits() unified.AuditRepository           { return s.audits }
func (s *gormStores) Events() unified.EventSink                 { return s.events }

// outboxSink writes events through the outbox using the bound handle, so
// inside Do they commit with everything else.
type outboxSink struct {
	db    *gorm.DB
	saver shared.OutboxEventSaver
}

func (s *outboxSink) Save(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.saver.SaveEvents(ctx, s.db, events...)
}

var _ unified.UnitOfWork = (*GormUnitOfWork)(nil)
