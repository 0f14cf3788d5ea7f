package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/persistence/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSnapshotRepository keeps one raw snapshot per record. Payloads above
// offloadThreshold bytes go to the blob store when one is configured.
type GormSnapshotRepository struct {
	db               *gorm.DB
	blobs            unified.BlobStore
	offloadThreshold int
}

func NewGormSnapshotRepository(db *gorm.DB, blobs unified.BlobStore, offloadThreshold int) *GormSnapshotRepository {
	return &GormSnapshotRepository{db: db, blobs: blobs, offloadThreshold: offloadThreshold}
}

// SnapshotObjectKey is where an offloaded payload lives. Each sync cycle
// overwrites the same key.
func SnapshotObjectKey(tenantID, recordID uuid.UUID) string {
	return fmt.Sprintf("snapshots/%s/%s.json", tenantID, recordID)
}

func (r *GormSnapshotRepository) shouldOffload(payload []byte) bool {
	return r.blobs != nil && r.offloadThreshold > 0 && len(payload) > r.offloadThreshold
}

func (r *GormSnapshotRepository) Replace(ctx context.Context, snap *unified.RawSnapshot) error {
	model := models.SnapshotModel{
		RecordID:   snap.RecordID,
		TenantID:   snap.TenantID,
		CapturedAt: snap.CapturedAt,
	}
	if r.shouldOffload(snap.Payload) {
		key := SnapshotObjectKey(snap.TenantID, snap.RecordID)
		if err := r.blobs.Put(ctx, key, snap.Payload); err != nil {
			return fmt.Errorf("offload snapshot: %w", err)
		}
		model.ObjectKey = key
		snap.ObjectKey = key
	} else {
		model.Payload = datatypes.JSON(snap.Payload)
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "object_key", "captured_at"}),
	}).Create(&model).Error
}

// Latest returns nil, nil when the record has no snapshot, including when
// its offloaded payload is no longer in the blob store.
func (r *GormSnapshotRepository) Latest(ctx context.Context, recordID uuid.UUID) (*unified.RawSnapshot, error) {
	var model models.SnapshotModel
	err := r.db.WithContext(ctx).First(&model, "record_id = ?", recordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := model.ToDomain()
	if snap.ObjectKey != "" && len(snap.Payload) == 0 {
		if r.blobs == nil {
			return nil, nil
		}
		payload, err := r.blobs.Get(ctx, snap.ObjectKey)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load offloaded snapshot: %w", err)
		}
		snap.Payload = payload
	}
	return snap, nil
}

var _ unified.SnapshotRepository = (*GormSnapshotRepository)(nil)
