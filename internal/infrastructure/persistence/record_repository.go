package persistence

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRecordRepository implements unified.RecordRepository using GORM
type GormRecordRepository struct {
	db *gorm.DB
}

func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *GormRecordRepository) WithTx(tx *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: tx}
}

func (r *GormRecordRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*unified.Record, error) {
	var model models.RecordModel
	if err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&model).Error; err != nil {
		return nil, translate(err, fmt.Errorf("%w: record %s", unified.ErrNotFound, id))
	}
	return model.ToDomain()
}

func (r *GormRecordRepository) FindByRemoteID(ctx context.Context, connectionID uuid.UUID, remoteID string) (*unified.Record, error) {
	var model models.RecordModel
	if err := r.db.WithContext(ctx).
		Where("remote_id = ? AND connection_id = ?", remoteID, connectionID).
		First(&model).Error; err != nil {
		return nil, translate(err, fmt.Errorf("%w: remote record %s", unified.ErrNotFound, remoteID))
	}
	return model.ToDomain()
}

// HighestSequence returns the largest N among the connection's remote ids
// of the form prefix+N, or 0 when there is none.
func (r *GormRecordRepository) HighestSequence(ctx context.Context, connectionID uuid.UUID, prefix string) (int, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&models.RecordModel{}).
		Where("connection_id = ? AND remote_id LIKE ?", connectionID, prefix+"%").
		Pluck("remote_id", &ids).Error; err != nil {
		return 0, err
	}
	highest := 0
	for _, id := range ids {
		if n, err := strconv.Atoi(strings.TrimPrefix(id, prefix)); err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (r *GormRecordRepository) ExistingIDs(ctx context.Context, tenantID uuid.UUID, entity unified.EntityType, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	found := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	var rows []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.RecordModel{}).
		Where("tenant_id = ? AND entity_type = ? AND id IN ?", tenantID, entity, ids).
		Pluck("id", &rows).Error; err != nil {
		return nil, err
	}
	for _, id := range rows {
		found[id] = true
	}
	return found, nil
}

// Create runs the insert in its own (nested) transaction. Inside an outer
// transaction GORM turns that into a savepoint, so a unique violation
// rolls back only this insert and the caller may retry as an update.
func (r *GormRecordRepository) Create(ctx context.Context, record *unified.Record) error {
	model, err := models.RecordModelFromDomain(record)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	return translate(err, nil)
}

func (r *GormRecordRepository) Update(ctx context.Context, record *unified.Record) error {
	model, err := models.RecordModelFromDomain(record)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&models.RecordModel{}).
		Where("id = ? AND tenant_id = ?", record.ID, record.TenantID).
		Updates(map[string]any{
			"remote_id":   model.RemoteID,
			"fields":      model.Fields,
			"modified_at": model.ModifiedAt,
		})
	if result.Error != nil {
		return translate(result.Error, nil)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: record %s", unified.ErrNotFound, record.ID)
	}
	return nil
}

// ListPage orders by (created_at, id). When q.Start is set the page begins
// at that record, inclusive.
func (r *GormRecordRepository) ListPage(ctx context.Context, q unified.PageQuery) ([]*unified.Record, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND connection_id = ? AND entity_type = ?", q.TenantID, q.ConnectionID, q.EntityType)
	if q.Start != nil {
		query = query.Where("(created_at > ? OR (created_at = ? AND id >= ?))",
			q.Start.CreatedAt, q.Start.CreatedAt, q.Start.ID)
	}

	var rows []models.RecordModel
	if err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(q.Size).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]*unified.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

var _ unified.RecordRepository = (*GormRecordRepository)(nil)
