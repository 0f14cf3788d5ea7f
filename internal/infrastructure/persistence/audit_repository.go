package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormAuditRepository appends audit events. Rows are never updated.
type GormAuditRepository struct {
	db *gorm.DB
}

func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

func (r *GormAuditRepository) Append(ctx context.Context, event *unified.AuditEvent) error {
	return r.db.WithContext(ctx).Create(models.AuditEventModelFromDomain(event)).Error
}

// ListByConnection returns the newest events first.
func (r *GormAuditRepository) ListByConnection(ctx context.Context, tenantID, connectionID uuid.UUID, limit int) ([]*unified.AuditEvent, error) {
	var rows []models.AuditEventModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND connection_id = ?", tenantID, connectionID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]*unified.AuditEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].ToDomain()
	}
	return events, nil
}

var _ unified.AuditRepository = (*GormAuditRepository)(nil)
