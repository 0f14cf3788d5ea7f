package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTenantRepository implements unified.TenantRepository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// FindByID fails with unified.ErrNotFound when the tenant does not exist.
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*unified.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err, fmt.Errorf("%w: tenant %s", unified.ErrNotFound, id))
	}
	return model.ToDomain(), nil
}

func (r *GormTenantRepository) Save(ctx context.Context, tenant *unified.Tenant) error {
	return translate(r.db.WithContext(ctx).Save(models.TenantModelFromDomain(tenant)).Error, nil)
}

// GormConnectionRepository implements unified.ConnectionRepository using GORM
type GormConnectionRepository struct {
	db *gorm.DB
}

func NewGormConnectionRepository(db *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: db}
}

// FindByID only finds connections owned by tenantID.
func (r *GormConnectionRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*unified.Connection, error) {
	var model models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&model).Error; err != nil {
		return nil, translate(err, fmt.Errorf("%w: connection %s", unified.ErrNotFound, id))
	}
	return model.ToDomain(), nil
}

func (r *GormConnectionRepository) Save(ctx context.Context, conn *unified.Connection) error {
	return translate(r.db.WithContext(ctx).Save(models.ConnectionModelFromDomain(conn)).Error, nil)
}

var (
	_ unified.TenantRepository     = (*GormTenantRepository)(nil)
	_ unified.ConnectionRepository = (*GormConnectionRepository)(nil)
)
