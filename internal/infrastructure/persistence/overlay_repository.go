package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/persistence/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOverlayRepository is the field-mapping overlay store.
type GormOverlayRepository struct {
	db *gorm.DB
}

func NewGormOverlayRepository(db *gorm.DB) *GormOverlayRepository {
	return &GormOverlayRepository{db: db}
}

func (r *GormOverlayRepository) Rules(ctx context.Context, tenantID uuid.UUID, provider string, entity unified.EntityType) (unified.OverlayRules, error) {
	var rows []models.OverlayRuleModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ? AND entity_type = ?", tenantID, provider, entity).
		Order("position ASC").
		Order("slug ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	rules := make(unified.OverlayRules, 0, len(rows))
	for i := range rows {
		rule, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// SaveRule creates the rule or replaces the one with the same slug.
func (r *GormOverlayRepository) SaveRule(ctx context.Context, tenantID uuid.UUID, provider string, entity unified.EntityType, rule unified.OverlayRule) error {
	model := models.OverlayRuleModel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Provider:    provider,
		EntityType:  entity,
		Slug:        rule.Slug,
		RemoteField: rule.RemoteField,
		Position:    rule.Position,
		CreatedAt:   time.Now().UTC(),
	}
	if rule.Default != nil {
		raw, err := json.Marshal(rule.Default)
		if err != nil {
			return err
		}
		model.DefaultValue = datatypes.JSON(raw)
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "provider"}, {Name: "entity_type"}, {Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"remote_field", "default_value", "position"}),
	}).Create(&model).Error
}

func (r *GormOverlayRepository) Values(ctx context.Context, recordID uuid.UUID) (unified.OverlayValues, error) {
	var rows []models.OverlayValueModel
	if err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	values := make(unified.OverlayValues, 0, len(rows))
	for _, row := range rows {
		v, err := models.DecodeValue(row.Value)
		if err != nil {
			return nil, err
		}
		values = append(values, unified.OverlayValue{Slug: row.Slug, Value: v})
	}
	return values, nil
}

// Put replaces the record's whole overlay set. Callers run it inside the
// unit of work so the delete and insert commit together.
func (r *GormOverlayRepository) Put(ctx context.Context, recordID uuid.UUID, values unified.OverlayValues) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("record_id = ?", recordID).Delete(&models.OverlayValueModel{}).Error; err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	rows := make([]models.OverlayValueModel, 0, len(values))
	for i, v := range values {
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return err
		}
		rows = append(rows, models.OverlayValueModel{
			ID:       uuid.New(),
			RecordID: recordID,
			Slug:     v.Slug,
			Value:    datatypes.JSON(raw),
			Position: i,
		})
	}
	return translate(db.Create(&rows).Error, nil)
}

var _ unified.OverlayRepository = (*GormOverlayRepository)(nil)
