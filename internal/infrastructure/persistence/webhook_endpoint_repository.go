package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormWebhookEndpointRepository stores tenant webhook subscriptions.
type GormWebhookEndpointRepository struct {
	db *gorm.DB
}

func NewGormWebhookEndpointRepository(db *gorm.DB) *GormWebhookEndpointRepository {
	return &GormWebhookEndpointRepository{db: db}
}

// Subscribed filters event types in Go; the list per tenant is short.
func (r *GormWebhookEndpointRepository) Subscribed(ctx context.Context, tenantID uuid.UUID, eventType string) ([]*unified.WebhookEndpoint, error) {
	var rows []models.WebhookEndpointModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	var out []*unified.WebhookEndpoint
	for i := range rows {
		ep, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		if ep.Accepts(eventType) {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (r *GormWebhookEndpointRepository) Save(ctx context.Context, endpoint *unified.WebhookEndpoint) error {
	model, err := models.WebhookEndpointModelFromDomain(endpoint)
	if err != nil {
		return err
	}
	return translate(r.db.WithContext(ctx).Save(model).Error, nil)
}

var _ unified.WebhookEndpointRepository = (*GormWebhookEndpointRepository)(nil)
