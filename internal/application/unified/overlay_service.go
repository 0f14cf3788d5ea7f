package unified

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
	"go.uber.org/zap"
)

// DefineRuleCommand adds or replaces one overlay rule.
type DefineRuleCommand struct {
	TenantID    uuid.UUID          `validate:"required"`
	Provider    string             `validate:"required"`
	EntityType  unified.EntityType `validate:"required"`
	Slug        string             `validate:"required,max=100"`
	RemoteField string             `validate:"max=255"`
	Default     any
	Position    int `validate:"gte=0"`
}

// OverlayService administers the overlay rules tenants define per
// provider and entity.
type OverlayService struct {
	uow     unified.UnitOfWork
	schemas *unified.SchemaRegistry
	logger  *zap.Logger
}

func NewOverlayService(uow unified.UnitOfWork, schemas *unified.SchemaRegistry, logger *zap.Logger) *OverlayService {
	return &OverlayService{uow: uow, schemas: schemas, logger: logger}
}

func (s *OverlayService) DefineRule(ctx context.Context, cmd DefineRuleCommand) (*unified.OverlayRule, error) {
	if err := validateStruct(cmd); err != nil {
		return nil, err
	}
	schema, err := s.schemas.Get(cmd.EntityType)
	if err != nil {
		return nil, err
	}
	if !schema.Overlay {
		return nil, fmt.Errorf("%w: %s does not accept overlay fields", shared.ErrInvalidInput, cmd.EntityType)
	}
	if _, clash := schema.Field(cmd.Slug); clash {
		return nil, fmt.Errorf("%w: slug %q shadows a canonical field", shared.ErrInvalidInput, cmd.Slug)
	}

	rule := unified.OverlayRule{
		Slug:        cmd.Slug,
		RemoteField: cmd.RemoteField,
		Default:     cmd.Default,
		Position:    cmd.Position,
	}
	if err := s.uow.Stores().Overlays().SaveRule(ctx, cmd.TenantID, cmd.Provider, cmd.EntityType, rule); err != nil {
		return nil, err
	}
	s.logger.Info("overlay rule defined",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("provider", cmd.Provider),
		zap.String("entity", string(cmd.EntityType)),
		zap.String("slug", cmd.Slug),
	)
	return &rule, nil
}

func (s *OverlayService) Rules(ctx context.Context, tenantID uuid.UUID, provider string, entity unified.EntityType) (unified.OverlayRules, error) {
	if _, err := s.schemas.Get(entity); err != nil {
		return nil, err
	}
	return s.uow.Stores().Overlays().Rules(ctx, tenantID, provider, entity)
}
