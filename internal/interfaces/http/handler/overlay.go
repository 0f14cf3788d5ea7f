package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	syncapp "github.com/unihub/backend/internal/application/unified"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/interfaces/http/dto"
	"github.com/unihub/backend/internal/interfaces/http/middleware"
)

type OverlayAdmin interface {
	DefineRule(ctx context.Context, cmd syncapp.DefineRuleCommand) (*unified.OverlayRule, error)
	Rules(ctx context.Context, tenantID uuid.UUID, provider string, entity unified.EntityType) (unified.OverlayRules, error)
}

// OverlayHandler administers the calling tenant's overlay rules.
type OverlayHandler struct {
	BaseHandler
	overlays OverlayAdmin
}

func NewOverlayHandler(overlays OverlayAdmin) *OverlayHandler {
	return &OverlayHandler{overlays: overlays}
}

// DefineRule handles POST /overlay-rules.
func (h *OverlayHandler) DefineRule(c *gin.Context) {
	var req dto.OverlayRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	rule, err := h.overlays.DefineRule(c.Request.Context(), syncapp.DefineRuleCommand{
		TenantID:    middleware.GetTenantID(c),
		Provider:    req.Provider,
		EntityType:  unified.EntityType(req.Entity),
		Slug:        req.Slug,
		RemoteField: req.RemoteField,
		Default:     req.Default,
		Position:    req.Position,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, rule)
}

// ListRules handles GET /overlay-rules?provider=&entity=. Rules come back
// in merge order.
func (h *OverlayHandler) ListRules(c *gin.Context) {
	var q dto.OverlayRulesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	rules, err := h.overlays.Rules(c.Request.Context(), middleware.GetTenantID(c), q.Provider, unified.EntityType(q.Entity))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if rules == nil {
		rules = unified.OverlayRules{}
	}
	h.Success(c, rules.Sorted())
}

func (h *OverlayHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/overlay-rules", h.DefineRule)
	rg.GET("/overlay-rules", h.ListRules)
}
