package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/unihub/backend/internal/application/event"
	"github.com/unihub/backend/internal/interfaces/http/dto"
)

type DeadLetters interface {
	List(ctx context.Context, filter event.ListFilter) (*event.ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*event.EntryDTO, error)
	Retry(ctx context.Context, id uuid.UUID) (*event.EntryDTO, error)
	RetryAll(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*event.StatsDTO, error)
}

// OutboxHandler exposes the webhook outbox's dead letters to operators.
type OutboxHandler struct {
	BaseHandler
	deadLetters DeadLetters
}

func NewOutboxHandler(deadLetters DeadLetters) *OutboxHandler {
	return &OutboxHandler{deadLetters: deadLetters}
}

// ListDead handles GET /admin/outbox/dead.
func (h *OutboxHandler) ListDead(c *gin.Context) {
	var filter event.ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	res, err := h.deadLetters.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPagedResponse(res.Entries, res.Total, res.Page, res.PageSize, res.TotalPages))
}

// GetEntry handles GET /admin/outbox/:id.
func (h *OutboxHandler) GetEntry(c *gin.Context) {
	id, ok := h.entryID(c)
	if !ok {
		return
	}
	entry, err := h.deadLetters.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// Retry handles POST /admin/outbox/:id/retry.
func (h *OutboxHandler) Retry(c *gin.Context) {
	id, ok := h.entryID(c)
	if !ok {
		return
	}
	entry, err := h.deadLetters.Retry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryAll handles POST /admin/outbox/dead/retry.
func (h *OutboxHandler) RetryAll(c *gin.Context) {
	n, err := h.deadLetters.RetryAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"requeued": n})
}

// Stats handles GET /admin/outbox/stats.
func (h *OutboxHandler) Stats(c *gin.Context) {
	stats, err := h.deadLetters.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

func (h *OutboxHandler) entryID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid entry ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *OutboxHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/admin/outbox")
	g.GET("/dead", h.ListDead)
	g.POST("/dead/retry", h.RetryAll)
	g.GET("/stats", h.Stats)
	g.GET("/:id", h.GetEntry)
	g.POST("/:id/retry", h.Retry)
}
