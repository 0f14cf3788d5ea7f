package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	syncapp "github.com/unihub/backend/internal/application/unified"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/interfaces/http/dto"
	"github.com/unihub/backend/internal/interfaces/http/middleware"
)

type Pusher interface {
	Push(ctx context.Context, cmd syncapp.PushCommand) (*syncapp.PushResult, error)
}

type RecordReader interface {
	Get(ctx context.Context, tenantID, id uuid.UUID, wantRaw bool) (*unified.UnifiedRecord, error)
	List(ctx context.Context, q syncapp.ListQuery) (*syncapp.Page, error)
}

// RecordHandler serves /:category/:entity.
type RecordHandler struct {
	BaseHandler
	pusher Pusher
	reader RecordReader
}

func NewRecordHandler(pusher Pusher, reader RecordReader) *RecordHandler {
	return &RecordHandler{pusher: pusher, reader: reader}
}

type pushResponse struct {
	Created bool                   `json:"created"`
	Record  *unified.UnifiedRecord `json:"record"`
}

// Push handles POST /:category/:entity. 201 when the record is new, 200
// when an existing record was updated.
func (h *RecordHandler) Push(c *gin.Context) {
	entity, ok := h.entity(c)
	if !ok {
		return
	}
	var params dto.PushParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.BindError(c, err)
		return
	}
	var req dto.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	cmd := syncapp.PushCommand{
		TenantID:     middleware.GetTenantID(c),
		ConnectionID: uuid.MustParse(params.ConnectionID),
		EntityType:   entity,
		Input:        req.Data,
		RemoteData:   params.RemoteData,
		LinkedUserID: middleware.GetLinkedUserID(c),
	}
	for _, f := range req.Overlay {
		cmd.Overlay.Set(f.Slug, f.Value)
	}

	res, err := h.pusher.Push(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	body := pushResponse{Created: res.Created, Record: res.Record}
	if res.Created {
		h.Created(c, body)
		return
	}
	h.Success(c, body)
}

// List handles GET /:category/:entity.
func (h *RecordHandler) List(c *gin.Context) {
	entity, ok := h.entity(c)
	if !ok {
		return
	}
	var params dto.ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.BindError(c, err)
		return
	}

	page, err := h.reader.List(c.Request.Context(), syncapp.ListQuery{
		TenantID:     middleware.GetTenantID(c),
		ConnectionID: uuid.MustParse(params.ConnectionID),
		EntityType:   entity,
		Limit:        params.Limit,
		Cursor:       params.Cursor,
		WantRaw:      params.RemoteData,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	records := page.Records
	if records == nil {
		records = []*unified.UnifiedRecord{}
	}
	c.JSON(http.StatusOK, dto.NewCursorResponse(records, page.PrevCursor, page.NextCursor))
}

// Get handles GET /:category/:entity/:id. A record of another entity type
// is reported as not found.
func (h *RecordHandler) Get(c *gin.Context) {
	var path dto.RecordIDPath
	if err := c.ShouldBindUri(&path); err != nil {
		h.BindError(c, err)
		return
	}
	entity, err := unified.ParseEntityType(path.Category, path.Entity)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var params dto.GetParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.BindError(c, err)
		return
	}

	id := uuid.MustParse(path.ID)
	rec, err := h.reader.Get(c.Request.Context(), middleware.GetTenantID(c), id, params.RemoteData)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if rec.Record.EntityType != entity {
		h.HandleError(c, fmt.Errorf("%w: %s %s", unified.ErrNotFound, entity, id))
		return
	}
	h.Success(c, rec)
}

func (h *RecordHandler) entity(c *gin.Context) (unified.EntityType, bool) {
	var path dto.RecordPath
	if err := c.ShouldBindUri(&path); err != nil {
		h.BindError(c, err)
		return "", false
	}
	entity, err := unified.ParseEntityType(path.Category, path.Entity)
	if err != nil {
		h.HandleError(c, err)
		return "", false
	}
	return entity, true
}

func (h *RecordHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:category/:entity", h.Push)
	rg.GET("/:category/:entity", h.List)
	rg.GET("/:category/:entity/:id", h.Get)
}
