// Package handler adapts the sync use cases to gin.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/infrastructure/logger"
	"github.com/unihub/backend/internal/interfaces/http/dto"
	"github.com/unihub/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler writes the response envelope.
type BaseHandler struct{}

func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// BindError answers a failed ShouldBind*: field details for validation
// failures, 413 for an oversize body and a plain 400 otherwise.
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Error(c, dto.ErrCodeTooLarge, "Request body exceeds maximum allowed size")
		return
	}
	if fields := middleware.ValidationDetails(err); fields != nil {
		details := make([]dto.ErrorDetail, len(fields))
		for i, f := range fields {
			details[i] = dto.ErrorDetail{Field: f.Field, Message: f.Message}
		}
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(middleware.GetRequestID(c), details))
		return
	}
	h.BadRequest(c, "Malformed request: "+err.Error())
}

// HandleError maps domain errors to their status. Domain error messages
// carry the wrapped context (missing ids, provider status); anything else
// is logged and hidden behind a 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		if code != dto.ErrCodeInternal {
			h.Error(c, code, err.Error())
			return
		}
	}

	logger.L(c.Request.Context()).Error("request failed", zap.Error(err))
	h.Error(c, dto.ErrCodeInternal, "An unexpected error occurred")
}
