package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/unihub/backend/internal/infrastructure/auth"
	"github.com/unihub/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

const (
	TenantHeader = "X-Tenant-ID"
	bearerPrefix = "Bearer "

	tenantIDKey     = "tenant_id"
	linkedUserIDKey = "linked_user_id"
)

// TokenValidator verifies a bearer token and returns its claims.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

type TenantConfig struct {
	Validator TokenValidator
	// Required rejects requests without a bearer token. When false the
	// X-Tenant-ID header is accepted, which is meant for local setups.
	Required bool
	Logger   *zap.Logger
}

// Tenant resolves the calling tenant from a bearer token, falling back to
// the X-Tenant-ID header when tokens are optional. The tenant id lands in
// the gin context and in the request context for logging.
func Tenant(cfg TenantConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		var (
			tenantID uuid.UUID
			linked   string
		)

		header := c.GetHeader("Authorization")
		switch {
		case strings.HasPrefix(header, bearerPrefix) && cfg.Validator != nil:
			claims, err := cfg.Validator.Validate(strings.TrimPrefix(header, bearerPrefix))
			if err != nil {
				log.Debug("bearer token rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
				code := "ERR_TOKEN_INVALID"
				if errors.Is(err, auth.ErrExpiredToken) {
					code = "ERR_TOKEN_EXPIRED"
				}
				abort(c, http.StatusUnauthorized, code, "Invalid or expired token")
				return
			}
			if tenantID, err = claims.TenantUUID(); err != nil {
				abort(c, http.StatusUnauthorized, "ERR_TOKEN_INVALID", "Token carries no valid tenant")
				return
			}
			linked = claims.LinkedUserID

		case cfg.Required:
			abort(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", "Bearer token required")
			return

		default:
			raw := c.GetHeader(TenantHeader)
			if raw == "" {
				abort(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", "Tenant identification required")
				return
			}
			var err error
			if tenantID, err = uuid.Parse(raw); err != nil {
				abort(c, http.StatusBadRequest, "ERR_INVALID_INPUT", "Invalid tenant ID format")
				return
			}
		}

		c.Set(tenantIDKey, tenantID)
		if linked != "" {
			c.Set(linkedUserIDKey, linked)
		}
		c.Request = c.Request.WithContext(logger.WithTenantID(c.Request.Context(), tenantID.String()))
		c.Next()
	}
}

// GetTenantID returns the tenant resolved by Tenant, or uuid.Nil.
func GetTenantID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(tenantIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetLinkedUserID returns the linked user claim of the token, if any.
func GetLinkedUserID(c *gin.Context) string {
	return c.GetString(linkedUserIDKey)
}
