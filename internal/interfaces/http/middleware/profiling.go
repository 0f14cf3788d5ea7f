package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/unihub/backend/internal/infrastructure/telemetry"
)

// Profiling tags CPU and allocation samples taken while the handler runs
// with the route, method, category and tenant. Run it after Tenant.
func Profiling() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			c.Next()
			return
		}
		labels := map[string]string{
			"route":    route,
			"method":   c.Request.Method,
			"category": c.Param("category"),
		}
		if id := GetTenantID(c); id != uuid.Nil {
			labels["tenant_id"] = id.String()
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
