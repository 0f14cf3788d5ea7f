package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": middleware.GetTenantID(c)})
	})
	rg.GET("/boom", func(*gin.Context) { panic("handler bug") })
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouter_Engine(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))

	engine, err := NewRouter(Config{ServiceName: "unihub-test", MaxBodySize: 1 << 20, TracerProvider: tp}).
		Register(pingRoutes{}).
		Health(func(c *gin.Context) { c.Status(http.StatusOK) }).
		Engine()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "health needs no tenant")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tenant := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set(middleware.TenantHeader, tenant.String())
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), tenant.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/boom", nil)
	req.Header.Set(middleware.TenantHeader, tenant.String())
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_INTERNAL")

	var tagged bool
	for _, span := range recorder.Ended() {
		for _, kv := range span.Attributes() {
			if string(kv.Key) == "tenant_id" && kv.Value.AsString() == tenant.String() {
				tagged = true
			}
		}
	}
	assert.True(t, tagged, "request spans carry the tenant")
}
