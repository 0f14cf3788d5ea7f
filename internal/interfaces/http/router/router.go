// Package router assembles the gin engine: global middleware, the
// tenant-scoped API group and the health probe.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/unihub/backend/internal/infrastructure/logger"
	"github.com/unihub/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RouteRegistrar mounts a handler's routes on the API group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

type Config struct {
	ServiceName    string
	APIVersion     string
	MaxBodySize    int64
	CORS           middleware.CORSConfig
	TrustedProxies []string
	Tenant         middleware.TenantConfig
	// TracerProvider enables otelgin when set.
	TracerProvider trace.TracerProvider
	// Metrics is added to the global chain when set.
	Metrics   gin.HandlerFunc
	Profiling bool
	Logger    *zap.Logger
}

// Router collects registrars and builds the engine once.
type Router struct {
	cfg        Config
	health     gin.HandlerFunc
	registrars []RouteRegistrar
}

func NewRouter(cfg Config) *Router {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Router{cfg: cfg}
}

func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Health mounts h at /health, outside the tenant check.
func (r *Router) Health(h gin.HandlerFunc) *Router {
	r.health = h
	return r
}

func (r *Router) Engine() (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(r.cfg.TrustedProxies); err != nil {
		return nil, err
	}
	middleware.SetupValidator()

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(r.cfg.Logger),
		middleware.Secure(),
		middleware.CORS(r.cfg.CORS),
	)
	if r.cfg.TracerProvider != nil {
		engine.Use(middleware.Tracing(r.cfg.ServiceName, r.cfg.TracerProvider))
	}
	if r.cfg.Metrics != nil {
		engine.Use(r.cfg.Metrics)
	}
	engine.Use(logger.GinMiddleware(r.cfg.Logger))

	if r.health != nil {
		engine.GET("/health", r.health)
	}

	api := engine.Group("/api/"+r.cfg.APIVersion,
		middleware.BodyLimit(r.cfg.MaxBodySize),
		middleware.Tenant(r.cfg.Tenant),
		middleware.SpanEnricher(),
	)
	if r.cfg.Profiling {
		api.Use(middleware.Profiling())
	}
	for _, reg := range r.registrars {
		reg.RegisterRoutes(api)
	}
	return engine, nil
}
