package telemetry

import (
	"context"
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InstrumentDB adds otelgorm query spans when DB tracing is on, and
// registers connection pool gauges on the hub meter. Query variables are
// never recorded; they carry tenant record data.
func (p *Providers) InstrumentDB(db *gorm.DB) error {
	if p.tracer != nil && p.cfg.DBTraceEnabled {
		plugin := otelgorm.NewPlugin(
			otelgorm.WithTracerProvider(p.tracer),
			otelgorm.WithDBName(db.Name()),
			otelgorm.WithoutQueryVariables(),
		)
		if err := db.Use(plugin); err != nil {
			return fmt.Errorf("register otelgorm: %w", err)
		}
		p.logger.Info("database tracing enabled", zap.String("dialect", db.Name()))
	}
	return RegisterPoolMetrics(p.Meter(), db)
}

// RegisterPoolMetrics observes database/sql pool stats on every collection.
func RegisterPoolMetrics(meter metric.Meter, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	conns, err := meter.Int64ObservableGauge("unihub_db_pool_connections",
		metric.WithDescription("Database connections by state"), metric.WithUnit("{connections}"))
	if err != nil {
		return err
	}
	waits, err := meter.Int64ObservableCounter("unihub_db_pool_wait_total",
		metric.WithDescription("Connections waited for"), metric.WithUnit("{waits}"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := sqlDB.Stats()
		o.ObserveInt64(conns, int64(s.InUse), metric.WithAttributes(AttrPoolState.String("in_use")))
		o.ObserveInt64(conns, int64(s.Idle), metric.WithAttributes(AttrPoolState.String("idle")))
		o.ObserveInt64(conns, int64(s.MaxOpenConnections), metric.WithAttributes(AttrPoolState.String("max")))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, conns, waits)
	return err
}
