package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/infrastructure/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{}, "test", zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Meter())
	p.EnableSpanProfiles()
	assert.NoError(t, p.Shutdown(context.Background()))

	base := zap.NewNop()
	assert.Same(t, base, p.BridgeLogger(base, zapcore.InfoLevel))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestMinLevelCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &minLevelCore{Core: inner, min: zapcore.WarnLevel}
	log := zap.New(core).With(zap.String("tenant_id", "t1"))

	log.Info("dropped")
	log.Warn("kept")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "kept", entry.Message)
	assert.Equal(t, "t1", entry.ContextMap()["tenant_id"])
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestStartServiceSpan(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartServiceSpan(context.Background(), "sync", "push",
		WithAttribute(SpanAttrProvider, "echo"),
		WithAttribute(SpanAttrLimit, 5),
	)
	SetAttributes(span, SpanAttrEntity, "ticket", 42, "ignored-non-string-key")
	AddEvent(span, "connector.write", "status", 201)
	RecordError(span, errors.New("provider down"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, "sync.push", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "provider down", s.Status().Description)

	attrs := map[string]string{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "echo", attrs["provider"])
	assert.Equal(t, "5", attrs["limit"])
	assert.Equal(t, "ticket", attrs["entity"])
	require.Len(t, s.Events(), 2, "the event and the recorded error")
}

func TestLabelPairs(t *testing.T) {
	long := make([]byte, maxLabelValue+10)
	for i := range long {
		long[i] = 'x'
	}
	got := labelPairs(map[string]string{
		"provider": "zendesk",
		"entity":   "ticket",
		"empty":    "",
		"route":    string(long),
	})
	assert.Equal(t, []string{"entity", "ticket", "provider", "zendesk", "route", string(long[:maxLabelValue])}, got)
}

func TestWithProfilingLabels_RunsFn(t *testing.T) {
	ran := 0
	WithProfilingLabels(context.Background(), nil, func(context.Context) { ran++ })
	WithProfilingLabels(context.Background(), map[string]string{"provider": "echo"}, func(context.Context) { ran++ })
	assert.Equal(t, 2, ran)
}

func TestStartProfiler_Disabled(t *testing.T) {
	p, err := StartProfiler(config.TelemetryConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())

	_, err = StartProfiler(config.TelemetryConfig{ProfilingEnabled: true}, zap.NewNop())
	assert.Error(t, err)
}

func TestRegisterPoolMetrics(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(3)
	t.Cleanup(func() { _ = sqlDB.Close() })

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	require.NoError(t, RegisterPoolMetrics(meter, db))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var maxConns int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "unihub_db_pool_connections" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Gauge[int64]).DataPoints {
				if v, ok := dp.Attributes.Value(AttrPoolState); ok && v.AsString() == "max" {
					maxConns = dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), maxConns)
}
