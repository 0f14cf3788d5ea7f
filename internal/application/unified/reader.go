package unified

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReaderConfig bounds list pages and enrichment fan-out.
type ReaderConfig struct {
	DefaultLimit      int
	MaxLimit          int
	EnrichConcurrency int
}

func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{DefaultLimit: 50, MaxLimit: 1000, EnrichConcurrency: 8}
}

// Reader serves canonical records with their overlay fields and, on
// request, the raw provider snapshot.
type Reader struct {
	uow     unified.UnitOfWork
	config  ReaderConfig
	metrics *telemetry.SyncMetrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewReader(uow unified.UnitOfWork, cfg ReaderConfig, metrics *telemetry.SyncMetrics, logger *zap.Logger) *Reader {
	def := DefaultReaderConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = def.EnrichConcurrency
	}
	if metrics == nil {
		metrics = telemetry.NoopSyncMetrics()
	}
	return &Reader{uow: uow, config: cfg, metrics: metrics, logger: logger, now: time.Now}
}

// Get returns one record of the tenant.
func (r *Reader) Get(ctx context.Context, tenantID, id uuid.UUID, wantRaw bool) (*unified.UnifiedRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.get",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrRecordID, id.String()),
	)
	defer span.End()

	view, err := hydrate(ctx, r.uow.Stores(), tenantID, id, wantRaw)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return view, nil
}

// List returns one page in (created_at, id) order and audits the pull.
func (r *Reader) List(ctx context.Context, q ListQuery) (*Page, error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.list",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, q.TenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrConnectionID, q.ConnectionID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrEntity, string(q.EntityType)),
	)
	defer span.End()

	page, err := r.list(ctx, q)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrCount, len(page.Records))
	telemetry.SetOK(span)
	return page, nil
}

func (r *Reader) list(ctx context.Context, q ListQuery) (*Page, error) {
	if err := validateStruct(q); err != nil {
		return nil, err
	}
	if !q.EntityType.IsValid() {
		return nil, fmt.Errorf("%w: %s", unified.ErrUnknownEntity, q.EntityType)
	}

	stores := r.uow.Stores()
	conn, err := stores.Connections().FindByID(ctx, q.TenantID, q.ConnectionID)
	if err != nil {
		return nil, unified.WrapStep("load connection", q.ConnectionID.String(), err)
	}

	limit := r.clamp(q.Limit)

	// The cursor must resolve before any page is fetched.
	var start *unified.Record
	if q.Cursor != "" {
		start, err = r.resolveCursor(ctx, stores, conn, q)
		if err != nil {
			return nil, err
		}
	}

	rows, err := stores.Records().ListPage(ctx, unified.PageQuery{
		TenantID:     q.TenantID,
		ConnectionID: conn.ID,
		EntityType:   q.EntityType,
		Start:        start,
		Size:         limit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	page := &Page{PrevCursor: q.Cursor}
	if len(rows) > limit {
		page.NextCursor = unified.EncodeCursor(rows[limit].ID)
		rows = rows[:limit]
	}

	page.Records, err = r.enrich(ctx, stores, rows, q.WantRaw)
	if err != nil {
		return nil, err
	}

	audit := unified.NewAuditEvent(conn, unified.EventType(q.EntityType, unified.ActionPull),
		http.MethodGet, unified.AuditSuccess, unified.DirectionInbound, r.now())
	if err := stores.Audits().Append(ctx, audit); err != nil {
		return nil, fmt.Errorf("append audit event: %w", err)
	}

	r.metrics.RecordList(ctx, conn.Provider, string(q.EntityType))
	r.logger.Debug("records listed",
		zap.String("connection_id", conn.ID.String()),
		zap.String("entity", string(q.EntityType)),
		zap.Int("count", len(page.Records)),
		zap.Bool("has_next", page.NextCursor != ""),
	)
	return page, nil
}

func (r *Reader) clamp(limit int) int {
	switch {
	case limit == 0:
		limit = r.config.DefaultLimit
	case limit < 1:
		limit = 1
	}
	if limit > r.config.MaxLimit {
		limit = r.config.MaxLimit
	}
	return limit
}

func (r *Reader) resolveCursor(ctx context.Context, stores unified.Stores, conn *unified.Connection, q ListQuery) (*unified.Record, error) {
	id, err := unified.DecodeCursor(q.Cursor)
	if err != nil {
		return nil, err
	}
	rec, err := stores.Records().FindByID(ctx, q.TenantID, id)
	if errors.Is(err, unified.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown record", unified.ErrInvalidCursor)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve cursor: %w", err)
	}
	if rec.ConnectionID != conn.ID || rec.EntityType != q.EntityType {
		return nil, fmt.Errorf("%w: record belongs to another listing", unified.ErrInvalidCursor)
	}
	return rec, nil
}

// enrich hydrates rows concurrently and keeps page order.
func (r *Reader) enrich(ctx context.Context, stores unified.Stores, rows []*unified.Record, wantRaw bool) ([]*unified.UnifiedRecord, error) {
	out := make([]*unified.UnifiedRecord, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.EnrichConcurrency)
	for i, rec := range rows {
		g.Go(func() error {
			view, err := attach(gctx, stores, rec, wantRaw)
			if err != nil {
				return err
			}
			out[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// hydrate is the single-record read path shared by Get and Push.
func hydrate(ctx context.Context, stores unified.Stores, tenantID, id uuid.UUID, wantRaw bool) (*unified.UnifiedRecord, error) {
	rec, err := stores.Records().FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return attach(ctx, stores, rec, wantRaw)
}

// attach adds overlay fields and, when asked for and present, the raw
// snapshot.
func attach(ctx context.Context, stores unified.Stores, rec *unified.Record, wantRaw bool) (*unified.UnifiedRecord, error) {
	overlay, err := stores.Overlays().Values(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("load overlay of %s: %w", rec.ID, err)
	}
	view := &unified.UnifiedRecord{Record: rec, Overlay: overlay}
	if !wantRaw {
		return view, nil
	}
	snap, err := stores.Snapshots().Latest(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot of %s: %w", rec.ID, err)
	}
	if snap != nil {
		view.RemoteData = snap.Payload
	}
	return view, nil
}
