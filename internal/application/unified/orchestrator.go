package unified

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/logger"
	"github.com/unihub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Orchestrator runs the push cycle: validate, desunify, call the provider,
// unify the answer and commit the record with its overlay, snapshot, audit
// event and outbox event in one transaction.
type Orchestrator struct {
	uow        unified.UnitOfWork
	schemas    *unified.SchemaRegistry
	engine     *unified.Engine
	connectors unified.ConnectorResolver
	metrics    *telemetry.SyncMetrics
	logger     *zap.Logger
	now        func() time.Time
}

type OrchestratorOption func(*Orchestrator)

func WithSyncMetrics(m *telemetry.SyncMetrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(
	uow unified.UnitOfWork,
	schemas *unified.SchemaRegistry,
	engine *unified.Engine,
	connectors unified.ConnectorResolver,
	log *zap.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		uow:        uow,
		schemas:    schemas,
		engine:     engine,
		connectors: connectors,
		metrics:    telemetry.NoopSyncMetrics(),
		logger:     log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Push writes cmd.Input to the provider behind the connection and stores
// what the provider answered. Nothing is persisted unless every step
// succeeds.
func (o *Orchestrator) Push(ctx context.Context, cmd PushCommand) (*PushResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.push",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, cmd.TenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrConnectionID, cmd.ConnectionID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrEntity, string(cmd.EntityType)),
	)
	defer span.End()

	res, provider, err := o.push(ctx, cmd)
	if err != nil {
		telemetry.RecordError(span, err)
		if provider != "" {
			o.metrics.RecordPush(ctx, provider, string(cmd.EntityType), telemetry.PushFailed)
		}
		logger.WithLogger(ctx, o.logger).Warn("push failed",
			zap.String("connection_id", cmd.ConnectionID.String()),
			zap.String("entity", string(cmd.EntityType)),
			zap.Error(err),
		)
		return nil, err
	}

	outcome := telemetry.PushUpdated
	if res.Created {
		outcome = telemetry.PushCreated
	}
	o.metrics.RecordPush(ctx, provider, string(cmd.EntityType), outcome)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRecordID, res.Record.Record.ID.String(),
		telemetry.SpanAttrCreated, res.Created,
	)
	telemetry.SetOK(span)

	logger.WithLogger(ctx, o.logger).Info("record pushed",
		zap.String("record_id", res.Record.Record.ID.String()),
		zap.String("provider", provider),
		zap.String("entity", string(cmd.EntityType)),
		zap.Bool("created", res.Created),
	)
	return res, nil
}

// push returns the provider name once the connection is known so the
// caller can label failures.
func (o *Orchestrator) push(ctx context.Context, cmd PushCommand) (*PushResult, string, error) {
	if err := validateStruct(cmd); err != nil {
		return nil, "", err
	}
	schema, err := o.schemas.Get(cmd.EntityType)
	if err != nil {
		return nil, "", err
	}

	// 1. Tenant and connection.
	stores := o.uow.Stores()
	if _, err := stores.Tenants().FindByID(ctx, cmd.TenantID); err != nil {
		return nil, "", unified.WrapStep("load tenant", cmd.TenantID.String(), err)
	}
	conn, err := stores.Connections().FindByID(ctx, cmd.TenantID, cmd.ConnectionID)
	if err != nil {
		return nil, "", unified.WrapStep("load connection", cmd.ConnectionID.String(), err)
	}
	if !conn.IsActive() {
		return nil, conn.Provider, fmt.Errorf("%w: connection %s is %s", shared.ErrInvalidState, conn.ID, conn.Status)
	}

	if err := schema.Validate(cmd.Input); err != nil {
		return nil, conn.Provider, err
	}
	if len(cmd.Overlay) > 0 && !schema.Overlay {
		return nil, conn.Provider, fmt.Errorf("%w: %s does not accept overlay fields", shared.ErrInvalidInput, cmd.EntityType)
	}
	input := cloneInput(cmd.Input)

	// 2. References.
	if err := o.checkReferences(ctx, stores, schema, cmd.TenantID, input); err != nil {
		return nil, conn.Provider, err
	}

	// 3. Inline sub-entities become pending records.
	now := o.now()
	subs, err := o.resolveSubEntities(ctx, stores, schema, conn, input, now)
	if err != nil {
		return nil, conn.Provider, err
	}

	// 4. Overlay rules, only when the input carries overlay values.
	tc := unified.TransformContext{Entity: cmd.EntityType, Provider: conn.Provider, TenantID: cmd.TenantID}
	if len(cmd.Overlay) > 0 {
		tc.Rules, err = stores.Overlays().Rules(ctx, cmd.TenantID, conn.Provider, cmd.EntityType)
		if err != nil {
			return nil, conn.Provider, unified.WrapStep("load overlay rules", "", err)
		}
	}

	// 5. Desunify and write.
	payload, err := o.engine.Desunify(unified.CanonicalInput{Fields: input, Overlay: cmd.Overlay}, tc)
	if err != nil {
		return nil, conn.Provider, err
	}
	tenantCtx := conn.TenantContext()
	if cmd.LinkedUserID != "" {
		tenantCtx.LinkedUserID = cmd.LinkedUserID
	}
	resp, err := o.write(ctx, conn.Provider, unified.WriteRequest{
		EntityType: cmd.EntityType,
		Payload:    payload,
		Tenant:     tenantCtx,
	})
	if err != nil {
		return nil, conn.Provider, err
	}

	// 6. Unify the answer.
	output, err := decodeObject(conn.Provider, resp.RawBody)
	if err != nil {
		return nil, conn.Provider, err
	}
	results, err := o.engine.Unify([]map[string]any{output}, tc, cmd.Overlay)
	if err != nil {
		return nil, conn.Provider, err
	}
	result := results[0]
	for field, ids := range subs.ids {
		result.Fields[field] = ids
	}

	// 7-10. Commit.
	var out *PushResult
	err = o.uow.Do(ctx, func(ctx context.Context, tx unified.Stores) error {
		for _, rec := range subs.pending {
			if err := tx.Records().Create(ctx, rec); err != nil {
				return unified.WrapStep("create sub-entity", rec.ID.String(), err)
			}
		}

		rec, created, err := upsert(ctx, tx.Records(), conn, cmd.EntityType, result, now)
		if err != nil {
			return unified.WrapStep("upsert record", "", err)
		}

		if created || len(cmd.Overlay) > 0 {
			if err := tx.Overlays().Put(ctx, rec.ID, result.Overlay); err != nil {
				return unified.WrapStep("store overlay", rec.ID.String(), err)
			}
		}
		if err := tx.Snapshots().Replace(ctx, &unified.RawSnapshot{
			RecordID:   rec.ID,
			TenantID:   rec.TenantID,
			Payload:    resp.RawBody,
			CapturedAt: now.UTC(),
		}); err != nil {
			return unified.WrapStep("store snapshot", rec.ID.String(), err)
		}

		view, err := hydrate(ctx, tx, rec.TenantID, rec.ID, cmd.RemoteData)
		if err != nil {
			return unified.WrapStep("reload record", rec.ID.String(), err)
		}

		status := unified.AuditFail
		if resp.Created() {
			status = unified.AuditSuccess
		}
		audit := unified.NewAuditEvent(conn, unified.EventType(cmd.EntityType, unified.ActionPush),
			http.MethodPost, status, unified.DirectionOutbound, now)
		audit.LinkedUserID = tenantCtx.LinkedUserID
		if err := tx.Audits().Append(ctx, audit); err != nil {
			return unified.WrapStep("append audit event", rec.ID.String(), err)
		}

		ev, err := unified.NewRecordPushedEvent(conn, view, created)
		if err != nil {
			return unified.WrapStep("build pushed event", rec.ID.String(), err)
		}
		if err := tx.Events().Save(ctx, ev); err != nil {
			return unified.WrapStep("save pushed event", rec.ID.String(), err)
		}

		out = &PushResult{Record: view, Created: created}
		return nil
	})
	if err != nil {
		return nil, conn.Provider, err
	}
	return out, conn.Provider, nil
}

func (o *Orchestrator) write(ctx context.Context, provider string, req unified.WriteRequest) (*unified.WriteResponse, error) {
	connector, err := o.connectors.Resolve(provider)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "connector.write",
		telemetry.WithAttribute(telemetry.SpanAttrProvider, provider),
		telemetry.WithAttribute(telemetry.SpanAttrEntity, string(req.EntityType)),
	)
	defer span.End()

	var resp *unified.WriteResponse
	start := time.Now()
	telemetry.WithProfilingLabels(ctx, map[string]string{
		"provider": provider,
		"entity":   string(req.EntityType),
	}, func(ctx context.Context) {
		resp, err = connector.Write(ctx, req)
	})
	o.metrics.RecordConnectorLatency(ctx, provider, time.Since(start), err == nil)
	if err != nil {
		telemetry.RecordError(span, err)
		if !errors.Is(err, unified.ErrConnectorFailure) {
			err = &unified.ConnectorError{Provider: provider, Err: err}
		}
		return nil, err
	}
	if resp == nil {
		return nil, &unified.ConnectorError{Provider: provider, Err: errors.New("empty response")}
	}
	telemetry.SetAttribute(span, "http.status_code", resp.StatusCode)
	telemetry.SetOK(span)
	return resp, nil
}

// upsert keys on (remote_id, connection_id). A create that loses a race
// against a concurrent push of the same key is retried as an update; the
// repository rolls the failed insert back to a savepoint.
func upsert(ctx context.Context, records unified.RecordRepository, conn *unified.Connection, entity unified.EntityType, res unified.UnifiedResult, now time.Time) (*unified.Record, bool, error) {
	if res.RemoteID != nil {
		existing, err := records.FindByRemoteID(ctx, conn.ID, *res.RemoteID)
		switch {
		case err == nil:
			return update(ctx, records, existing, res, now)
		case !errors.Is(err, unified.ErrNotFound):
			return nil, false, err
		}
	}

	rec := unified.NewRecord(conn, entity, res.RemoteID, res.Fields, now)
	err := records.Create(ctx, rec)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, shared.ErrAlreadyExists) || res.RemoteID == nil {
		return nil, false, err
	}

	winner, err := records.FindByRemoteID(ctx, conn.ID, *res.RemoteID)
	if err != nil {
		return nil, false, fmt.Errorf("reload after conflict: %w", err)
	}
	return update(ctx, records, winner, res, now)
}

func update(ctx context.Context, records unified.RecordRepository, rec *unified.Record, res unified.UnifiedResult, now time.Time) (*unified.Record, bool, error) {
	rec.Apply(res.Fields, now)
	if err := records.Update(ctx, rec); err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

// checkReferences verifies every reference field in declaration order and
// reports all missing ids of the first field that has any.
func (o *Orchestrator) checkReferences(ctx context.Context, stores unified.Stores, schema *unified.EntitySchema, tenantID uuid.UUID, input map[string]any) error {
	for _, def := range schema.References() {
		raw, ok := input[def.Name]
		if !ok || raw == nil {
			continue
		}
		values, err := referenceValues(raw)
		if err != nil {
			return fmt.Errorf("%w: %s.%s: %v", unified.ErrTransform, schema.Entity, def.Name, err)
		}
		if err := o.checkIDs(ctx, stores, tenantID, def.Ref, def.Name, values); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) checkIDs(ctx context.Context, stores unified.Stores, tenantID uuid.UUID, entity unified.EntityType, field string, values []string) error {
	if len(values) == 0 {
		return nil
	}
	var missing []string
	ids := make([]uuid.UUID, 0, len(values))
	parsed := make(map[string]uuid.UUID, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			continue
		}
		parsed[v] = id
		ids = append(ids, id)
	}
	found, err := stores.Records().ExistingIDs(ctx, tenantID, entity, ids)
	if err != nil {
		return unified.WrapStep("check references", field, err)
	}
	for _, v := range values {
		id, ok := parsed[v]
		if !ok || !found[id] {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return &unified.ReferenceError{Field: field, Missing: missing}
	}
	return nil
}

func referenceValues(raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("reference %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported reference value %T", raw)
	}
}

func decodeObject(provider string, raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %s response: %v", unified.ErrTransform, provider, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s response is not an object", unified.ErrTransform, provider)
	}
	return obj, nil
}

func cloneInput(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
