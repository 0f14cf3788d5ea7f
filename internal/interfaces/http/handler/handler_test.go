package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/application/event"
	syncapp "github.com/unihub/backend/internal/application/unified"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockPusher struct{ mock.Mock }

func (m *mockPusher) Push(ctx context.Context, cmd syncapp.PushCommand) (*syncapp.PushResult, error) {
	args := m.Called(ctx, cmd)
	res, _ := args.Get(0).(*syncapp.PushResult)
	return res, args.Error(1)
}

type mockReader struct{ mock.Mock }

func (m *mockReader) Get(ctx context.Context, tenantID, id uuid.UUID, wantRaw bool) (*unified.UnifiedRecord, error) {
	args := m.Called(ctx, tenantID, id, wantRaw)
	rec, _ := args.Get(0).(*unified.UnifiedRecord)
	return rec, args.Error(1)
}

func (m *mockReader) List(ctx context.Context, q syncapp.ListQuery) (*syncapp.Page, error) {
	args := m.Called(ctx, q)
	page, _ := args.Get(0).(*syncapp.Page)
	return page, args.Error(1)
}

type mockDeadLetters struct{ mock.Mock }

func (m *mockDeadLetters) List(ctx context.Context, f event.ListFilter) (*event.ListResult, error) {
	args := m.Called(ctx, f)
	res, _ := args.Get(0).(*event.ListResult)
	return res, args.Error(1)
}

func (m *mockDeadLetters) Get(ctx context.Context, id uuid.UUID) (*event.EntryDTO, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*event.EntryDTO)
	return res, args.Error(1)
}

func (m *mockDeadLetters) Retry(ctx context.Context, id uuid.UUID) (*event.EntryDTO, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*event.EntryDTO)
	return res, args.Error(1)
}

func (m *mockDeadLetters) RetryAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockDeadLetters) Stats(ctx context.Context) (*event.StatsDTO, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*event.StatsDTO)
	return res, args.Error(1)
}

var tenantID = uuid.MustParse("7d2f1c1e-9a53-4d8e-bb43-0e4f3c6a1d20")

func newEngine(registrars ...interface{ RegisterRoutes(*gin.RouterGroup) }) *gin.Engine {
	middleware.SetupValidator()
	r := gin.New()
	api := r.Group("/api/v1", middleware.RequestID(), middleware.Tenant(middleware.TenantConfig{}))
	for _, reg := range registrars {
		reg.RegisterRoutes(api)
	}
	return r
}

func do(t *testing.T, r http.Handler, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeader, tenantID.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "no error in %v", body)
	return e["code"].(string)
}

func sampleRecord(entity unified.EntityType) *unified.UnifiedRecord {
	conn := &unified.Connection{ID: uuid.New(), TenantID: tenantID, Provider: "echo", Category: unified.CategoryTicketing}
	remote := "r-1"
	rec := unified.NewRecord(conn, entity, &remote, map[string]any{"name": "Printer on fire"}, time.Unix(1700000000, 0))
	return &unified.UnifiedRecord{Record: rec, Overlay: unified.OverlayValues{{Slug: "severity", Value: "high"}}}
}

func TestRecordHandler_Push(t *testing.T) {
	pusher := &mockPusher{}
	r := newEngine(NewRecordHandler(pusher, &mockReader{}))
	connID := uuid.New()

	pusher.On("Push", mock.Anything, mock.MatchedBy(func(cmd syncapp.PushCommand) bool {
		sev, _ := cmd.Overlay.Get("severity")
		return cmd.TenantID == tenantID &&
			cmd.ConnectionID == connID &&
			cmd.EntityType == unified.EntityTicket &&
			cmd.Input["name"] == "Printer on fire" &&
			sev == "high" &&
			cmd.RemoteData
	})).Return(&syncapp.PushResult{Record: sampleRecord(unified.EntityTicket), Created: true}, nil).Once()

	w, body := do(t, r, http.MethodPost, fmt.Sprintf("/api/v1/ticketing/ticket?connection_id=%s&remote_data=true", connID), map[string]any{
		"data":    map[string]any{"name": "Printer on fire"},
		"overlay": []map[string]any{{"slug": "severity", "value": "high"}},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["created"])
	record := data["record"].(map[string]any)
	assert.Equal(t, "Printer on fire", record["name"])
	assert.Equal(t, map[string]any{"severity": "high"}, record["field_mappings"])
	pusher.AssertExpectations(t)
}

func TestRecordHandler_PushUpdateIs200(t *testing.T) {
	pusher := &mockPusher{}
	r := newEngine(NewRecordHandler(pusher, &mockReader{}))
	pusher.On("Push", mock.Anything, mock.Anything).
		Return(&syncapp.PushResult{Record: sampleRecord(unified.EntityTicket)}, nil)

	w, _ := do(t, r, http.MethodPost, "/api/v1/ticketing/ticket?connection_id="+uuid.NewString(), map[string]any{
		"data": map[string]any{"name": "x"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecordHandler_PushErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"missing reference", &unified.ReferenceError{Field: "assignee_ids", Missing: []string{"u-9"}}, http.StatusUnprocessableEntity, "ERR_REFERENCE_NOT_FOUND"},
		{"connector", &unified.ConnectorError{Provider: "zendesk", StatusCode: 503, Err: errors.New("unavailable")}, http.StatusBadGateway, "ERR_CONNECTOR_FAILURE"},
		{"transform", unified.WrapStep("unify", "", fmt.Errorf("%w: bad shape", unified.ErrTransform)), http.StatusUnprocessableEntity, "ERR_TRANSFORM"},
		{"connection not found", fmt.Errorf("connection: %w", shared.ErrNotFound), http.StatusNotFound, "ERR_NOT_FOUND"},
		{"unknown provider", unified.ErrUnknownProvider, http.StatusBadRequest, "ERR_UNKNOWN_PROVIDER"},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "ERR_INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pusher := &mockPusher{}
			r := newEngine(NewRecordHandler(pusher, &mockReader{}))
			pusher.On("Push", mock.Anything, mock.Anything).Return(nil, tt.err)

			w, body := do(t, r, http.MethodPost, "/api/v1/ticketing/ticket?connection_id="+uuid.NewString(), map[string]any{
				"data": map[string]any{"name": "x"},
			})
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}
}

func TestRecordHandler_PushRejectsBadRequests(t *testing.T) {
	r := newEngine(NewRecordHandler(&mockPusher{}, &mockReader{}))

	w, body := do(t, r, http.MethodPost, "/api/v1/ticketing/ticket", map[string]any{"data": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ERR_VALIDATION", errorCode(t, body))

	w, body = do(t, r, http.MethodPost, "/api/v1/ticketing/invoice?connection_id="+uuid.NewString(), map[string]any{"data": map[string]any{}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ERR_UNKNOWN_ENTITY", errorCode(t, body))
}

func TestRecordHandler_List(t *testing.T) {
	reader := &mockReader{}
	r := newEngine(NewRecordHandler(&mockPusher{}, reader))
	connID := uuid.New()

	reader.On("List", mock.Anything, syncapp.ListQuery{
		TenantID:     tenantID,
		ConnectionID: connID,
		EntityType:   unified.EntityContact,
		Limit:        2,
		Cursor:       "prev",
	}).Return(&syncapp.Page{
		Records:    []*unified.UnifiedRecord{sampleRecord(unified.EntityContact)},
		PrevCursor: "prev",
		NextCursor: "next",
	}, nil)

	w, body := do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/ticketing/contact?connection_id=%s&limit=2&cursor=prev", connID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, map[string]any{"previous": "prev", "next": "next"}, body["meta"])
}

func TestRecordHandler_ListPassesNegativeLimitThrough(t *testing.T) {
	reader := &mockReader{}
	r := newEngine(NewRecordHandler(&mockPusher{}, reader))

	reader.On("List", mock.Anything, mock.MatchedBy(func(q syncapp.ListQuery) bool { return q.Limit == -5 })).
		Return(&syncapp.Page{}, nil)

	w, _ := do(t, r, http.MethodGet, "/api/v1/ticketing/ticket?limit=-5&connection_id="+uuid.NewString(), nil)
	assert.Equal(t, http.StatusOK, w.Code, "the reader clamps the limit")
	reader.AssertExpectations(t)
}

func TestRecordHandler_ListEmptyAndInvalidCursor(t *testing.T) {
	reader := &mockReader{}
	r := newEngine(NewRecordHandler(&mockPusher{}, reader))

	reader.On("List", mock.Anything, mock.MatchedBy(func(q syncapp.ListQuery) bool { return q.Cursor == "" })).
		Return(&syncapp.Page{}, nil)
	reader.On("List", mock.Anything, mock.MatchedBy(func(q syncapp.ListQuery) bool { return q.Cursor == "junk" })).
		Return(nil, fmt.Errorf("%w: junk", unified.ErrInvalidCursor))

	w, body := do(t, r, http.MethodGet, "/api/v1/ticketing/ticket?connection_id="+uuid.NewString(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, body["data"])

	w, body = do(t, r, http.MethodGet, "/api/v1/ticketing/ticket?cursor=junk&connection_id="+uuid.NewString(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ERR_INVALID_CURSOR", errorCode(t, body))
}

func TestRecordHandler_Get(t *testing.T) {
	reader := &mockReader{}
	r := newEngine(NewRecordHandler(&mockPusher{}, reader))
	rec := sampleRecord(unified.EntityTicket)
	id := rec.Record.ID

	reader.On("Get", mock.Anything, tenantID, id, true).Return(rec, nil)

	w, body := do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/ticketing/ticket/%s?remote_data=true", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), body["data"].(map[string]any)["id"])

	reader.On("Get", mock.Anything, tenantID, id, false).Return(rec, nil)
	w, body = do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/ticketing/user/%s", id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ERR_NOT_FOUND", errorCode(t, body))
}

func TestOutboxHandler(t *testing.T) {
	dl := &mockDeadLetters{}
	r := newEngine(NewOutboxHandler(dl))
	id := uuid.New()

	dl.On("List", mock.Anything, event.ListFilter{Page: 2, PageSize: 10}).
		Return(&event.ListResult{Entries: []event.EntryDTO{{ID: id, Status: "DEAD"}}, Total: 11, Page: 2, PageSize: 10, TotalPages: 2}, nil)
	w, body := do(t, r, http.MethodGet, "/api/v1/admin/outbox/dead?page=2&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(11), body["meta"].(map[string]any)["total"])

	dl.On("Retry", mock.Anything, id).Return(nil, fmt.Errorf("%w: entry is SENT", shared.ErrInvalidState)).Once()
	w, body = do(t, r, http.MethodPost, "/api/v1/admin/outbox/"+id.String()+"/retry", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "ERR_INVALID_STATE", errorCode(t, body))

	dl.On("RetryAll", mock.Anything).Return(int64(3), nil)
	w, body = do(t, r, http.MethodPost, "/api/v1/admin/outbox/dead/retry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["data"].(map[string]any)["requeued"])

	w, _ = do(t, r, http.MethodGet, "/api/v1/admin/outbox/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandler(t *testing.T) {
	healthy := NewHealthHandler("1.2.3", map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	})
	r := gin.New()
	r.GET("/health", healthy.Health)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)

	sick := NewHealthHandler("1.2.3", map[string]HealthCheck{
		"database": func(context.Context) error { return errors.New("connection refused") },
	})
	r = gin.New()
	r.GET("/health", sick.Health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
