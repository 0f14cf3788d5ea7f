package connector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/config"
)

func writeReq(conn uuid.UUID, payload unified.ProviderPayload) unified.WriteRequest {
	return unified.WriteRequest{
		EntityType: unified.EntityTicket,
		Payload:    payload,
		Tenant:     unified.TenantContext{TenantID: uuid.New(), ConnectionID: conn, Provider: "echo"},
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewEchoConnector("echo")))
	require.NoError(t, r.Register(NewEchoConnector("sandbox")))

	err := r.Register(NewEchoConnector("echo"))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	c, err := r.Resolve("sandbox")
	require.NoError(t, err)
	assert.Equal(t, "sandbox", c.Provider())

	c, err = r.Resolve("zendesk")
	assert.Nil(t, c)
	assert.ErrorIs(t, err, unified.ErrUnknownProvider)

	assert.Equal(t, []string{"echo", "sandbox"}, r.Providers())
}

func TestEchoConnector_AssignsSequentialIDsPerConnection(t *testing.T) {
	e := NewEchoConnector("echo")
	connA, connB := uuid.New(), uuid.New()

	for i, want := range []string{"rt-1", "rt-2"} {
		resp, err := e.Write(context.Background(), writeReq(connA, unified.ProviderPayload{"title": "t"}))
		require.NoError(t, err, "write %d", i)
		assert.True(t, resp.Created())

		var body map[string]any
		require.NoError(t, json.Unmarshal(resp.RawBody, &body))
		assert.Equal(t, want, body["id"])
		assert.Equal(t, "t", body["title"])
	}

	resp, err := e.Write(context.Background(), writeReq(connB, unified.ProviderPayload{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"rt-1"}`, string(resp.RawBody))
}

func TestEchoConnector_ResumesFromSeed(t *testing.T) {
	calls := 0
	e := NewEchoConnector("echo", WithSequenceSeed(func(_ context.Context, _ uuid.UUID) (int, error) {
		calls++
		return 7, nil
	}))
	conn := uuid.New()

	for _, want := range []string{"rt-8", "rt-9"} {
		resp, err := e.Write(context.Background(), writeReq(conn, unified.ProviderPayload{}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"`+want+`"}`, string(resp.RawBody))
	}
	assert.Equal(t, 1, calls, "seed is read once per connection")
}

func TestEchoConnector_SeedFailure(t *testing.T) {
	boom := errors.New("db down")
	e := NewEchoConnector("echo", WithSequenceSeed(func(context.Context, uuid.UUID) (int, error) {
		return 0, boom
	}))

	_, err := e.Write(context.Background(), writeReq(uuid.New(), unified.ProviderPayload{}))
	assert.ErrorIs(t, err, unified.ErrConnectorFailure)
	assert.ErrorIs(t, err, boom)
}

func TestEchoConnector_UpdateKeepsID(t *testing.T) {
	e := NewEchoConnector("echo")
	resp, err := e.Write(context.Background(), writeReq(uuid.New(), unified.ProviderPayload{"id": "rt-9", "title": "x"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, resp.Created())
	assert.JSONEq(t, `{"id":"rt-9","title":"x"}`, string(resp.RawBody))
}

func TestEchoConnector_FailWith(t *testing.T) {
	e := NewEchoConnector("echo")
	boom := errors.New("boom")
	e.FailWith(boom)

	_, err := e.Write(context.Background(), writeReq(uuid.New(), nil))
	assert.ErrorIs(t, err, unified.ErrConnectorFailure)
	assert.ErrorIs(t, err, boom)

	e.FailWith(nil)
	_, err = e.Write(context.Background(), writeReq(uuid.New(), nil))
	assert.NoError(t, err)
}

func TestRESTConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, (&RESTConfig{BaseURL: "http://x"}).Validate(), ErrRESTMissingProvider)
	assert.ErrorIs(t, (&RESTConfig{Provider: "zd"}).Validate(), ErrRESTMissingBaseURL)
	assert.NoError(t, (&RESTConfig{Provider: "zd", BaseURL: "http://x"}).Validate())
}

func TestRESTConfigFromSettings(t *testing.T) {
	cfg := RESTConfigFromSettings("zendesk", config.RESTProviderConfig{
		BaseURL: "http://x",
		Token:   "tok",
		Timeout: time.Second,
		Paths:   map[string]string{"ticket": "/api/v2/tickets"},
	})
	assert.Equal(t, "zendesk", cfg.Provider)
	assert.Equal(t, "/api/v2/tickets", cfg.path(unified.EntityTicket))
	assert.Equal(t, "/contacts", cfg.path(unified.EntityContact))
}

func TestRESTConnector_Write(t *testing.T) {
	var gotPath, gotAuth, gotUser string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUser = r.Header.Get("X-Linked-User")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"zd-1"}`))
	}))
	defer srv.Close()

	c, err := NewRESTConnector(&RESTConfig{Provider: "zendesk", BaseURL: srv.URL + "/", Token: "tok"})
	require.NoError(t, err)

	req := writeReq(uuid.New(), unified.ProviderPayload{"subject": "help"})
	req.Tenant.LinkedUserID = "user-7"
	resp, err := c.Write(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, resp.Created())
	assert.JSONEq(t, `{"id":"zd-1"}`, string(resp.RawBody))
	assert.Equal(t, "/tickets", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "user-7", gotUser)
	assert.Equal(t, "help", gotBody["subject"])
}

func TestRESTConnector_TenantOverride(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewRESTConnector(&RESTConfig{Provider: "zendesk", BaseURL: srv.URL, Token: "default"})
	require.NoError(t, err)

	req := writeReq(uuid.New(), nil)
	require.NoError(t, c.SetTenantConfig(req.Tenant.TenantID, &RESTConfig{Provider: "zendesk", BaseURL: srv.URL, Token: "tenant"}))

	_, err = c.Write(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tenant", gotAuth)

	_, err = c.Write(context.Background(), writeReq(uuid.New(), nil))
	require.NoError(t, err)
	assert.Equal(t, "Bearer default", gotAuth)

	assert.Error(t, c.SetTenantConfig(uuid.New(), &RESTConfig{}))
}

func TestRESTConnector_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"down"}`, "HTTP 500"},
		{"rejected", http.StatusUnprocessableEntity, `invalid subject`, "invalid subject"},
		{"not json", http.StatusOK, `<html>`, "not JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewRESTConnector(&RESTConfig{Provider: "zendesk", BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = c.Write(context.Background(), writeReq(uuid.New(), nil))
			require.Error(t, err)
			assert.ErrorIs(t, err, unified.ErrConnectorFailure)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var ce *unified.ConnectorError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.status, ce.StatusCode)
		})
	}
}

func TestRESTConnector_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewRESTConnector(&RESTConfig{Provider: "zendesk", BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Write(context.Background(), writeReq(uuid.New(), nil))
	assert.ErrorIs(t, err, unified.ErrConnectorFailure)
	assert.False(t, strings.Contains(err.Error(), "HTTP "))
}
