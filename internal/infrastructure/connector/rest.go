package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/config"
)

// maxResponseSize caps how much of a provider response is read (10MB).
const maxResponseSize = 10 << 20

const defaultTimeout = 30 * time.Second

var (
	ErrRESTMissingProvider = errors.New("rest connector: provider is required")
	ErrRESTMissingBaseURL  = errors.New("rest connector: base url is required")
)

// RESTConfig is the connection detail of one JSON-over-HTTP provider.
type RESTConfig struct {
	Provider string
	BaseURL  string
	Token    string
	Timeout  time.Duration
	// Paths maps entity types to URL paths under BaseURL. Entities without
	// an entry are posted to "/<entity>s".
	Paths map[unified.EntityType]string
}

func (c *RESTConfig) Validate() error {
	if c.Provider == "" {
		return ErrRESTMissingProvider
	}
	if c.BaseURL == "" {
		return ErrRESTMissingBaseURL
	}
	return nil
}

func (c *RESTConfig) path(entity unified.EntityType) string {
	if p, ok := c.Paths[entity]; ok {
		return p
	}
	return "/" + string(entity) + "s"
}

// RESTConfigFromSettings adapts a [connectors.rest.<provider>] section.
func RESTConfigFromSettings(provider string, s config.RESTProviderConfig) *RESTConfig {
	paths := make(map[unified.EntityType]string, len(s.Paths))
	for entity, p := range s.Paths {
		paths[unified.EntityType(entity)] = p
	}
	return &RESTConfig{
		Provider: provider,
		BaseURL:  s.BaseURL,
		Token:    s.Token,
		Timeout:  s.Timeout,
		Paths:    paths,
	}
}

// RESTConnector posts desunified payloads to a provider's HTTP API.
// Tenants may carry their own base URL and token; others use the default.
type RESTConnector struct {
	config     *RESTConfig
	httpClient *http.Client

	mu      sync.RWMutex
	tenants map[uuid.UUID]*RESTConfig
}

func NewRESTConnector(cfg *RESTConfig) (*RESTConnector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &RESTConnector{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		tenants:    make(map[uuid.UUID]*RESTConfig),
	}, nil
}

func (c *RESTConnector) Provider() string {
	return c.config.Provider
}

// SetTenantConfig overrides the provider settings for one tenant.
func (c *RESTConnector) SetTenantConfig(tenantID uuid.UUID, cfg *RESTConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenants[tenantID] = cfg
	return nil
}

func (c *RESTConnector) configFor(tenantID uuid.UUID) *RESTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cfg, ok := c.tenants[tenantID]; ok {
		return cfg
	}
	return c.config
}

// Write sends one POST. Any transport error or non-2xx answer is a
// unified.ConnectorError; there is no retry here.
func (c *RESTConnector) Write(ctx context.Context, req unified.WriteRequest) (*unified.WriteResponse, error) {
	cfg := c.configFor(req.Tenant.TenantID)

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, c.fail(0, fmt.Errorf("encode payload: %w", err))
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/") + cfg.path(req.EntityType)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, c.fail(0, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.Token)
	}
	if req.Tenant.LinkedUserID != "" {
		httpReq.Header.Set("X-Linked-User", req.Tenant.LinkedUserID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.fail(0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.fail(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(resp.StatusCode, errors.New(snippet(raw)))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	if !json.Valid(raw) {
		return nil, c.fail(resp.StatusCode, errors.New("response is not JSON"))
	}
	return &unified.WriteResponse{StatusCode: resp.StatusCode, RawBody: raw}, nil
}

func (c *RESTConnector) fail(status int, err error) error {
	return &unified.ConnectorError{Provider: c.config.Provider, StatusCode: status, Err: err}
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}
