package unified

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// ProviderPayload is a provider-native request body.
type ProviderPayload map[string]any

// TenantContext identifies the caller to a connector.
type TenantContext struct {
	TenantID     uuid.UUID
	ConnectionID uuid.UUID
	Provider     string
	LinkedUserID string
}

// WriteRequest is one outbound write to a provider.
type WriteRequest struct {
	EntityType EntityType
	Payload    ProviderPayload
	Tenant     TenantContext
}

// WriteResponse is the provider's answer: its status code and raw body.
type WriteResponse struct {
	StatusCode int
	RawBody    json.RawMessage
}

// Created reports whether the provider answered with its "created" status.
func (r *WriteResponse) Created() bool {
	return r != nil && r.StatusCode == http.StatusCreated
}

// Connector performs the external call to one provider backend.
// Implementations enforce their own timeouts and retries.
type Connector interface {
	Provider() string
	Write(ctx context.Context, req WriteRequest) (*WriteResponse, error)
}

// ConnectorResolver selects the connector of a provider. It never returns
// a nil connector without an error; unknown providers fail with
// ErrUnknownProvider.
type ConnectorResolver interface {
	Resolve(provider string) (Connector, error)
}
