package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/unified"
)

// EchoConnector answers every write with the payload it was sent. Payloads
// without an "id" get the next "rt-N" of their connection and a 201; payloads
// that carry one are treated as updates and get a 200. It backs sandbox
// tenants and tests.
type EchoConnector struct {
	provider string
	seed     SequenceSeed

	mu   sync.Mutex
	seq  map[uuid.UUID]int
	fail error
}

// EchoIDPrefix starts every remote id the echo connector mints.
const EchoIDPrefix = "rt-"

// SequenceSeed reports the highest "rt-N" already stored for a connection,
// so numbering resumes after a restart instead of reissuing taken ids.
type SequenceSeed func(ctx context.Context, connectionID uuid.UUID) (int, error)

type EchoOption func(*EchoConnector)

func WithSequenceSeed(seed SequenceSeed) EchoOption {
	return func(e *EchoConnector) { e.seed = seed }
}

func NewEchoConnector(provider string, opts ...EchoOption) *EchoConnector {
	e := &EchoConnector{provider: provider, seq: make(map[uuid.UUID]int)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *EchoConnector) Provider() string {
	return e.provider
}

// FailWith makes every following Write fail with err. nil restores echoing.
func (e *EchoConnector) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

func (e *EchoConnector) Write(ctx context.Context, req unified.WriteRequest) (*unified.WriteResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, &unified.ConnectorError{Provider: e.provider, Err: err}
	}

	if err := e.resume(ctx, req.Tenant.ConnectionID); err != nil {
		return nil, &unified.ConnectorError{Provider: e.provider, Err: err}
	}

	e.mu.Lock()
	if e.fail != nil {
		err := e.fail
		e.mu.Unlock()
		return nil, &unified.ConnectorError{Provider: e.provider, StatusCode: http.StatusBadGateway, Err: err}
	}
	body := make(map[string]any, len(req.Payload)+1)
	for k, v := range req.Payload {
		body[k] = v
	}
	status := http.StatusOK
	if id, ok := body["id"]; !ok || id == nil || id == "" {
		e.seq[req.Tenant.ConnectionID]++
		body["id"] = fmt.Sprintf("%s%d", EchoIDPrefix, e.seq[req.Tenant.ConnectionID])
		status = http.StatusCreated
	}
	e.mu.Unlock()

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, &unified.ConnectorError{Provider: e.provider, Err: err}
	}
	return &unified.WriteResponse{StatusCode: status, RawBody: raw}, nil
}

// resume loads the stored sequence of a connection the first time it is seen.
func (e *EchoConnector) resume(ctx context.Context, connectionID uuid.UUID) error {
	if e.seed == nil {
		return nil
	}
	e.mu.Lock()
	_, known := e.seq[connectionID]
	e.mu.Unlock()
	if known {
		return nil
	}

	last, err := e.seed(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("resume sequence of %s: %w", connectionID, err)
	}
	e.mu.Lock()
	if e.seq[connectionID] < last {
		e.seq[connectionID] = last
	}
	e.mu.Unlock()
	return nil
}
