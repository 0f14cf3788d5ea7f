package unified

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEndpoint is a tenant's subscriber URL. An empty EventTypes list
// subscribes to every webhook type.
type WebhookEndpoint struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	URL        string    `json:"url"`
	Secret     string    `json:"-"`
	EventTypes []string  `json:"event_types"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Accepts reports whether the endpoint wants eventType.
func (w *WebhookEndpoint) Accepts(eventType string) bool {
	if !w.Active {
		return false
	}
	if len(w.EventTypes) == 0 {
		return true
	}
	for _, t := range w.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

type WebhookEndpointRepository interface {
	// Subscribed returns the active endpoints of a tenant accepting eventType.
	Subscribed(ctx context.Context, tenantID uuid.UUID, eventType string) ([]*WebhookEndpoint, error)
	Save(ctx context.Context, endpoint *WebhookEndpoint) error
}

// Notification is one webhook fan-out request.
type Notification struct {
	Record        json.RawMessage
	EventType     string
	TenantID      uuid.UUID
	CorrelationID uuid.UUID
}

// Notifier delivers notifications to subscribers. An error means at least
// one subscriber was not reached and the delivery should be retried.
type Notifier interface {
	Dispatch(ctx context.Context, n Notification) error
}
