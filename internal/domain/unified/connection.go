package unified

import (
	"time"

	"github.com/google/uuid"
)

// Tenant owns connections and everything synced through them.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type ConnectionStatus string

const (
	ConnectionActive   ConnectionStatus = "active"
	ConnectionDisabled ConnectionStatus = "disabled"
)

// Connection is one tenant's link to one provider. Records synced through
// it are scoped by its id.
type Connection struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Provider     string
	Category     Category
	LinkedUserID string
	Status       ConnectionStatus
	CreatedAt    time.Time
}

func (c *Connection) IsActive() bool {
	return c.Status == ConnectionActive
}

// TenantContext is what a connector learns about the caller.
func (c *Connection) TenantContext() TenantContext {
	return TenantContext{
		TenantID:     c.TenantID,
		ConnectionID: c.ID,
		Provider:     c.Provider,
		LinkedUserID: c.LinkedUserID,
	}
}
