// Package connector holds the provider connectors and the registry the
// sync pipeline resolves them from.
package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
)

// Registry maps provider names to connectors.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]unified.Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]unified.Connector)}
}

// Register adds c under c.Provider(). A provider can only be registered once.
func (r *Registry) Register(c unified.Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Provider()
	if _, exists := r.connectors[name]; exists {
		return fmt.Errorf("%w: connector for provider '%s' already registered", shared.ErrAlreadyExists, name)
	}
	r.connectors[name] = c
	return nil
}

// Resolve fails with unified.ErrUnknownProvider instead of returning nil.
func (r *Registry) Resolve(provider string) (unified.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[provider]
	if !ok {
		return nil, fmt.Errorf("%w: no connector for provider '%s'", unified.ErrUnknownProvider, provider)
	}
	return c, nil
}

// Providers lists registered providers in sorted order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ unified.ConnectorResolver = (*Registry)(nil)
