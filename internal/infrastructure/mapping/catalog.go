// Package mapping loads provider field mappings from YAML files and serves
// them to the unification engine.
package mapping

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/unihub/backend/internal/domain/unified"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultFiles embed.FS

var ErrInvalidMapping = errors.New("invalid provider mapping")

// providerFile is the on-disk layout: one provider per file.
type providerFile struct {
	Provider string                  `yaml:"provider"`
	Entities []unified.EntityMapping `yaml:"entities"`
}

type key struct {
	provider string
	entity   unified.EntityType
}

// Catalog is a unified.MappingSource backed by YAML files. The built-in
// defaults are always loaded first; files from the configured directory
// replace a default provider entirely.
type Catalog struct {
	dir     string
	schemas *unified.SchemaRegistry
	logger  *zap.Logger

	mu       sync.RWMutex
	mappings map[key]*unified.EntityMapping
}

type Option func(*Catalog)

// WithDir adds a directory of *.yaml / *.yml files on top of the defaults.
func WithDir(dir string) Option {
	return func(c *Catalog) { c.dir = dir }
}

// WithSchemas rejects mappings that name canonical fields the schema
// does not have.
func WithSchemas(reg *unified.SchemaRegistry) Option {
	return func(c *Catalog) { c.schemas = reg }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Catalog) { c.logger = logger }
}

// NewCatalog loads the catalog once. Any invalid file fails construction.
func NewCatalog(opts ...Option) (*Catalog, error) {
	c := &Catalog{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Mapping implements unified.MappingSource.
func (c *Catalog) Mapping(provider string, entity unified.EntityType) (*unified.EntityMapping, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.mappings[key{provider, entity}]
	if !ok {
		return nil, fmt.Errorf("%w: no %s mapping for provider '%s'", unified.ErrUnknownProvider, entity, provider)
	}
	return m, nil
}

// Providers lists every provider with at least one mapping.
func (c *Catalog) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{})
	for k := range c.mappings {
		seen[k.provider] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Reload re-reads every file. On error the current mappings stay in place.
func (c *Catalog) Reload() error {
	byProvider := make(map[string][]unified.EntityMapping)

	if err := c.loadFS(defaultFiles, "defaults", byProvider); err != nil {
		return err
	}
	if c.dir != "" {
		if err := c.loadFS(os.DirFS(c.dir), ".", byProvider); err != nil {
			return err
		}
	}

	next := make(map[key]*unified.EntityMapping)
	for provider, entities := range byProvider {
		for i := range entities {
			m := entities[i]
			m.Provider = provider
			next[key{provider, m.Entity}] = &m
		}
	}

	c.mu.Lock()
	c.mappings = next
	c.mu.Unlock()

	c.logger.Info("provider mappings loaded",
		zap.Int("providers", len(byProvider)),
		zap.Int("mappings", len(next)),
	)
	return nil
}

func (c *Catalog) loadFS(fsys fs.FS, root string, into map[string][]unified.EntityMapping) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read mapping dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isMappingFile(e.Name()) {
			continue
		}
		name := path.Join(root, e.Name())
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		pf, err := c.parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		into[pf.Provider] = pf.Entities
	}
	return nil
}

// parse decodes and validates one provider file.
func (c *Catalog) parse(data []byte) (*providerFile, error) {
	var pf providerFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	if pf.Provider == "" {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidMapping)
	}

	seen := make(map[unified.EntityType]bool)
	for _, m := range pf.Entities {
		if !m.Entity.IsValid() {
			return nil, fmt.Errorf("%w: unknown entity '%s'", ErrInvalidMapping, m.Entity)
		}
		if seen[m.Entity] {
			return nil, fmt.Errorf("%w: entity '%s' mapped twice", ErrInvalidMapping, m.Entity)
		}
		seen[m.Entity] = true
		if m.RemoteIDField == "" {
			return nil, fmt.Errorf("%w: %s: remote_id is required", ErrInvalidMapping, m.Entity)
		}
		if err := c.checkFields(m); err != nil {
			return nil, err
		}
	}
	return &pf, nil
}

func (c *Catalog) checkFields(m unified.EntityMapping) error {
	var schema *unified.EntitySchema
	if c.schemas != nil {
		s, err := c.schemas.Get(m.Entity)
		if err != nil {
			return err
		}
		schema = s
	}
	canonical := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		if f.Canonical == "" || f.Remote == "" {
			return fmt.Errorf("%w: %s: canonical and remote are required", ErrInvalidMapping, m.Entity)
		}
		if canonical[f.Canonical] {
			return fmt.Errorf("%w: %s.%s mapped twice", ErrInvalidMapping, m.Entity, f.Canonical)
		}
		canonical[f.Canonical] = true
		if schema != nil {
			if _, ok := schema.Field(f.Canonical); !ok {
				return fmt.Errorf("%w: %s has no field '%s'", ErrInvalidMapping, m.Entity, f.Canonical)
			}
		}
	}
	return nil
}

func isMappingFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

var _ unified.MappingSource = (*Catalog)(nil)
