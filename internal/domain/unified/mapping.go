package unified

import (
	"strings"
)

// FieldMapping pairs a canonical field with a provider field. Remote may be
// a dotted path into nested provider objects, e.g. "fields.summary".
type FieldMapping struct {
	Canonical string `yaml:"canonical" json:"canonical"`
	Remote    string `yaml:"remote" json:"remote"`
}

// EntityMapping describes how one provider spells one canonical entity.
type EntityMapping struct {
	Provider      string         `yaml:"provider" json:"provider"`
	Entity        EntityType     `yaml:"entity" json:"entity"`
	RemoteIDField string         `yaml:"remote_id" json:"remote_id"`
	Fields        []FieldMapping `yaml:"fields" json:"fields"`
}

// MappingSource supplies provider mappings. Missing (provider, entity)
// pairs fail with ErrUnknownProvider.
type MappingSource interface {
	Mapping(provider string, entity EntityType) (*EntityMapping, error)
}

func getPath(obj map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = obj
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(obj map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := obj
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}
