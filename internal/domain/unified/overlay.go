package unified

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// OverlayRule maps a tenant-defined extension slug to a provider field.
// Default, when set, seeds the slug before provider values are read.
type OverlayRule struct {
	Slug        string `json:"slug"`
	RemoteField string `json:"remote_field"`
	Default     any    `json:"default,omitempty"`
	Position    int    `json:"position"`
}

// OverlayRules is ordered by Position. The order is the merge order.
type OverlayRules []OverlayRule

// Sorted returns a copy ordered by Position, then slug.
func (r OverlayRules) Sorted() OverlayRules {
	out := make(OverlayRules, len(r))
	copy(out, r)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

func (r OverlayRules) Lookup(slug string) (OverlayRule, bool) {
	for _, rule := range r {
		if rule.Slug == slug {
			return rule, true
		}
	}
	return OverlayRule{}, false
}

// OverlayValue is one extension field on a record.
type OverlayValue struct {
	Slug  string
	Value any
}

// OverlayValues is an insertion-ordered slug -> value mapping. Setting an
// existing slug replaces its value but keeps its position.
type OverlayValues []OverlayValue

func (v OverlayValues) Get(slug string) (any, bool) {
	for _, ov := range v {
		if ov.Slug == slug {
			return ov.Value, true
		}
	}
	return nil, false
}

func (v *OverlayValues) Set(slug string, value any) {
	for i := range *v {
		if (*v)[i].Slug == slug {
			(*v)[i].Value = value
			return
		}
	}
	*v = append(*v, OverlayValue{Slug: slug, Value: value})
}

// Merge returns v overridden by over. Slugs keep their first-seen position.
func (v OverlayValues) Merge(over OverlayValues) OverlayValues {
	out := make(OverlayValues, len(v), len(v)+len(over))
	copy(out, v)
	for _, ov := range over {
		out.Set(ov.Slug, ov.Value)
	}
	return out
}

// Map flattens the values, losing order.
func (v OverlayValues) Map() map[string]any {
	m := make(map[string]any, len(v))
	for _, ov := range v {
		m[ov.Slug] = ov.Value
	}
	return m
}

// MarshalJSON writes a JSON object in slug order.
func (v OverlayValues) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ov := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ov.Slug)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(ov.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the key order of the document.
func (v *OverlayValues) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*v = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("overlay values: expected object, got %v", tok)
	}

	out := OverlayValues{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("overlay values: unexpected key %v", keyTok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return err
		}
		out.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*v = out
	return nil
}
