package unified

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// TransformContext parameterizes one engine call.
type TransformContext struct {
	Entity   EntityType
	Provider string
	TenantID uuid.UUID
	// Rules is nil when the caller carries no overlay values.
	Rules OverlayRules
}

// CanonicalInput is a canonical write: fixed fields plus overlay values.
type CanonicalInput struct {
	Fields  map[string]any
	Overlay OverlayValues
}

// UnifiedResult is one provider object translated to canonical form.
type UnifiedResult struct {
	RemoteID *string
	Fields   map[string]any
	Overlay  OverlayValues
}

// Engine translates between canonical and provider-native shapes. It does
// no I/O besides reading mappings and schemas.
type Engine struct {
	schemas  *SchemaRegistry
	mappings MappingSource
}

func NewEngine(schemas *SchemaRegistry, mappings MappingSource) *Engine {
	return &Engine{schemas: schemas, mappings: mappings}
}

func (e *Engine) resolve(tc TransformContext) (*EntitySchema, *EntityMapping, error) {
	schema, err := e.schemas.Get(tc.Entity)
	if err != nil {
		return nil, nil, err
	}
	mapping, err := e.mappings.Mapping(tc.Provider, tc.Entity)
	if err != nil {
		return nil, nil, err
	}
	return schema, mapping, nil
}

// Desunify builds the provider payload for a canonical write. Canonical
// fields the provider has no counterpart for are dropped without error.
// Overlay values are written at their rule's remote field; values without
// a rule stay hub-side.
func (e *Engine) Desunify(in CanonicalInput, tc TransformContext) (ProviderPayload, error) {
	schema, mapping, err := e.resolve(tc)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(in.Fields); err != nil {
		return nil, err
	}

	payload := ProviderPayload{}
	for _, fm := range mapping.Fields {
		v, ok := in.Fields[fm.Canonical]
		if !ok {
			continue
		}
		setPath(payload, fm.Remote, v)
	}

	for _, ov := range in.Overlay {
		rule, ok := tc.Rules.Lookup(ov.Slug)
		if !ok || rule.RemoteField == "" {
			continue
		}
		setPath(payload, rule.RemoteField, ov.Value)
	}
	return payload, nil
}

// Unify translates provider objects to canonical results. Canonical fields
// the provider did not return are omitted. Overlay values merge in this
// order, later steps overriding earlier ones while keeping first-seen
// position: rule defaults, values found at rule remote fields, then the
// caller's input overlay verbatim.
func (e *Engine) Unify(outputs []map[string]any, tc TransformContext, input OverlayValues) ([]UnifiedResult, error) {
	schema, mapping, err := e.resolve(tc)
	if err != nil {
		return nil, err
	}

	rules := tc.Rules.Sorted()
	results := make([]UnifiedResult, 0, len(outputs))
	for i, out := range outputs {
		if out == nil {
			return nil, fmt.Errorf("%w: %s output %d is not an object", ErrTransform, tc.Provider, i)
		}
		res := UnifiedResult{Fields: make(map[string]any, len(mapping.Fields))}

		if raw, ok := getPath(out, mapping.RemoteIDField); ok && raw != nil {
			id, err := remoteIDString(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s remote id: %v", ErrTransform, tc.Provider, err)
			}
			res.RemoteID = &id
		}

		for _, fm := range mapping.Fields {
			raw, ok := getPath(out, fm.Remote)
			if !ok {
				continue
			}
			def, known := schema.Field(fm.Canonical)
			if !known {
				res.Fields[fm.Canonical] = raw
				continue
			}
			v, err := coerce(def.Kind, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrTransform, tc.Entity, fm.Canonical, err)
			}
			res.Fields[fm.Canonical] = v
		}

		var overlay OverlayValues
		for _, rule := range rules {
			if rule.Default != nil {
				overlay.Set(rule.Slug, rule.Default)
			}
		}
		for _, rule := range rules {
			if v, ok := getPath(out, rule.RemoteField); ok {
				overlay.Set(rule.Slug, v)
			}
		}
		res.Overlay = overlay.Merge(input)
		results = append(results, res)
	}
	return results, nil
}

func remoteIDString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", fmt.Errorf("empty")
		}
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		if t != math.Trunc(t) {
			return "", fmt.Errorf("non-integral number %v", t)
		}
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

// coerce normalizes a provider value into the canonical JSON-native form
// of kind: strings are NFC-normalized, numbers become json.Number with a
// canonical decimal spelling, times become RFC 3339 UTC strings.
func coerce(kind FieldKind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindString:
		s, err := scalarString(v)
		if err != nil {
			return nil, err
		}
		return norm.NFC.String(s), nil

	case KindNumber:
		var d decimal.Decimal
		var err error
		switch t := v.(type) {
		case json.Number:
			d, err = decimal.NewFromString(t.String())
		case string:
			d, err = decimal.NewFromString(strings.TrimSpace(t))
		case float64:
			d = decimal.NewFromFloat(t)
		case int:
			d = decimal.NewFromInt(int64(t))
		case int64:
			d = decimal.NewFromInt(t)
		default:
			return nil, fmt.Errorf("want number, got %T", v)
		}
		if err != nil {
			return nil, fmt.Errorf("want number: %v", err)
		}
		return json.Number(d.String()), nil

	case KindBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(t)
			if err != nil {
				return nil, fmt.Errorf("want bool, got %q", t)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("want bool, got %T", v)
		}

	case KindTime:
		switch t := v.(type) {
		case string:
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
				if ts, err := time.Parse(layout, t); err == nil {
					return ts.UTC().Format(time.RFC3339Nano), nil
				}
			}
			return nil, fmt.Errorf("want time, got %q", t)
		case time.Time:
			return t.UTC().Format(time.RFC3339Nano), nil
		case json.Number:
			sec, err := t.Int64()
			if err != nil {
				return nil, fmt.Errorf("want unix seconds, got %s", t)
			}
			return time.Unix(sec, 0).UTC().Format(time.RFC3339Nano), nil
		default:
			return nil, fmt.Errorf("want time, got %T", v)
		}

	case KindStringList:
		switch t := v.(type) {
		case []any:
			out := make([]any, 0, len(t))
			for _, item := range t {
				s, err := scalarString(item)
				if err != nil {
					return nil, err
				}
				out = append(out, norm.NFC.String(s))
			}
			return out, nil
		case []string:
			out := make([]any, 0, len(t))
			for _, s := range t {
				out = append(out, norm.NFC.String(s))
			}
			return out, nil
		case string:
			return []any{norm.NFC.String(t)}, nil
		default:
			return nil, fmt.Errorf("want list, got %T", v)
		}

	case KindObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("want object, got %T", v)
		}
		return m, nil
	}
	return v, nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("want scalar, got %T", v)
	}
}
