package unified

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// FieldKind is the canonical value kind of a fixed field.
type FieldKind string

const (
	KindString     FieldKind = "string"
	KindNumber     FieldKind = "number"
	KindBool       FieldKind = "bool"
	KindTime       FieldKind = "time"
	KindStringList FieldKind = "string_list"
	KindObject     FieldKind = "object"
)

// FieldDef describes one fixed canonical field. Ref is set when the
// field holds the id (or, for KindStringList, the ids) of another entity.
type FieldDef struct {
	Name string
	Kind FieldKind
	Ref  EntityType
}

// IsList reports whether the reference holds several ids.
func (f FieldDef) IsList() bool {
	return f.Kind == KindStringList
}

// EntitySchema is the fixed shape of one canonical entity plus the slots
// callers may extend.
type EntitySchema struct {
	Entity EntityType
	Fields []FieldDef
	// SubEntities maps a field to the entity its inline elements create,
	// e.g. ticket.attachments -> attachment.
	SubEntities map[string]EntityType
	// Overlay reports whether tenants may attach overlay fields.
	Overlay bool

	compiled *jsonschema.Schema
}

// Field looks up a fixed field by name.
func (s *EntitySchema) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// References returns the fields that point at other entities, in
// declaration order.
func (s *EntitySchema) References() []FieldDef {
	var refs []FieldDef
	for _, f := range s.Fields {
		if f.Ref != "" {
			refs = append(refs, f)
		}
	}
	return refs
}

// Validate checks a canonical field set against the entity's JSON Schema.
// A violation is an unrecoverable shape mismatch.
func (s *EntitySchema) Validate(fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransform, s.Entity, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransform, s.Entity, err)
	}
	if err := s.compiled.Validate(inst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransform, s.Entity, err)
	}
	return nil
}

func (s *EntitySchema) jsonSchema() map[string]any {
	props := make(map[string]any, len(s.Fields)+len(s.SubEntities))
	for _, f := range s.Fields {
		props[f.Name] = kindSchema(f.Kind)
	}
	for field := range s.SubEntities {
		props[field] = map[string]any{
			"type":  []any{"array", "null"},
			"items": map[string]any{"type": []any{"string", "object"}},
		}
	}
	return map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	}
}

func kindSchema(k FieldKind) map[string]any {
	switch k {
	case KindNumber:
		return map[string]any{"type": []any{"number", "null"}}
	case KindBool:
		return map[string]any{"type": []any{"boolean", "null"}}
	case KindTime:
		return map[string]any{"type": []any{"string", "null"}, "format": "date-time"}
	case KindStringList:
		return map[string]any{"type": []any{"array", "null"}, "items": map[string]any{"type": "string"}}
	case KindObject:
		return map[string]any{"type": []any{"object", "null"}}
	default:
		return map[string]any{"type": []any{"string", "null"}}
	}
}

// SchemaRegistry holds the canonical schema of every entity type.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[EntityType]*EntitySchema
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[EntityType]*EntitySchema)}
}

// Register compiles and stores a schema. Registering an entity twice
// replaces the previous definition.
func (r *SchemaRegistry) Register(def EntitySchema) error {
	if !def.Entity.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, def.Entity)
	}

	doc, err := json.Marshal(def.jsonSchema())
	if err != nil {
		return err
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return err
	}
	url := fmt.Sprintf("https://unihub.local/schemas/%s.json", def.Entity)

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, parsed); err != nil {
		return fmt.Errorf("schema %s: %w", def.Entity, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("schema %s: %w", def.Entity, err)
	}

	s := def
	s.compiled = compiled
	r.mu.Lock()
	r.schemas[def.Entity] = &s
	r.mu.Unlock()
	return nil
}

// Get returns the schema of an entity or ErrUnknownEntity.
func (r *SchemaRegistry) Get(entity EntityType) (*EntitySchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return s, nil
}

// TicketingSchemas is the canonical ticketing vertical.
func TicketingSchemas() []EntitySchema {
	return []EntitySchema{
		{
			Entity: EntityTicket,
			Fields: []FieldDef{
				{Name: "name", Kind: KindString},
				{Name: "status", Kind: KindString},
				{Name: "description", Kind: KindString},
				{Name: "due_date", Kind: KindTime},
				{Name: "type", Kind: KindString},
				{Name: "parent_ticket", Kind: KindString, Ref: EntityTicket},
				{Name: "tags", Kind: KindStringList},
				{Name: "completed_at", Kind: KindTime},
				{Name: "priority", Kind: KindString},
				{Name: "assigned_to", Kind: KindStringList, Ref: EntityUser},
				{Name: "collections", Kind: KindStringList, Ref: EntityTeam},
				{Name: "account_id", Kind: KindString, Ref: EntityAccount},
				{Name: "contact_id", Kind: KindString, Ref: EntityContact},
			},
			SubEntities: map[string]EntityType{"attachments": EntityAttachment},
			Overlay:     true,
		},
		{
			Entity: EntityAccount,
			Fields: []FieldDef{
				{Name: "name", Kind: KindString},
				{Name: "domains", Kind: KindStringList},
			},
			Overlay: true,
		},
		{
			Entity: EntityContact,
			Fields: []FieldDef{
				{Name: "name", Kind: KindString},
				{Name: "email_address", Kind: KindString},
				{Name: "phone_number", Kind: KindString},
				{Name: "details", Kind: KindString},
				{Name: "account_id", Kind: KindString, Ref: EntityAccount},
			},
			Overlay: true,
		},
		{
			Entity: EntityTeam,
			Fields: []FieldDef{
				{Name: "name", Kind: KindString},
				{Name: "description", Kind: KindString},
			},
			Overlay: true,
		},
		{
			Entity: EntityUser,
			Fields: []FieldDef{
				{Name: "name", Kind: KindString},
				{Name: "email_address", Kind: KindString},
				{Name: "teams", Kind: KindStringList, Ref: EntityTeam},
				{Name: "account_id", Kind: KindString, Ref: EntityAccount},
			},
			Overlay: true,
		},
		{
			Entity: EntityAttachment,
			Fields: []FieldDef{
				{Name: "file_name", Kind: KindString},
				{Name: "file_url", Kind: KindString},
				{Name: "uploader", Kind: KindString},
				{Name: "file_size", Kind: KindNumber},
			},
		},
	}
}

// NewTicketingRegistry returns a registry preloaded with TicketingSchemas.
func NewTicketingRegistry() (*SchemaRegistry, error) {
	r := NewSchemaRegistry()
	for _, def := range TicketingSchemas() {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}
