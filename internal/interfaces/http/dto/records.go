package dto

// RecordPath addresses an entity collection, e.g. /ticketing/ticket.
type RecordPath struct {
	Category string `uri:"category" binding:"required"`
	Entity   string `uri:"entity" binding:"required"`
}

type RecordIDPath struct {
	RecordPath
	ID string `uri:"id" binding:"required,uuid"`
}

type PushParams struct {
	ConnectionID string `form:"connection_id" binding:"required,uuid"`
	RemoteData   bool   `form:"remote_data"`
}

type ListParams struct {
	ConnectionID string `form:"connection_id" binding:"required,uuid"`
	Limit        int    `form:"limit"`
	Cursor       string `form:"cursor"`
	RemoteData   bool   `form:"remote_data"`
}

type GetParams struct {
	RemoteData bool `form:"remote_data"`
}

// PushRequest is the body of a push. Overlay is a list so the caller's
// field order survives decoding.
type PushRequest struct {
	Data    map[string]any `json:"data" binding:"required"`
	Overlay []OverlayField `json:"overlay,omitempty" binding:"omitempty,dive"`
}

type OverlayField struct {
	Slug  string `json:"slug" binding:"required,max=100"`
	Value any    `json:"value"`
}

type OverlayRuleRequest struct {
	Provider    string `json:"provider" binding:"required"`
	Entity      string `json:"entity" binding:"required"`
	Slug        string `json:"slug" binding:"required,max=100"`
	RemoteField string `json:"remote_field" binding:"max=255"`
	Default     any    `json:"default,omitempty"`
	Position    int    `json:"position" binding:"gte=0"`
}

type OverlayRulesQuery struct {
	Provider string `form:"provider" binding:"required"`
	Entity   string `form:"entity" binding:"required"`
}
