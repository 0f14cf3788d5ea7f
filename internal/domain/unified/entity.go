package unified

import "fmt"

// Category groups entity types exposed under one vertical.
type Category string

const CategoryTicketing Category = "ticketing"

// EntityType names a canonical entity.
type EntityType string

const (
	EntityTicket     EntityType = "ticket"
	EntityAccount    EntityType = "account"
	EntityContact    EntityType = "contact"
	EntityTeam       EntityType = "team"
	EntityUser       EntityType = "user"
	EntityAttachment EntityType = "attachment"
)

var entityCategories = map[EntityType]Category{
	EntityTicket:     CategoryTicketing,
	EntityAccount:    CategoryTicketing,
	EntityContact:    CategoryTicketing,
	EntityTeam:       CategoryTicketing,
	EntityUser:       CategoryTicketing,
	EntityAttachment: CategoryTicketing,
}

func (e EntityType) IsValid() bool {
	_, ok := entityCategories[e]
	return ok
}

func (e EntityType) Category() Category {
	return entityCategories[e]
}

func (e EntityType) String() string {
	return string(e)
}

// ParseEntityType resolves an entity name within a category.
func ParseEntityType(category, entity string) (EntityType, error) {
	et := EntityType(entity)
	if !et.IsValid() || string(et.Category()) != category {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownEntity, category, entity)
	}
	return et, nil
}

// Event actions
const (
	ActionPush    = "push"
	ActionPull    = "pull"
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// EventType formats "<category>.<entity>.<action>", e.g. ticketing.ticket.push.
func EventType(entity EntityType, action string) string {
	return fmt.Sprintf("%s.%s.%s", entity.Category(), entity, action)
}
