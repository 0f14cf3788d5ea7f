package shared

import "context"

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes a domain event. Returning an error asks the
	// delivery mechanism to try again later.
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes returns the event types this handler is interested in.
	// An empty slice subscribes to everything.
	EventTypes() []string
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber subscribes to domain events
type EventSubscriber interface {
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
}

// EventBus combines publisher and subscriber capabilities
type EventBus interface {
	EventPublisher
	EventSubscriber
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// OutboxEventSaver stores events in the outbox as part of an open
// transaction, so they only become visible once that transaction commits.
type OutboxEventSaver interface {
	// SaveEvents expects txProvider to be the transaction handle of the
	// persistence layer in use.
	SaveEvents(ctx context.Context, txProvider any, events ...DomainEvent) error
}
