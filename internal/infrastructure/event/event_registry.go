package event

import "github.com/unihub/backend/internal/domain/unified"

// RegisterAllEvents makes every event the hub writes to the outbox readable
// by the OutboxProcessor.
func RegisterAllEvents(serializer *EventSerializer) {
	serializer.Register(unified.EventTypeRecordPushed, &unified.RecordPushedEvent{})
}
