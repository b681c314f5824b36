package queue

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

const StreamName = "records:lock:events"
const ConsumerGroup = "lock-history-writers"

// MaxStreamLength caps the stream; the history table is the durable copy.
const MaxStreamLength = 100000

func eventValues(event entity.LockEvent) map[string]interface{} {
	return map[string]interface{}{
		"event_id":    event.ID,
		"record_id":   event.RecordID,
		"lock_type":   string(event.LockType),
		"holder_id":   event.HolderID,
		"action":      string(event.Action),
		"detail":      event.Detail,
		"occurred_at": event.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

func eventFromMessage(msg redis.XMessage) (entity.LockEvent, error) {
	str := func(key string) string {
		v, _ := msg.Values[key].(string)
		return v
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, str("occurred_at"))
	if err != nil {
		return entity.LockEvent{}, fmt.Errorf("message %s: parse occurred_at: %w", msg.ID, err)
	}

	event := entity.LockEvent{
		ID:         str("event_id"),
		RecordID:   str("record_id"),
		LockType:   entity.LockType(str("lock_type")),
		HolderID:   str("holder_id"),
		Action:     entity.LockAction(str("action")),
		Detail:     str("detail"),
		OccurredAt: occurredAt,
	}
	if event.ID == "" {
		// Fall back to the stream id, which is unique as well.
		event.ID = msg.ID
	}
	if event.RecordID == "" || event.Action == "" {
		return entity.LockEvent{}, fmt.Errorf("message %s: record_id and action are required", msg.ID)
	}
	return event, nil
}
