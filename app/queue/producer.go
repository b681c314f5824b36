package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

type LockEventProducer struct {
	client *redis.Client
}

// NewLockEventProducer constructs a Redis stream producer.
func NewLockEventProducer(client *redis.Client) *LockEventProducer {
	return &LockEventProducer{client: client}
}

// Publish pushes a lock event onto the stream.
func (p *LockEventProducer) Publish(ctx context.Context, event entity.LockEvent) error {
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		MaxLen: MaxStreamLength,
		Approx: true,
		Values: eventValues(event),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd to %s: %w", StreamName, err)
	}
	return nil
}
