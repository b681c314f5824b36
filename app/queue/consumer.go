package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

// HistoryWriter persists lock events.
type HistoryWriter interface {
	Create(ctx context.Context, event entity.LockEvent) error
}

type LockEventConsumer struct {
	client       *redis.Client
	history      HistoryWriter
	consumerName string
	logger       logrus.FieldLogger
}

// NewLockEventConsumer constructs a Redis stream consumer that writes the lock history.
func NewLockEventConsumer(client *redis.Client, history HistoryWriter, consumerName string, logger logrus.FieldLogger) *LockEventConsumer {
	return &LockEventConsumer{
		client:       client,
		history:      history,
		consumerName: consumerName,
		logger:       logger.WithField("consumer", consumerName),
	}
}

// Run starts the consumer loop and blocks until context cancellation.
func (c *LockEventConsumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.logger.WithField("stream", StreamName).Info("consumer started")

	// First drain pending messages, then switch to reading new ones.
	startID := "0"
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer shutting down")
			return nil
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    ConsumerGroup,
			Consumer: c.consumerName,
			Streams:  []string{StreamName, startID},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if startID == "0" {
					startID = ">"
				}
				continue
			}
			if ctx.Err() != nil {
				c.logger.Info("consumer shutting down")
				return nil
			}
			c.logger.WithError(err).Warn("xreadgroup failed")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			if len(stream.Messages) == 0 && startID == "0" {
				startID = ">"
				continue
			}
			for _, msg := range stream.Messages {
				c.processMessage(ctx, msg)
			}
		}
	}
}

// processMessage stores a single event and acks on success. Malformed
// messages are acked and dropped so they cannot block the group.
func (c *LockEventConsumer) processMessage(ctx context.Context, msg redis.XMessage) {
	event, err := eventFromMessage(msg)
	if err != nil {
		c.logger.WithError(err).Warn("dropping malformed lock event")
		c.ack(ctx, msg.ID)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.history.Create(writeCtx, event); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"message_id": msg.ID,
			"record_id":  event.RecordID,
		}).Error("store lock event failed, message stays pending")
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *LockEventConsumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, StreamName, ConsumerGroup, id).Err(); err != nil {
		c.logger.WithError(err).WithField("message_id", id).Warn("xack failed")
	}
}

// ensureGroup creates the stream and consumer group if missing.
func (c *LockEventConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, StreamName, ConsumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}
