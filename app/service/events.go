package service

import (
	"context"

	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

// EventPublisher ships lock events to the audit trail.
type EventPublisher interface {
	Publish(ctx context.Context, event entity.LockEvent) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, entity.LockEvent) error { return nil }
