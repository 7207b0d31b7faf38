package port

import (
	"context"

	"github.com/rl1809/restaurant/internal/core/domain"
)

// StatusSink consumes order status changes emitted by the fulfillment engine.
type StatusSink interface {
	HandleStatusChange(ctx context.Context, change domain.StatusChange) error
}

// Notifier accepts status changes without blocking the caller.
type Notifier interface {
	Publish(change domain.StatusChange)
}

// SnapshotStore writes and reads whole collections.
type SnapshotStore interface {
	Load(name string, v any) error
	Save(name string, v any) error
}
