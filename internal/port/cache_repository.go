package port

import (
	"context"

	"github.com/rl1809/restaurant/internal/core/domain"
)

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency releases a key whose request did not complete
	ClearIdempotency(ctx context.Context, key string) error
}

type StockMirror interface {
	// SetStock publishes the current amount of a dish for read-only consumers
	SetStock(ctx context.Context, dish string, amount int) error

	// GetStock returns the mirrored amount, ok is false when none is stored
	GetStock(ctx context.Context, dish string) (amount int, ok bool, err error)
}

type StatusCache interface {
	// CacheStatus stores the latest status of an order and announces the change
	CacheStatus(ctx context.Context, change domain.StatusChange) error
}

// StatusFeed announces status changes after they reach the cache.
type StatusFeed interface {
	// SubscribeStatus delivers ids of changed orders until ctx is done
	SubscribeStatus(ctx context.Context) (<-chan string, error)
}
