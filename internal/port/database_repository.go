package port

import (
	"context"

	"github.com/rl1809/restaurant/internal/core/domain"
)

type OrderArchive interface {
	// ArchiveOrder durably records an order that reached a terminal status
	ArchiveOrder(ctx context.Context, order domain.Order) error
}
