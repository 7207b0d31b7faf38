package port

import "github.com/rl1809/restaurant/internal/core/domain"

// OrderRepository holds every order ever placed. Orders are never deleted.
type OrderRepository interface {
	// Create stores the order, assigning an ID when empty, and returns the ID
	Create(order domain.Order) (string, error)

	Get(id string) (domain.Order, bool)

	// Update applies fn to a copy of the order and stores it when fn returns nil.
	// Returns domain.ErrOrderNotFound when the order is missing.
	Update(id string, fn func(*domain.Order) error) error

	// ListByStatus returns matching orders sorted by creation time
	ListByStatus(statuses ...domain.OrderStatus) []domain.Order

	// ListByUser returns the user's orders sorted by creation time
	ListByUser(userID int64) []domain.Order
}
