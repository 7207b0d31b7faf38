package memory

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/observable"
)

// OrderRepository keeps orders in insertion order and lists them by creation
// time. Orders are never removed, so positions recorded in byID stay valid.
type OrderRepository struct {
	mu     sync.RWMutex
	orders *observable.List[domain.Order]
	byID   map[string]int
}

func NewOrderRepository(orders *observable.List[domain.Order]) *OrderRepository {
	r := &OrderRepository{
		orders: orders,
		byID:   make(map[string]int, orders.Len()),
	}
	for i := 0; i < orders.Len(); i++ {
		r.byID[orders.Get(i).ID] = i
	}
	return r
}

func (r *OrderRepository) Create(order domain.Order) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, ok := r.byID[order.ID]; ok {
		return "", fmt.Errorf("order %s already exists", order.ID)
	}
	r.byID[order.ID] = r.orders.Len()
	r.orders.Append(order.Clone())
	return order.ID, nil
}

func (r *OrderRepository) Get(id string) (domain.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byID[id]
	if !ok {
		return domain.Order{}, false
	}
	return r.orders.Get(i).Clone(), true
}

func (r *OrderRepository) Update(id string, fn func(*domain.Order) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, domain.ErrOrderNotFound)
	}
	order := r.orders.Get(i).Clone()
	if err := fn(&order); err != nil {
		return err
	}
	order.ID = id
	r.orders.Set(i, order)
	return nil
}

func (r *OrderRepository) ListByStatus(statuses ...domain.OrderStatus) []domain.Order {
	return r.filter(func(o domain.Order) bool { return slices.Contains(statuses, o.Status) })
}

func (r *OrderRepository) ListByUser(userID int64) []domain.Order {
	return r.filter(func(o domain.Order) bool { return o.UserID == userID })
}

func (r *OrderRepository) filter(keep func(domain.Order) bool) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Order
	for i := 0; i < r.orders.Len(); i++ {
		if o := r.orders.Get(i); keep(o) {
			out = append(out, o.Clone())
		}
	}
	// A loaded snapshot may hold orders out of creation order.
	slices.SortStableFunc(out, func(a, b domain.Order) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}
