package memory

import (
	"fmt"
	"sync"

	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/observable"
)

// MenuRepository keeps the menu in an observable list; observers registered
// on the list see every successful mutation.
type MenuRepository struct {
	mu    sync.RWMutex
	items *observable.List[domain.MenuItem]
}

func NewMenuRepository(items *observable.List[domain.MenuItem]) *MenuRepository {
	return &MenuRepository{items: items}
}

func (r *MenuRepository) Get(dish string) (domain.MenuItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.index(dish)
	if i < 0 {
		return domain.MenuItem{}, false
	}
	return r.items.Get(i), true
}

func (r *MenuRepository) All() []domain.MenuItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items.Snapshot()
}

func (r *MenuRepository) Mutate(dish string, fn func(*domain.MenuItem) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(dish)
	if i < 0 {
		return fmt.Errorf("%s: %w", dish, domain.ErrUnknownDish)
	}
	item := r.items.Get(i)
	if err := fn(&item); err != nil {
		return err
	}
	// the dish name is the identity and cannot be changed through Mutate
	item.Dish.Name = dish
	r.items.Set(i, item)
	return nil
}

func (r *MenuRepository) Add(item domain.MenuItem) error {
	if item.Amount < 0 {
		return fmt.Errorf("add %s with amount %d: %w", item.Dish.Name, item.Amount, domain.ErrInvalidAmount)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index(item.Dish.Name) >= 0 {
		return fmt.Errorf("%s: %w", item.Dish.Name, domain.ErrDishExists)
	}
	r.items.Append(item)
	return nil
}

func (r *MenuRepository) Remove(dish string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.items.RemoveFunc(func(m domain.MenuItem) bool { return m.Dish.Name == dish }) == 0 {
		return fmt.Errorf("%s: %w", dish, domain.ErrUnknownDish)
	}
	return nil
}

func (r *MenuRepository) index(dish string) int {
	return r.items.IndexFunc(func(m domain.MenuItem) bool { return m.Dish.Name == dish })
}
