package port

import "github.com/rl1809/restaurant/internal/core/domain"

// MenuRepository is the menu collection. Every successful mutation is
// persisted by the implementation.
type MenuRepository interface {
	Get(dish string) (domain.MenuItem, bool)
	All() []domain.MenuItem

	// Mutate applies fn to a copy of the item and stores it when fn returns nil.
	// Returns domain.ErrUnknownDish when the dish is missing.
	Mutate(dish string, fn func(*domain.MenuItem) error) error

	Add(item domain.MenuItem) error
	Remove(dish string) error
}
