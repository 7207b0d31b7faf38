package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/port"
)

// Reservation is a successful decrement of a dish's stock.
type Reservation struct {
	Dish      domain.Dish
	Quantity  int
	Remaining int
}

// MenuStock serialises stock changes per dish. All amount changes go through
// the menu repository, so every change is persisted.
type MenuStock struct {
	menu   port.MenuRepository
	mirror port.StockMirror
	log    *slog.Logger
	locks  keyedMutex
}

// NewMenuStock creates a MenuStock. mirror may be nil.
func NewMenuStock(menu port.MenuRepository, mirror port.StockMirror, log *slog.Logger) *MenuStock {
	if log == nil {
		log = slog.Default()
	}
	return &MenuStock{menu: menu, mirror: mirror, log: log}
}

// Item returns the current menu entry for dish.
func (s *MenuStock) Item(dish string) (domain.MenuItem, bool) {
	return s.menu.Get(dish)
}

func (s *MenuStock) Items() []domain.MenuItem {
	return s.menu.All()
}

// Reserve takes quantity portions of dish, or fails with domain.ErrOutOfStock
// leaving the amount untouched.
func (s *MenuStock) Reserve(ctx context.Context, dish string, quantity int) (Reservation, error) {
	if quantity < 0 {
		return Reservation{}, fmt.Errorf("reserve %d of %s: %w", quantity, dish, domain.ErrInvalidAmount)
	}

	unlock := s.locks.lock(dish)
	defer unlock()

	var item domain.MenuItem
	if quantity == 0 {
		var ok bool
		if item, ok = s.menu.Get(dish); !ok {
			return Reservation{}, fmt.Errorf("reserve %s: %w", dish, domain.ErrUnknownDish)
		}
		return Reservation{Dish: item.Dish, Remaining: item.Amount}, nil
	}

	err := s.menu.Mutate(dish, func(m *domain.MenuItem) error {
		if err := m.Decrease(quantity); err != nil {
			return err
		}
		item = *m
		return nil
	})
	if err != nil {
		return Reservation{}, fmt.Errorf("reserve: %w", err)
	}

	s.mirrorStock(ctx, dish, item.Amount)
	return Reservation{Dish: item.Dish, Quantity: quantity, Remaining: item.Amount}, nil
}

// Restock adds quantity portions of dish. A zero quantity changes nothing.
func (s *MenuStock) Restock(ctx context.Context, dish string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("restock %d of %s: %w", quantity, dish, domain.ErrInvalidAmount)
	}

	unlock := s.locks.lock(dish)
	defer unlock()

	if quantity == 0 {
		if _, ok := s.menu.Get(dish); !ok {
			return fmt.Errorf("restock %s: %w", dish, domain.ErrUnknownDish)
		}
		return nil
	}

	var amount int
	err := s.menu.Mutate(dish, func(m *domain.MenuItem) error {
		if err := m.Increase(quantity); err != nil {
			return err
		}
		amount = m.Amount
		return nil
	})
	if err != nil {
		return fmt.Errorf("restock: %w", err)
	}

	s.mirrorStock(ctx, dish, amount)
	return nil
}

// SetAmount is the administrative absolute set.
func (s *MenuStock) SetAmount(ctx context.Context, dish string, amount int) error {
	unlock := s.locks.lock(dish)
	defer unlock()

	err := s.menu.Mutate(dish, func(m *domain.MenuItem) error {
		return m.SetAmount(amount)
	})
	if err != nil {
		return fmt.Errorf("set amount: %w", err)
	}

	s.mirrorStock(ctx, dish, amount)
	return nil
}

func (s *MenuStock) AddDish(ctx context.Context, dish domain.Dish, amount int) error {
	unlock := s.locks.lock(dish.Name)
	defer unlock()

	if err := s.menu.Add(domain.MenuItem{Dish: dish, Amount: amount}); err != nil {
		return fmt.Errorf("add dish: %w", err)
	}

	s.mirrorStock(ctx, dish.Name, amount)
	return nil
}

// RemoveDish deletes dish from the menu. Orders that still reference it are
// rejected by the engine as an invariant violation.
func (s *MenuStock) RemoveDish(ctx context.Context, dish string) error {
	unlock := s.locks.lock(dish)
	defer unlock()

	if err := s.menu.Remove(dish); err != nil {
		return fmt.Errorf("remove dish: %w", err)
	}

	s.mirrorStock(ctx, dish, 0)
	return nil
}

// SyncMirror overwrites mirrored amounts that differ from the menu, which
// happens when the mirror outlived a restart from an older snapshot.
func (s *MenuStock) SyncMirror(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	for _, item := range s.menu.All() {
		if err := s.syncDish(ctx, item.Dish.Name); err != nil {
			return err
		}
	}
	return nil
}

func (s *MenuStock) syncDish(ctx context.Context, dish string) error {
	unlock := s.locks.lock(dish)
	defer unlock()

	item, ok := s.menu.Get(dish)
	if !ok {
		return nil
	}
	mirrored, found, err := s.mirror.GetStock(ctx, dish)
	if err != nil {
		return fmt.Errorf("read mirrored stock of %s: %w", dish, err)
	}
	if found && mirrored == item.Amount {
		return nil
	}
	if err := s.mirror.SetStock(ctx, dish, item.Amount); err != nil {
		return fmt.Errorf("sync stock of %s: %w", dish, err)
	}
	s.log.Info("stock_mirror_synced", "dish", dish, "mirrored", mirrored, "found", found, "amount", item.Amount)
	return nil
}

// mirrorStock runs under the dish lock so mirrored values arrive in order.
func (s *MenuStock) mirrorStock(ctx context.Context, dish string, amount int) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.SetStock(ctx, dish, amount); err != nil {
		s.log.Warn("stock_mirror_failed", "dish", dish, "amount", amount, "error", err)
	}
}

// keyedMutex hands out one mutex per key. Keys are never evicted; the menu
// is small.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
