package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Dish is identified by its name, which never changes after creation.
type Dish struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	PrepTime time.Duration   `json:"prep_time"`
}

// MenuItem pairs a dish with its current stock. Amount is never negative.
type MenuItem struct {
	Dish   Dish `json:"dish"`
	Amount int  `json:"amount"`
}

func (m *MenuItem) SetAmount(amount int) error {
	if amount < 0 {
		return fmt.Errorf("set %s to %d: %w", m.Dish.Name, amount, ErrInvalidAmount)
	}
	m.Amount = amount
	return nil
}

func (m *MenuItem) Increase(by int) error {
	if by < 0 {
		return fmt.Errorf("increase %s by %d: %w", m.Dish.Name, by, ErrInvalidAmount)
	}
	if by > math.MaxInt-m.Amount {
		return fmt.Errorf("increase %s by %d: amount overflows: %w", m.Dish.Name, by, ErrInvalidAmount)
	}
	m.Amount += by
	return nil
}

// Decrease fails with ErrOutOfStock when fewer than by portions are left.
func (m *MenuItem) Decrease(by int) error {
	if by < 0 {
		return fmt.Errorf("decrease %s by %d: %w", m.Dish.Name, by, ErrInvalidAmount)
	}
	if m.Amount < by {
		return fmt.Errorf("%s: requested %d, available %d: %w", m.Dish.Name, by, m.Amount, ErrOutOfStock)
	}
	m.Amount -= by
	return nil
}
