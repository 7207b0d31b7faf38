package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusRejected  OrderStatus = "rejected"
)

// next lists the only status each non-terminal status may move to.
// Rejection is handled separately because it is only reachable from placed.
var next = map[OrderStatus]OrderStatus{
	OrderStatusPlaced:    OrderStatusAccepted,
	OrderStatusAccepted:  OrderStatusPreparing,
	OrderStatusPreparing: OrderStatusReady,
	OrderStatusReady:     OrderStatusServed,
}

// Terminal reports whether no further transitions are permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusServed || s == OrderStatusRejected
}

// Active reports whether the engine still has work to do for the status.
func (s OrderStatus) Active() bool {
	return s != "" && !s.Terminal()
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusAccepted, OrderStatusPreparing,
		OrderStatusReady, OrderStatusServed, OrderStatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to OrderStatus) bool {
	if to == OrderStatusRejected {
		return from == OrderStatusPlaced
	}
	n, ok := next[from]
	return ok && n == to
}

type OrderLine struct {
	Dish     string `json:"dish"`
	Quantity int    `json:"quantity"`
}

// StatusChange describes one transition. Order holds the order as it was
// right after the transition was applied.
type StatusChange struct {
	OrderID string      `json:"order_id"`
	UserID  int64       `json:"user_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
	At      time.Time   `json:"at"`
	Reason  string      `json:"reason,omitempty"`
	Order   *Order      `json:"-"`
}

type Order struct {
	ID           string          `json:"id"`
	UserID       int64           `json:"user_id"`
	Lines        []OrderLine     `json:"lines"`
	Total        decimal.Decimal `json:"total"`
	Status       OrderStatus     `json:"status"`
	PrepTime     time.Duration   `json:"prep_time,omitempty"`
	RejectReason string          `json:"reject_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	PreparingAt  time.Time       `json:"preparing_at,omitzero"`
	History      []StatusChange  `json:"history,omitempty"`
}

func NewOrder(userID int64, lines []OrderLine, now time.Time) Order {
	cp := make([]OrderLine, len(lines))
	copy(cp, lines)
	return Order{
		UserID:    userID,
		Lines:     cp,
		Status:    OrderStatusPlaced,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the order one step forward and records it in History.
func (o *Order) Transition(to OrderStatus, at time.Time, reason string) (StatusChange, error) {
	if !CanTransition(o.Status, to) {
		return StatusChange{}, fmt.Errorf("order %s: %s -> %s: %w", o.ID, o.Status, to, ErrInvalidTransition)
	}
	change := StatusChange{
		OrderID: o.ID,
		UserID:  o.UserID,
		From:    o.Status,
		To:      to,
		At:      at,
		Reason:  reason,
	}
	o.Status = to
	o.UpdatedAt = at
	switch to {
	case OrderStatusPreparing:
		o.PreparingAt = at
	case OrderStatusRejected:
		o.RejectReason = reason
	}
	o.History = append(o.History, change)
	return change, nil
}

type DishDemand struct {
	Dish     string
	Quantity int
}

// Demand sums quantities per dish, sorted by dish name.
func (o *Order) Demand() []DishDemand {
	sums := make(map[string]int, len(o.Lines))
	for _, l := range o.Lines {
		sums[l.Dish] += l.Quantity
	}
	out := make([]DishDemand, 0, len(sums))
	for dish, qty := range sums {
		out = append(out, DishDemand{Dish: dish, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dish < out[j].Dish })
	return out
}

// Clone returns a deep copy so readers never share slices with the writer.
func (o Order) Clone() Order {
	o.Lines = append([]OrderLine(nil), o.Lines...)
	o.History = append([]StatusChange(nil), o.History...)
	return o
}
