package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPlaced, OrderStatusAccepted, true},
		{OrderStatusPlaced, OrderStatusRejected, true},
		{OrderStatusAccepted, OrderStatusPreparing, true},
		{OrderStatusPreparing, OrderStatusReady, true},
		{OrderStatusReady, OrderStatusServed, true},
		{OrderStatusPlaced, OrderStatusPreparing, false},
		{OrderStatusAccepted, OrderStatusRejected, false},
		{OrderStatusReady, OrderStatusPreparing, false},
		{OrderStatusServed, OrderStatusRejected, false},
		{OrderStatusRejected, OrderStatusAccepted, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestOrderTransition_FullLifecycle(t *testing.T) {
	now := time.Now()
	order := NewOrder(1, []OrderLine{{Dish: "soup", Quantity: 1}}, now)
	order.ID = "order-1"

	steps := []OrderStatus{OrderStatusAccepted, OrderStatusPreparing, OrderStatusReady, OrderStatusServed}
	for i, to := range steps {
		at := now.Add(time.Duration(i+1) * time.Second)
		change, err := order.Transition(to, at, "")
		if err != nil {
			t.Fatalf("transition to %s failed: %v", to, err)
		}
		if change.To != to || change.OrderID != "order-1" {
			t.Errorf("unexpected change: %+v", change)
		}
	}

	if order.Status != OrderStatusServed {
		t.Errorf("expected served, got %s", order.Status)
	}
	if len(order.History) != 4 {
		t.Errorf("expected 4 history entries, got %d", len(order.History))
	}
	if order.PreparingAt.IsZero() {
		t.Error("expected PreparingAt to be set")
	}

	if _, err := order.Transition(OrderStatusRejected, now, "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from terminal state, got: %v", err)
	}
}

func TestOrderTransition_Reject(t *testing.T) {
	order := NewOrder(1, nil, time.Now())

	if _, err := order.Transition(OrderStatusRejected, time.Now(), "out of stock"); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if order.RejectReason != "out of stock" {
		t.Errorf("expected reject reason, got %q", order.RejectReason)
	}
	if !order.Status.Terminal() {
		t.Error("rejected must be terminal")
	}
}

func TestOrderDemand_SumsSameDish(t *testing.T) {
	order := NewOrder(1, []OrderLine{
		{Dish: "pasta", Quantity: 1},
		{Dish: "bread", Quantity: 2},
		{Dish: "pasta", Quantity: 1},
	}, time.Now())

	demand := order.Demand()
	if len(demand) != 2 {
		t.Fatalf("expected 2 dishes, got %d", len(demand))
	}
	if demand[0] != (DishDemand{Dish: "bread", Quantity: 2}) {
		t.Errorf("unexpected first demand: %+v", demand[0])
	}
	if demand[1] != (DishDemand{Dish: "pasta", Quantity: 2}) {
		t.Errorf("unexpected second demand: %+v", demand[1])
	}
}

func TestOrderClone_Independent(t *testing.T) {
	order := NewOrder(1, []OrderLine{{Dish: "tea", Quantity: 1}}, time.Now())
	cp := order.Clone()
	cp.Lines[0].Quantity = 5

	if order.Lines[0].Quantity != 1 {
		t.Error("clone shares lines with original")
	}
}

func TestMenuItem_AmountGuards(t *testing.T) {
	item := MenuItem{Dish: Dish{Name: "soup"}, Amount: 2}

	if err := item.Decrease(3); !errors.Is(err, ErrOutOfStock) {
		t.Errorf("expected ErrOutOfStock, got: %v", err)
	}
	if item.Amount != 2 {
		t.Errorf("amount changed on failure: %d", item.Amount)
	}
	if err := item.Increase(-1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got: %v", err)
	}
	if err := item.SetAmount(-1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got: %v", err)
	}
	if err := item.Increase(math.MaxInt); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount on overflow, got: %v", err)
	}
	if item.Amount != 2 {
		t.Errorf("amount changed on overflow: %d", item.Amount)
	}
	if err := item.Decrease(2); err != nil {
		t.Fatalf("decrease failed: %v", err)
	}
	if item.Amount != 0 {
		t.Errorf("expected 0, got %d", item.Amount)
	}
}
