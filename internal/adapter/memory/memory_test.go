package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/observable"
)

func newMenu(items ...domain.MenuItem) (*MenuRepository, *int) {
	list := observable.New(items)
	changes := 0
	list.AddObserver(func(_, _ []domain.MenuItem) { changes++ })
	return NewMenuRepository(list), &changes
}

func TestMenuRepository_Mutate(t *testing.T) {
	repo, changes := newMenu(domain.MenuItem{Dish: domain.Dish{Name: "soup"}, Amount: 3})

	err := repo.Mutate("soup", func(m *domain.MenuItem) error { return m.Decrease(2) })
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	item, ok := repo.Get("soup")
	if !ok || item.Amount != 1 {
		t.Errorf("expected amount 1, got %+v", item)
	}
	if *changes != 1 {
		t.Errorf("expected 1 change notification, got %d", *changes)
	}
}

func TestMenuRepository_MutateFailure_NoChange(t *testing.T) {
	repo, changes := newMenu(domain.MenuItem{Dish: domain.Dish{Name: "soup"}, Amount: 1})

	err := repo.Mutate("soup", func(m *domain.MenuItem) error { return m.Decrease(2) })
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Errorf("expected ErrOutOfStock, got: %v", err)
	}

	item, _ := repo.Get("soup")
	if item.Amount != 1 {
		t.Errorf("expected amount 1, got %d", item.Amount)
	}
	if *changes != 0 {
		t.Errorf("expected no notification, got %d", *changes)
	}
}

func TestMenuRepository_UnknownDish(t *testing.T) {
	repo, _ := newMenu()

	err := repo.Mutate("ghost", func(m *domain.MenuItem) error { return nil })
	if !errors.Is(err, domain.ErrUnknownDish) {
		t.Errorf("expected ErrUnknownDish, got: %v", err)
	}
	if err := repo.Remove("ghost"); !errors.Is(err, domain.ErrUnknownDish) {
		t.Errorf("expected ErrUnknownDish, got: %v", err)
	}
}

func TestMenuRepository_AddRemove(t *testing.T) {
	repo, changes := newMenu()
	item := domain.MenuItem{Dish: domain.Dish{Name: "tea"}, Amount: 5}

	if err := repo.Add(item); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := repo.Add(item); !errors.Is(err, domain.ErrDishExists) {
		t.Errorf("expected ErrDishExists, got: %v", err)
	}
	if err := repo.Add(domain.MenuItem{Dish: domain.Dish{Name: "bad"}, Amount: -1}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got: %v", err)
	}
	if len(repo.All()) != 1 {
		t.Errorf("expected 1 item, got %d", len(repo.All()))
	}
	if err := repo.Remove("tea"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, ok := repo.Get("tea"); ok {
		t.Error("expected dish to be removed")
	}
	if *changes != 2 {
		t.Errorf("expected 2 notifications, got %d", *changes)
	}
}

func TestOrderRepository_CreateGetUpdate(t *testing.T) {
	list := observable.New[domain.Order](nil)
	var snapshots [][]domain.Order
	list.AddObserver(func(_, next []domain.Order) { snapshots = append(snapshots, next) })
	repo := NewOrderRepository(list)

	id, err := repo.Create(domain.NewOrder(7, []domain.OrderLine{{Dish: "soup", Quantity: 1}}, time.Now()))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	err = repo.Update(id, func(o *domain.Order) error {
		_, err := o.Transition(domain.OrderStatusAccepted, time.Now(), "")
		return err
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	order, ok := repo.Get(id)
	if !ok {
		t.Fatal("order not found")
	}
	if order.Status != domain.OrderStatusAccepted {
		t.Errorf("expected accepted, got %s", order.Status)
	}
	if len(snapshots) != 2 {
		t.Errorf("expected 2 snapshots, got %d", len(snapshots))
	}

	if err := repo.Update("missing", func(*domain.Order) error { return nil }); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestOrderRepository_FailedUpdateKeepsState(t *testing.T) {
	repo := NewOrderRepository(observable.New[domain.Order](nil))
	id, _ := repo.Create(domain.NewOrder(1, nil, time.Now()))

	err := repo.Update(id, func(o *domain.Order) error {
		_, err := o.Transition(domain.OrderStatusServed, time.Now(), "")
		return err
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got: %v", err)
	}

	order, _ := repo.Get(id)
	if order.Status != domain.OrderStatusPlaced {
		t.Errorf("expected placed, got %s", order.Status)
	}
}

func TestOrderRepository_Lists(t *testing.T) {
	now := time.Now()
	existing := []domain.Order{
		{ID: "a", UserID: 1, Status: domain.OrderStatusPlaced, CreatedAt: now},
		{ID: "b", UserID: 2, Status: domain.OrderStatusReady, CreatedAt: now.Add(time.Second)},
		{ID: "c", UserID: 1, Status: domain.OrderStatusServed, CreatedAt: now.Add(2 * time.Second)},
	}
	repo := NewOrderRepository(observable.New(existing))

	if got := repo.ListByUser(1); len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("unexpected user orders: %+v", got)
	}
	if got := repo.ListByStatus(domain.OrderStatusPlaced, domain.OrderStatusReady); len(got) != 2 {
		t.Errorf("expected 2 active orders, got %d", len(got))
	}
	if _, ok := repo.Get("b"); !ok {
		t.Error("expected preloaded order to be indexed")
	}
	if _, err := repo.Create(domain.Order{ID: "a"}); err == nil {
		t.Error("expected duplicate id to fail")
	}
}

func TestOrderRepository_ListsByCreationTime(t *testing.T) {
	now := time.Now()
	loaded := []domain.Order{
		{ID: "late", UserID: 1, Status: domain.OrderStatusPlaced, CreatedAt: now.Add(2 * time.Second)},
		{ID: "early", UserID: 1, Status: domain.OrderStatusPlaced, CreatedAt: now},
		{ID: "middle", UserID: 1, Status: domain.OrderStatusPlaced, CreatedAt: now.Add(time.Second)},
	}
	repo := NewOrderRepository(observable.New(loaded))

	want := []string{"early", "middle", "late"}
	for name, got := range map[string][]domain.Order{
		"by status": repo.ListByStatus(domain.OrderStatusPlaced),
		"by user":   repo.ListByUser(1),
	} {
		if len(got) != len(want) {
			t.Fatalf("%s: expected %d orders, got %d", name, len(want), len(got))
		}
		for i, id := range want {
			if got[i].ID != id {
				t.Errorf("%s: position %d: expected %s, got %s", name, i, id, got[i].ID)
			}
		}
	}
}

func TestIdempotencyStore(t *testing.T) {
	store := NewIdempotencyStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := store.SetIdempotency(ctx, "k")
	if !ok {
		t.Error("expected first call to succeed")
	}
	ok, _ = store.SetIdempotency(ctx, "k")
	if ok {
		t.Error("expected second call to fail")
	}

	now = now.Add(2 * time.Minute)
	ok, _ = store.SetIdempotency(ctx, "k")
	if !ok {
		t.Error("expected key to expire")
	}
}

func TestIdempotencyStore_Clear(t *testing.T) {
	store := NewIdempotencyStore(time.Minute)
	ctx := context.Background()

	store.SetIdempotency(ctx, "k")
	if err := store.ClearIdempotency(ctx, "k"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if ok, _ := store.SetIdempotency(ctx, "k"); !ok {
		t.Error("expected cleared key to be accepted again")
	}
}
