package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/metrics"
	"github.com/rl1809/restaurant/internal/port"
)

const defaultTick = time.Second

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTick sets the interval of time-driven rescans.
func WithTick(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine is the single writer of order status. It drains the queue as soon
// as ids arrive and, on every tick, moves accepted, preparing and ready
// orders one step forward.
type Engine struct {
	stock    *MenuStock
	orders   port.OrderRepository
	queue    *OrderQueue
	notifier port.Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	tracer   trace.Tracer
	tick     time.Duration
	now      func() time.Time

	pickupMu sync.Mutex
	pickups  map[string]struct{}
}

// NewEngine creates an Engine. notifier may be nil.
func NewEngine(stock *MenuStock, orders port.OrderRepository, queue *OrderQueue, notifier port.Notifier, opts ...EngineOption) *Engine {
	e := &Engine{
		stock:    stock,
		orders:   orders,
		queue:    queue,
		notifier: notifier,
		log:      slog.Default(),
		tracer:   otel.Tracer("fulfillment-engine"),
		tick:     defaultTick,
		now:      time.Now,
		pickups:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Run blocks until ctx is done. Cancellation is only observed between
// orders, so an order being reserved always reaches its next status.
func (e *Engine) Run(ctx context.Context) error {
	e.resume()

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	e.log.Info("engine_started", "tick", e.tick.String())
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine_stopped", "queued", e.queue.Len())
			return nil
		case <-e.queue.Ready():
			e.drain(ctx)
		case <-ticker.C:
			e.advance(ctx)
		}
	}
}

// ConfirmPickup marks a ready order as picked up. The engine serves it on
// the next tick.
func (e *Engine) ConfirmPickup(_ context.Context, orderID string) error {
	order, ok := e.orders.Get(orderID)
	if !ok {
		return fmt.Errorf("%s: %w", orderID, domain.ErrOrderNotFound)
	}
	if order.Status != domain.OrderStatusReady {
		return fmt.Errorf("order %s is %s: %w", orderID, order.Status, domain.ErrNotReady)
	}

	e.pickupMu.Lock()
	e.pickups[orderID] = struct{}{}
	e.pickupMu.Unlock()
	return nil
}

// resume re-enqueues orders that were placed but never reserved, which is
// the case after a restart from a snapshot.
func (e *Engine) resume() {
	placed := e.orders.ListByStatus(domain.OrderStatusPlaced)
	for _, o := range placed {
		e.queue.Enqueue(o.ID)
	}
	if len(placed) > 0 {
		e.log.Info("engine_resumed", "placed_orders", len(placed))
	}
}

func (e *Engine) drain(ctx context.Context) {
	for ctx.Err() == nil {
		id, ok := e.queue.TryDequeue()
		if !ok {
			break
		}
		e.process(ctx, id)
	}
	e.metrics.SetQueueDepth(e.queue.Len())
}

// process reserves every dish of a placed order or none of them.
func (e *Engine) process(ctx context.Context, orderID string) {
	ctx, span := e.tracer.Start(ctx, "engine.process", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	order, ok := e.orders.Get(orderID)
	if !ok {
		e.log.Error("order_missing", "order_id", orderID, "error", domain.ErrInvariantViolation)
		span.SetStatus(codes.Error, "order missing")
		return
	}
	if order.Status != domain.OrderStatusPlaced {
		e.log.Debug("order_already_processed", "order_id", orderID, "status", order.Status)
		return
	}

	var (
		reserved []domain.DishDemand
		prep     time.Duration
	)
	for _, d := range order.Demand() {
		res, err := e.stock.Reserve(ctx, d.Dish, d.Quantity)
		if err != nil {
			e.release(ctx, orderID, reserved)
			e.reject(ctx, order, d, err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		e.metrics.ObserveReservation("ok")
		reserved = append(reserved, d)
		prep = max(prep, res.Dish.PrepTime)
	}

	e.transition(ctx, orderID, domain.OrderStatusAccepted, "", func(o *domain.Order) {
		o.PrepTime = prep
	})
}

func (e *Engine) reject(ctx context.Context, order domain.Order, failed domain.DishDemand, err error) {
	reason := fmt.Sprintf("%s: %d requested: out of stock", failed.Dish, failed.Quantity)
	if errors.Is(err, domain.ErrOutOfStock) {
		e.metrics.ObserveReservation("out_of_stock")
	} else {
		e.metrics.ObserveReservation("invariant_violation")
		reason = fmt.Sprintf("%v: %v", domain.ErrInvariantViolation, err)
		e.log.Error("order_invariant_violation",
			"order_id", order.ID,
			"user_id", order.UserID,
			"dish", failed.Dish,
			"error", err,
		)
	}
	e.transition(ctx, order.ID, domain.OrderStatusRejected, reason, nil)
}

// release gives back stock reserved for an order that is being rejected.
func (e *Engine) release(ctx context.Context, orderID string, reserved []domain.DishDemand) {
	for _, d := range reserved {
		if err := e.stock.Restock(ctx, d.Dish, d.Quantity); err != nil {
			e.log.Error("release_failed", "order_id", orderID, "dish", d.Dish, "quantity", d.Quantity, "error", err)
			continue
		}
		e.log.Debug("reservation_released", "order_id", orderID, "dish", d.Dish, "quantity", d.Quantity)
	}
}

// advance moves each in-progress order at most one step.
func (e *Engine) advance(ctx context.Context) {
	now := e.now()
	active := e.orders.ListByStatus(
		domain.OrderStatusAccepted,
		domain.OrderStatusPreparing,
		domain.OrderStatusReady,
	)

	for _, o := range active {
		switch o.Status {
		case domain.OrderStatusAccepted:
			e.transition(ctx, o.ID, domain.OrderStatusPreparing, "", nil)
		case domain.OrderStatusPreparing:
			if now.Sub(o.PreparingAt) >= o.PrepTime {
				e.transition(ctx, o.ID, domain.OrderStatusReady, "", nil)
			}
		case domain.OrderStatusReady:
			if e.takePickup(o.ID) {
				e.transition(ctx, o.ID, domain.OrderStatusServed, "", nil)
			}
		}
	}
	e.metrics.SetQueueDepth(e.queue.Len())
}

func (e *Engine) takePickup(orderID string) bool {
	e.pickupMu.Lock()
	defer e.pickupMu.Unlock()

	if _, ok := e.pickups[orderID]; !ok {
		return false
	}
	delete(e.pickups, orderID)
	return true
}

// transition persists one status step and publishes it. mutate, if set, is
// applied to the order in the same update.
func (e *Engine) transition(ctx context.Context, orderID string, to domain.OrderStatus, reason string, mutate func(*domain.Order)) {
	var change domain.StatusChange
	err := e.orders.Update(orderID, func(o *domain.Order) error {
		if mutate != nil {
			mutate(o)
		}
		c, err := o.Transition(to, e.now(), reason)
		if err != nil {
			return err
		}
		snapshot := o.Clone()
		c.Order = &snapshot
		change = c
		return nil
	})
	if err != nil {
		e.log.Error("order_transition_failed", "order_id", orderID, "to", to, "error", err)
		return
	}

	e.metrics.ObserveStatus(string(to))
	trace.SpanFromContext(ctx).AddEvent("status_changed", trace.WithAttributes(
		attribute.String("from", string(change.From)),
		attribute.String("to", string(change.To)),
	))
	e.log.Info("order_status_changed",
		"order_id", orderID,
		"user_id", change.UserID,
		"from", change.From,
		"to", change.To,
		"reason", reason,
	)
	if e.notifier != nil {
		e.notifier.Publish(change)
	}
}
