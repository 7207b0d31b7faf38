// Package notify fans order status changes out to external sinks without
// ever blocking the fulfillment engine.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/metrics"
	"github.com/rl1809/restaurant/internal/port"
)

const (
	defaultBuffer  = 1024
	defaultTimeout = 5 * time.Second
)

type Option func(*Dispatcher)

// WithBuffer sets how many changes may wait for delivery before new ones are dropped.
func WithBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.buffer = n
		}
	}
}

// WithTimeout bounds a single delivery to a single sink.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher implements port.Notifier. Changes are delivered to every sink
// in publish order by a single goroutine. Terminal changes are never dropped:
// when the buffer is full they are held aside and delivered once the buffer
// has drained, which keeps them after every earlier change of their order.
//
// It is safe under concurrent Publish calls.
type Dispatcher struct {
	sinks   []port.StatusSink
	buffer  int
	timeout time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	inbox     chan domain.StatusChange
	kick      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	dropped   atomic.Uint64
	delivered atomic.Uint64

	heldMu sync.Mutex
	held   []domain.StatusChange
}

func NewDispatcher(sinks []port.StatusSink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sinks:   sinks,
		buffer:  defaultBuffer,
		timeout: defaultTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.inbox = make(chan domain.StatusChange, d.buffer)
	d.kick = make(chan struct{}, 1)
	d.done = make(chan struct{})

	d.wg.Go(d.run)
	return d
}

// Publish enqueues a change. When the buffer is full a non-terminal change
// is dropped and counted; a terminal one is held for later delivery.
func (d *Dispatcher) Publish(change domain.StatusChange) {
	if d == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	// Fast-path: if closed, drop.
	select {
	case <-d.done:
		d.drop(change)
		return
	default:
	}

	select {
	case d.inbox <- change:
	default:
		if change.To.Terminal() {
			d.hold(change)
			return
		}
		d.drop(change)
	}
}

func (d *Dispatcher) hold(change domain.StatusChange) {
	d.heldMu.Lock()
	d.held = append(d.held, change)
	d.heldMu.Unlock()

	select {
	case d.kick <- struct{}{}:
	default:
	}
	d.log.Debug("status_notification_held", "order_id", change.OrderID, "status", change.To)
}

func (d *Dispatcher) drop(change domain.StatusChange) {
	d.dropped.Add(1)
	d.metrics.NotificationDropped()
	d.log.Warn("status_notification_dropped", "order_id", change.OrderID, "status", change.To)
}

// Dropped returns how many changes were never delivered.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns how many changes were handed to all sinks.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// Close stops accepting changes, delivers what is already buffered and
// waits for the delivery goroutine. Close is safe to call multiple times.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.closeOnce.Do(func() {
		d.mu.Lock()
		close(d.done)
		close(d.inbox)
		d.mu.Unlock()
	})
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	for {
		select {
		case change, ok := <-d.inbox:
			if !ok {
				d.deliverHeld()
				return
			}
			d.deliver(change)
		case <-d.kick:
		}
		if len(d.inbox) == 0 {
			d.deliverHeld()
		}
	}
}

func (d *Dispatcher) deliverHeld() {
	d.heldMu.Lock()
	held := d.held
	d.held = nil
	d.heldMu.Unlock()

	for _, change := range held {
		d.deliver(change)
	}
}

func (d *Dispatcher) deliver(change domain.StatusChange) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := sink.HandleStatusChange(ctx, change); err != nil {
			d.log.Error("status_sink_failed",
				"sink", sinkName(sink),
				"order_id", change.OrderID,
				"status", change.To,
				"error", err,
			)
		}
		cancel()
	}
	d.delivered.Add(1)
}

type named interface {
	Name() string
}

func sinkName(s port.StatusSink) string {
	if n, ok := s.(named); ok {
		return n.Name()
	}
	return "unknown"
}
