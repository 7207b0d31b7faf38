package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/metrics"
	"github.com/rl1809/restaurant/internal/port"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrAdminSession     = errors.New("admins cannot open client sessions")
	ErrSessionClosed    = errors.New("session closed")
	ErrSessionNotFound  = errors.New("session not found")
	ErrNoPickup         = errors.New("pickup confirmation unavailable")
)

const (
	defaultPollInterval = 500 * time.Millisecond
	updatesBuffer       = 64
)

// PickupConfirmer is the engine side of "client confirms pickup".
type PickupConfirmer interface {
	ConfirmPickup(ctx context.Context, orderID string) error
}

// StatusUpdate is emitted by a session when one of its user's orders changes.
type StatusUpdate struct {
	OrderID      string             `json:"order_id"`
	Status       domain.OrderStatus `json:"status"`
	RejectReason string             `json:"reject_reason,omitempty"`
	At           time.Time          `json:"at"`
}

// SessionManager runs one goroutine per logged-in client.
type SessionManager struct {
	menu    port.MenuRepository
	orders  port.OrderRepository
	queue   *OrderQueue
	idem    port.IdempotencyStore
	pickup  PickupConfirmer
	poll    time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
}

type SessionConfig struct {
	PollInterval time.Duration
	// Feed, when set, makes sessions poll as soon as one of their orders
	// changes instead of waiting for the next interval.
	Feed    port.StatusFeed
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// NewSessionManager creates a manager. idem and pickup may be nil.
func NewSessionManager(menu port.MenuRepository, orders port.OrderRepository, queue *OrderQueue,
	idem port.IdempotencyStore, pickup PickupConfirmer, cfg SessionConfig) *SessionManager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &SessionManager{
		menu:     menu,
		orders:   orders,
		queue:    queue,
		idem:     idem,
		pickup:   pickup,
		poll:     cfg.PollInterval,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	if cfg.Feed != nil {
		m.wg.Go(func() { m.follow(cfg.Feed) })
	}
	return m
}

// follow wakes the sessions of the owner of every announced order.
func (m *SessionManager) follow(feed port.StatusFeed) {
	ids, err := feed.SubscribeStatus(m.ctx)
	if err != nil {
		m.log.Warn("status_feed_unavailable", "error", err)
		return
	}
	for id := range ids {
		o, ok := m.orders.Get(id)
		if !ok {
			continue
		}
		m.mu.Lock()
		for _, s := range m.sessions {
			if s.user.ID == o.UserID {
				s.wakeUp()
			}
		}
		m.mu.Unlock()
	}
}

// Open starts a session for an already authenticated user.
func (m *SessionManager) Open(user domain.User) (*Session, error) {
	if user.IsAdmin() {
		return nil, ErrAdminSession
	}
	if m.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}

	user.OrderIDs = slices.Clone(user.OrderIDs)
	ctx, cancel := context.WithCancel(m.ctx)
	s := &Session{
		ID:       uuid.NewString(),
		user:     user,
		mgr:      m,
		requests: make(chan submitRequest),
		updates:  make(chan StatusUpdate, updatesBuffer),
		wake:     make(chan struct{}, 1),
		seen:     make(map[string]domain.OrderStatus),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, o := range m.orders.ListByUser(user.ID) {
		s.seen[o.ID] = o.Status
		s.user.AddOrder(o.ID)
	}
	owned := len(s.user.OrderIDs)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.wg.Go(func() {
		defer close(s.done)
		s.run(ctx)
	})

	m.metrics.SessionOpened()
	m.log.Info("session_opened", "session_id", s.ID, "user_id", user.ID, "login", user.Login, "orders", owned)
	return s, nil
}

func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *SessionManager) Close(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	s.Close()
	return nil
}

// Shutdown closes every session and waits for their goroutines.
func (m *SessionManager) Shutdown() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.markClosed()
		delete(m.sessions, id)
	}
}

func (m *SessionManager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

type submitRequest struct {
	ctx       context.Context
	requestID string
	lines     []domain.OrderLine
	reply     chan submitResult
}

type submitResult struct {
	order domain.Order
	err   error
}

// Session is the unit of work serving one client. Submissions and status
// polling both run on the session goroutine.
type Session struct {
	ID string

	mu   sync.Mutex
	user domain.User

	mgr      *SessionManager
	requests chan submitRequest
	updates  chan StatusUpdate
	wake     chan struct{}
	seen     map[string]domain.OrderStatus
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func (s *Session) run(ctx context.Context) {
	ticker := time.NewTicker(s.mgr.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			order, err := s.submit(req.ctx, req.requestID, req.lines)
			req.reply <- submitResult{order: order, err: err}
		case <-ticker.C:
			s.pollStatus()
		case <-s.wake:
			s.pollStatus()
		}
	}
}

func (s *Session) wakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Submit places an order. requestID makes the call idempotent when an
// idempotency store is configured; an empty requestID disables the check.
func (s *Session) Submit(ctx context.Context, requestID string, lines []domain.OrderLine) (domain.Order, error) {
	req := submitRequest{ctx: ctx, requestID: requestID, lines: lines, reply: make(chan submitResult, 1)}

	select {
	case s.requests <- req:
	case <-s.done:
		return domain.Order{}, ErrSessionClosed
	case <-ctx.Done():
		return domain.Order{}, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.order, r.err
	case <-ctx.Done():
		return domain.Order{}, ctx.Err()
	}
}

func (s *Session) submit(ctx context.Context, requestID string, lines []domain.OrderLine) (domain.Order, error) {
	if len(lines) == 0 {
		return domain.Order{}, fmt.Errorf("empty order: %w", domain.ErrInvalidAmount)
	}

	total := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%s: quantity %d: %w", l.Dish, l.Quantity, domain.ErrInvalidAmount)
		}
		item, ok := s.mgr.menu.Get(l.Dish)
		if !ok {
			return domain.Order{}, fmt.Errorf("%s: %w", l.Dish, domain.ErrUnknownDish)
		}
		total = total.Add(item.Dish.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	var idemKey string
	if requestID != "" && s.mgr.idem != nil {
		idemKey = fmt.Sprintf("order:%d:%s", s.user.ID, requestID)
		ok, err := s.mgr.idem.SetIdempotency(ctx, idemKey)
		if err != nil {
			return domain.Order{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.Order{}, ErrDuplicateRequest
		}
	}

	order := domain.NewOrder(s.user.ID, lines, time.Now().UTC())
	order.Total = total
	id, err := s.mgr.orders.Create(order)
	if err != nil {
		if idemKey != "" {
			if cerr := s.mgr.idem.ClearIdempotency(context.WithoutCancel(ctx), idemKey); cerr != nil {
				s.mgr.log.Warn("idempotency_release_failed", "session_id", s.ID, "key", idemKey, "error", cerr)
			}
		}
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	order.ID = id
	s.seen[id] = order.Status
	s.mu.Lock()
	s.user.AddOrder(id)
	s.mu.Unlock()
	s.mgr.queue.Enqueue(id)

	s.mgr.log.Info("order_placed", "session_id", s.ID, "order_id", id, "user_id", s.user.ID, "lines", len(lines))
	return order, nil
}

func (s *Session) pollStatus() {
	for _, o := range s.mgr.orders.ListByUser(s.user.ID) {
		if last, ok := s.seen[o.ID]; ok && last == o.Status {
			continue
		}
		s.seen[o.ID] = o.Status
		s.emit(StatusUpdate{OrderID: o.ID, Status: o.Status, RejectReason: o.RejectReason, At: o.UpdatedAt})
	}
}

// emit never blocks; when the buffer is full the oldest update is dropped.
func (s *Session) emit(u StatusUpdate) {
	select {
	case s.updates <- u:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- u:
	default:
	}
}

// Updates delivers status changes observed by polling.
func (s *Session) Updates() <-chan StatusUpdate {
	return s.updates
}

// User returns the session's user, including the orders it owns.
func (s *Session) User() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user
	u.OrderIDs = slices.Clone(s.user.OrderIDs)
	return u
}

// Order returns one of the user's orders.
func (s *Session) Order(id string) (domain.Order, error) {
	o, ok := s.mgr.orders.Get(id)
	if !ok || o.UserID != s.user.ID {
		return domain.Order{}, fmt.Errorf("%s: %w", id, domain.ErrOrderNotFound)
	}
	return o, nil
}

func (s *Session) Orders() []domain.Order {
	return s.mgr.orders.ListByUser(s.user.ID)
}

func (s *Session) ConfirmPickup(ctx context.Context, orderID string) error {
	if _, err := s.Order(orderID); err != nil {
		return err
	}
	if s.mgr.pickup == nil {
		return ErrNoPickup
	}
	return s.mgr.pickup.ConfirmPickup(ctx, orderID)
}

// Close stops the session. Orders already submitted are still fulfilled.
func (s *Session) Close() {
	s.cancel()
	<-s.done
	s.markClosed()
	s.mgr.remove(s.ID)
}

func (s *Session) markClosed() {
	s.once.Do(func() {
		s.mgr.metrics.SessionClosed()
		s.mgr.log.Info("session_closed", "session_id", s.ID, "user_id", s.user.ID)
	})
}

// Done is closed when the session goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
