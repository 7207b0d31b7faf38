package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/core/service"
	"github.com/rl1809/restaurant/internal/metrics"
)

const (
	roleHeader     = "X-User-Role"
	maxUpdatesWait = 30 * time.Second
)

type HTTPHandler struct {
	sessions *service.SessionManager
	stock    *service.MenuStock
	pickup   service.PickupConfirmer
	log      *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type openSessionRequest struct {
	UserID int64  `json:"user_id"`
	Login  string `json:"login"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
	Login     string `json:"login"`
}

type placeOrderRequest struct {
	RequestID string             `json:"request_id"`
	Lines     []domain.OrderLine `json:"lines"`
}

type addDishRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	PrepTime string          `json:"prep_time"`
	Amount   int             `json:"amount"`
}

type amountRequest struct {
	Amount int `json:"amount"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewHTTPHandler(sessions *service.SessionManager, stock *service.MenuStock, pickup service.PickupConfirmer,
	log *slog.Logger, m *metrics.Metrics) *HTTPHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPHandler{
		sessions: sessions,
		stock:    stock,
		pickup:   pickup,
		log:      log,
		metrics:  m,
		tracer:   otel.Tracer("restaurant-http"),
	}
}

// Routes builds the router. gatherer may be nil, in which case /metrics is not served.
func (h *HTTPHandler) Routes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.observe)

	r.Get("/health", h.HealthCheck)
	if gatherer != nil {
		r.Handle("/metrics", metrics.Handler(gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/menu", h.listMenu)

		r.Post("/sessions", h.openSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Delete("/", h.closeSession)
			r.Post("/orders", h.placeOrder)
			r.Get("/orders", h.listOrders)
			r.Get("/orders/{orderID}", h.getOrder)
			r.Get("/updates", h.updates)
		})

		r.Post("/orders/{orderID}/pickup", h.confirmPickup)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/dishes", h.addDish)
			r.Delete("/dishes/{dish}", h.removeDish)
			r.Put("/dishes/{dish}/amount", h.setAmount)
			r.Post("/dishes/{dish}/restock", h.restock)
		})
	})

	return r
}

func (h *HTTPHandler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.ObserveHTTP(route, strconv.Itoa(status), float64(time.Since(start).Microseconds())/1000)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if domain.Role(r.Header.Get(roleHeader)) != domain.RoleAdmin {
			writeJSON(w, http.StatusForbidden, errorResponse{Message: "admin role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) listMenu(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stock.Items())
}

func (h *HTTPHandler) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	if req.UserID == 0 || req.Login == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "missing required fields"})
		return
	}

	user := domain.User{ID: req.UserID, Login: req.Login, Role: domain.RoleUser}
	if domain.Role(r.Header.Get(roleHeader)) == domain.RoleAdmin {
		user.Role = domain.RoleAdmin
	}

	s, err := h.sessions.Open(user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: s.ID, UserID: user.ID, Login: user.Login})
}

func (h *HTTPHandler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "sessionID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	s, ok := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		h.fail(w, r, service.ErrSessionNotFound)
	}
	return s, ok
}

func (h *HTTPHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	order, err := s.Submit(ctx, req.RequestID, req.Lines)
	if err != nil {
		span.RecordError(err)
		h.fail(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	writeJSON(w, http.StatusAccepted, order)
}

func (h *HTTPHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Orders())
}

func (h *HTTPHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	order, err := s.Order(chi.URLParam(r, "orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// updates returns every buffered status update. With ?wait=<duration> it
// blocks until at least one update arrives or the wait expires.
func (h *HTTPHandler) updates(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var wait time.Duration
	if v := r.URL.Query().Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid wait"})
			return
		}
		wait = min(d, maxUpdatesWait)
	}

	out := drainUpdates(s.Updates())
	if len(out) == 0 && wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case u := <-s.Updates():
			out = append(out, u)
			out = append(out, drainUpdates(s.Updates())...)
		case <-timer.C:
		case <-s.Done():
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func drainUpdates(ch <-chan service.StatusUpdate) []service.StatusUpdate {
	out := []service.StatusUpdate{}
	for {
		select {
		case u := <-ch:
			out = append(out, u)
		default:
			return out
		}
	}
}

func (h *HTTPHandler) confirmPickup(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ConfirmPickup")
	defer span.End()

	if err := h.pickup.ConfirmPickup(ctx, chi.URLParam(r, "orderID")); err != nil {
		span.RecordError(err)
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *HTTPHandler) addDish(w http.ResponseWriter, r *http.Request) {
	var req addDishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	prep, err := time.ParseDuration(req.PrepTime)
	if err != nil || prep < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid prep_time"})
		return
	}
	if req.Price.IsNegative() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid price"})
		return
	}

	dish := domain.Dish{Name: req.Name, Price: req.Price, PrepTime: prep}
	if err := h.stock.AddDish(r.Context(), dish, req.Amount); err != nil {
		h.fail(w, r, err)
		return
	}
	item, _ := h.stock.Item(req.Name)
	writeJSON(w, http.StatusCreated, item)
}

func (h *HTTPHandler) removeDish(w http.ResponseWriter, r *http.Request) {
	if err := h.stock.RemoveDish(r.Context(), chi.URLParam(r, "dish")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) setAmount(w http.ResponseWriter, r *http.Request) {
	h.changeAmount(w, r, h.stock.SetAmount)
}

func (h *HTTPHandler) restock(w http.ResponseWriter, r *http.Request) {
	h.changeAmount(w, r, h.stock.Restock)
}

func (h *HTTPHandler) changeAmount(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, dish string, amount int) error) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	name := chi.URLParam(r, "dish")
	if err := apply(r.Context(), name, req.Amount); err != nil {
		h.fail(w, r, err)
		return
	}
	item, _ := h.stock.Item(name)
	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request_failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
