package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "restaurant"

// Metrics groups the service collectors. A nil *Metrics is valid and records
// nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	Orders        *prometheus.CounterVec
	Reservations  *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	Sessions      prometheus.Gauge
	Dropped       prometheus.Counter
	HTTPRequests  *prometheus.CounterVec
	HTTPLatencyMS *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order status transitions by target status.",
		}, []string{"status"}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Stock reservation attempts by result.",
		}, []string{"result"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Orders waiting for reservation.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open client sessions.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Status notifications dropped because the dispatcher buffer was full.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		HTTPLatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"route"}),
	}

	reg.MustRegister(m.Orders, m.Reservations, m.QueueDepth, m.Sessions, m.Dropped, m.HTTPRequests, m.HTTPLatencyMS)
	return m
}

func (m *Metrics) ObserveStatus(status string) {
	if m != nil {
		m.Orders.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveReservation(result string) {
	if m != nil {
		m.Reservations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.Sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.Sessions.Dec()
	}
}

func (m *Metrics) NotificationDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) ObserveHTTP(route, status string, ms float64) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(route, status).Inc()
		m.HTTPLatencyMS.WithLabelValues(route).Observe(ms)
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
