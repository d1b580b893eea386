// Package metrics holds the Prometheus instruments of the shop. All methods
// are safe on a nil *Metrics so callers can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/cardshop/shop/model"
)

const namespace = "cardshop"

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	updates        *prometheus.CounterVec
	updateDuration *prometheus.HistogramVec
	suppressed     *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	sends          *prometheus.CounterVec
	webhook        *prometheus.CounterVec
}

// New registers every collector plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "updates_total",
			Help:      "Handled updates by bot, update kind, handler and status.",
		}, []string{"bot", "kind", "handler", "status"}),
		updateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "update_duration_seconds",
			Help:      "Time spent handling one update.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"bot"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "suppressed_total",
			Help:      "Admitted events dropped by the identity gate.",
		}, []string{"bot", "reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions.",
		}, []string{"from", "to", "delivery_type"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "admin_failures_total",
			Help:      "Admin notifications that could not be handed off.",
		}, []string{"event"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "jobs_total",
			Help:      "Outbound send jobs by action and final status.",
		}, []string{"action", "status"}),
		webhook: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Inbound webhook calls by bot and HTTP code.",
		}, []string{"bot", "code"}),
	}
	m.reg.MustRegister(
		m.updates, m.updateDuration, m.suppressed, m.transitions,
		m.notifyFailures, m.sends, m.webhook,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveUpdate implements middleware.Observer.
func (m *Metrics) ObserveUpdate(bot, kind, handler string, err error, took time.Duration) {
	if m == nil {
		return
	}
	if handler == "" {
		handler = "none"
	}
	m.updates.WithLabelValues(bot, kind, handler, status(err)).Inc()
	m.updateDuration.WithLabelValues(bot).Observe(took.Seconds())
}

// EventSuppressed implements gate.Observer.
func (m *Metrics) EventSuppressed(bot, reason string) {
	if m == nil {
		return
	}
	m.suppressed.WithLabelValues(bot, reason).Inc()
}

// OrderTransition implements orders.Observer.
func (m *Metrics) OrderTransition(from, to model.OrderStatus, delivery model.DeliveryType) {
	if m == nil {
		return
	}
	f := string(from)
	if f == "" {
		f = "new"
	}
	m.transitions.WithLabelValues(f, string(to), string(delivery)).Inc()
}

// NotifyFailed counts an admin notification that was lost.
func (m *Metrics) NotifyFailed(event string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(event).Inc()
}

// SendResult matches sender.Options.OnResult.
func (m *Metrics) SendResult(action string, err error) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(action, status(err)).Inc()
}

// WebhookRequest counts one inbound webhook response.
func (m *Metrics) WebhookRequest(bot string, code int) {
	if m == nil {
		return
	}
	m.webhook.WithLabelValues(bot, strconv.Itoa(code)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
