package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/cardshop/shop/model"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveUpdate("user", "message", "browse_products", nil, 10*time.Millisecond)
	m.ObserveUpdate("user", "message", "browse_products", errors.New("boom"), time.Millisecond)
	m.EventSuppressed("admin", "not_admin")
	m.OrderTransition("", model.StatusPending, model.DeliveryID)
	m.OrderTransition(model.StatusPending, model.StatusCompleted, model.DeliveryID)
	m.NotifyFailed("pending")
	m.SendResult("reply", nil)
	m.WebhookRequest("user", http.StatusForbidden)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("user", "message", "browse_products", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("user", "message", "browse_products", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suppressed.WithLabelValues("admin", "not_admin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("new", "pending", "id")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("pending", "completed", "id")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifyFailures.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sends.WithLabelValues("reply", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhook.WithLabelValues("user", "403")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveUpdate("user", "message", "", nil, 0)
		m.EventSuppressed("user", "banned")
		m.OrderTransition(model.StatusPending, model.StatusFailed, model.DeliveryCode)
		m.NotifyFailed("pending")
		m.SendResult("reply", nil)
		m.WebhookRequest("user", http.StatusOK)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.EventSuppressed("user", "banned")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `cardshop_gate_suppressed_total{bot="user",reason="banned"} 1`)
}
