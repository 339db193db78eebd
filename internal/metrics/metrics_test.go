package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Operations(t *testing.T) {
	m := New()
	m.ObserveOperation("note", "get", OutcomeOK, 5*time.Millisecond)
	m.ObserveOperation("note", "get", OutcomeOK, time.Millisecond)
	m.ObserveOperation("note", "create", OutcomeInvalid, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("note", "get", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("note", "create", OutcomeInvalid)))
}

func TestMetrics_Subscriptions(t *testing.T) {
	m := New()
	m.SubscriptionOpened("word")
	m.SubscriptionOpened("word")
	m.SubscriptionClosed("word")
	m.EventDelivered("word", "record")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.subscriptions.WithLabelValues("word")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("word", "record")))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("note", "get", OutcomeOK, time.Millisecond)
		m.SubscriptionOpened("note")
		m.SubscriptionClosed("note")
		m.EventDelivered("note", "state")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveOperation("user", "delete", OutcomeNotFound, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `obay_gateway_operations_total{kind="user",op="delete",outcome="not_found"} 1`)
}
