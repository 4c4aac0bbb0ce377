package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveNotification("new", "sent")
	m.ObserveNotification("new", "sent")
	m.ObserveNotification("delete", "blocked")
	m.ObserveRegistration("pending")
	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("new", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("delete", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.registrations.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveUpdate("message")
	m.ObserveDispatch(120 * time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `drsbot_updates_total{kind="message"} 1`), body)
	assert.Contains(t, body, "drsbot_dispatch_duration_seconds_count 1")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveUpdate("callback")
		m.ObserveHandler("start", "ok", time.Second)
		m.SessionEnded()
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Nil(t, NewServer("", m))
}
