package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/alovak/kioskpay/internal/tl3800"
	"github.com/alovak/kioskpay/internal/transport"
)

func TestExchangeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Config{Registry: reg})

	m.ExchangeDone(tl3800.JobApprove, 2*time.Second, nil)
	m.ExchangeDone(tl3800.JobApprove, time.Second, fmt.Errorf("exchange: %w", tl3800.ErrAckTimeout))
	m.NakReceived(tl3800.JobApprove)
	m.NakReceived(tl3800.JobApprove)
	m.EventDiscarded()
	m.DegradedFrame(tl3800.JobDeviceCheck)

	require.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("B", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("B", "ack_timeout")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.naks.WithLabelValues("B")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.events))
	require.Equal(t, 1.0, testutil.ToFloat64(m.degraded.WithLabelValues("A")))

	expected := `
# HELP kioskpay_terminal_events_discarded_total Unsolicited event frames skipped while waiting for a response
# TYPE kioskpay_terminal_events_discarded_total counter
kioskpay_terminal_events_discarded_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "kioskpay_terminal_events_discarded_total"))
}

func TestOutcome(t *testing.T) {
	require.Equal(t, "ok", Outcome(nil))
	require.Equal(t, "nak_exceeded", Outcome(tl3800.ErrNakExceeded))
	require.Equal(t, "followup_timeout", Outcome(fmt.Errorf("x: %w", tl3800.ErrFollowupTimeout)))
	require.Equal(t, "malformed", Outcome(tl3800.ErrMalformedFrame))
	require.Equal(t, "peer_closed", Outcome(fmt.Errorf("awaiting ack: %w", transport.ErrPeerClosed)))
	require.Equal(t, "io_error", Outcome(fmt.Errorf("connection reset")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Config{Registry: reg})

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/payments/{paymentID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	require.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/payments/{paymentID}", "GET", "404")))
}
