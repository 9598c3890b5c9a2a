// Package metrics exposes terminal and HTTP metrics to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alovak/kioskpay/internal/tl3800"
	"github.com/alovak/kioskpay/internal/transport"
)

// Config configures the collectors.
type Config struct {
	// Namespace prefixes every metric name (default: "kioskpay").
	Namespace string
	// Buckets are the histogram buckets for exchange duration in seconds.
	Buckets []float64
	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		Namespace: "kioskpay",
		// approvals wait on card insertion and PIN entry
		Buckets:  []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		Registry: prometheus.DefaultRegisterer,
	}
}

// Metrics implements tl3800.Observer and provides HTTP middleware.
type Metrics struct {
	exchanges        *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	naks             *prometheus.CounterVec
	events           prometheus.Counter
	degraded         *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New(config Config) *Metrics {
	def := DefaultConfig()
	if config.Namespace == "" {
		config.Namespace = def.Namespace
	}
	if len(config.Buckets) == 0 {
		config.Buckets = def.Buckets
	}
	if config.Registry == nil {
		config.Registry = def.Registry
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		exchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "terminal",
			Name:      "exchanges_total",
			Help:      "Terminal exchanges by job and outcome",
		}, []string{"job", "outcome"}),

		exchangeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: "terminal",
			Name:      "exchange_duration_seconds",
			Help:      "Time from request send to final response",
			Buckets:   config.Buckets,
		}, []string{"job"}),

		naks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "terminal",
			Name:      "naks_total",
			Help:      "NAKs received from the terminal",
		}, []string{"job"}),

		events: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "terminal",
			Name:      "events_discarded_total",
			Help:      "Unsolicited event frames skipped while waiting for a response",
		}),

		degraded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "terminal",
			Name:      "degraded_frames_total",
			Help:      "Frames accepted only by the lenient parser",
		}, []string{"job"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "method", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   config.Buckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) ExchangeDone(job tl3800.JobCode, elapsed time.Duration, err error) {
	label := jobLabel(job)
	m.exchanges.WithLabelValues(label, Outcome(err)).Inc()
	m.exchangeDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func (m *Metrics) NakReceived(job tl3800.JobCode) {
	m.naks.WithLabelValues(jobLabel(job)).Inc()
}

func (m *Metrics) EventDiscarded() {
	m.events.Inc()
}

func (m *Metrics) DegradedFrame(job tl3800.JobCode) {
	m.degraded.WithLabelValues(jobLabel(job)).Inc()
}

// Outcome buckets an exchange error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tl3800.ErrNakExceeded):
		return "nak_exceeded"
	case errors.Is(err, tl3800.ErrAckTimeout):
		return "ack_timeout"
	case errors.Is(err, tl3800.ErrHeaderTimeout):
		return "header_timeout"
	case errors.Is(err, tl3800.ErrShortBody):
		return "short_body"
	case errors.Is(err, tl3800.ErrMalformedFrame):
		return "malformed"
	case errors.Is(err, tl3800.ErrFollowupTimeout):
		return "followup_timeout"
	case errors.Is(err, transport.ErrPeerClosed):
		return "peer_closed"
	default:
		return "io_error"
	}
}

func jobLabel(job tl3800.JobCode) string {
	return string(rune(job))
}

// Middleware records every request under its chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

var _ tl3800.Observer = (*Metrics)(nil)
