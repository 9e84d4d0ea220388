package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelService = "service"
	labelMethod  = "method"
	labelPath    = "path"
	labelStatus  = "status"
	labelOutcome = "outcome"
	labelOp      = "op"
)

// Metrics holds the HTTP and stock/cart counters of one process.
type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec

	LockContention *prometheus.CounterVec
	Reservations   *prometheus.CounterVec
	Compensations  *prometheus.CounterVec
	CartRetries    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{labelService, labelMethod, labelPath, labelStatus},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP latency",
			},
			[]string{labelService, labelMethod, labelPath},
		),
		LockContention: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_lock_contention_total",
				Help: "Product lock acquisitions that found the lock already held",
			},
			[]string{labelOp},
		),
		Reservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_reservations_total",
				Help: "Stock reservation attempts by outcome",
			},
			[]string{labelOutcome},
		),
		Compensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_compensations_total",
				Help: "Compensating stock releases by outcome",
			},
			[]string{labelOutcome},
		),
		CartRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cart_commit_conflicts_total",
				Help: "Optimistic cart commits that lost the race",
			},
		),
	}

	reg.MustRegister(m.Requests, m.Latency, m.LockContention, m.Reservations, m.Compensations, m.CartRetries)
	return m
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (m *Metrics) Middleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(sw, r)

			path := routePatternOrPath(r)
			m.Latency.WithLabelValues(service, r.Method, path).
				Observe(time.Since(start).Seconds())
			m.Requests.WithLabelValues(service, r.Method, path, strconv.Itoa(sw.status)).
				Inc()
		})
	}
}

func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if rp := rc.RoutePattern(); rp != "" {
			return rp
		}
	}
	return r.URL.Path
}
