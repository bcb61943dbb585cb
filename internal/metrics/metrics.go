package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	paymentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "Payments created, by gateway that issued the QR code",
		},
		[]string{"gateway"},
	)

	paymentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Payment status transitions",
		},
		[]string{"to", "source"},
	)

	gatewayFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_fallback_total",
			Help: "QR code generations that fell back to the demo gateway",
		},
		[]string{"gateway"},
	)

	conversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversions_total",
			Help: "PDF to DOCX conversions by result",
		},
		[]string{"result"},
	)

	conversionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conversion_duration_seconds",
			Help:    "Wall time of a CloudConvert job including download",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		paymentsCreatedTotal,
		paymentTransitionsTotal,
		gatewayFallbackTotal,
		conversionsTotal,
		conversionDuration,
	)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func RecordPaymentCreated(gateway string) {
	paymentsCreatedTotal.WithLabelValues(gateway).Inc()
}

// RecordTransition counts a status change; source is "gateway", "simulate" or "conversion".
func RecordTransition(to, source string) {
	paymentTransitionsTotal.WithLabelValues(to, source).Inc()
}

func RecordGatewayFallback(gateway string) {
	gatewayFallbackTotal.WithLabelValues(gateway).Inc()
}

func RecordConversion(result string, t *Timer) {
	conversionsTotal.WithLabelValues(result).Inc()
	if t != nil {
		conversionDuration.Observe(t.Duration().Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Middleware records request counts and latency. The route label uses the
// matched mux pattern so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := StartTimer()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(t.Duration().Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
