package obs

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every collector registered by this service.
const DefaultNamespace = "championcart"

var defaultLatencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// HTTPMetrics holds the server side request collectors. Latency is recorded in
// seconds, labelled by chi route pattern rather than raw path.
type HTTPMetrics struct {
	Requests     *prometheus.CounterVec
	Latency      *prometheus.HistogramVec
	ResponseSize *prometheus.HistogramVec
	InFlight     prometheus.Gauge
}

// NewHTTPMetrics registers the request collectors on reg (default registerer
// when nil). bucketsMillis overrides the latency buckets.
func NewHTTPMetrics(namespace string, bucketsMillis []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	buckets := defaultLatencyBuckets
	if len(bucketsMillis) > 0 {
		buckets = make([]float64, 0, len(bucketsMillis))
		for _, ms := range bucketsMillis {
			buckets = append(buckets, ms/1000)
		}
		slices.Sort(buckets)
	}
	return &HTTPMetrics{
		Requests: registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"})),
		Latency: registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   buckets,
		}, []string{"method", "route"})),
		ResponseSize: registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response body sizes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 7),
		}, []string{"route"})),
		InFlight: registerOrReuse(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Requests currently being served.",
		})),
	}
}

// Middleware records one observation per request. A nil receiver is a no-op.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		rec := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := routeOf(r, "unmatched")
		m.Requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.Status())).Inc()
		m.Latency.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		m.ResponseSize.WithLabelValues(route).Observe(float64(rec.BytesWritten()))
	})
}

// ParseBucketsCSV reads positive millisecond boundaries such as "5,25,100".
// Invalid entries are skipped.
func ParseBucketsCSV(csv string) []float64 {
	var out []float64
	for _, part := range strings.Split(csv, ",") {
		if v, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil && v > 0 {
			out = append(out, v)
		}
	}
	return out
}

// registerOrReuse registers c, returning the already registered collector
// when an identical one exists so repeated wiring in tests does not panic.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		panic(fmt.Errorf("register collector: %w", err))
	}
	if existing, ok := are.ExistingCollector.(C); ok {
		return existing
	}
	return c
}
