package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inspectdiff"

// Metrics holds the HTTP and comparison collectors of one process
type Metrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	imageComparisonsTotal  *prometheus.CounterVec
	imageDiffPercentage    prometheus.Histogram
	reportComparisonsTotal *prometheus.CounterVec
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	imageComparisonsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_comparisons_total",
			Help:      "Total image comparisons by verdict label.",
		},
		[]string{"service", "label"},
	)
	imageDiffPercentage := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_diff_percentage",
			Help:      "Distribution of the changed pixel percentage per comparison.",
			Buckets:   []float64{0, 0.5, 1, 2, 5, 10, 20, 50, 100},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	reportComparisonsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_comparisons_total",
			Help:      "Total report comparisons by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requestTotal,
		requestDuration,
		requestInFlight,
		imageComparisonsTotal,
		imageDiffPercentage,
		reportComparisonsTotal,
	)

	return &Metrics{
		registry:               registry,
		service:                service,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		imageComparisonsTotal:  imageComparisonsTotal,
		imageDiffPercentage:    imageDiffPercentage,
		reportComparisonsTotal: reportComparisonsTotal,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies. Paths are reported by
// the mux pattern that served them so path parameters don't explode the
// label space.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := NewStatusRecorder(w)

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := routeLabel(r)
		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.Status()),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	return r.Pattern
}

// ImageCompared counts a finished image comparison
func (m *Metrics) ImageCompared(label string, diffPercentage float64) {
	if label == "" {
		label = "unknown"
	}
	m.imageComparisonsTotal.WithLabelValues(m.service, label).Inc()
	m.imageDiffPercentage.Observe(diffPercentage)
}

// ImageComparisonFailed counts a comparison that produced no verdict
func (m *Metrics) ImageComparisonFailed() {
	m.imageComparisonsTotal.WithLabelValues(m.service, "error").Inc()
}

// ReportCompared counts a report comparison by outcome
func (m *Metrics) ReportCompared(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.reportComparisonsTotal.WithLabelValues(m.service, outcome).Inc()
}
