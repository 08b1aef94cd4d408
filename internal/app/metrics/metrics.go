package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "library",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "library",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "library",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	loanEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "library",
			Subsystem: "circulation",
			Name:      "loan_events_total",
			Help:      "Total number of loan state transitions.",
		},
		[]string{"event"},
	)

	finesAssessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "library",
			Subsystem: "circulation",
			Name:      "fines_assessed_total",
			Help:      "Total fine amount assessed on overdue returns.",
		},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "library",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total number of notifications produced.",
		},
		[]string{"kind", "delivered"},
	)

	reservationsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "library",
			Subsystem: "reservations",
			Name:      "expired_total",
			Help:      "Total number of reservations swept to expired.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		loanEvents,
		finesAssessed,
		notificationsSent,
		reservationsExpired,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordLoanEvent counts a circulation transition (borrowed, returned, lost,
// overdue).
func RecordLoanEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	loanEvents.WithLabelValues(event).Inc()
}

// RecordFine adds an assessed fine amount to the running total.
func RecordFine(amount float64) {
	if amount <= 0 {
		return
	}
	finesAssessed.Add(amount)
}

// RecordNotification counts a produced notification by kind.
func RecordNotification(kind string, delivered bool) {
	if kind == "" {
		kind = "unknown"
	}
	result := "false"
	if delivered {
		result = "true"
	}
	notificationsSent.WithLabelValues(kind, result).Inc()
}

// RecordReservationsExpired counts reservations swept by the expiry poller.
func RecordReservationsExpired(n int) {
	if n <= 0 {
		return
	}
	reservationsExpired.Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource IDs so metric label cardinality stays
// bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "auth", "reports":
		// Second segment is a verb, not an ID.
		if len(parts) >= 2 {
			return "/" + parts[0] + "/" + parts[1]
		}
		return "/" + parts[0]
	case "requests":
		if len(parts) >= 3 {
			return "/" + parts[0] + "/" + parts[1] + "/:id"
		}
		if len(parts) == 2 {
			return "/" + parts[0] + "/" + parts[1]
		}
		return "/" + parts[0]
	case "books", "loans", "reservations", "members", "categories":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if len(parts) >= 3 {
			return "/" + parts[0] + "/:id/" + parts[2]
		}
		return "/" + parts[0] + "/:id"
	default:
		return "/" + parts[0]
	}
}
