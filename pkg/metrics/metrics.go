// Package metrics provides Prometheus instrumentation for the engine and its
// HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	sprintLaunches      prometheus.Counter
	sprintTerminations  prometheus.Counter
	sprintFinalizations prometheus.Counter
	builderJoins        prometheus.Counter
	builderEvictions    prometheus.Counter
	checkpointApprovals prometheus.Counter
	votesCast           prometheus.Counter
}

func New(namespace string) *Metrics {
	return &Metrics{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path pattern and status.",
		}, []string{"method", "pattern", "status"}),
		httpRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and path pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "pattern"}),
		sprintLaunches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sprint_launches_total", Help: "Sprints launched.",
		}),
		sprintTerminations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sprint_terminations_total", Help: "Sprints force-terminated.",
		}),
		sprintFinalizations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sprint_finalizations_total", Help: "Sprints finalized with a winner.",
		}),
		builderJoins: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "builder_joins_total", Help: "Builders enrolled into sprints.",
		}),
		builderEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "builder_evictions_total", Help: "Builders evicted from sprints.",
		}),
		checkpointApprovals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkpoint_approvals_total", Help: "Checkpoints verified and approved.",
		}),
		votesCast: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "votes_cast_total", Help: "Fellow votes recorded.",
		}),
	}
}

func (m *Metrics) SprintLaunched() { m.inc(func() { m.sprintLaunches.Inc() }) }

func (m *Metrics) SprintTerminated() { m.inc(func() { m.sprintTerminations.Inc() }) }

func (m *Metrics) SprintFinalized() { m.inc(func() { m.sprintFinalizations.Inc() }) }

func (m *Metrics) BuilderJoined() { m.inc(func() { m.builderJoins.Inc() }) }

func (m *Metrics) BuilderEvicted() { m.inc(func() { m.builderEvictions.Inc() }) }

func (m *Metrics) CheckpointApproved() { m.inc(func() { m.checkpointApprovals.Inc() }) }

func (m *Metrics) VoteCast() { m.inc(func() { m.votesCast.Inc() }) }

func (m *Metrics) inc(f func()) {
	if m != nil {
		f()
	}
}

// Handler serves the Prometheus exposition endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps an http.HandlerFunc with request counting and latency
// observation. pattern is the route pattern, not the raw path, to keep
// cardinality bounded.
func (m *Metrics) Instrument(pattern string, next http.HandlerFunc) http.HandlerFunc {
	if m == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		m.httpRequests.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
