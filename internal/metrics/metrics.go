package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uborka",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	occurrencesGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "uborka",
			Name:      "occurrences_generated_total",
			Help:      "Occurrences materialized for recurring series.",
		},
	)

	occurrencesRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "uborka",
			Name:      "occurrences_removed_total",
			Help:      "Future occurrences removed by series pauses.",
		},
	)

	seriesTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uborka",
			Name:      "series_transitions_total",
			Help:      "Series lifecycle transitions by kind.",
		},
		[]string{"transition"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uborka",
			Name:      "sync_tasks_total",
			Help:      "Sheets sync tasks by terminal status.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			occurrencesGenerated,
			occurrencesRemoved,
			seriesTransitions,
			syncTasks,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// AddGenerated counts occurrences materialized by create or resume.
func AddGenerated(n int) {
	occurrencesGenerated.Add(float64(n))
}

// AddRemoved counts occurrences deleted by a pause.
func AddRemoved(n int) {
	occurrencesRemoved.Add(float64(n))
}

// IncTransition counts a lifecycle transition ("pause", "resume").
func IncTransition(transition string) {
	seriesTransitions.WithLabelValues(transition).Inc()
}

// IncSyncTask counts a sync task outcome ("completed", "failed", "retry").
func IncSyncTask(status string) {
	syncTasks.WithLabelValues(status).Inc()
}
