package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Repository metrics
	ReposActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mission_control_repos_active",
			Help: "Number of repositories in the active set",
		},
	)

	WorkEffortsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mission_control_work_efforts_total",
			Help: "Parsed work efforts by repository and status",
		},
		[]string{"repo", "status"},
	)

	TicketsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mission_control_tickets_total",
			Help: "Parsed tickets by repository and status",
		},
		[]string{"repo", "status"},
	)

	// Parser metrics
	ParsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_control_parses_total",
			Help: "Total number of repository parse runs by repository",
		},
		[]string{"repo"},
	)

	ParseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mission_control_parse_duration_seconds",
			Help:    "Repository parse duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Watcher metrics
	WatcherEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_control_watcher_events_total",
			Help: "Total number of raw filesystem events by repository",
		},
		[]string{"repo"},
	)

	// Broadcast metrics
	ClientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mission_control_clients_connected",
			Help: "Number of connected websocket clients",
		},
	)

	BroadcastFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_control_broadcast_frames_total",
			Help: "Total number of frames broadcast by frame type",
		},
		[]string{"type"},
	)

	BroadcastErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mission_control_broadcast_errors_total",
			Help: "Total number of failed client sends during broadcast",
		},
	)

	// Counter service metrics
	CounterIncrementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_control_counter_increments_total",
			Help: "Total number of counter increments by entity kind",
		},
		[]string{"kind"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_control_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ReposActive)
	prometheus.MustRegister(WorkEffortsTotal)
	prometheus.MustRegister(TicketsTotal)
	prometheus.MustRegister(ParsesTotal)
	prometheus.MustRegister(ParseDuration)
	prometheus.MustRegister(WatcherEventsTotal)
	prometheus.MustRegister(ClientsConnected)
	prometheus.MustRegister(BroadcastFramesTotal)
	prometheus.MustRegister(BroadcastErrorsTotal)
	prometheus.MustRegister(CounterIncrementsTotal)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetRepoGauges replaces the per-repo work-effort and ticket gauges after a
// parse run.
func SetRepoGauges(repo string, byStatus, ticketsByStatus map[string]int) {
	WorkEffortsTotal.DeletePartialMatch(prometheus.Labels{"repo": repo})
	TicketsTotal.DeletePartialMatch(prometheus.Labels{"repo": repo})
	for status, count := range byStatus {
		WorkEffortsTotal.WithLabelValues(repo, status).Set(float64(count))
	}
	for status, count := range ticketsByStatus {
		TicketsTotal.WithLabelValues(repo, status).Set(float64(count))
	}
}

// DropRepoGauges removes all per-repo series when a repo leaves the active
// set.
func DropRepoGauges(repo string) {
	WorkEffortsTotal.DeletePartialMatch(prometheus.Labels{"repo": repo})
	TicketsTotal.DeletePartialMatch(prometheus.Labels{"repo": repo})
	WatcherEventsTotal.DeletePartialMatch(prometheus.Labels{"repo": repo})
}
