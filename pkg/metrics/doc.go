/*
Package metrics provides Prometheus metrics collection and exposition for
Mission Control.

All collectors are package-level variables registered at init time against the
default Prometheus registry, and exposed through Handler() on the control
plane's /metrics endpoint.

# Metric Families

	mission_control_repos_active              gauge      repositories in the active set
	mission_control_work_efforts_total        gauge      work efforts by repo and status
	mission_control_tickets_total             gauge      tickets by repo and status
	mission_control_parses_total              counter    parse runs by repo
	mission_control_parse_duration_seconds    histogram  parse latency
	mission_control_watcher_events_total      counter    raw fs events by repo
	mission_control_clients_connected         gauge      live websocket sessions
	mission_control_broadcast_frames_total    counter    frames sent by type
	mission_control_broadcast_errors_total    counter    failed client sends
	mission_control_counter_increments_total  counter    ID allocations by kind
	mission_control_api_requests_total        counter    API requests by method/status

# Integration Points

Per-repo gauges are pushed, not polled: the registry calls SetRepoGauges after
every parse run and DropRepoGauges when a repo is removed, so the series set
always mirrors the active repo set. Timer wraps histogram observation for the
parse path.

# Usage

	timer := metrics.NewTimer()
	result := parser.ParseRepo(path)
	timer.ObserveDuration(metrics.ParseDuration)
	metrics.ParsesTotal.WithLabelValues(repo).Inc()
*/
package metrics
