/*
Package api implements the Mission Control HTTP surface.

The api package is the single ingress for browsers and tooling: repository
management, filesystem browsing for the add-repo UX, counter administration,
Prometheus metrics, and the websocket mount for live state.

# Architecture

	┌──────────────────── BROWSER / CLI ─────────────────────┐
	│                                                         │
	│   REST (JSON)                    websocket              │
	└───────┬─────────────────────────────┬──────────────────┘
	        │                             │
	┌───────▼───────── CONTROL PLANE ─────▼──────────────────┐
	│                                                         │
	│  ServeMux routes            /ws ──▶ broadcast.Hub       │
	│   /api/health                                           │
	│   /api/repos[...]  ───────▶ registry                    │
	│   /api/browse      ───────▶ filesystem (root-confined)  │
	│   /api/counter/*   ───────▶ counter service             │
	│   /metrics         ───────▶ Prometheus handler          │
	│                                                         │
	└─────────────────────────────────────────────────────────┘

# Request Handling

Mutating handlers delegate to the registry, which persists to disk before
exposing new in-memory state; the watcher-driven refresh then re-parses and
broadcasts. Validation failures return 4xx with a human-readable error
string; persistence failures return 5xx and leave no partial state behind.

Counter admin responses carry a top-level timestamp alongside their payload.

All non-websocket requests pass through one instrumentation layer that
records the request counter and a debug log line.
*/
package api
