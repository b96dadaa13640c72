/*
Package log provides structured logging for Mission Control using zerolog.

A single global logger is initialized once at startup via Init and consumed
through per-component child loggers:

	log.Init(log.Config{Level: log.InfoLevel})
	logger := log.WithComponent("registry")
	logger.Info().Str("repo", name).Msg("repo added")

Child logger helpers attach the fields used throughout the codebase:

  - WithComponent: component name (parser, watcher, registry, broadcast, ...)
  - WithRepo: repository name for per-repo pipelines
  - WithClientID: websocket session identifier

Console output (human-readable, RFC3339 timestamps) is the default; pass
JSONOutput for machine-ingestible logs in production.
*/
package log
