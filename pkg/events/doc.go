/*
Package events provides the in-process pub/sub bus for Mission Control.

The bus carries typed domain events (workeffort:*, ticket:*, repo:*,
system:*) from the change detector and registry to the broadcaster and any
auxiliary consumers.

# Subscriptions

Three pattern shapes are supported:

	bus.On("workeffort:created", h)  // exact
	bus.On("workeffort:*", h)        // namespace wildcard
	bus.On("*", h)                   // global wildcard

Dispatch looks up at most those three buckets per event, so the cost of an
emission is proportional to the number of matching handlers, not the number
of registered patterns. Handlers are ordered by priority (higher first);
Once registers a single-fire handler.

# Semantics

Emit is synchronous: it returns after all matching handlers have run.
Handlers therefore must not block on I/O; offload long work to a goroutine.
A panicking handler is recovered and logged without affecting the rest of
the chain. Middleware registered with Use runs before handlers and can veto
an event by returning false.

EmitBatched coalesces equal-typed events inside a 50ms window into a single
emission with payload {batch: true, count, items}. Pause queues emissions;
Resume replays them in order. A bounded history buffer (100 events) is kept
for late inspection via History.
*/
package events
