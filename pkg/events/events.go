package events

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ctavolazzi/mission-control/pkg/log"
)

const (
	// DefaultHistoryLimit bounds the in-memory event history.
	DefaultHistoryLimit = 100

	// DefaultBatchWindow is the coalescing window for EmitBatched.
	DefaultBatchWindow = 50 * time.Millisecond
)

// Event is one emission on the bus.
type Event struct {
	ID        string
	Type      string
	Data      map[string]any
	Timestamp time.Time
}

// Handler processes one event. Handlers run synchronously on the emitter's
// goroutine and must not block on I/O.
type Handler func(*Event)

// Middleware inspects an event before handlers run. Returning false stops
// propagation.
type Middleware func(*Event) bool

// subscription is one registered handler with dispatch ordering metadata.
type subscription struct {
	id       string
	pattern  string
	handler  Handler
	priority int
	seq      uint64
	once     bool
}

// pendingBatch accumulates equal-typed EmitBatched payloads inside a window.
type pendingBatch struct {
	items []map[string]any
	timer *time.Timer
}

// Bus is an in-process publish/subscribe hub with wildcard patterns.
//
// Patterns are either an exact type ("workeffort:created"), a namespace
// wildcard ("workeffort:*"), or the global wildcard ("*"). Dispatch touches
// at most those three buckets, so per-event cost is proportional to the
// matching handler count, not the total pattern count.
type Bus struct {
	mu         sync.Mutex
	handlers   map[string][]*subscription
	middleware []Middleware
	history    []*Event
	histLimit  int
	paused     bool
	queue      []*Event
	nextSeq    uint64

	batchMu     sync.Mutex
	batches     map[string]*pendingBatch
	batchWindow time.Duration
	closed      bool
}

// NewBus creates a bus with default history and batching limits.
func NewBus() *Bus {
	return &Bus{
		handlers:    make(map[string][]*subscription),
		histLimit:   DefaultHistoryLimit,
		batches:     make(map[string]*pendingBatch),
		batchWindow: DefaultBatchWindow,
	}
}

// On subscribes handler to pattern and returns a subscription ID usable with
// Off.
func (b *Bus) On(pattern string, handler Handler) string {
	return b.subscribe(pattern, handler, 0, false)
}

// OnWithPriority subscribes with an explicit priority; higher priorities run
// first.
func (b *Bus) OnWithPriority(pattern string, priority int, handler Handler) string {
	return b.subscribe(pattern, handler, priority, false)
}

// Once subscribes a single-fire handler; it is removed before it runs.
func (b *Bus) Once(pattern string, handler Handler) string {
	return b.subscribe(pattern, handler, 0, true)
}

func (b *Bus) subscribe(pattern string, handler Handler, priority int, once bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:       uuid.New().String(),
		pattern:  pattern,
		handler:  handler,
		priority: priority,
		seq:      b.nextSeq,
		once:     once,
	}
	b.nextSeq++
	b.handlers[pattern] = append(b.handlers[pattern], sub)
	return sub.id
}

// Off removes the subscription with the given ID.
func (b *Bus) Off(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pattern, subs := range b.handlers {
		for i, sub := range subs {
			if sub.id == id {
				b.handlers[pattern] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Use appends a middleware. Middleware run in registration order before any
// handler; the first to return false stops the event.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// Emit publishes an event synchronously: it returns after every matching
// handler has run. Handler panics are logged and do not stop other handlers.
func (b *Bus) Emit(eventType string, data map[string]any) {
	b.emit(&Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// EmitBatched coalesces equal-typed events within the batch window into one
// emission whose payload is {batch: true, count, items}.
func (b *Bus) EmitBatched(eventType string, data map[string]any) {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.closed {
		return
	}

	batch, ok := b.batches[eventType]
	if !ok {
		batch = &pendingBatch{}
		batch.timer = time.AfterFunc(b.batchWindow, func() { b.flushBatch(eventType) })
		b.batches[eventType] = batch
	}
	batch.items = append(batch.items, data)
}

func (b *Bus) flushBatch(eventType string) {
	b.batchMu.Lock()
	batch, ok := b.batches[eventType]
	if ok {
		delete(b.batches, eventType)
	}
	b.batchMu.Unlock()

	if !ok || len(batch.items) == 0 {
		return
	}
	b.Emit(eventType, map[string]any{
		"batch": true,
		"count": len(batch.items),
		"items": batch.items,
	})
}

// Pause queues subsequent emissions instead of dispatching them.
func (b *Bus) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = true
}

// Resume replays every queued emission in order, then dispatches live again.
func (b *Bus) Resume() {
	b.mu.Lock()
	b.paused = false
	queued := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, ev := range queued {
		b.emit(ev)
	}
}

// History returns up to limit recent events, oldest first. limit <= 0 means
// the full buffer.
func (b *Bus) History(limit int) []*Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// Close drains pending batch timers. The bus must not be emitted on after
// Close.
func (b *Bus) Close() {
	b.batchMu.Lock()
	b.closed = true
	for eventType, batch := range b.batches {
		batch.timer.Stop()
		delete(b.batches, eventType)
	}
	b.batchMu.Unlock()
}

func (b *Bus) emit(ev *Event) {
	b.mu.Lock()

	if b.paused {
		b.queue = append(b.queue, ev)
		b.mu.Unlock()
		return
	}

	b.history = append(b.history, ev)
	if len(b.history) > b.histLimit {
		b.history = b.history[len(b.history)-b.histLimit:]
	}

	mws := make([]Middleware, len(b.middleware))
	copy(mws, b.middleware)
	subs := b.matchingLocked(ev.Type)
	b.mu.Unlock()

	for _, mw := range mws {
		if !mw(ev) {
			return
		}
	}

	for _, sub := range subs {
		b.safeInvoke(sub, ev)
	}
}

// matchingLocked collects matching subscriptions from the exact, namespace
// wildcard, and global wildcard buckets, removes once-subscriptions, and
// orders the result by priority (higher first, insertion order within equal
// priority).
func (b *Bus) matchingLocked(eventType string) []*subscription {
	patterns := []string{eventType, "*"}
	if i := strings.Index(eventType, ":"); i > 0 {
		patterns = append(patterns, eventType[:i+1]+"*")
	}

	var matched []*subscription
	for _, pattern := range patterns {
		subs := b.handlers[pattern]
		if len(subs) == 0 {
			continue
		}
		matched = append(matched, subs...)

		kept := subs[:0]
		for _, sub := range subs {
			if !sub.once {
				kept = append(kept, sub)
			}
		}
		b.handlers[pattern] = kept
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].priority != matched[j].priority {
			return matched[i].priority > matched[j].priority
		}
		return matched[i].seq < matched[j].seq
	})
	return matched
}

func (b *Bus) safeInvoke(sub *subscription, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			logger := log.WithComponent("events")
			logger.Error().
				Str("pattern", sub.pattern).
				Str("event_type", ev.Type).
				Any("panic", r).
				Msg("event handler panicked")
		}
	}()
	sub.handler(ev)
}
