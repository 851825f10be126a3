package event

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler processes one decoded event. Handlers run on the dispatching
// goroutine; a panicking handler is isolated and reported, never crashing
// the session's read loop.
type Handler func(Event)

// Stats counts registry activity.
type Stats struct {
	Dispatched    int64
	HandlerPanics int64
	Unhandled     int64
}

// Registry maps event kinds to their handler lists. Registration is
// explicit: no reflection, no name-based lookup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
	stats    Stats

	logger *slog.Logger
	errs   chan error
}

// NewRegistry creates an empty registry. Handler failures are reported on
// Errors.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[Kind][]Handler),
		logger:   logger,
		errs:     make(chan error, 16),
	}
}

// On registers a handler for one event kind.
func (r *Registry) On(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = append(r.handlers[kind], h)
}

// OnAll registers a handler invoked for every event, including unknown
// kinds.
func (r *Registry) OnAll(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, h)
}

// Errors reports handler panics. The channel is buffered; reports are
// dropped when nobody drains it.
func (r *Registry) Errors() <-chan error {
	return r.errs
}

// Dispatch runs every handler registered for the event's kind.
func (r *Registry) Dispatch(ev Event) {
	r.mu.RLock()
	kindHandlers := r.handlers[ev.Kind]
	allHandlers := r.all
	r.mu.RUnlock()

	r.mu.Lock()
	r.stats.Dispatched++
	if len(kindHandlers) == 0 && len(allHandlers) == 0 {
		r.stats.Unhandled++
	}
	r.mu.Unlock()

	for _, h := range kindHandlers {
		r.invoke(ev, h)
	}
	for _, h := range allHandlers {
		r.invoke(ev, h)
	}
}

// Stats returns a copy of the counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *Registry) invoke(ev Event, h Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			r.mu.Lock()
			r.stats.HandlerPanics++
			r.mu.Unlock()

			err := fmt.Errorf("handler panic on %s: %v", ev.Kind, rec)
			r.logger.Error("event handler panicked",
				"kind", ev.Kind,
				"shard_id", ev.ShardID,
				"panic", rec,
			)
			select {
			case r.errs <- err:
			default:
			}
		}
	}()
	h(ev)
}
