// Package dispatch fans one decoded queue event out to every handler registered for its type.
package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
	"git.home.luguber.info/inful/buildmesh/internal/observability"
	"git.home.luguber.info/inful/buildmesh/internal/util/sets"
)

// Dispatcher is a synchronous, typed fan-out keyed by the event's concrete type.
//
// Handlers run on the calling goroutine in registration order. A failing handler
// marks the event key as errored and does not stop its siblings. Non-retryable
// handler errors are returned to the caller.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]handler
	errored  sets.Concurrent[string]
	logger   *slog.Logger
}

type handler struct {
	name string
	call func(ctx context.Context, evt any) error
}

// New returns an empty dispatcher logging through logger (slog.Default when nil).
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[reflect.Type][]handler),
		logger:   logger,
	}
}

// Subscribe registers fn for events of type T.
//
// If T is an interface, events whose concrete type implements T are delivered.
// For concrete T, events are delivered only when the concrete type matches exactly.
func Subscribe[T any](d *Dispatcher, name string, fn func(ctx context.Context, evt T) error) {
	eventType := reflect.TypeFor[T]()
	h := handler{
		name: name,
		call: func(ctx context.Context, evt any) error {
			v, ok := evt.(T)
			if !ok {
				return ferrors.InternalError("event type mismatch").
					WithContext("expected", eventType.String()).
					WithContext("actual", fmt.Sprintf("%T", evt)).
					Build()
			}
			return fn(ctx, v)
		},
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// HandlerCount returns the number of handlers that would receive an event of type T.
func HandlerCount[T any](d *Dispatcher) int {
	return len(d.targets(reflect.TypeFor[T]()))
}

// Dispatch delivers evt to all matching handlers.
//
// key identifies the event in the errored set; it is marked when any handler fails.
// The returned error joins the non-retryable handler errors, nil otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, evt any) error {
	if evt == nil {
		return ferrors.NonRetryable(ferrors.ValidationError("event cannot be nil").Build())
	}
	targets := d.targets(reflect.TypeOf(evt))
	if len(targets) == 0 {
		d.logger.Debug("No handler registered for event", slog.String("type", fmt.Sprintf("%T", evt)), slog.String("key", key))
		return nil
	}
	ctx = observability.WithQueueKey(ctx, key)

	var fatal []error
	for _, h := range targets {
		err := d.invoke(ctx, h, evt)
		if err == nil {
			continue
		}
		d.errored.Add(key)
		if ferrors.IsNonRetryable(err) {
			fatal = append(fatal, err)
			continue
		}
		d.logger.WarnContext(ctx, "Event handler failed",
			logfields.Handler(h.name),
			logfields.Error(err))
	}
	return stderrors.Join(fatal...)
}

func (d *Dispatcher) invoke(ctx context.Context, h handler, evt any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ferrors.InternalError("event handler panicked").
				WithContext("handler", h.name).
				WithContext("panic", fmt.Sprint(r)).
				Build()
		}
	}()
	return h.call(observability.WithHandler(ctx, h.name), evt)
}

func (d *Dispatcher) targets(evtType reflect.Type) []handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := append([]handler(nil), d.handlers[evtType]...)
	for subType, hs := range d.handlers {
		if subType != evtType && subType.Kind() == reflect.Interface && evtType.Implements(subType) {
			out = append(out, hs...)
		}
	}
	return out
}

// Errored reports whether a handler failed for key since the last Forget.
func (d *Dispatcher) Errored(key string) bool { return d.errored.Has(key) }

// Forget clears key from the errored set.
func (d *Dispatcher) Forget(key string) { d.errored.Delete(key) }
