// Package visitor routes build state transitions to handlers registered for a
// (kind, state) pair.
package visitor

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/dispatch"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
	"git.home.luguber.info/inful/buildmesh/internal/observability"
)

type key struct {
	kind  build.Kind
	state build.State
}

type entry struct {
	name string
	call func(ctx context.Context, b build.Build) error
}

// Registry is an explicit handler table keyed by build kind and state.
type Registry struct {
	mu     sync.RWMutex
	table  map[key][]entry
	logger *slog.Logger
}

// NewRegistry returns an empty registry logging through logger (slog.Default when nil).
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{table: make(map[key][]entry), logger: logger}
}

// On registers fn for builds of type T entering state.
// It panics when state is not valid for T's kind.
func On[T build.Build](r *Registry, name string, state build.State, fn func(ctx context.Context, b T) error) {
	OnStates(r, name, []build.State{state}, fn)
}

// OnStates registers fn for builds of type T entering any of states.
func OnStates[T build.Build](r *Registry, name string, states []build.State, fn func(ctx context.Context, b T) error) {
	var zero T
	kind := zero.Kind()
	e := entry{
		name: name,
		call: func(ctx context.Context, b build.Build) error {
			v, ok := b.(T)
			if !ok {
				return ferrors.InternalError("build type mismatch").
					WithContext("handler", name).
					WithContext("actual", fmt.Sprintf("%T", b)).
					Build()
			}
			return fn(ctx, v)
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range states {
		if !s.ValidFor(kind) {
			panic(fmt.Sprintf("visitor %q: state %s is not valid for %s builds", name, s, kind))
		}
		k := key{kind: kind, state: s}
		r.table[k] = append(r.table[k], e)
	}
}

// Handlers returns the handler names registered for kind and state, in order.
func (r *Registry) Handlers(kind build.Kind, state build.State) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.table[key{kind: kind, state: state}]
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Visit runs every handler registered for b's kind and state in registration order.
//
// A failing or panicking handler is logged and does not stop its siblings. When any
// handler returned a non-retryable error only those are returned; otherwise the
// remaining failures are joined so the caller can retry the transition.
func (r *Registry) Visit(ctx context.Context, b build.Build) error {
	r.mu.RLock()
	entries := append([]entry(nil), r.table[key{kind: b.Kind(), state: b.BuildState()}]...)
	r.mu.RUnlock()

	ctx = observability.WithBuild(ctx, string(b.Kind()), b.BuildID())

	var failed []error
	for _, e := range entries {
		err := r.invoke(ctx, e, b)
		if err == nil {
			continue
		}
		r.logger.WarnContext(ctx, "Build visitor failed",
			logfields.Handler(e.name),
			logfields.BuildState(string(b.BuildState())),
			logfields.Error(err))
		failed = append(failed, err)
	}

	if fatal := ferrors.NonRetryableErrors(failed...); len(fatal) > 0 {
		return stderrors.Join(fatal...)
	}
	return stderrors.Join(failed...)
}

func (r *Registry) invoke(ctx context.Context, e entry, b build.Build) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = ferrors.InternalError("build visitor panicked").
				WithContext("handler", e.name).
				WithContext("panic", fmt.Sprint(rec)).
				Build()
		}
	}()
	return e.call(observability.WithHandler(ctx, e.name), b)
}

// Attach subscribes the registry to repository and module build events on d.
func (r *Registry) Attach(d *dispatch.Dispatcher) {
	dispatch.Subscribe(d, "repository-build-visitors", func(ctx context.Context, evt *build.RepositoryBuildEvent) error {
		b := evt.Build
		return r.Visit(ctx, &b)
	})
	dispatch.Subscribe(d, "module-build-visitors", func(ctx context.Context, evt *build.ModuleBuildEvent) error {
		b := evt.Build
		return r.Visit(ctx, &b)
	})
}
