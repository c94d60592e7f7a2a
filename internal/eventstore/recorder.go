package eventstore

import (
	"context"
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/dispatch"
	"git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

// Recorder appends every published build transition to a Store.
type Recorder struct {
	store    Store
	instance string
	now      func() time.Time
}

// NewRecorder records into store; instance is kept as metadata on each row.
func NewRecorder(store Store, instance string) *Recorder {
	return &Recorder{store: store, instance: instance, now: time.Now}
}

func (r *Recorder) Register(d *dispatch.Dispatcher) {
	dispatch.Subscribe(d, "history-repository-build", func(ctx context.Context, evt *build.RepositoryBuildEvent) error {
		return r.record(ctx, string(build.KindRepository), evt.Build.ID, evt.Build.State, evt.Previous, evt.Build)
	})
	dispatch.Subscribe(d, "history-module-build", func(ctx context.Context, evt *build.ModuleBuildEvent) error {
		return r.record(ctx, string(build.KindModule), evt.Build.ID, evt.Build.State, evt.Previous, evt.Build)
	})
}

func (r *Recorder) record(ctx context.Context, kind string, id int64, state, previous build.State, snapshot any) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.NonRetryable(errors.WrapError(err, errors.CategoryStore, "failed to marshal transition").Build())
	}
	return r.store.Append(ctx, Transition{
		Kind:     kind,
		BuildID:  id,
		State:    string(state),
		Previous: string(previous),
		At:       r.now(),
		Payload:  payload,
		Metadata: map[string]string{"instance": r.instance},
	})
}
