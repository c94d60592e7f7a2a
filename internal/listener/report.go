package listener

import (
	"context"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/dispatch"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/queue"
)

// ModuleBuildReportType is the queue tag of ModuleBuildReport.
const ModuleBuildReportType = "ModuleBuildReport"

// ModuleBuildReport is a state update for a module build reported by the build cluster.
type ModuleBuildReport struct {
	ModuleBuildID int64       `json:"moduleBuildId"`
	State         build.State `json:"state"`
}

// RegisterReports binds the report tag on c and subscribes its handler on d.
func (l *Listeners) RegisterReports(c *queue.Codec, d *dispatch.Dispatcher) {
	queue.Register[ModuleBuildReport](c, ModuleBuildReportType)
	dispatch.Subscribe(d, "module-build-report", l.ApplyReport)
}

// ApplyReport moves the module build to the reported state. Reports for unknown
// builds or illegal states are dropped; stale reports are ignored.
func (l *Listeners) ApplyReport(ctx context.Context, r *ModuleBuildReport) error {
	if !r.State.ValidFor(build.KindModule) || r.State == build.StateQueued {
		return ferrors.NonRetryable(ferrors.ValidationError("invalid reported module build state").
			WithContext("state", string(r.State)).
			Build())
	}
	mb, err := l.store.GetModuleBuild(ctx, r.ModuleBuildID)
	if build.IsNotFound(err) {
		return ferrors.NonRetryable(err)
	}
	if err != nil {
		return err
	}
	if !mb.State.CanTransition(r.State) {
		return nil
	}
	_, err = l.svc.TransitionModuleBuild(ctx, mb, r.State)
	return ignoreConflict(err, "module-build-report")
}
