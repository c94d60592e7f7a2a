package commands

import (
	"context"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/listener"
	"git.home.luguber.info/inful/buildmesh/internal/queue"
)

// ReportCmd implements the 'report' command. The report is queued and applied
// by the leader, like reports sent by a build cluster.
type ReportCmd struct {
	ModuleBuild string `arg:"" name:"module-build-id" help:"Module build id"`
	State       string `arg:"" help:"Reported state (LAUNCHING, RUNNING, SUCCEEDED, FAILED, CANCELLED, UNSTABLE, SKIPPED)"`
}

func (r *ReportCmd) Run(g *Global, root *CLI) error {
	id, err := requireID("module build id", r.ModuleBuild)
	if err != nil {
		return err
	}
	state := build.State(strings.ToUpper(r.State))
	if !state.ValidFor(build.KindModule) || state == build.StateQueued {
		return ferrors.ValidationError("invalid module build state").
			WithContext("state", r.State).Build()
	}

	ctx := context.Background()
	_, store, err := root.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	codec := queue.NewCodec()
	queue.Register[listener.ModuleBuildReport](codec, listener.ModuleBuildReportType)
	tag, payload, err := codec.Encode(listener.ModuleBuildReport{ModuleBuildID: id, State: state})
	if err != nil {
		return err
	}
	item, err := store.Enqueue(ctx, tag, payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.out(), "queued report %d: module build %d -> %s\n", item.ID, id, state)
	return err
}
