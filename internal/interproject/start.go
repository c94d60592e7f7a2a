package interproject

import (
	"context"
	"log/slog"
	"strconv"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
)

// Target names the modules of one branch that take part in an inter-project build.
type Target struct {
	BranchID  int64
	ModuleIDs []int64
}

// Start creates an inter-project build, queues an INTER_PROJECT repository build
// per target and maps every target module to it. A branch that already has a
// pending build joins with that build.
//
// A repository build that was picked up before its mappings existed is caught
// up here, so mappings never miss the launch of their build.
func (c *Coordinator) Start(ctx context.Context, svc *build.Service, targets []Target) (build.InterProjectBuild, error) {
	if len(targets) == 0 {
		return build.InterProjectBuild{}, ferrors.ValidationError("inter-project build needs at least one target").Build()
	}
	ipb, err := c.store.CreateInterProjectBuild(ctx, c.now().UnixMilli())
	if err != nil {
		return build.InterProjectBuild{}, err
	}
	trigger := build.Trigger{Type: build.TriggerInterProject, ID: "inter-project-" + strconv.FormatInt(ipb.ID, 10)}

	for _, t := range targets {
		rb, err := svc.Enqueue(ctx, t.BranchID, trigger, nil)
		if err != nil {
			return ipb, err
		}
		for _, moduleID := range t.ModuleIDs {
			m, err := svc.Store().GetModule(ctx, moduleID)
			if err != nil {
				return ipb, err
			}
			if m.BranchID != t.BranchID {
				return ipb, ferrors.ValidationError("module does not belong to branch").
					WithContext("module_id", moduleID).
					WithContext("branch_id", t.BranchID).
					Build()
			}
			if _, err := c.store.AddMapping(ctx, build.InterProjectMapping{
				InterProjectBuildID: ipb.ID,
				RepoBuildID:         rb.ID,
				ModuleID:            moduleID,
				State:               build.InterProjectQueued,
			}); err != nil {
				return ipb, err
			}
		}
		if err := c.catchUp(ctx, svc.Store(), rb.ID); err != nil {
			return ipb, err
		}
	}

	slog.Info("Inter-project build started", logfields.InterProjectID(ipb.ID), logfields.Count(len(targets)))
	return c.store.GetInterProjectBuild(ctx, ipb.ID)
}

func (c *Coordinator) catchUp(ctx context.Context, builds build.BuildStore, repoBuildID int64) error {
	rb, err := builds.GetRepositoryBuild(ctx, repoBuildID)
	if err != nil || rb.State == build.StateQueued {
		return err
	}
	if err := c.RepositoryBuildLaunching(ctx, &rb); err != nil {
		return err
	}
	if rb.State.IsFinished() {
		return c.RepositoryBuildFinished(ctx, &rb)
	}
	return nil
}
