package gitevents

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/dispatch"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
)

// DefaultHost is used for events that do not name their forge host.
const DefaultHost = "github.com"

// BuildQueuer queues repository builds.
type BuildQueuer interface {
	Enqueue(ctx context.Context, branchID int64, trigger build.Trigger, commit *build.CommitInfo) (build.RepositoryBuild, error)
}

// Ingestor keeps branches in sync with git events and queues builds for pushes
// and new branches.
type Ingestor struct {
	branches build.BranchStore
	builds   BuildQueuer
}

func NewIngestor(branches build.BranchStore, builds BuildQueuer) *Ingestor {
	return &Ingestor{branches: branches, builds: builds}
}

// Register subscribes the ingestor's handlers on d.
func (i *Ingestor) Register(d *dispatch.Dispatcher) {
	dispatch.Subscribe(d, "git-push", i.HandlePush)
	dispatch.Subscribe(d, "git-create", i.HandleCreate)
	dispatch.Subscribe(d, "git-delete", i.HandleDelete)
}

// HandlePush queues a PUSH build for pushes to branches. Tag pushes and pushes
// that delete the branch are ignored.
func (i *Ingestor) HandlePush(ctx context.Context, evt *PushEvent) error {
	name, ok := evt.BranchName()
	if !ok || evt.Deleted {
		slog.Debug("Ignoring push", logfields.Branch(evt.Ref), slog.Bool("deleted", evt.Deleted))
		return nil
	}
	branch, err := i.upsert(ctx, evt.Host, evt.Repository, name)
	if err != nil {
		return err
	}

	var commit *build.CommitInfo
	if evt.HeadCommit != nil {
		commit = &build.CommitInfo{
			SHA:            evt.HeadCommit.ID,
			AuthorEmail:    evt.HeadCommit.Author.Email,
			CommitterEmail: evt.HeadCommit.Committer.Email,
			Message:        evt.HeadCommit.Message,
		}
	}
	_, err = i.builds.Enqueue(ctx, branch.ID, build.Trigger{Type: build.TriggerPush, ID: evt.After}, commit)
	return err
}

// HandleCreate queues a BRANCH_CREATION build for new branches.
func (i *Ingestor) HandleCreate(ctx context.Context, evt *CreateEvent) error {
	name, ok := evt.BranchName()
	if !ok {
		return nil
	}
	branch, err := i.upsert(ctx, evt.Host, evt.Repository, name)
	if err != nil {
		return err
	}
	_, err = i.builds.Enqueue(ctx, branch.ID, build.Trigger{Type: build.TriggerBranchCreation, ID: name}, nil)
	return err
}

// HandleDelete deactivates a deleted branch. Unknown branches are ignored.
func (i *Ingestor) HandleDelete(ctx context.Context, evt *DeleteEvent) error {
	name, ok := evt.BranchName()
	if !ok {
		return nil
	}
	if err := validate(evt.Repository); err != nil {
		return err
	}
	branch, err := i.branches.FindBranch(ctx, hostOrDefault(evt.Host), evt.Repository.Organization(), evt.Repository.Name, name)
	if build.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := i.branches.DeactivateBranch(ctx, branch.ID); err != nil {
		return err
	}
	slog.Info("Branch deactivated", logfields.BranchID(branch.ID), logfields.Repository(branch.FullName()), logfields.Branch(name))
	return nil
}

// upsert records the branch and gives a branch without modules a root module.
func (i *Ingestor) upsert(ctx context.Context, host string, repo Repository, name string) (build.Branch, error) {
	if err := validate(repo); err != nil {
		return build.Branch{}, err
	}
	branch, err := i.branches.UpsertBranch(ctx, build.Branch{
		Host:         hostOrDefault(host),
		Organization: repo.Organization(),
		Repository:   repo.Name,
		RepositoryID: repo.ID,
		Branch:       name,
	})
	if err != nil {
		return build.Branch{}, err
	}
	modules, err := i.branches.ModulesForBranch(ctx, branch.ID)
	if err != nil {
		return build.Branch{}, err
	}
	if len(modules) == 0 {
		if _, err := i.branches.UpsertModule(ctx, build.Module{
			BranchID: branch.ID,
			Name:     repo.Name,
			Type:     "root",
			Path:     "/",
			Active:   true,
		}); err != nil {
			return build.Branch{}, err
		}
	}
	return branch, nil
}

func validate(repo Repository) error {
	if repo.Name == "" || repo.Organization() == "" {
		return ferrors.NonRetryable(ferrors.ValidationError("git event has no repository").Build())
	}
	return nil
}

func hostOrDefault(host string) string {
	if host == "" {
		return DefaultHost
	}
	return host
}
