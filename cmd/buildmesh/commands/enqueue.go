package commands

import (
	"context"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/queue"
	"git.home.luguber.info/inful/buildmesh/internal/store/sqlite"
)

// EnqueueCmd implements the 'enqueue' command.
type EnqueueCmd struct {
	Branch string `arg:"" help:"Branch id or host/organization/repository@branch"`
	By     string `help:"Who requested the build" env:"USER" default:"cli"`
	SHA    string `help:"Commit the build runs against"`
	Timer  bool   `help:"Record the build as timer triggered"`
}

func (e *EnqueueCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	_, store, err := root.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	branch, err := resolveBranch(ctx, store, e.Branch)
	if err != nil {
		return err
	}
	trigger := build.Trigger{Type: build.TriggerManual, ID: e.By}
	if e.Timer {
		trigger = build.Trigger{Type: build.TriggerTimer}
	}
	var commit *build.CommitInfo
	if e.SHA != "" {
		commit = &build.CommitInfo{SHA: e.SHA}
	}

	rb, err := newBuildService(store).Enqueue(ctx, branch.ID, trigger, commit)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.out(), "repository build %d (#%d) %s for %s/%s/%s@%s\n",
		rb.ID, rb.BuildNumber, rb.State, branch.Host, branch.Organization, branch.Repository, branch.Branch)
	return err
}

func newBuildService(store *sqlite.Store) *build.Service {
	codec := queue.NewCodec()
	build.RegisterEvents(codec)
	return build.NewService(store, store, codec)
}

// resolveBranch accepts a numeric branch id or a host/organization/repository@branch reference.
func resolveBranch(ctx context.Context, store *sqlite.Store, ref string) (build.Branch, error) {
	if id, ok := parseID(ref); ok {
		return store.GetBranch(ctx, id)
	}
	host, org, repo, name, err := parseBranchRef(ref)
	if err != nil {
		return build.Branch{}, err
	}
	return store.FindBranch(ctx, host, org, repo, name)
}

func parseBranchRef(ref string) (host, org, repo, branch string, err error) {
	path, branch, ok := strings.Cut(ref, "@")
	parts := strings.Split(path, "/")
	if !ok || branch == "" || len(parts) < 3 {
		return "", "", "", "", ferrors.ValidationError("branch reference must be host/organization/repository@branch").
			WithContext("ref", ref).Build()
	}
	last := len(parts) - 1
	for _, p := range parts {
		if p == "" {
			return "", "", "", "", ferrors.ValidationError("branch reference has an empty path segment").
				WithContext("ref", ref).Build()
		}
	}
	return parts[0], strings.Join(parts[1:last], "/"), parts[last], branch, nil
}
