package commands

import (
	"context"
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/interproject"
)

// InterprojectCmd implements the 'interproject' command.
type InterprojectCmd struct {
	Targets []string `arg:"" name:"target" help:"branch=module[,module...] where branch is an id or host/organization/repository@branch"`
}

func (c *InterprojectCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	_, store, err := root.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	targets := make([]interproject.Target, 0, len(c.Targets))
	for _, raw := range c.Targets {
		branchRef, modules, err := parseTarget(raw)
		if err != nil {
			return err
		}
		branch, err := resolveBranch(ctx, store, branchRef)
		if err != nil {
			return err
		}
		targets = append(targets, interproject.Target{BranchID: branch.ID, ModuleIDs: modules})
	}

	coordinator := interproject.NewCoordinator(store, store)
	ipb, err := coordinator.Start(ctx, newBuildService(store), targets)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.out(), "inter-project build %d %s with %d targets\n", ipb.ID, ipb.State, len(targets))
	return err
}

func parseTarget(raw string) (string, []int64, error) {
	branch, list, ok := strings.Cut(raw, "=")
	if !ok || branch == "" || list == "" {
		return "", nil, ferrors.ValidationError("target must be branch=module[,module...]").
			WithContext("target", raw).Build()
	}
	var modules []int64
	for part := range strings.SplitSeq(list, ",") {
		id, err := requireID("module id", strings.TrimSpace(part))
		if err != nil {
			return "", nil, err
		}
		modules = append(modules, id)
	}
	return branch, modules, nil
}
