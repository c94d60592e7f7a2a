package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/buildmesh/internal/buildstate"
)

// StateCmd implements the 'state' command.
type StateCmd struct {
	Module string `help:"Only print the snapshot of this module id"`
	Branch string `help:"Only print modules of this branch (id or host/organization/repository@branch)"`
	Hash   bool   `help:"Print the snapshot hash instead of the full state"`
}

func (s *StateCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	_, store, err := root.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	states := buildstate.NewService(store)
	var snapshots []buildstate.ModuleState
	switch {
	case s.Module != "":
		id, err := requireID("module id", s.Module)
		if err != nil {
			return err
		}
		ms, err := states.ModuleState(ctx, id)
		if err != nil {
			return err
		}
		snapshots = []buildstate.ModuleState{ms}
	case s.Branch != "":
		branch, err := resolveBranch(ctx, store, s.Branch)
		if err != nil {
			return err
		}
		if snapshots, err = states.ForBranch(ctx, branch.ID); err != nil {
			return err
		}
	default:
		if snapshots, err = states.All(ctx); err != nil {
			return err
		}
	}

	if !s.Hash {
		return printJSON(g.out(), snapshots)
	}
	for _, ms := range snapshots {
		if _, err := fmt.Fprintf(g.out(), "%d\t%s\t%016x\n", ms.Module.ID, ms.Module.Path, ms.Hash()); err != nil {
			return err
		}
	}
	return nil
}
