package commands

import (
	"context"
	"time"

	"git.home.luguber.info/inful/buildmesh/internal/eventstore"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Since  time.Duration `help:"How far back to read transitions" default:"24h"`
	Limit  int           `help:"Maximum number of builds to print" default:"100"`
	Active bool          `help:"Only print builds that have not finished"`
	Kind   string        `help:"Print every transition of one build (repository or module); requires --build"`
	Build  int64         `help:"Build id for --kind"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	_, store, err := root.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	history, err := eventstore.New(ctx, store.DB())
	if err != nil {
		return err
	}

	if h.Kind != "" {
		if h.Kind != "repository" && h.Kind != "module" {
			return ferrors.ValidationError("--kind must be repository or module").WithContext("kind", h.Kind).Build()
		}
		if h.Build <= 0 {
			return ferrors.ValidationError("--build is required with --kind").Build()
		}
		events, err := history.GetByBuildID(ctx, h.Kind, h.Build)
		if err != nil {
			return err
		}
		return printJSON(g.out(), events)
	}

	projection := eventstore.NewBuildHistoryProjection(history, h.Limit)
	if err := projection.Rebuild(ctx, time.Now().Add(-h.Since)); err != nil {
		return err
	}
	if h.Active {
		return printJSON(g.out(), projection.GetActiveBuilds())
	}
	return printJSON(g.out(), projection.GetHistory())
}
