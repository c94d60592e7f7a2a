package commands

import (
	"fmt"

	"git.home.luguber.info/inful/buildmesh/internal/version"
)

// VersionCmd implements the 'version' command.
type VersionCmd struct{}

func (VersionCmd) Run(g *Global) error {
	_, err := fmt.Fprintf(g.out(), "buildmesh %s\n", version.String())
	return err
}
