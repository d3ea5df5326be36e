package main

import (
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/serum-errors/go-serum"
	"github.com/urfave/cli/v2"

	"github.com/warptools/fricon/cmd/fricon/internal/util"
	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/config"
	"github.com/warptools/fricon/pkg/workspace"
)

var initCmdDef = cli.Command{
	Name:      "init",
	Usage:     "Create a new workspace",
	ArgsUsage: "[path]",
	Description: heredoc.Doc(`
		Creates the workspace layout at the given path, or in the working
		directory when no path is given: a version marker, a default
		config.toml, and the data, backup and log directories.
		The catalog database is created by the first "fricon serve".
	`),
	Action: util.ChainCmdMiddleware(cmdInit,
		util.CmdMiddlewareLogging,
	),
}

func cmdInit(c *cli.Context) error {
	if c.Args().Len() > 1 {
		return serum.Error(fcapi.ECodeInvalid, serum.WithMessageLiteral("invalid args"))
	}
	path := c.Args().First()
	if path == "" {
		state, err := config.NewState()
		if err != nil {
			return err
		}
		path = state.WorkingDirectory
	}
	ws, err := workspace.Init(path)
	if err != nil {
		return err
	}
	if !c.Bool("quiet") && !c.Bool("json") {
		fmt.Fprintf(c.App.Writer, "initialized workspace at %s\n", ws.Root())
	}
	return nil
}
