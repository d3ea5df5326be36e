package main

import (
	"github.com/MakeNowJust/heredoc"
	"github.com/serum-errors/go-serum"
	"github.com/urfave/cli/v2"

	"github.com/warptools/fricon/cmd/fricon/internal/util"
	"github.com/warptools/fricon/fcapi"
)

var updateCmdDef = cli.Command{
	Name:      "update",
	Usage:     "Change the name, description or favorite flag of a dataset",
	ArgsUsage: "<id>",
	Description: heredoc.Doc(`
		Only the flags given are changed. Edits to a completed dataset are
		also written to the metadata file next to its data.
	`),
	Action: util.ChainCmdMiddleware(cmdUpdate,
		util.CmdMiddlewareLogging,
		util.CmdMiddlewareTracingConfig,
		util.CmdMiddlewareTracingSpan,
	),
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "name",
			Usage: "New dataset name",
		},
		&cli.StringFlag{
			Name:  "description",
			Usage: "New dataset description",
		},
		&cli.BoolFlag{
			Name:  "favorite",
			Usage: "Mark (or with --favorite=false, unmark) the dataset as a favorite",
		},
	},
}

func cmdUpdate(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return serum.Error(fcapi.ECodeInvalid, serum.WithMessageLiteral("invalid args"))
	}
	id, err := parseID(c.Args().First())
	if err != nil {
		return err
	}
	if !c.IsSet("name") && !c.IsSet("description") && !c.IsSet("favorite") {
		return fcapi.ErrorInvalid("nothing to update: pass --name, --description or --favorite")
	}
	cl, err := util.Dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()
	if c.IsSet("name") {
		name := c.String("name")
		if err := cl.UpdateName(c.Context, id, &name); err != nil {
			return err
		}
	}
	if c.IsSet("description") {
		description := c.String("description")
		if err := cl.UpdateDescription(c.Context, id, &description); err != nil {
			return err
		}
	}
	if c.IsSet("favorite") {
		favorite := c.Bool("favorite")
		if err := cl.UpdateFavorite(c.Context, id, &favorite); err != nil {
			return err
		}
	}
	return nil
}
