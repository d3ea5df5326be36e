package main

import (
	"fmt"

	"github.com/serum-errors/go-serum"
	"github.com/urfave/cli/v2"

	"github.com/warptools/fricon/cmd/fricon/internal/util"
	"github.com/warptools/fricon/fcapi"
)

var deleteCmdDef = cli.Command{
	Name:      "delete",
	Usage:     "Remove a dataset, its tags and its files",
	ArgsUsage: "<id>",
	Action: util.ChainCmdMiddleware(cmdDelete,
		util.CmdMiddlewareLogging,
		util.CmdMiddlewareTracingConfig,
		util.CmdMiddlewareTracingSpan,
	),
}

func cmdDelete(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return serum.Error(fcapi.ECodeInvalid, serum.WithMessageLiteral("invalid args"))
	}
	id, err := parseID(c.Args().First())
	if err != nil {
		return err
	}
	cl, err := util.Dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()
	if err := cl.Delete(c.Context, id); err != nil {
		return err
	}
	if !c.Bool("quiet") && !c.Bool("json") {
		fmt.Fprintf(c.App.Writer, "deleted dataset %d\n", id)
	}
	return nil
}
