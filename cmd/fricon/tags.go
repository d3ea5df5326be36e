package main

import (
	"context"
	"strconv"

	"github.com/serum-errors/go-serum"
	"github.com/urfave/cli/v2"

	"github.com/warptools/fricon/cmd/fricon/internal/util"
	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/plumbing/client"
)

var tagsCmdDef = cli.Command{
	Name:  "tags",
	Usage: "Edit the tags of a dataset",
	Subcommands: []*cli.Command{
		tagsSubcommand("add", "Attach tags to a dataset", (*client.Client).AddTags),
		tagsSubcommand("remove", "Detach tags from a dataset; tags no dataset uses are forgotten", (*client.Client).RemoveTags),
		tagsSubcommand("replace", "Set the exact tag set of a dataset", (*client.Client).ReplaceTags),
	},
}

type tagEdit func(c *client.Client, ctx context.Context, id int64, tags []string) error

func tagsSubcommand(name, usage string, edit tagEdit) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<id> [tag...]",
		Action: util.ChainCmdMiddleware(func(c *cli.Context) error {
			return cmdTags(c, edit)
		},
			util.CmdMiddlewareLogging,
			util.CmdMiddlewareTracingConfig,
			util.CmdMiddlewareTracingSpan,
		),
	}
}

func cmdTags(c *cli.Context, edit tagEdit) error {
	if c.Args().Len() < 1 {
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
	return edit(cl, c.Context, id, c.Args().Tail())
}

// parseID reads a dataset id argument.
//
// Errors:
//
//    - fricon-error-invalid -- arg is not a positive integer
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, fcapi.ErrorInvalid("dataset id must be a positive integer", [2]string{"id", arg})
	}
	return id, nil
}
