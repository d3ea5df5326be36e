package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/warptools/fricon/cmd/fricon/internal/util"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

var versionCmdDef = cli.Command{
	Name:  "version",
	Usage: "Print the client version, and the engine version when one is running",
	Action: util.ChainCmdMiddleware(cmdVersion,
		util.CmdMiddlewareLogging,
	),
}

func cmdVersion(c *cli.Context) error {
	text := !c.Bool("json")
	if text {
		fmt.Fprintf(c.App.Writer, "fricon %s\n", VERSION)
	}
	cl, err := util.Dial(c)
	if err != nil {
		if text && !c.Bool("quiet") {
			fmt.Fprintf(c.App.Writer, "engine: not reachable (%s)\n", err)
		}
		return nil
	}
	defer cl.Close()
	version, err := cl.Ping(c.Context)
	if err != nil {
		return err
	}
	setResult(c, &workspaceapi.PingAck{Version: version}, "PingAck")
	if text {
		fmt.Fprintf(c.App.Writer, "engine: %s\n", version)
	}
	return nil
}
