package main

import (
	"github.com/serum-errors/go-serum"
	"github.com/urfave/cli/v2"

	"github.com/warptools/fricon/cmd/fricon/internal/util"
	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/healthcheck"
	"github.com/warptools/fricon/pkg/logging"
)

var healthCmdDef = cli.Command{
	Name:  "health",
	Usage: "Check the workspace, its engine and the files of completed datasets",
	Action: util.ChainCmdMiddleware(cmdHealth,
		util.CmdMiddlewareLogging,
		util.CmdMiddlewareTracingConfig,
		util.CmdMiddlewareTracingSpan,
	),
}

func cmdHealth(c *cli.Context) error {
	log := logging.Ctx(c.Context)
	ws, err := util.OpenWorkspace(c)
	if err != nil {
		return err
	}
	engine := &healthcheck.Engine{}
	files := &healthcheck.DatasetFiles{Workspace: ws}
	if cl, err := util.Dial(c); err != nil {
		log.Debug("", "engine not reachable: %s", err)
	} else {
		defer cl.Close()
		engine.Ping = cl.Ping
		files.List = cl.List
	}
	hc := &healthcheck.HealthCheck{
		Runners: []healthcheck.Runner{
			&healthcheck.Layout{Workspace: ws},
			&healthcheck.Config{Workspace: ws},
			engine,
			files,
		},
	}
	hc.Run(c.Context)
	log.Debug("", "runners=%d, results=%d", len(hc.Runners), len(hc.Results))

	if err := hc.Fprint(c.App.Writer); err != nil {
		return err
	}
	if hc.Failed() {
		return serum.Error(fcapi.ECodeWorkspace, serum.WithMessageLiteral("health check failed"))
	}
	return nil
}
