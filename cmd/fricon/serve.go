package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/warptools/fricon/cmd/fricon/internal/util"
	"github.com/warptools/fricon/pkg/catalog"
	"github.com/warptools/fricon/pkg/datafile"
	"github.com/warptools/fricon/pkg/logging"
	"github.com/warptools/fricon/pkg/plumbing/server"
	"github.com/warptools/fricon/pkg/service"
	"github.com/warptools/fricon/pkg/session"
)

const LogTag_Serve = "╬═  serve"

var serveCmdDef = cli.Command{
	Name:  "serve",
	Usage: "Run the storage engine for a workspace",
	Description: heredoc.Doc(`
		Takes the workspace lock, opens the catalog and answers requests on
		the workspace socket until interrupted.

		Datasets left in "writing" status by an earlier process are marked
		aborted and their partial files removed before any request is served.
		Logs are written to the terminal and to the workspace log directory.
	`),
	Action: util.ChainCmdMiddleware(cmdServe,
		util.CmdMiddlewareLogging,
		util.CmdMiddlewareTracingConfig,
		util.CmdMiddlewareTracingSpan,
		util.CmdMiddlewareCancelOnInterrupt,
	),
}

func cmdServe(c *cli.Context) error {
	ws, err := util.OpenWorkspace(c)
	if err != nil {
		return err
	}
	lock, err := ws.Lock()
	if err != nil {
		return err
	}
	defer lock.Unlock()

	sockPath, cfg, err := util.SocketPath(ws)
	if err != nil {
		return err
	}
	logFile, err := ws.LogFile(time.Now())
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := logging.Ctx(c.Context).Tee(logFile)
	ctx := logger.WithContext(c.Context)

	cat, err := catalog.Open(ctx, ws.CatalogPath())
	if err != nil {
		return err
	}
	defer cat.Close()
	sessions := session.NewManager(cat, ws, session.Options{
		IdleTimeout: cfg.Write.IdleTimeout.Duration,
		File:        datafile.OptionsFromConfig(cfg),
	})
	recovered, err := sessions.Recover(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		logger.Info(LogTag_Serve, "aborted %d dataset(s) left open by a previous process", recovered)
	}
	svc := service.New(ws, cat, sessions, VERSION)

	listener, err := server.Listen(ctx, sockPath)
	if err != nil {
		return err
	}
	srv := server.New(listener, svc, cfg.Server.ReadTimeout.Duration)
	logger.Info(LogTag_Serve, "workspace %s serving on %s", ws.Root(), sockPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(LogTag_Serve, "shutting down")
		// New clients stop finding the server while its connections drain.
		if err := os.Remove(sockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn(LogTag_Serve, "removing socket %s: %s", sockPath, err)
		}
		return nil
	})
	err = g.Wait()
	if n := sessions.AbortAll(ctx, "server shutting down"); n > 0 {
		logger.Info(LogTag_Serve, "aborted %d open write session(s)", n)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
