package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/bindnode"
	"github.com/urfave/cli/v2"

	"github.com/warptools/fricon/cmd/fricon/internal/util"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

const VERSION = "v0.1.0"

func makeApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "fricon"
	app.Version = VERSION
	app.Usage = "Store and catalog measurement datasets."
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Reader = stdin
	app.HideVersion = true
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
		},
		&cli.BoolFlag{
			Name: "quiet",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Enable JSON API output",
		},
		util.WorkspaceFlag,
		&cli.StringFlag{
			Name:      "trace.file",
			Usage:     "Enable tracing and emit output to file",
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:  "trace.http.enable",
			Usage: "Enable remote tracing over http",
		},
		&cli.BoolFlag{
			Name:  "trace.http.insecure",
			Usage: "Allows insecure http",
		},
		&cli.StringFlag{
			Name:  "trace.http.endpoint",
			Usage: "Sets an endpoint for remote open-telemetry tracing collection",
		},
	}
	app.ExitErrHandler = exitErrHandler
	app.After = afterFunc
	app.Commands = []*cli.Command{
		&initCmdDef,
		&serveCmdDef,
		&importCmdDef,
		&listCmdDef,
		&getCmdDef,
		&tagsCmdDef,
		&updateCmdDef,
		&deleteCmdDef,
		&healthCmdDef,
		&versionCmdDef,
	}
	return app
}

// Called after a command returns an non-nil error value.
// Prints the formatted error to stderr.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	if c.Bool("json") {
		bytes, err := json.Marshal(err)
		if err != nil {
			panic("error marshaling json")
		}
		fmt.Fprintf(c.App.ErrWriter, "%s\n", string(bytes))
	} else {
		fmt.Fprintf(c.App.ErrWriter, "error: %s\n", err)
	}
}

// setResult stores the value a command produced; afterFunc prints it in json mode.
// typeName names the value's type in the workspace api schema.
func setResult(c *cli.Context, value interface{}, typeName string) {
	c.App.Metadata["result"] = bindnode.Wrap(value, workspaceapi.TypeSystem.TypeByName(typeName)).Representation()
}

// Called after any command completes. The command may optionally set
// c.App.Metadata["result"] to a datamodel.Node value before returning to
// have the result output to stdout.
func afterFunc(c *cli.Context) error {
	if !c.Bool("json") || c.App.Metadata["result"] == nil {
		return nil
	}
	n, ok := c.App.Metadata["result"].(datamodel.Node)
	if !ok {
		panic("invalid result value - not a datamodel.Node")
	}
	if err := workspaceapi.Encoder(n, c.App.Writer); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer)
	return nil
}

func main() {
	err := makeApp(os.Stdin, os.Stdout, os.Stderr).Run(os.Args)
	if err != nil {
		os.Exit(1)
	}
}
