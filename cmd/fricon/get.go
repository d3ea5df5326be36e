package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dustin/go-humanize"
	"github.com/ipld/go-ipld-prime"
	"github.com/serum-errors/go-serum"
	"github.com/urfave/cli/v2"

	"github.com/warptools/fricon/cmd/fricon/internal/util"
	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/datafile"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

var getCmdDef = cli.Command{
	Name:      "get",
	Usage:     "Show one dataset by id or uid",
	ArgsUsage: "<id|uid>",
	Action: util.ChainCmdMiddleware(cmdGet,
		util.CmdMiddlewareLogging,
		util.CmdMiddlewareTracingConfig,
		util.CmdMiddlewareTracingSpan,
	),
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "rows",
			Usage: "Print the rows of a completed dataset as dag-json",
		},
	},
}

// parseRef reads a dataset reference: decimal digits are an id, anything else a uid.
func parseRef(arg string) workspaceapi.GetRequest {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return workspaceapi.GetRequest{ID: &id}
	}
	uid := strings.ToLower(arg)
	return workspaceapi.GetRequest{UID: &uid}
}

func cmdGet(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return serum.Error(fcapi.ECodeInvalid, serum.WithMessageLiteral("invalid args"))
	}
	cl, err := util.Dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()
	ds, err := cl.Get(c.Context, parseRef(c.Args().First()))
	if err != nil {
		return err
	}
	if c.Bool("rows") {
		return printRows(c, ds)
	}
	answer := workspaceapi.GetAnswer{Dataset: ds}
	setResult(c, &answer, "GetAnswer")
	if c.Bool("json") {
		return nil
	}
	printDataset(c.App.Writer, ds)
	return nil
}

func printDataset(w io.Writer, ds workspaceapi.Dataset) {
	fmt.Fprintf(w, "id:          %d\n", num(ds.ID))
	fmt.Fprintf(w, "uid:         %s\n", str(ds.UID))
	fmt.Fprintf(w, "name:        %s\n", str(ds.Name))
	fmt.Fprintf(w, "description: %s\n", str(ds.Description))
	fmt.Fprintf(w, "favorite:    %t\n", ds.Favorite != nil && *ds.Favorite)
	fmt.Fprintf(w, "status:      %s\n", str(ds.Status))
	fmt.Fprintf(w, "rows:        %s\n", rows(ds))
	fmt.Fprintf(w, "created:     %s\n", str(ds.CreatedAt))
	fmt.Fprintf(w, "path:        %s\n", str(ds.Path))
	if ds.IndexColumns != nil {
		fmt.Fprintf(w, "index:       %s\n", strings.Join(*ds.IndexColumns, ","))
	}
	if ds.Tags != nil {
		fmt.Fprintf(w, "tags:        %s\n", strings.Join(*ds.Tags, ","))
	}
}

// printRows reads the columnar file of a completed dataset directly from the workspace.
// Completed files are immutable, so this is safe while the engine runs.
//
// Errors:
//
//    - fricon-error-not-readable -- the dataset is not completed
//    - fricon-error-storage-io -- the dataset file cannot be read
//    - fricon-error-serialization -- the rows cannot be encoded
func printRows(c *cli.Context, ds workspaceapi.Dataset) error {
	if status := str(ds.Status); status != workspaceapi.StatusCompleted {
		return fcapi.ErrorNotReadable(num(ds.ID), status)
	}
	ws, err := util.OpenWorkspace(c)
	if err != nil {
		return err
	}
	r, err := datafile.Open(ws.Resolve(str(ds.Path)), memory.DefaultAllocator)
	if err != nil {
		return err
	}
	defer r.Close()
	batch, err := r.ReadAll()
	if err != nil {
		return err
	}
	if err := ipld.MarshalStreaming(c.App.Writer, workspaceapi.PrettyEncoder, &batch, workspaceapi.TypeSystem.TypeByName("Batch")); err != nil {
		return fcapi.ErrorSerialization("encoding rows", err)
	}
	fmt.Fprintln(c.App.Writer)
	if !c.Bool("quiet") && !c.Bool("json") {
		fmt.Fprintf(c.App.ErrWriter, "%s rows, %d columns\n", humanize.Comma(int64(len(batch))), len(r.Schema().Columns))
	}
	return nil
}
