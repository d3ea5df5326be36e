package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/serum-errors/go-serum"
	"github.com/urfave/cli/v2"

	"github.com/warptools/fricon/cmd/fricon/internal/util"
	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/logging"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

const defaultChunkRows = 1000

var importCmdDef = cli.Command{
	Name:      "import",
	Usage:     "Create a dataset from a dag-json batch file",
	ArgsUsage: "<file>",
	Description: heredoc.Doc(`
		Reads a list of rows written as dag-json and streams it into a new
		dataset through the running engine. Each row is a map from column
		name to a tagged value, for example:

		    [{"t": {"float": 0.0}, "v": {"complex": [1.0, -1.0]}}]

		Floats must be written with a decimal point ("1.0", not "1"),
		otherwise they are read as integers and rejected.
		Pass "-" to read from stdin.
	`),
	Action: util.ChainCmdMiddleware(cmdImport,
		util.CmdMiddlewareLogging,
		util.CmdMiddlewareTracingConfig,
		util.CmdMiddlewareTracingSpan,
		util.CmdMiddlewareCancelOnInterrupt,
	),
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Usage:    "Dataset name",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "description",
			Usage: "Dataset description",
		},
		&cli.StringSliceFlag{
			Name:  "tag",
			Usage: "Tag to attach; may be repeated",
		},
		&cli.StringSliceFlag{
			Name:  "index",
			Usage: "Index column; may be repeated",
		},
		&cli.IntFlag{
			Name:  "chunk-rows",
			Usage: "Rows sent per chunk",
			Value: defaultChunkRows,
		},
	},
}

func cmdImport(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return serum.Error(fcapi.ECodeInvalid, serum.WithMessageLiteral("invalid args"))
	}
	chunkRows := c.Int("chunk-rows")
	if chunkRows < 1 {
		return fcapi.ErrorInvalid("chunk-rows must be positive")
	}
	batch, err := readBatch(c, c.Args().First())
	if err != nil {
		return err
	}

	cl, err := util.Dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	req := workspaceapi.CreateRequest{
		Tags:         c.StringSlice("tag"),
		IndexColumns: c.StringSlice("index"),
	}
	name := c.String("name")
	req.Name = &name
	if c.IsSet("description") {
		description := c.String("description")
		req.Description = &description
	}
	token, err := cl.Create(c.Context, req)
	if err != nil {
		return err
	}

	w := cl.Write(token)
	for start := 0; start < len(batch); start += chunkRows {
		end := start + chunkRows
		if end > len(batch) {
			end = len(batch)
		}
		if err := w.WriteBatch(c.Context, batch[start:end]); err != nil {
			if abortErr := w.Abort(c.Context, "import failed"); abortErr != nil {
				logging.Ctx(c.Context).Debug("", "abort failed: %s", abortErr)
			}
			return err
		}
	}
	answer, err := w.Close(c.Context)
	if err != nil {
		return err
	}
	setResult(c, &answer, "WriteAnswer")
	if !c.Bool("quiet") && !c.Bool("json") {
		fmt.Fprintf(c.App.Writer, "dataset %d: %d rows\n", answer.ID, answer.RowCount)
	}
	return nil
}

// readBatch reads the dag-json rows of path, or of stdin for "-".
//
// Errors:
//
//    - fricon-error-io -- the file cannot be opened
//    - fricon-error-serialization -- the file is not a valid batch
func readBatch(c *cli.Context, path string) (workspaceapi.Batch, error) {
	if path == "-" {
		return workspaceapi.DecodeBatchJSON(c.App.Reader)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fcapi.ErrorIo("opening batch file", path, err)
	}
	defer f.Close()
	return workspaceapi.DecodeBatchJSON(f)
}
