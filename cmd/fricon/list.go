package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facette/natsort"
	"github.com/urfave/cli/v2"

	"github.com/warptools/fricon/cmd/fricon/internal/util"
	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

var listCmdDef = cli.Command{
	Name:  "list",
	Usage: "List the datasets of a workspace, newest first",
	Action: util.ChainCmdMiddleware(cmdList,
		util.CmdMiddlewareLogging,
		util.CmdMiddlewareTracingConfig,
		util.CmdMiddlewareTracingSpan,
	),
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "sort",
			Usage: `Order of the listing: "id" (newest first) or "name"`,
			Value: "id",
		},
		&cli.StringFlag{
			Name:  "tag",
			Usage: "Only list datasets carrying this tag",
		},
	},
}

func cmdList(c *cli.Context) error {
	cl, err := util.Dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()
	datasets, err := cl.List(c.Context)
	if err != nil {
		return err
	}
	if tag := c.String("tag"); tag != "" {
		datasets = withTag(datasets, tag)
	}
	switch c.String("sort") {
	case "id":
	case "name":
		sort.SliceStable(datasets, func(i, j int) bool {
			return natsort.Compare(str(datasets[i].Name), str(datasets[j].Name))
		})
	default:
		return fcapi.ErrorInvalid("unknown sort order", [2]string{"sort", c.String("sort")})
	}

	answer := workspaceapi.ListAnswer{Datasets: datasets}
	setResult(c, &answer, "ListAnswer")
	if c.Bool("json") {
		return nil
	}
	return printDatasets(c.App.Writer, datasets, time.Now())
}

func withTag(datasets []workspaceapi.Dataset, tag string) []workspaceapi.Dataset {
	var result []workspaceapi.Dataset
	for _, ds := range datasets {
		if ds.Tags == nil {
			continue
		}
		for _, t := range *ds.Tags {
			if t == tag {
				result = append(result, ds)
				break
			}
		}
	}
	return result
}

func printDatasets(w io.Writer, datasets []workspaceapi.Dataset, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tROWS\tCREATED\tTAGS")
	for _, ds := range datasets {
		var tags []string
		if ds.Tags != nil {
			tags = append(tags, *ds.Tags...)
			natsort.Sort(tags)
		}
		star := ""
		if ds.Favorite != nil && *ds.Favorite {
			star = " *"
		}
		fmt.Fprintf(tw, "%d\t%s%s\t%s\t%s\t%s\t%s\n",
			num(ds.ID),
			str(ds.Name), star,
			str(ds.Status),
			rows(ds),
			created(ds.CreatedAt, now),
			strings.Join(tags, ","),
		)
	}
	return tw.Flush()
}

func rows(ds workspaceapi.Dataset) string {
	if ds.RowCount == nil {
		return "-"
	}
	return humanize.Comma(*ds.RowCount)
}

func created(ts *string, now time.Time) string {
	if ts == nil {
		return "-"
	}
	t, err := time.Parse(time.RFC3339Nano, *ts)
	if err != nil {
		return *ts
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func num(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
