package healthcheck

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/pkg/columnar"
	"github.com/warptools/fricon/pkg/datafile"
	"github.com/warptools/fricon/pkg/workspace"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

func newWorkspace(t *testing.T) *workspace.Workspace {
	ws, err := workspace.Init(t.TempDir())
	qt.Assert(t, err, qt.IsNil)
	return ws
}

// writeCompleted stores a one-row dataset with its side-file and returns its wire record.
func writeCompleted(t *testing.T, ws *workspace.Workspace, uid string) workspaceapi.Dataset {
	var row workspaceapi.Row
	row.Set("freq", workspaceapi.FloatValue(1))
	batch := workspaceapi.Batch{row}
	schema, err := columnar.Infer(batch, []string{"freq"})
	qt.Assert(t, err, qt.IsNil)
	enc := columnar.NewEncoder(nil, schema)

	rel := filepath.Join(workspace.DataDirname, "2024-01-01", uid)
	dir := ws.Resolve(rel)
	w, err := datafile.Create(dir, enc.ArrowSchema(), datafile.Options{})
	qt.Assert(t, err, qt.IsNil)
	rec := enc.Encode(batch)
	qt.Assert(t, w.Append(rec), qt.IsNil)
	rec.Release()
	res, err := w.Finalize()
	qt.Assert(t, err, qt.IsNil)
	err = datafile.WriteMetadata(dir, workspaceapi.DatasetMetadata{
		UID:          uid,
		Tags:         []string{},
		IndexColumns: []string{"freq"},
		CreatedAt:    "2024-01-01T00:00:00Z",
		Columns:      schema.Info(),
		RowCount:     res.Rows,
		Checksum:     res.Checksum,
	})
	qt.Assert(t, err, qt.IsNil)

	status := workspaceapi.StatusCompleted
	return workspaceapi.Dataset{Status: &status, Path: &rel}
}

func TestLayout(t *testing.T) {
	ctx := context.Background()
	ws := newWorkspace(t)
	check := &Layout{Workspace: ws}
	qt.Assert(t, Status(check.Run(ctx)), qt.Equals, StatusOkay)

	qt.Assert(t, os.Remove(ws.BackupPath()), qt.IsNil)
	qt.Assert(t, Status(check.Run(ctx)), qt.Equals, StatusFail)
}

func TestConfig(t *testing.T) {
	ctx := context.Background()
	ws := newWorkspace(t)
	check := &Config{Workspace: ws}
	qt.Assert(t, Status(check.Run(ctx)), qt.Equals, StatusOkay)

	err := os.WriteFile(ws.ConfigPath(), []byte("[write]\ncompression = \"bogus\"\n"), 0644)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, Status(check.Run(ctx)), qt.Equals, StatusFail)
}

func TestEngine(t *testing.T) {
	ctx := context.Background()
	qt.Assert(t, Status((&Engine{}).Run(ctx)), qt.Equals, StatusAmbiguous)

	up := &Engine{Ping: func(context.Context) (string, error) { return "v0.1.0", nil }}
	qt.Assert(t, Status(up.Run(ctx)), qt.Equals, StatusOkay)

	broken := &Engine{Ping: func(context.Context) (string, error) { return "", errors.New("reset") }}
	qt.Assert(t, Status(broken.Run(ctx)), qt.Equals, StatusFail)
}

func TestStatus(t *testing.T) {
	qt.Assert(t, Status(nil), qt.Equals, StatusNone)
	qt.Assert(t, Status(errors.New("no code")), qt.Equals, StatusNone)
	qt.Assert(t, Status(serum.Error(CodeRunOkay)), qt.Equals, StatusOkay)
	qt.Assert(t, Status(serum.Error("fricon-error-io")), qt.Equals, StatusUnknown)
}

func TestDatasetFiles(t *testing.T) {
	ctx := context.Background()
	ws := newWorkspace(t)
	qt.Assert(t, Status((&DatasetFiles{Workspace: ws}).Run(ctx)), qt.Equals, StatusAmbiguous)

	good := writeCompleted(t, ws, "aaaa")
	writing := workspaceapi.StatusWriting
	elsewhere := "data/2024-01-01/missing"
	datasets := []workspaceapi.Dataset{good, {Status: &writing, Path: &elsewhere}}
	check := &DatasetFiles{
		Workspace: ws,
		List:      func(context.Context) ([]workspaceapi.Dataset, error) { return datasets, nil },
	}
	err := check.Run(ctx)
	qt.Assert(t, Status(err), qt.Equals, StatusOkay)
	qt.Assert(t, err.Error(), qt.Contains, "1 completed dataset(s) verified")

	f, err := os.OpenFile(datafile.DataPath(ws.Resolve(*good.Path)), os.O_APPEND|os.O_WRONLY, 0)
	qt.Assert(t, err, qt.IsNil)
	_, err = f.Write([]byte{0})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, f.Close(), qt.IsNil)
	qt.Assert(t, Status(check.Run(ctx)), qt.Equals, StatusFail)
}

func TestFprint(t *testing.T) {
	ctx := context.Background()
	hc := &HealthCheck{Runners: []Runner{
		&Engine{},
		&Engine{Ping: func(context.Context) (string, error) { return "", errors.New("reset") }},
	}}
	buf := &bytes.Buffer{}
	qt.Assert(t, hc.Fprint(buf), qt.IsNotNil)

	hc.Run(ctx)
	qt.Assert(t, hc.Failed(), qt.IsTrue)
	qt.Assert(t, hc.Fprint(buf), qt.IsNil)
	qt.Assert(t, buf.String(), qt.Contains, StatusCharacter_Ambiguous+"  Engine\tnot running")
	qt.Assert(t, buf.String(), qt.Contains, StatusCharacter_Failure+"  Engine\treset")
}
