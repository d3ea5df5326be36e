package main

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/catalog"
	"github.com/warptools/fricon/pkg/plumbing/client"
	"github.com/warptools/fricon/pkg/workspace"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

// run executes one command line and returns its stdout and stderr.
func run(ctx context.Context, args ...string) (string, string, error) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	err := makeApp(strings.NewReader(""), stdout, stderr).RunContext(ctx, append([]string{"fricon"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestInit(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	out, _, err := run(context.Background(), "init", root)
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, out, qt.Contains, "initialized workspace at "+root)
	_, err = os.Stat(filepath.Join(root, workspace.VersionFilename))
	qt.Assert(t, err, qt.IsNil)

	_, errOut, err := run(context.Background(), "init", root)
	qt.Check(t, serum.Code(err), qt.Equals, fcapi.ECodeWorkspace)
	qt.Check(t, errOut, qt.Contains, "error:")
}

func TestArgValidation(t *testing.T) {
	ctx := context.Background()
	for _, args := range [][]string{
		{"delete", "abc"},
		{"delete", "0"},
		{"update", "3"},
		{"tags", "add"},
		{"get"},
		{"import", "--name", "x", "--chunk-rows", "0", "rows.json"},
	} {
		_, _, err := run(ctx, args...)
		qt.Check(t, serum.Code(err), qt.Equals, fcapi.ECodeInvalid, qt.Commentf("%v", args))
	}
}

func TestParseRef(t *testing.T) {
	ref := parseRef("42")
	qt.Assert(t, ref.ID, qt.IsNotNil)
	qt.Check(t, *ref.ID, qt.Equals, int64(42))
	qt.Check(t, ref.UID, qt.IsNil)

	ref = parseRef("0A1B2C")
	qt.Assert(t, ref.UID, qt.IsNotNil)
	qt.Check(t, *ref.UID, qt.Equals, "0a1b2c")
	qt.Check(t, ref.ID, qt.IsNil)
}

func TestPrintDatasets(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id := int64(7)
	name := "sweep"
	status := workspaceapi.StatusCompleted
	rowCount := int64(12345)
	createdAt := now.Add(-2 * time.Hour).Format(time.RFC3339Nano)
	fav := true
	tags := []string{"y10", "x", "y2"}
	buf := &bytes.Buffer{}
	err := printDatasets(buf, []workspaceapi.Dataset{{
		ID:        &id,
		Name:      &name,
		Status:    &status,
		RowCount:  &rowCount,
		CreatedAt: &createdAt,
		Favorite:  &fav,
		Tags:      &tags,
	}}, now)
	qt.Assert(t, err, qt.IsNil)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	qt.Assert(t, lines, qt.HasLen, 2)
	qt.Check(t, lines[1], qt.Matches, `7\s+sweep \*\s+completed\s+12,345\s+2 hours ago\s+x,y2,y10`)
}

// syncBuffer collects the output of a server whose handlers log concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if fi, err := os.Stat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s did not appear", path)
}

func TestServeAndClient(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	_, _, err := run(context.Background(), "init", root)
	qt.Assert(t, err, qt.IsNil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	serveLog := &syncBuffer{}
	go func() {
		served <- makeApp(strings.NewReader(""), serveLog, serveLog).RunContext(ctx, []string{"fricon", "--workspace", root, "serve"})
	}()
	waitForSocket(t, filepath.Join(root, "fricon.socket"))

	batchFile := filepath.Join(t.TempDir(), "rows.json")
	err = os.WriteFile(batchFile, []byte(`[
		{"t": {"float": 0.0}, "v": {"complex": [1.0, -1.0]}},
		{"t": {"float": 1.0}, "v": {"complex": [2.0, 0.5]}}
	]`), 0644)
	qt.Assert(t, err, qt.IsNil)

	bg := context.Background()
	ws := func(args ...string) (string, error) {
		out, _, err := run(bg, append([]string{"--workspace", root}, args...)...)
		return out, err
	}

	t.Run("version", func(t *testing.T) {
		out, err := ws("version")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, out, qt.Contains, "engine: "+VERSION)
	})

	t.Run("import", func(t *testing.T) {
		out, err := ws("import", "--name", "run1", "--index", "t", "--tag", "cal", "--chunk-rows", "1", batchFile)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, out, qt.Equals, "dataset 1: 2 rows\n")
	})

	t.Run("import rejects a bad batch", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		qt.Assert(t, os.WriteFile(bad, []byte(`[{"t": {"float": 1}}]`), 0644), qt.IsNil)
		_, err := ws("import", "--name", "broken", bad)
		qt.Check(t, serum.Code(err), qt.Equals, fcapi.ECodeSerialization)
	})

	t.Run("edit", func(t *testing.T) {
		_, err := ws("tags", "add", "1", "y2", "y10")
		qt.Assert(t, err, qt.IsNil)
		_, err = ws("tags", "remove", "1", "cal")
		qt.Assert(t, err, qt.IsNil)
		_, err = ws("update", "--description", "first sweep", "--favorite", "1")
		qt.Assert(t, err, qt.IsNil)

		out, err := ws("get", "1")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, out, qt.Contains, "description: first sweep")
		qt.Check(t, out, qt.Contains, "favorite:    true")
		qt.Check(t, out, qt.Contains, "tags:        y2,y10")
		qt.Check(t, out, qt.Contains, "status:      completed")
	})

	t.Run("list json", func(t *testing.T) {
		out, err := ws("--json", "list")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, out, qt.Contains, `"name":"run1"`)
		qt.Check(t, out, qt.Contains, `"status":"completed"`)
	})

	t.Run("rows", func(t *testing.T) {
		out, err := ws("get", "--rows", "1")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, out, qt.Contains, `"complex"`)
		qt.Check(t, strings.Count(out, `"t"`), qt.Equals, 2)
	})

	t.Run("health", func(t *testing.T) {
		out, err := ws("health")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, out, qt.Contains, "1 completed dataset(s) verified")
	})

	t.Run("delete", func(t *testing.T) {
		out, err := ws("delete", "1")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, out, qt.Equals, "deleted dataset 1\n")
		_, err = ws("get", "1")
		qt.Check(t, serum.Code(err), qt.Equals, fcapi.ECodeNotFound)
	})

	// A session still open at shutdown is aborted.
	writer, err := client.Dial(bg, client.UnixDialer(filepath.Join(root, "fricon.socket")))
	qt.Assert(t, err, qt.IsNil)
	_, err = writer.Create(bg, workspaceapi.CreateRequest{})
	qt.Assert(t, err, qt.IsNil)
	writer.Close()

	cancel()
	select {
	case err := <-served:
		qt.Assert(t, err, qt.IsNil)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	qt.Check(t, serveLog.String(), qt.Contains, "serving on")
	qt.Check(t, serveLog.String(), qt.Contains, "shutting down")
	_, err = os.Stat(filepath.Join(root, "fricon.socket"))
	qt.Check(t, errors.Is(err, fs.ErrNotExist), qt.IsTrue)

	cat, err := catalog.Open(bg, filepath.Join(root, workspace.CatalogFilename))
	qt.Assert(t, err, qt.IsNil)
	defer cat.Close()
	ds, err := cat.Get(bg, 2)
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, ds.Status, qt.Equals, catalog.StatusAborted)
	entries, err := os.ReadDir(filepath.Join(root, workspace.LogDirname))
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, entries, qt.HasLen, 1)
}
