package workspace_test

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/config"
	"github.com/warptools/fricon/pkg/workspace"
)

func TestInitLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	ws, err := workspace.Init(root)
	qt.Assert(t, err, qt.IsNil)
	for _, p := range []string{ws.DataPath(), ws.BackupPath(), ws.LogPath()} {
		fi, err := os.Stat(p)
		qt.Assert(t, err, qt.IsNil)
		qt.Assert(t, fi.IsDir(), qt.IsTrue)
	}
	cfg, err := ws.LoadConfig()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, cfg, qt.DeepEquals, config.Default())

	_, err = workspace.Init(root)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeWorkspace)

	reopened, err := workspace.Open(root)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, reopened.Root(), qt.Equals, ws.Root())
}

func TestOpenRejectsMissingOrForeignLayout(t *testing.T) {
	root := t.TempDir()
	_, err := workspace.Open(root)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeWorkspace)

	err = os.WriteFile(filepath.Join(root, workspace.VersionFilename), []byte("99\n"), 0644)
	qt.Assert(t, err, qt.IsNil)
	_, err = workspace.Open(root)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeWorkspace)
}

func TestDatasetDir(t *testing.T) {
	created := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	qt.Assert(t, workspace.DatasetDir("abc", created), qt.Equals, filepath.Join("data", "2024-03-09", "abc"))
}

func TestLockIsExclusive(t *testing.T) {
	ws, err := workspace.Init(t.TempDir())
	qt.Assert(t, err, qt.IsNil)

	lock, err := ws.Lock()
	qt.Assert(t, err, qt.IsNil)

	// flock locks belong to the open file description, so a second open conflicts.
	_, err = ws.Lock()
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeWorkspace)

	qt.Assert(t, lock.Unlock(), qt.IsNil)
	again, err := ws.Lock()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, again.Unlock(), qt.IsNil)
}

func TestFindWorkspace(t *testing.T) {
	fsys := fstest.MapFS{
		"home/user/ws/" + workspace.VersionFilename: &fstest.MapFile{Data: []byte("1\n")},
		"home/user/ws/a/b/file":                     &fstest.MapFile{},
		"home/user/other/file":                      &fstest.MapFile{},
	}
	found, err := workspace.FindWorkspace(fsys, "", "home/user/ws/a/b")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, found, qt.Equals, "home/user/ws")

	found, err = workspace.FindWorkspace(fsys, "", "home/user/other")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, found, qt.Equals, "")
}
