package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/config"
)

// Names of the fixed entries in a workspace root.
// These form the on-disk contract other tooling depends on.
const (
	VersionFilename = ".fricon_version"
	CatalogFilename = "fricon.sqlite3"
	LockFilename    = ".fricon.lock"
	DataDirname     = "data"
	BackupDirname   = "backup"
	LogDirname      = "log"

	// LayoutVersion is the major version of the layout written by Init.
	LayoutVersion = "1"

	// Files inside each dataset directory.
	DatasetFilename  = "dataset.arrow"
	MetadataFilename = "metadata.json"

	datasetDayFormat = "2006-01-02"
)

type Workspace struct {
	rootPath string // absolute path of the workspace root
}

// Init creates a new workspace at rootPath.
// The directory may exist already but must not already hold a workspace.
// A default configuration file is written unless one is present.
//
// Errors:
//
//    - fricon-error-workspace -- rootPath already holds a workspace
//    - fricon-error-io -- when directories or files cannot be created
//    - fricon-error-serialization -- when the default configuration cannot be encoded
func Init(rootPath string) (*Workspace, error) {
	rootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fcapi.ErrorIo("resolving workspace path", rootPath, err)
	}
	ws := &Workspace{rootPath: rootPath}
	if _, err := os.Stat(ws.VersionPath()); err == nil {
		return nil, fcapi.ErrorWorkspace(rootPath, errors.New("workspace already initialized"))
	}
	for _, dir := range []string{rootPath, ws.DataPath(), ws.BackupPath(), ws.LogPath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fcapi.ErrorIo("creating workspace directory", dir, err)
		}
	}
	if _, err := os.Stat(ws.ConfigPath()); errors.Is(err, fs.ErrNotExist) {
		if err := config.Save(ws.ConfigPath(), config.Default()); err != nil {
			return nil, err
		}
	}
	// The version marker goes last: its presence means the layout is complete.
	if err := os.WriteFile(ws.VersionPath(), []byte(LayoutVersion+"\n"), 0644); err != nil {
		return nil, fcapi.ErrorIo("writing version marker", ws.VersionPath(), err)
	}
	return ws, nil
}

// Open returns the workspace rooted at rootPath after checking its version marker.
// It does not search; see FindWorkspace.
//
// Errors:
//
//    - fricon-error-workspace -- when there is no workspace at rootPath, or its layout version is not supported
func Open(rootPath string) (*Workspace, error) {
	rootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fcapi.ErrorWorkspace(rootPath, err)
	}
	ws := &Workspace{rootPath: rootPath}
	content, err := os.ReadFile(ws.VersionPath())
	if err != nil {
		return nil, fcapi.ErrorWorkspace(rootPath, err)
	}
	if version := strings.TrimSpace(string(content)); version != LayoutVersion {
		return nil, fcapi.ErrorWorkspace(rootPath, fmt.Errorf("unsupported layout version %q (want %q)", version, LayoutVersion))
	}
	return ws, nil
}

// Root returns the absolute path of the workspace root.
func (ws *Workspace) Root() string { return ws.rootPath }

func (ws *Workspace) VersionPath() string { return filepath.Join(ws.rootPath, VersionFilename) }
func (ws *Workspace) ConfigPath() string  { return filepath.Join(ws.rootPath, config.FileName) }
func (ws *Workspace) CatalogPath() string { return filepath.Join(ws.rootPath, CatalogFilename) }
func (ws *Workspace) LockPath() string    { return filepath.Join(ws.rootPath, LockFilename) }
func (ws *Workspace) DataPath() string    { return filepath.Join(ws.rootPath, DataDirname) }
func (ws *Workspace) BackupPath() string  { return filepath.Join(ws.rootPath, BackupDirname) }
func (ws *Workspace) LogPath() string     { return filepath.Join(ws.rootPath, LogDirname) }

// LoadConfig reads the workspace configuration file.
//
// Errors:
//
//    - fricon-error-config -- the file holds invalid content
//    - fricon-error-io -- the file cannot be read
func (ws *Workspace) LoadConfig() (config.Config, error) {
	return config.Load(ws.ConfigPath())
}

// DatasetDir returns the directory of a dataset relative to the workspace root:
// one directory per creation day, then one per dataset uid.
func DatasetDir(uid string, createdAt time.Time) string {
	return filepath.Join(DataDirname, createdAt.UTC().Format(datasetDayFormat), uid)
}

// Resolve turns a workspace-relative path into an absolute one.
// Absolute paths are returned unchanged.
func (ws *Workspace) Resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(ws.rootPath, rel)
}

// LogFile opens the log file for the given day in the log area for appending.
//
// Errors:
//
//    - fricon-error-io -- when the file cannot be opened
func (ws *Workspace) LogFile(now time.Time) (*os.File, error) {
	path := filepath.Join(ws.LogPath(), "fricon-"+now.Format(datasetDayFormat)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fcapi.ErrorIo("opening log file", path, err)
	}
	return f, nil
}
