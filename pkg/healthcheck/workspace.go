package healthcheck

import (
	"context"
	"os"
	"path/filepath"

	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/pkg/datafile"
	"github.com/warptools/fricon/pkg/workspace"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

// Layout checks that the fixed entries of a workspace root are present.
type Layout struct {
	Workspace *workspace.Workspace
}

func (l *Layout) String() string { return "Workspace layout" }

// Run executes the checker
// Errors:
//
//    - fricon-healthcheck-run-fail -- a directory is missing or is not a directory
//    - fricon-healthcheck-run-okay -- every directory is present
func (l *Layout) Run(ctx context.Context) error {
	for _, dir := range []string{l.Workspace.DataPath(), l.Workspace.BackupPath(), l.Workspace.LogPath()} {
		fi, err := os.Stat(dir)
		if err != nil {
			return serum.Error(CodeRunFailure, serum.WithCause(err),
				serum.WithMessageTemplate("missing {{dir|q}}"),
				serum.WithDetail("dir", dir),
			)
		}
		if !fi.IsDir() {
			return serum.Error(CodeRunFailure,
				serum.WithMessageTemplate("{{dir|q}} is not a directory"),
				serum.WithDetail("dir", dir),
			)
		}
	}
	return serum.Errorf(CodeRunOkay, "%s", l.Workspace.Root())
}

// Config checks that the workspace configuration loads and validates.
type Config struct {
	Workspace *workspace.Workspace
}

func (c *Config) String() string { return "Configuration" }

// Run executes the checker
// Errors:
//
//    - fricon-healthcheck-run-fail -- the configuration is unreadable or invalid
//    - fricon-healthcheck-run-okay -- the configuration is valid
func (c *Config) Run(ctx context.Context) error {
	if _, err := c.Workspace.LoadConfig(); err != nil {
		return serum.Errorf(CodeRunFailure, "%w", err)
	}
	return serum.Errorf(CodeRunOkay, "%s", c.Workspace.ConfigPath())
}

// Engine reports whether an engine answers on the workspace socket.
// Ping is nil when the socket could not be dialed.
type Engine struct {
	Ping func(ctx context.Context) (string, error)
}

func (e *Engine) String() string { return "Engine" }

// Run executes the checker
// Errors:
//
//    - fricon-healthcheck-run-ambiguous -- no engine is running
//    - fricon-healthcheck-run-fail -- the engine answered with an error
//    - fricon-healthcheck-run-okay -- the engine answered
func (e *Engine) Run(ctx context.Context) error {
	if e.Ping == nil {
		return serum.Errorf(CodeRunAmbiguous, "not running")
	}
	version, err := e.Ping(ctx)
	if err != nil {
		return serum.Errorf(CodeRunFailure, "%w", err)
	}
	return serum.Errorf(CodeRunOkay, "running, version %s", version)
}

// DatasetFiles checks every completed dataset's file against the checksum in its metadata side-file.
// List is nil when no engine is running; datasets are then not checked.
type DatasetFiles struct {
	Workspace *workspace.Workspace
	List      func(ctx context.Context) ([]workspaceapi.Dataset, error)
}

func (d *DatasetFiles) String() string { return "Dataset files" }

// Run executes the checker
// Errors:
//
//    - fricon-healthcheck-run-ambiguous -- datasets could not be listed
//    - fricon-healthcheck-run-fail -- a completed dataset fails verification
//    - fricon-healthcheck-run-okay -- every completed dataset verifies
func (d *DatasetFiles) Run(ctx context.Context) error {
	if d.List == nil {
		return serum.Errorf(CodeRunAmbiguous, "not checked, the engine is not running")
	}
	datasets, err := d.List(ctx)
	if err != nil {
		return serum.Errorf(CodeRunAmbiguous, "not checked: %w", err)
	}
	checked := 0
	for _, ds := range datasets {
		if ds.Status == nil || *ds.Status != workspaceapi.StatusCompleted || ds.Path == nil {
			continue
		}
		dir := d.Workspace.Resolve(filepath.FromSlash(*ds.Path))
		if err := datafile.Verify(dir); err != nil {
			return serum.Error(CodeRunFailure, serum.WithCause(err),
				serum.WithMessageTemplate("dataset {{dir|q}} does not verify"),
				serum.WithDetail("dir", dir),
			)
		}
		checked++
	}
	return serum.Errorf(CodeRunOkay, "%d completed dataset(s) verified", checked)
}
