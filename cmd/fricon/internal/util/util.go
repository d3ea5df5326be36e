package util

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/config"
	"github.com/warptools/fricon/pkg/plumbing/client"
	"github.com/warptools/fricon/pkg/workspace"
)

// WorkspaceFlag selects the workspace root. Without it, the workspace is
// searched upward from the working directory.
var WorkspaceFlag = &cli.StringFlag{
	Name:      "workspace",
	Aliases:   []string{"w"},
	Usage:     "Path of the workspace root",
	EnvVars:   []string{config.EnvFriconWorkspace},
	TakesFile: true,
}

// OpenWorkspace opens the workspace named by the workspace flag, or the first
// workspace found walking up from the working directory.
//
// Errors:
//
//    - fricon-error-workspace -- no workspace was found, or it cannot be opened
//    - fricon-error-io -- searching for the workspace failed
//    - fricon-error-serialization -- the process state cannot be copied
func OpenWorkspace(c *cli.Context) (*workspace.Workspace, error) {
	if root := c.String(WorkspaceFlag.Name); root != "" {
		return workspace.Open(root)
	}
	state, err := config.NewState()
	if err != nil {
		return nil, err
	}
	pwd, err := filepath.Abs(state.WorkingDirectory)
	if err != nil {
		return nil, fcapi.ErrorIo("resolving working directory", state.WorkingDirectory, err)
	}
	found, err := workspace.FindWorkspace(os.DirFS("/"), "", pwd[1:])
	if err != nil {
		return nil, err
	}
	if found == "" {
		return nil, fcapi.ErrorWorkspace(pwd, errNoWorkspace)
	}
	return workspace.Open(string(filepath.Separator) + found)
}

var errNoWorkspace = errors.New("no fricon workspace found here or in any parent directory")

// SocketPath returns the socket a workspace's engine listens on.
//
// Errors:
//
//    - fricon-error-config -- the workspace configuration is invalid
//    - fricon-error-io -- the workspace configuration cannot be read
//    - fricon-error-serialization -- the process state cannot be copied
func SocketPath(ws *workspace.Workspace) (string, config.Config, error) {
	cfg, err := ws.LoadConfig()
	if err != nil {
		return "", cfg, err
	}
	state, err := config.NewState()
	if err != nil {
		return "", cfg, err
	}
	return config.SocketPath(state, ws.Root(), cfg), nil
}

// Dial opens the workspace and connects to its running engine.
//
// Errors:
//
//    - fricon-error-workspace -- no workspace was found
//    - fricon-error-config -- the workspace configuration is invalid
//    - fricon-error-connection -- the engine is not reachable
func Dial(c *cli.Context) (*client.Client, error) {
	ws, err := OpenWorkspace(c)
	if err != nil {
		return nil, err
	}
	sockPath, _, err := SocketPath(ws)
	if err != nil {
		return nil, err
	}
	return client.Dial(c.Context, client.UnixDialer(sockPath))
}
