package config

const (
	// EnvFriconWorkspace is the workspace root used by the CLI when no --workspace flag is given
	EnvFriconWorkspace = "FRICON_WORKSPACE"
	// EnvFriconSocket overrides the socket path from the workspace configuration file
	EnvFriconSocket = "FRICON_SOCKET"
)

// NOTE: keep this up to date or the config loader won't load them
var envKeys = []string{
	EnvFriconWorkspace,
	EnvFriconSocket,
}

// WorkspacePath returns the workspace root selected by the environment,
// falling back to the working directory.
func WorkspacePath(state State) string {
	if value, ok := state.Env[EnvFriconWorkspace]; ok && value != "" {
		return value
	}
	return state.WorkingDirectory
}

// SocketPathOverride returns the socket path set in the environment, if any.
func SocketPathOverride(state State) *string {
	value, ok := state.Env[EnvFriconSocket]
	if !ok || value == "" {
		return nil
	}
	return &value
}
