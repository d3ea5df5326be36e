package config

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"

	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/fcapi"
)

// State gathers the process-global inputs (environment, working directory)
// so they are read once instead of at arbitrary points during runtime.
type State struct {
	Env              map[string]string
	WorkingDirectory string
}

var (
	globalm sync.RWMutex
	global  State
)

// ReloadGlobalState will fetch all values for internal state
// ReloadGlobalState will halt on the first error.
//
// Errors:
//
//   - fricon-error-config -- loading the value failed
func ReloadGlobalState() error {
	globalm.Lock()
	defer globalm.Unlock()
	global.Env = make(map[string]string, len(envKeys))
	for _, key := range envKeys {
		if v, ok := os.LookupEnv(key); ok {
			global.Env[key] = v
		}
	}
	loadFuncs := []func() error{
		loadWd,
	}
	for _, loadFunc := range loadFuncs {
		if err := loadFunc(); err != nil {
			return err
		}
	}
	return nil
}

// NewState will create a copy of the global state.
// The returned state can be modified without affecting anything else.
// NewState is concurrent safe.
//
// Errors:
//
//   - fricon-error-serialization -- error copying data
func NewState() (State, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 256))
	enc := json.NewEncoder(buf)
	dec := json.NewDecoder(buf)
	var result State
	globalm.RLock()
	defer globalm.RUnlock()
	err := enc.Encode(global)
	if err != nil {
		return State{}, serum.Error(fcapi.ECodeSerialization, serum.WithCause(err))
	}
	err = dec.Decode(&result)
	if err != nil {
		return State{}, serum.Error(fcapi.ECodeSerialization, serum.WithCause(err))
	}
	return result, nil
}

// init will load all guarded values and will terminate execution if an error occurs.
func init() {
	if err := ReloadGlobalState(); err != nil {
		serr, ok := err.(serum.ErrorInterface)
		if !ok {
			serr = serum.Error(fcapi.ECodeUnknown,
				serum.WithMessageLiteral("config initialization failed"),
				serum.WithCause(err),
			).(serum.ErrorInterface)
		}
		fcapi.TerminalError(serr, 10)
	}
}

// loadWd loads the working directory into the stored state
// NOT concurrent safe
//
// Errors:
//
//    - fricon-error-config -- when the working directory path cannot be found
func loadWd() error {
	cwd, err := os.Getwd()
	if err != nil {
		return serum.Error(fcapi.ECodeConfig,
			serum.WithMessageLiteral("unable to get working directory"),
			serum.WithCause(err),
		)
	}
	global.WorkingDirectory = cwd
	return nil
}
