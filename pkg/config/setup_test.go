package config

import (
	"os"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestNewStateIsACopy(t *testing.T) {
	qt.Assert(t, ReloadGlobalState(), qt.IsNil)
	wd, err := os.Getwd()
	qt.Assert(t, err, qt.IsNil)

	state, err := NewState()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, state.WorkingDirectory, qt.Equals, wd)

	state.WorkingDirectory = "elsewhere"
	state.Env["FRICON_TEST_ONLY"] = "1"
	again, err := NewState()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, again.WorkingDirectory, qt.Equals, wd)
	_, ok := again.Env["FRICON_TEST_ONLY"]
	qt.Assert(t, ok, qt.IsFalse)
}
