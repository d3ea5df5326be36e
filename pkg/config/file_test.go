package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/fcapi"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, cfg, qt.DeepEquals, Default())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := Default()
	cfg.Write.IdleTimeout = Duration{90 * time.Second}
	cfg.Write.Compression = CompressionZstd
	qt.Assert(t, Save(path, cfg), qt.IsNil)

	loaded, err := Load(path)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, loaded, qt.DeepEquals, cfg)
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	err := os.WriteFile(path, []byte("[write]\nidle_timeout = \"0s\"\n"), 0644)
	qt.Assert(t, err, qt.IsNil)

	cfg, err := Load(path)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, cfg.Write.IdleTimeout.Duration, qt.Equals, time.Duration(0))
	qt.Assert(t, cfg.Server, qt.DeepEquals, Default().Server)
}

func TestLoadRejects(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key":  "[server]\nport = 22777\n",
		"bad duration": "[server]\nread_timeout = \"soon\"\n",
		"compression":  "[write]\ncompression = \"gzip\"\n",
		"small buffer": "[write]\nbuffer_bytes = 10\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			qt.Assert(t, os.WriteFile(path, []byte(body), 0644), qt.IsNil)
			_, err := Load(path)
			qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeConfig)
		})
	}
}

func TestSocketPath(t *testing.T) {
	cfg := Default()
	state := State{Env: map[string]string{}}
	qt.Assert(t, SocketPath(state, "/ws", cfg), qt.Equals, "/ws/fricon.socket")

	state.Env[EnvFriconSocket] = "/run/fricon.sock"
	qt.Assert(t, SocketPath(state, "/ws", cfg), qt.Equals, "/run/fricon.sock")
}
