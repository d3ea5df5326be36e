package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/warptools/fricon/fcapi"
)

// FileName is the name of the configuration file in a workspace root.
const FileName = "config.toml"

// Compression names accepted by write.compression.
const (
	CompressionNone = "none"
	CompressionLZ4  = "lz4"
	CompressionZstd = "zstd"
)

// Config is the content of a workspace config.toml.
type Config struct {
	Server ServerConfig `toml:"server"`
	Write  WriteConfig  `toml:"write"`
}

type ServerConfig struct {
	// Socket is the unix socket path. Relative paths are resolved against the workspace root.
	Socket string `toml:"socket"`
	// ReadTimeout bounds how long a connection may sit idle between messages.
	ReadTimeout Duration `toml:"read_timeout"`
}

type WriteConfig struct {
	// IdleTimeout aborts write sessions that receive nothing for this long. Zero disables it.
	IdleTimeout Duration `toml:"idle_timeout"`
	// Compression of columnar record bodies.
	Compression string `toml:"compression"`
	// BufferBytes is the size of the write buffer in front of each dataset file.
	BufferBytes int `toml:"buffer_bytes"`
}

// Duration is a time.Duration written as a string such as "10m" in toml.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration written by workspace initialization.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Socket:      "fricon.socket",
			ReadTimeout: Duration{10 * time.Minute},
		},
		Write: WriteConfig{
			IdleTimeout: Duration{10 * time.Minute},
			Compression: CompressionNone,
			BufferBytes: 1 << 20,
		},
	}
}

// Load reads a config file. Keys absent from the file keep their default value.
// A missing file yields the defaults.
//
// Errors:
//
//    - fricon-error-config -- the file cannot be parsed, holds unknown keys, or holds invalid values
//    - fricon-error-io -- the file cannot be read
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return Config{}, fcapi.ErrorIo("reading config", path, err)
		}
		return Config{}, fcapi.ErrorConfig(path, "", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fcapi.ErrorConfig(path, keys[0], fmt.Errorf("unknown keys: %s", strings.Join(keys, ", ")))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fcapi.ErrorConfig(path, keyOf(err), err)
	}
	return cfg, nil
}

type keyError struct {
	key    string
	reason string
}

func (e *keyError) Error() string { return e.key + ": " + e.reason }

func keyOf(err error) string {
	var kerr *keyError
	if errors.As(err, &kerr) {
		return kerr.key
	}
	return ""
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Server.Socket == "" {
		return &keyError{"server.socket", "must not be empty"}
	}
	if c.Server.ReadTimeout.Duration <= 0 {
		return &keyError{"server.read_timeout", "must be positive"}
	}
	if c.Write.IdleTimeout.Duration < 0 {
		return &keyError{"write.idle_timeout", "must not be negative"}
	}
	switch c.Write.Compression {
	case CompressionNone, CompressionLZ4, CompressionZstd:
	default:
		return &keyError{"write.compression", fmt.Sprintf("unknown compression %q", c.Write.Compression)}
	}
	if c.Write.BufferBytes < 4096 {
		return &keyError{"write.buffer_bytes", "must be at least 4096"}
	}
	return nil
}

// Save writes the config file, replacing any existing one.
//
// Errors:
//
//    - fricon-error-io -- the file cannot be written
//    - fricon-error-serialization -- the config cannot be encoded
func Save(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fcapi.ErrorIo("creating config", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fcapi.ErrorSerialization("encoding config", err)
	}
	if err := f.Close(); err != nil {
		return fcapi.ErrorIo("closing config", path, err)
	}
	return nil
}

// SocketPath resolves the socket location for a workspace rooted at root.
// The environment override wins over the config file.
func SocketPath(state State, root string, cfg Config) string {
	if p := SocketPathOverride(state); p != nil {
		return *p
	}
	if filepath.IsAbs(cfg.Server.Socket) {
		return cfg.Server.Socket
	}
	return filepath.Join(root, cfg.Server.Socket)
}
