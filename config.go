// config.go — engine tuning knobs (spec.md §4.5 "new(program, snapshot_limit,
// initial_input_source)"), loadable from a small TOML file so the demo CLI
// doesn't need command-line flags for every knob.
package crustty

import (
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultSnapshotLimitBytes = 8 << 20
	DefaultMaxCallDepth       = 512
)

// EngineConfig bundles the constructor arguments New needs beyond the
// Program itself.
type EngineConfig struct {
	SnapshotLimitBytes int
	MaxCallDepth       int
	ScanfSource        io.Reader
}

func DefaultConfig() EngineConfig {
	return EngineConfig{
		SnapshotLimitBytes: DefaultSnapshotLimitBytes,
		MaxCallDepth:       DefaultMaxCallDepth,
		ScanfSource:        strings.NewReader(""),
	}
}

// tomlConfig mirrors the on-disk shape: [engine] snapshot_limit_bytes,
// max_call_depth. ScanfSource is never read from a file — it is supplied by
// whatever is driving the engine (a real stdin, a test fixture, a UI
// textbox).
type tomlConfig struct {
	Engine struct {
		SnapshotLimitBytes int `toml:"snapshot_limit_bytes"`
		MaxCallDepth       int `toml:"max_call_depth"`
	} `toml:"engine"`
}

// LoadConfig reads path (e.g. "crustty.toml") and overlays any fields it
// sets onto DefaultConfig. A missing file is not an error — it just means
// "use the defaults".
func LoadConfig(path string) (EngineConfig, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}
	var tc tomlConfig
	if _, err := toml.DecodeFile(path, &tc); err != nil {
		return cfg, err
	}
	if tc.Engine.SnapshotLimitBytes > 0 {
		cfg.SnapshotLimitBytes = tc.Engine.SnapshotLimitBytes
	}
	if tc.Engine.MaxCallDepth > 0 {
		cfg.MaxCallDepth = tc.Engine.MaxCallDepth
	}
	return cfg, nil
}
