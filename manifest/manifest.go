// Package manifest handles smallvm.toml machine configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mimihuang/VM-practice/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "smallvm.toml"

// DefaultHeapCapacity is the heap size used when none is configured.
const DefaultHeapCapacity = 1024

// Manifest represents a smallvm.toml configuration.
type Manifest struct {
	Machine Machine `toml:"machine"`
	Trace   Trace   `toml:"trace"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the smallvm.toml file (set at load time).
	// Empty for the built-in defaults.
	Dir string `toml:"-"`
}

// Machine configures the execution engine.
type Machine struct {
	HeapCapacity int    `toml:"heap-capacity"`
	Fetch        string `toml:"fetch"`
	MaxSteps     int    `toml:"max-steps"`
}

// Trace configures execution tracing.
type Trace struct {
	Enabled bool   `toml:"enabled"`
	Journal string `toml:"journal"` // sqlite database path, relative to Dir
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"` // relative to Dir; empty logs to stderr
}

// Default returns the configuration used when no smallvm.toml exists.
func Default() *Manifest {
	return &Manifest{
		Machine: Machine{
			HeapCapacity: DefaultHeapCapacity,
			Fetch:        vm.FetchSequential.String(),
		},
	}
}

// Load parses the smallvm.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a configuration file at an explicit path. Keys missing
// from the file keep their defaults.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates configuration text.
func Parse(data []byte) (*Manifest, error) {
	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown key(s): %s", strings.Join(keys, ", "))
	}

	raw := map[string]any{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a smallvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// FetchMode returns the configured fetch mode.
func (m *Manifest) FetchMode() (vm.FetchMode, error) {
	return vm.ParseFetchMode(m.Machine.Fetch)
}

// Options converts the machine section into vm options.
func (m *Manifest) Options() ([]vm.Option, error) {
	mode, err := m.FetchMode()
	if err != nil {
		return nil, err
	}
	return []vm.Option{
		vm.WithFetchMode(mode),
		vm.WithMaxSteps(m.Machine.MaxSteps),
	}, nil
}

// JournalPath returns the absolute journal path, or "" when journaling is off.
func (m *Manifest) JournalPath() string {
	return m.resolve(m.Trace.Journal)
}

// LogPath returns the log file path in the form commonlog.Configure expects:
// nil for stderr.
func (m *Manifest) LogPath() *string {
	path := m.resolve(m.Log.File)
	if path == "" {
		return nil
	}
	return &path
}

func (m *Manifest) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || m.Dir == "" {
		return path
	}
	return filepath.Join(m.Dir, path)
}
