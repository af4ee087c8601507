package addon

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/woxQAQ/oracle-bridge/pkg/protocol"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest name inside an add-on directory.
const ManifestFile = "manifest.yaml"

// Manifest represents the add-on manifest.yaml structure.
type Manifest struct {
	Name            string       `yaml:"name"`
	Version         string       `yaml:"version"`
	Wasm            WasmConfig   `yaml:"wasm"`
	ABI             protocol.ABI `yaml:"abi"`
	PlaceholderName string       `yaml:"placeholder_name"`
	Author          string       `yaml:"author"`
	License         string       `yaml:"license"`

	// Internal fields
	dir       string // Directory containing manifest
	synthetic bool   // Built for a bare .wasm, no file on disk
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file"`
	Size int    `yaml:"size"` // KB
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// DefaultManifest describes a bare .wasm file with the default ABI.
func DefaultManifest(wasmPath string) *Manifest {
	base := filepath.Base(wasmPath)
	return &Manifest{
		Name:      strings.TrimSuffix(base, filepath.Ext(base)),
		Version:   "0.0.0",
		Wasm:      WasmConfig{File: base},
		dir:       filepath.Dir(wasmPath),
		synthetic: true,
	}
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "name",
			Message: "name is required",
		}
	}

	if m.Version == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "version",
			Message: "version is required",
		}
	}

	if m.Wasm.File == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "wasm.file",
			Message: "wasm.file is required",
		}
	}

	if m.Wasm.Size < 0 {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "wasm.size",
			Message: "wasm.size must not be negative",
		}
	}

	if !utf8.ValidString(m.PlaceholderName) {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "placeholder_name",
			Message: "placeholder_name must be valid UTF-8",
		}
	}

	// Two roles bound to one export would alias allocator and parser.
	abi := m.ABI.WithDefaults()
	seen := make(map[string]string, 3)
	for _, fn := range []struct{ field, name string }{
		{"abi.alloc", abi.Alloc},
		{"abi.free", abi.Free},
		{"abi.parse", abi.Parse},
	} {
		if other, dup := seen[fn.name]; dup {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   fn.field,
				Message: "export '" + fn.name + "' is already bound to " + other,
			}
		}
		seen[fn.name] = fn.field
	}

	if _, err := os.Stat(m.WasmPath()); os.IsNotExist(err) {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     m.Wasm.File,
		}
	}

	return nil
}

// Path returns the manifest file path, or the Wasm path for a synthesised
// manifest.
func (m *Manifest) Path() string {
	if m.synthetic {
		return m.WasmPath()
	}
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
