package addon

import (
	"time"

	"github.com/woxQAQ/oracle-bridge/internal/wasm"
	"github.com/woxQAQ/oracle-bridge/pkg/protocol"
)

// Addon represents a loaded parser add-on with its manifest and compiled Wasm module.
type Addon struct {
	// Manifest is the parsed add-on metadata
	Manifest *Manifest

	// Compiled is the compiled Wasm module
	Compiled *wasm.CompiledModule

	// LoadedAt is the timestamp when the add-on was loaded
	LoadedAt time.Time
}

// Name returns the add-on name.
func (a *Addon) Name() string {
	return a.Manifest.Name
}

// Version returns the add-on version.
func (a *Addon) Version() string {
	return a.Manifest.Version
}

// ABI returns the export names to bind, with defaults filled in.
func (a *Addon) ABI() protocol.ABI {
	return a.Manifest.ABI.WithDefaults()
}

// Placeholder returns the name substituted for an empty card name.
func (a *Addon) Placeholder() string {
	if a.Manifest.PlaceholderName != "" {
		return a.Manifest.PlaceholderName
	}
	return protocol.PlaceholderName
}
