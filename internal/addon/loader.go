package addon

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/woxQAQ/oracle-bridge/internal/wasm"
	"go.uber.org/zap"
)

// Loader handles loading parser add-ons from disk.
type Loader struct {
	runtime      *wasm.Runtime
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a new add-on loader.
func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		runtime:      runtime,
		moduleLoader: wasm.NewModuleLoader(runtime, logger),
		logger:       logger.With(zap.String("component", "addon-loader")),
	}
}

// Load loads path as an add-on directory or, when path is a file, as a
// bare Wasm module.
func (l *Loader) Load(ctx context.Context, path string) (*Addon, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat parser module '%s': %w", path, err)
	}
	if info.IsDir() {
		return l.LoadAddon(ctx, path)
	}
	return l.LoadFile(ctx, path)
}

// LoadAddon loads a single add-on from a directory.
func (l *Loader) LoadAddon(ctx context.Context, dir string) (*Addon, error) {
	l.logger.Debug("Loading add-on", zap.String("dir", dir))

	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	return l.compile(ctx, manifest)
}

// LoadFile loads a bare .wasm file using the default ABI.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Addon, error) {
	manifest := DefaultManifest(path)
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	return l.compile(ctx, manifest)
}

func (l *Loader) compile(ctx context.Context, manifest *Manifest) (*Addon, error) {
	l.logger.Info("Loading add-on",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
	)

	// Compile Wasm module (uses internal caching)
	compiled, err := l.moduleLoader.LoadModuleFromFile(ctx, manifest.WasmPath())
	if err != nil {
		return nil, &AddonLoadError{
			AddonName: manifest.Name,
			Err:       err,
		}
	}

	if declared := int64(manifest.Wasm.Size); declared > 0 && compiled.SizeBytes > declared*1024 {
		l.logger.Warn("Wasm file is larger than declared in manifest",
			zap.String("name", manifest.Name),
			zap.Int("declared_kb", manifest.Wasm.Size),
			zap.Int64("size_bytes", compiled.SizeBytes),
		)
	}

	addon := &Addon{
		Manifest: manifest,
		Compiled: compiled,
		LoadedAt: time.Now(),
	}

	l.logger.Info("Add-on loaded successfully",
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", compiled.SizeBytes),
	)

	return addon, nil
}
