package addon

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/woxQAQ/oracle-bridge/internal/wasm"
	"go.uber.org/zap"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()

	ctx := context.Background()
	logger := zap.NewNop()

	runtime, err := wasm.NewRuntime(ctx, logger, wasm.DefaultRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(func() { runtime.Close(context.Background()) })

	return NewLoader(runtime, logger)
}

func TestLoader_LoadAddon_Valid(t *testing.T) {
	loader := newTestLoader(t)
	dir := filepath.Join("testdata", "addons", "echo")

	addon, err := loader.LoadAddon(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadAddon() failed: %v", err)
	}

	if addon.Name() != "echo" {
		t.Errorf("expected name 'echo', got '%s'", addon.Name())
	}

	if addon.Version() != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", addon.Version())
	}

	if addon.Placeholder() != "CARDNAME" {
		t.Errorf("expected placeholder 'CARDNAME', got '%s'", addon.Placeholder())
	}

	if addon.Compiled == nil || addon.Compiled.SizeBytes == 0 {
		t.Error("expected a compiled module")
	}
}

func TestLoader_LoadFile(t *testing.T) {
	loader := newTestLoader(t)
	path := filepath.Join("testdata", "addons", "echo", "parser.wasm")

	addon, err := loader.LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if addon.Name() != "parser" {
		t.Errorf("expected name 'parser', got '%s'", addon.Name())
	}

	if addon.Placeholder() != "~" {
		t.Errorf("expected default placeholder, got '%s'", addon.Placeholder())
	}

	if addon.ABI().Parse != "parse_oracle_text" {
		t.Errorf("expected default parse export, got '%s'", addon.ABI().Parse)
	}
}

func TestLoader_Load_DetectsDirectory(t *testing.T) {
	loader := newTestLoader(t)
	ctx := context.Background()

	fromDir, err := loader.Load(ctx, filepath.Join("testdata", "addons", "echo"))
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if fromDir.Name() != "echo" {
		t.Errorf("expected manifest name, got '%s'", fromDir.Name())
	}

	fromFile, err := loader.Load(ctx, filepath.Join("testdata", "addons", "echo", "parser.wasm"))
	if err != nil {
		t.Fatalf("Load(file) failed: %v", err)
	}
	if fromFile.Name() != "parser" {
		t.Errorf("expected synthesised name, got '%s'", fromFile.Name())
	}

	// Same file, same bytes: one compilation is shared.
	if fromDir.Compiled != fromFile.Compiled {
		t.Error("expected the compiled module to be reused")
	}

	if _, err := loader.Load(ctx, filepath.Join("testdata", "addons", "nonexistent")); err == nil {
		t.Error("Load() should fail for a missing path")
	}
}

func TestLoader_LoadAddon_ManifestNotFound(t *testing.T) {
	loader := newTestLoader(t)
	dir := filepath.Join("testdata", "addons", "nonexistent")

	_, err := loader.LoadAddon(context.Background(), dir)
	if err == nil {
		t.Fatal("LoadAddon() should fail for nonexistent directory")
	}

	_, ok := err.(*ManifestNotFoundError)
	if !ok {
		t.Errorf("expected ManifestNotFoundError, got %T", err)
	}
}

func TestLoader_LoadAddon_InvalidManifest(t *testing.T) {
	loader := newTestLoader(t)
	dir := filepath.Join("testdata", "addons", "invalid-yaml")

	_, err := loader.LoadAddon(context.Background(), dir)
	if err == nil {
		t.Fatal("LoadAddon() should fail for invalid manifest")
	}

	var parseErr *ManifestParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected ManifestParseError, got %T", err)
	}
}

func TestLoader_LoadFile_NotWasm(t *testing.T) {
	loader := newTestLoader(t)

	_, err := loader.LoadFile(context.Background(), filepath.Join("testdata", "addons", "echo", ManifestFile))

	var loadErr *AddonLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected AddonLoadError, got %v", err)
	}

	var compileErr *wasm.CompilationError
	if !errors.As(err, &compileErr) {
		t.Errorf("expected wrapped CompilationError, got %v", loadErr.Err)
	}
}
