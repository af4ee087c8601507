package addon

import (
	"context"
	"errors"
	"sync"

	"github.com/woxQAQ/oracle-bridge/internal/bridge"
	"github.com/woxQAQ/oracle-bridge/internal/config"
	"github.com/woxQAQ/oracle-bridge/internal/wasm"
	"go.uber.org/zap"
)

// State is the lifecycle of the one-time module load.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Manager loads the parser add-on once and gates the bridge on it.
// The bridge exists from construction but rejects every parse until the
// module is instantiated and attached.
type Manager struct {
	cfg         *config.Config
	runtime     *wasm.Runtime
	loader      *Loader
	instanceMgr *wasm.InstanceManager
	bridge      *bridge.Bridge
	logger      *zap.Logger

	ready chan struct{}

	mu       sync.RWMutex
	state    State
	err      error
	addon    *Addon
	instance *wasm.Instance
	tracked  *bridge.TrackedModule
}

// NewManager creates a new add-on manager.
func NewManager(cfg *config.Config, runtime *wasm.Runtime, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		runtime:     runtime,
		loader:      NewLoader(runtime, logger),
		instanceMgr: wasm.NewInstanceManager(runtime, logger),
		bridge:      bridge.New(logger, bridge.WithMaxResultBytes(cfg.Wasm.MaxResultBytes)),
		logger:      logger.With(zap.String("component", "addon-manager")),
		ready:       make(chan struct{}),
	}
}

// LoadAsync starts loading the configured module in the background. The
// returned channel yields the outcome once and is then closed. Only the
// first call loads; later calls yield a *LoadStateError.
func (m *Manager) LoadAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)

	if err := m.begin(); err != nil {
		done <- err
		close(done)
		return done
	}

	go func() {
		done <- m.load(ctx)
		close(done)
	}()

	return done
}

// Load loads the configured module and blocks until it is ready or failed.
func (m *Manager) Load(ctx context.Context) error {
	return <-m.LoadAsync(ctx)
}

func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUnloaded {
		return &LoadStateError{State: m.state}
	}
	m.state = StateLoading
	return nil
}

func (m *Manager) load(ctx context.Context) (err error) {
	defer func() {
		m.finish(err)
	}()

	m.logger.Info("Loading parser module", zap.String("module", m.cfg.Module))

	addon, err := m.loader.Load(ctx, m.cfg.Module)
	if err != nil {
		return err
	}

	instance, err := m.instanceMgr.Instantiate(ctx, &wasm.InstanceConfig{
		ModuleName: addon.Compiled.Name,
		ABI:        addon.ABI(),
	})
	if err != nil {
		return &AddonLoadError{AddonName: addon.Name(), Err: err}
	}

	var mod bridge.Module = instance
	var tracked *bridge.TrackedModule
	if m.cfg.Wasm.TrackAllocations {
		tracked = bridge.Track(instance)
		mod = tracked
	}

	if err := m.bridge.Attach(mod, bridge.WithPlaceholder(addon.Placeholder())); err != nil {
		_ = instance.Close(ctx)
		return err
	}

	m.mu.Lock()
	m.addon = addon
	m.instance = instance
	m.tracked = tracked
	m.mu.Unlock()

	return nil
}

func (m *Manager) finish(err error) {
	m.mu.Lock()
	if err != nil {
		m.state = StateFailed
		m.err = err
	} else {
		m.state = StateLoaded
	}
	m.mu.Unlock()

	close(m.ready)

	if err != nil {
		m.logger.Error("Parser module failed to load", zap.Error(err))
		return
	}
	m.logger.Info("Parser module ready", zap.String("module", m.cfg.Module))
}

// Ready is closed once the load has finished, successfully or not.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Wait blocks until the load has finished or ctx is done, and returns the
// load error, if any.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.ready:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Bridge returns the bridge. It rejects parses until the module is loaded.
func (m *Manager) Bridge() *bridge.Bridge {
	return m.bridge
}

// State returns the load state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsLoaded returns whether the module has been loaded and attached.
func (m *Manager) IsLoaded() bool {
	return m.State() == StateLoaded
}

// Err returns the load failure, if any.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Addon returns the loaded add-on, or nil before loading.
func (m *Manager) Addon() *Addon {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.addon
}

// Instance returns the parser instance, or nil before loading.
func (m *Manager) Instance() *wasm.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.instance
}

// AllocationStats returns the allocation ledger when tracking is enabled.
func (m *Manager) AllocationStats() (bridge.Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.tracked == nil {
		return bridge.Stats{}, false
	}
	return m.tracked.Stats(), true
}

// logAllocationStats reports the ledger when tracking is enabled and warns
// when regions were leaked or released twice.
func (m *Manager) logAllocationStats() {
	stats, ok := m.AllocationStats()
	if !ok {
		return
	}

	fields := []zap.Field{
		zap.Int("allocations", stats.Allocations),
		zap.Int("module_results", stats.ModuleResults),
		zap.Int("releases", stats.Releases),
		zap.Int("live", stats.Live),
	}
	if !stats.Balanced() {
		m.logger.Warn("Allocation ledger unbalanced", fields...)
		return
	}
	m.logger.Info("Allocation ledger balanced", fields...)
}

// Shutdown gracefully shuts down the instance and the runtime.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down add-on manager")
	m.logAllocationStats()

	var errs []error
	if instance := m.Instance(); instance != nil {
		if err := instance.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	m.logger.Info("Add-on manager shutdown complete")
	return nil
}
