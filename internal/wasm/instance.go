package wasm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/woxQAQ/oracle-bridge/internal/bridge"
	"github.com/woxQAQ/oracle-bridge/pkg/protocol"
	"go.uber.org/zap"
)

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, generates UUID).
	InstanceID string

	// Export names of the parser ABI; empty fields use the defaults.
	ABI protocol.ABI
}

// Instance is an instantiated parser module. It implements bridge.Module.
// Instances are not safe for concurrent use; the bridge serialises calls.
type Instance struct {
	module api.Module

	ID        string
	Name      string
	CreatedAt int64

	runtime *Runtime

	alloc  api.Function
	free   api.Function
	parse  api.Function
	memory api.Memory
}

var _ bridge.Module = (*Instance)(nil)

// Instantiate creates a new instance from a compiled module and binds the
// parser ABI exports.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	abi := config.ABI.WithDefaults()
	if issues := CheckABI(compiled, abi); len(issues) > 0 {
		return nil, &ABIMismatchError{ModuleName: config.ModuleName, Issues: issues}
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	if err := m.runtime.reserveInstance(); err != nil {
		return nil, err
	}
	reserved := true
	defer func() {
		if reserved {
			m.runtime.releaseInstance()
		}
	}()

	m.logger.Info("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	// Parsers built for wasm32-wasip1 import WASI for panics and stderr.
	if ImportsWASI(compiled) {
		if err := m.runtime.ensureWASI(ctx); err != nil {
			return nil, &InstantiationError{ModuleName: config.ModuleName, InstanceID: instanceID, Err: err}
		}
	}

	// No start functions: the parser is a library (reactor), not a command.
	// _initialize is invoked explicitly below when present.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions().
		WithStderr(zap.NewStdLog(m.logger.With(zap.String("instance_id", instanceID))).Writer())

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	if initFn := module.ExportedFunction("_initialize"); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			_ = module.Close(ctx)
			return nil, &InstantiationError{
				ModuleName: config.ModuleName,
				InstanceID: instanceID,
				Err:        fmt.Errorf("_initialize failed: %w", err),
			}
		}
	}

	instance := &Instance{
		module:    module,
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now().Unix(),
		runtime:   m.runtime,
		alloc:     module.ExportedFunction(abi.Alloc),
		free:      module.ExportedFunction(abi.Free),
		parse:     module.ExportedFunction(abi.Parse),
		memory:    module.ExportedMemory(abi.Memory),
	}

	m.runtime.StoreInstance(instance)
	reserved = false

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Uint32("memory_bytes", instance.memory.Size()),
	)

	return instance, nil
}

// Allocate calls the module allocator.
func (i *Instance) Allocate(ctx context.Context, length uint32) (uint32, error) {
	results, err := i.alloc.Call(ctx, api.EncodeU32(length))
	if err != nil {
		return 0, &CallError{InstanceID: i.ID, FunctionName: i.alloc.Definition().Name(), Err: err}
	}
	return api.DecodeU32(results[0]), nil
}

// Release returns a region to the module allocator.
func (i *Instance) Release(ctx context.Context, ptr, length uint32) error {
	if _, err := i.free.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(length)); err != nil {
		return &CallError{InstanceID: i.ID, FunctionName: i.free.Definition().Name(), Err: err}
	}
	return nil
}

// Parse calls the parse entry point.
func (i *Instance) Parse(ctx context.Context, namePtr, nameLen, textPtr, textLen uint32) (uint32, error) {
	results, err := i.parse.Call(ctx,
		api.EncodeU32(namePtr), api.EncodeU32(nameLen),
		api.EncodeU32(textPtr), api.EncodeU32(textLen),
	)
	if err != nil {
		return 0, &CallError{InstanceID: i.ID, FunctionName: i.parse.Definition().Name(), Err: err}
	}
	return api.DecodeU32(results[0]), nil
}

// Memory returns the module's linear memory.
func (i *Instance) Memory() bridge.Memory {
	return i.memory
}

// MemorySize returns the current linear memory size in bytes.
func (i *Instance) MemorySize() uint32 {
	return i.memory.Size()
}

// Close closes the instance and releases resources.
func (i *Instance) Close(ctx context.Context) error {
	i.runtime.DeleteInstance(i.ID)
	return i.module.Close(ctx)
}
