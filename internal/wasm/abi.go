package wasm

import (
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/woxQAQ/oracle-bridge/pkg/protocol"
)

// ABIIssue describes one way a module deviates from the parser ABI.
type ABIIssue struct {
	Export string
	Reason string
	// Err is a *FunctionNotFoundError or *MemoryNotExportedError for
	// missing exports, nil for signature mismatches.
	Err error
}

func (i ABIIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Export, i.Reason)
}

// ExportSignature is a function export rendered for display.
type ExportSignature struct {
	Name    string
	Params  []string
	Results []string
}

func (s ExportSignature) String() string {
	return fmt.Sprintf("%s(%v) -> %v", s.Name, s.Params, s.Results)
}

var (
	i32 = api.ValueTypeI32

	allocParams  = []api.ValueType{i32}
	allocResults = []api.ValueType{i32}
	freeParams   = []api.ValueType{i32, i32}
	parseParams  = []api.ValueType{i32, i32, i32, i32}
	parseResults = []api.ValueType{i32}
)

// CheckABI reports every missing or mistyped export of the parser ABI.
// An empty result means the module can be driven by the bridge.
func CheckABI(compiled *CompiledModule, abi protocol.ABI) []ABIIssue {
	abi = abi.WithDefaults()
	funcs := compiled.Module.ExportedFunctions()

	var issues []ABIIssue
	check := func(name string, params, results []api.ValueType) {
		def, ok := funcs[name]
		if !ok {
			issues = append(issues, ABIIssue{
				Export: name,
				Reason: "not exported",
				Err:    &FunctionNotFoundError{ModuleName: compiled.Name, FunctionName: name},
			})
			return
		}
		if !slices.Equal(def.ParamTypes(), params) || !slices.Equal(def.ResultTypes(), results) {
			issues = append(issues, ABIIssue{
				Export: name,
				Reason: fmt.Sprintf("signature %s, want %s",
					formatSignature(def.ParamTypes(), def.ResultTypes()),
					formatSignature(params, results)),
			})
		}
	}

	check(abi.Alloc, allocParams, allocResults)
	check(abi.Free, freeParams, nil)
	check(abi.Parse, parseParams, parseResults)

	if _, ok := compiled.Module.ExportedMemories()[abi.Memory]; !ok {
		issues = append(issues, ABIIssue{
			Export: abi.Memory,
			Reason: "memory not exported",
			Err:    &MemoryNotExportedError{ModuleName: compiled.Name, MemoryName: abi.Memory},
		})
	}

	return issues
}

// Exports lists the function exports of a compiled module sorted by name.
func Exports(compiled *CompiledModule) []ExportSignature {
	funcs := compiled.Module.ExportedFunctions()

	sigs := make([]ExportSignature, 0, len(funcs))
	for name, def := range funcs {
		sigs = append(sigs, ExportSignature{
			Name:    name,
			Params:  valueTypeNames(def.ParamTypes()),
			Results: valueTypeNames(def.ResultTypes()),
		})
	}
	slices.SortFunc(sigs, func(a, b ExportSignature) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return sigs
}

// ImportsWASI reports whether the module imports wasi_snapshot_preview1.
func ImportsWASI(compiled *CompiledModule) bool {
	for _, def := range compiled.Module.ImportedFunctions() {
		if moduleName, _, ok := def.Import(); ok && moduleName == wasi_snapshot_preview1.ModuleName {
			return true
		}
	}
	return false
}

func valueTypeNames(types []api.ValueType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return names
}

func formatSignature(params, results []api.ValueType) string {
	return fmt.Sprintf("(%v) -> %v", valueTypeNames(params), valueTypeNames(results))
}
