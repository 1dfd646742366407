package wasmstore

import (
	"fmt"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// HostFunc describes one Go-implemented function to expose to guest
// modules, the wasmstore-level counterpart of wazero's wasm.HostFunc.
// Building the reflect-based adaptation from an arbitrary `func(...)` is
// root package wasmrt's job (its HostFunctionBuilder.WithFunc); by the time
// a HostFunc reaches here it is already a typed api.GoModuleFunction.
type HostFunc struct {
	Name    string
	Debug   string // optional local name distinct from Name, surfaced via FunctionDefinition.DebugName
	Params  []api.ValueType
	Results []api.ValueType
	Func    api.GoModuleFunction
}

// NewHostInstance builds an Instance with no ModuleInfo/Artifact: every
// function is a host closure, and its only memory (if any) is an exported,
// locally owned linear memory. This is how a Runtime's environment modules
// (e.g. WASIX host imports) become importable by guest modules through the
// same resolveImports path ordinary inter-module imports use.
func NewHostInstance(store *Store, name string, funcs []HostFunc, exportedMemory *wasm.Memory) (*Instance, error) {
	inst := &Instance{
		storeID: store.id,
		store:   store,
		localID: store.nextInstanceID(),
		name:    name,
		exports: map[string]wasm.Export{},
	}

	for i, f := range funcs {
		if _, dup := inst.exports[f.Name]; dup {
			return nil, fmt.Errorf("wasmstore: host module %q: duplicate function %q", name, f.Name)
		}
		debugName := f.Debug
		if debugName == "" {
			debugName = f.Name
		}
		inst.functions = append(inst.functions, &funcSlot{
			typ:      &wasm.FunctionType{Params: f.Params, Results: f.Results},
			host:     f.Func,
			hostName: f.Name,
			def: &funcDefinition{
				moduleName:   name,
				name:         debugName,
				index:        uint32(i),
				isImport:     false,
				importModule: name,
				importName:   f.Name,
				exportNames:  []string{f.Name},
				params:       f.Params,
				results:      f.Results,
			},
		})
		inst.exports[f.Name] = wasm.Export{Type: api.ExternTypeFunc, Name: f.Name, Index: wasm.Index(i)}
	}

	if exportedMemory != nil {
		mem := newMemoryInstance(store.id, exportedMemory)
		inst.memories = append(inst.memories, mem)
		inst.exports["memory"] = wasm.Export{Type: api.ExternTypeMemory, Name: "memory", Index: 0}
	}

	if err := store.register(name, inst); err != nil {
		return nil, err
	}
	return inst, nil
}
