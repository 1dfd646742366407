// Package wasmrt wires the decoder/validator, compiler, store and cache
// layers (internal/wasm/binary, internal/engine, internal/wasmstore,
// internal/compilationcache) into a single embedder-facing entry point, the
// way wazero's root package wires its own internals behind Runtime.
package wasmrt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/engine"
	"github.com/wasmrt/wasmrt/internal/engine/interpreter"
	"github.com/wasmrt/wasmrt/internal/wasix"
	"github.com/wasmrt/wasmrt/internal/wasm"
	"github.com/wasmrt/wasmrt/internal/wasm/binary"
	"github.com/wasmrt/wasmrt/internal/wasmstore"
)

// Runtime is the top-level embedder handle: one Engine (compiler backend +
// cache) and one Store (instantiated-module arena), per spec.md §4.3/§4.4.
type Runtime struct {
	config *RuntimeConfig
	engine *engine.Engine
	store  *wasmstore.Store
	log    *logrus.Entry
}

// NewRuntime returns a Runtime configured by NewRuntimeConfigInterpreter().
func NewRuntime(ctx context.Context) *Runtime {
	return NewRuntimeWithConfig(ctx, NewRuntimeConfigInterpreter())
}

// NewRuntimeWithConfig returns a Runtime using rConfig. A nil rConfig
// panics: this mirrors wazero's own programmer-error convention of
// panicking on unmistakably invalid configuration rather than returning an
// error an embedder is likely to ignore.
func NewRuntimeWithConfig(ctx context.Context, rConfig *RuntimeConfig) *Runtime {
	if rConfig == nil {
		panic("wasmrt: NewRuntimeWithConfig requires a non-nil RuntimeConfig")
	}
	log := rConfig.log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	var backend engine.Compiler = interpreter.NewCompiler()
	var eng *engine.Engine
	if rConfig.cache != nil {
		eng = engine.NewEngine(backend, rConfig.enabledFeatures, rConfig.cache.backend())
	} else {
		eng = engine.NewEngine(backend, rConfig.enabledFeatures, nil)
	}

	return &Runtime{
		config: rConfig,
		engine: eng,
		store:  wasmstore.NewStore(eng, rConfig.enabledFeatures, log),
		log:    log,
	}
}

// CompiledModule is a decoded, validated, and compiled WebAssembly module,
// ready to be instantiated (possibly repeatedly, under different names) via
// Runtime.InstantiateModule.
type CompiledModule struct {
	module    *wasm.ModuleInfo
	wasmBytes []byte
	hash      engine.ModuleHash
	rt        *Runtime
}

// Close releases this CompiledModule's entry from its Runtime's in-process
// de-dup table. It does not evict the on-disk cache tier, if any: that
// persists across runs by design (spec.md §6.3).
func (c *CompiledModule) Close(context.Context) error {
	c.rt.engine.Forget(c.hash)
	return nil
}

// Hash returns the ModuleHash CompileModule computed for this module (a
// "sha256:<hex>" digest of its bytes), formatted with %x. The compilation
// cache keys its entries by Fingerprint, not by this value.
func (c *CompiledModule) Hash() string {
	return fmt.Sprintf("%x", c.hash)
}

// Size returns the length of the original Wasm binary, in bytes.
func (c *CompiledModule) Size() int {
	return len(c.wasmBytes)
}

// FunctionCount returns the number of functions the module defines,
// imported and locally defined combined.
func (c *CompiledModule) FunctionCount() int {
	return int(c.module.ImportedFunctionCount()) + len(c.module.FunctionSection)
}

// CompileModule decodes, validates, and compiles wasmBytes (spec.md §4.1
// decode+validate, §4.3 Engine.CompileModule). Every module memory without
// an explicit maximum is clamped to RuntimeConfig.WithMemoryMaxPages; one
// declaring a larger explicit maximum fails to compile.
func (r *Runtime) CompileModule(ctx context.Context, wasmBytes []byte) (*CompiledModule, error) {
	module, err := binary.DecodeModule(bytes.NewReader(wasmBytes), r.config.enabledFeatures)
	if err != nil {
		return nil, fmt.Errorf("wasmrt: decode: %w", err)
	}
	if err := binary.Validate(module, r.config.enabledFeatures); err != nil {
		return nil, fmt.Errorf("wasmrt: validate: %w", err)
	}
	for _, m := range module.MemorySection {
		if !m.HasMax {
			m.Max, m.HasMax = r.config.memoryMaxPages, true
		} else if m.Max > r.config.memoryMaxPages {
			return nil, fmt.Errorf("wasmrt: memory max %d exceeds configured limit %d", m.Max, r.config.memoryMaxPages)
		}
	}

	artifact, err := r.engine.CompileModule(wasmBytes, module)
	if err != nil {
		return nil, fmt.Errorf("wasmrt: compile: %w", err)
	}
	return &CompiledModule{module: module, wasmBytes: wasmBytes, hash: artifact.ModuleHash, rt: r}, nil
}

// InstantiateModule instantiates compiled against this Runtime's Store
// (spec.md §4.5), applying mConfig's import replacements and name, then
// invoking every configured start function in order. A nil mConfig
// defaults to NewModuleConfig().
func (r *Runtime) InstantiateModule(ctx context.Context, compiled *CompiledModule, mConfig *ModuleConfig) (api.Module, error) {
	if ctx == nil {
		ctx = r.config.ctx
	}
	if mConfig == nil {
		mConfig = NewModuleConfig()
	}
	module := mConfig.replaceImports(compiled.module)

	name := mConfig.name
	if name == "" && module.NameSection != nil {
		name = module.NameSection.ModuleName
	}

	inst, err := wasmstore.Instantiate(ctx, r.store, name, compiled.wasmBytes, module)
	if err != nil {
		return nil, err
	}

	for _, fnName := range mConfig.startFunctions {
		fn := inst.ExportedFunction(fnName)
		if fn == nil {
			continue
		}
		if _, err := fn.Call(ctx); err != nil {
			return nil, fmt.Errorf("wasmrt: start function %q: %w", fnName, err)
		}
	}
	return inst, nil
}

// NewHostModuleBuilder begins defining a host module named moduleName, so
// that guest modules can import Go-implemented functions from it (spec.md
// §4.5 step 1 resolves these exactly like any other registered Instance).
func (r *Runtime) NewHostModuleBuilder(moduleName string) HostModuleBuilder {
	return &hostModuleBuilder{r: r, moduleName: moduleName}
}

// InstantiateWasix registers the "wasix" host module (spec.md §4.8,
// internal/wasix) against this Runtime's Store, so guest modules can import
// the cooperative context-switching primitives by name. Calling this more
// than once on the same Runtime returns the error from the second
// registration, since a Store rejects a duplicate module name.
func (r *Runtime) InstantiateWasix(ctx context.Context) (api.Module, error) {
	return wasix.NewHostModule(r.store, r.log)
}

// Close closes every Instance this Runtime's Store owns, in reverse
// instantiation order.
func (r *Runtime) Close(ctx context.Context) error {
	return r.store.CloseWithExitCode(ctx, 0)
}
