package wasmrt

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wasmrt/wasmrt/internal/wasm"
)

// RuntimeConfig controls the behavior of a Runtime, with the default
// implementation produced by NewRuntimeConfigInterpreter.
type RuntimeConfig struct {
	enabledFeatures wasm.Features
	ctx             context.Context
	memoryMaxPages  uint32
	cache           Cache
	log             *logrus.Entry
}

// engineLessConfig helps avoid copy/pasting the wrong defaults.
var engineLessConfig = &RuntimeConfig{
	enabledFeatures: wasm.Features20191205,
	ctx:             context.Background(),
	memoryMaxPages:  wasm.MemoryMaxPages,
}

// clone ensures all fields are copied even if nil.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// NewRuntimeConfigInterpreter returns a RuntimeConfig backed by the
// tree-walking interpreter: the only Compiler backend this runtime ships
// (spec.md §4.2/§4.3 name native code generation as a future backend, not
// one built here).
func NewRuntimeConfigInterpreter() *RuntimeConfig {
	return engineLessConfig.clone()
}

// WithContext sets the default context used to invoke a module's start
// functions. Defaults to context.Background if nil.
func (c *RuntimeConfig) WithContext(ctx context.Context) *RuntimeConfig {
	if ctx == nil {
		ctx = context.Background()
	}
	ret := c.clone()
	ret.ctx = ctx
	return ret
}

// WithMemoryMaxPages reduces the maximum number of pages a module can
// define from 65536 pages (4GiB) to a lower value.
//
//   - If a module defines no memory max limit, CompileModule sets max to
//     this value.
//   - If a module defines a memory max larger than this amount, it fails to
//     compile.
//   - Any memory.grow instruction that would exceed this value fails: it
//     returns -1 and leaves the memory unchanged.
func (c *RuntimeConfig) WithMemoryMaxPages(memoryMaxPages uint32) *RuntimeConfig {
	ret := c.clone()
	ret.memoryMaxPages = memoryMaxPages
	return ret
}

// WithCache configures the compilation cache the Engine consults before
// running the Compiler, as named in spec.md §4.3/§6.3; a hit still
// re-decodes, re-validates and recompiles the stored bytes. A nil Cache
// (the default) disables caching.
func (c *RuntimeConfig) WithCache(cache Cache) *RuntimeConfig {
	ret := c.clone()
	ret.cache = cache
	return ret
}

// WithLogger attaches a structured logger every Store/Instance built from
// this config logs through. A nil entry defaults to logrus's standard
// logger.
func (c *RuntimeConfig) WithLogger(log *logrus.Entry) *RuntimeConfig {
	ret := c.clone()
	ret.log = log
	return ret
}

// WithFinishedFeatures enables every currently "finished" feature proposal.
// Use this to improve compatibility with tools that enable all features by
// default.
func (c *RuntimeConfig) WithFinishedFeatures() *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = wasm.FeaturesFinished
	return ret
}

// WithFeatureMutableGlobal allows globals to be mutable. Defaults to true:
// the feature was finished in WebAssembly 1.0 (20191205).
func (c *RuntimeConfig) WithFeatureMutableGlobal(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureMutableGlobal, enabled)
	return ret
}

// WithFeatureSignExtensionOps enables the sign-extension-ops instructions
// (i32.extend8_s and friends). Defaults to false.
func (c *RuntimeConfig) WithFeatureSignExtensionOps(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureSignExtensionOps, enabled)
	return ret
}

// WithFeatureMultiValue enables multiple return values and arbitrary block
// types. Defaults to false.
func (c *RuntimeConfig) WithFeatureMultiValue(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureMultiValue, enabled)
	return ret
}

// WithFeatureBulkMemoryOperations enables memory.copy, memory.fill,
// table.copy and friends, plus passive element/data segments. Defaults to
// false.
func (c *RuntimeConfig) WithFeatureBulkMemoryOperations(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureBulkMemoryOperations, enabled)
	return ret
}

// WithFeatureReferenceTypes enables funcref/externref as first-class value
// types and table.get/table.set. The wasix entry-function table (spec.md
// §4.8) works without it. Defaults to false.
func (c *RuntimeConfig) WithFeatureReferenceTypes(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureReferenceTypes, enabled)
	return ret
}

// WithFeatureNonTrappingFloatToIntConversion enables the saturating
// i32.trunc_sat_f32_s family instead of trapping on out-of-range
// conversions. Defaults to false.
func (c *RuntimeConfig) WithFeatureNonTrappingFloatToIntConversion(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureNonTrappingFloatToIntConversion, enabled)
	return ret
}

// ModuleConfig configures an Instance at the point it is instantiated, so
// that the same CompiledModule can be instantiated multiple times under
// different names or import wiring.
type ModuleConfig struct {
	name           string
	startFunctions []string

	// replacedImports holds the latest state of WithImport. The key is NUL
	// delimited since import module and name can both include any UTF-8
	// characters.
	replacedImports map[string][2]string
	// replacedImportModules holds the latest state of WithImportModule.
	replacedImportModules map[string]string
}

// NewModuleConfig returns a ModuleConfig with "_start" as its sole start
// function, matching the WebAssembly command convention.
func NewModuleConfig() *ModuleConfig {
	return &ModuleConfig{startFunctions: []string{"_start"}}
}

// WithName configures the module's registered name. Defaults to what was
// decoded from the module's custom name section, or "" if none.
func (c *ModuleConfig) WithName(name string) *ModuleConfig {
	c.name = name
	return c
}

// WithStartFunctions configures the functions invoked right after
// instantiation, in order. Defaults to {"_start"}. A named function that
// doesn't exist is skipped rather than erroring, so the same ModuleConfig
// works across modules that may or may not export it.
func (c *ModuleConfig) WithStartFunctions(startFunctions ...string) *ModuleConfig {
	c.startFunctions = startFunctions
	return c
}

// WithImport replaces a specific import module and name with a new one.
// This allows splitting a monolithic import module, or retargeting an
// import to a differently-named instance already registered in the Store.
//
// Any WithImport calls are applied after WithImportModule calls.
func (c *ModuleConfig) WithImport(oldModule, oldName, newModule, newName string) *ModuleConfig {
	if c.replacedImports == nil {
		c.replacedImports = map[string][2]string{}
	}
	var key strings.Builder
	key.WriteString(oldModule)
	key.WriteByte(0)
	key.WriteString(oldName)
	c.replacedImports[key.String()] = [2]string{newModule, newName}
	return c
}

// WithImportModule replaces every import naming oldModule with newModule.
func (c *ModuleConfig) WithImportModule(oldModule, newModule string) *ModuleConfig {
	if c.replacedImportModules == nil {
		c.replacedImportModules = map[string]string{}
	}
	c.replacedImportModules[oldModule] = newModule
	return c
}

// replaceImports applies WithImportModule then WithImport to module's
// import section, returning module unchanged if neither was configured.
func (c *ModuleConfig) replaceImports(module *wasm.ModuleInfo) *wasm.ModuleInfo {
	if (c.replacedImportModules == nil && c.replacedImports == nil) || module.ImportSection == nil {
		return module
	}

	changed := false
	ret := *module
	imports := make([]*wasm.Import, len(module.ImportSection))
	copy(imports, module.ImportSection)

	for oldModule, newModule := range c.replacedImportModules {
		for i, imp := range imports {
			if imp.Module == oldModule {
				changed = true
				cp := *imp
				cp.Module = newModule
				imports[i] = &cp
			}
		}
	}

	for oldImport, newImport := range c.replacedImports {
		nulIdx := strings.IndexByte(oldImport, 0)
		oldModule, oldName := oldImport[:nulIdx], oldImport[nulIdx+1:]
		for i, imp := range imports {
			if imp.Module == oldModule && imp.Name == oldName {
				changed = true
				cp := *imp
				cp.Module, cp.Name = newImport[0], newImport[1]
				imports[i] = &cp
			}
		}
	}

	if !changed {
		return module
	}
	ret.ImportSection = imports
	return &ret
}
