package wasmrt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmrt/wasmrt/internal/wasm"
)

func TestRuntimeConfig_WithContext_NilDefaultsToBackground(t *testing.T) {
	c := NewRuntimeConfigInterpreter().WithContext(nil)
	require.Equal(t, context.Background(), c.ctx)
}

func TestRuntimeConfig_CloneIsIndependent(t *testing.T) {
	base := NewRuntimeConfigInterpreter()
	derived := base.WithMemoryMaxPages(7)

	require.NotEqual(t, base.memoryMaxPages, derived.memoryMaxPages)
	require.Equal(t, wasm.MemoryMaxPages, base.memoryMaxPages, "cloning must not mutate the receiver")
}

func TestRuntimeConfig_FeatureToggles(t *testing.T) {
	c := NewRuntimeConfigInterpreter().
		WithFeatureSignExtensionOps(true).
		WithFeatureMultiValue(true)

	require.True(t, c.enabledFeatures.Get(wasm.FeatureSignExtensionOps))
	require.True(t, c.enabledFeatures.Get(wasm.FeatureMultiValue))
	require.False(t, c.enabledFeatures.Get(wasm.FeatureBulkMemoryOperations))
}

func TestRuntimeConfig_WithFinishedFeatures(t *testing.T) {
	c := NewRuntimeConfigInterpreter().WithFinishedFeatures()
	require.Equal(t, wasm.FeaturesFinished, c.enabledFeatures)
}

func TestModuleConfig_Defaults(t *testing.T) {
	c := NewModuleConfig()
	require.Equal(t, []string{"_start"}, c.startFunctions)
	require.Equal(t, "", c.name)
}

func TestModuleConfig_WithStartFunctions(t *testing.T) {
	c := NewModuleConfig().WithStartFunctions("init", "main")
	require.Equal(t, []string{"init", "main"}, c.startFunctions)
}

func TestModuleConfig_ReplaceImports_WithImport(t *testing.T) {
	c := NewModuleConfig().WithImport("old_mod", "old_fn", "new_mod", "new_fn")
	module := &wasm.ModuleInfo{
		ImportSection: []*wasm.Import{
			{Module: "old_mod", Name: "old_fn"},
			{Module: "other_mod", Name: "untouched"},
		},
	}

	out := c.replaceImports(module)
	require.Equal(t, "new_mod", out.ImportSection[0].Module)
	require.Equal(t, "new_fn", out.ImportSection[0].Name)
	require.Equal(t, "other_mod", out.ImportSection[1].Module)
}

func TestModuleConfig_ReplaceImports_WithImportModule(t *testing.T) {
	c := NewModuleConfig().WithImportModule("old_mod", "new_mod")
	module := &wasm.ModuleInfo{
		ImportSection: []*wasm.Import{
			{Module: "old_mod", Name: "a"},
			{Module: "old_mod", Name: "b"},
			{Module: "other_mod", Name: "c"},
		},
	}

	out := c.replaceImports(module)
	require.Equal(t, "new_mod", out.ImportSection[0].Module)
	require.Equal(t, "new_mod", out.ImportSection[1].Module)
	require.Equal(t, "other_mod", out.ImportSection[2].Module)
}

func TestModuleConfig_ReplaceImports_NoopWithoutConfiguration(t *testing.T) {
	c := NewModuleConfig()
	module := &wasm.ModuleInfo{ImportSection: []*wasm.Import{{Module: "m", Name: "n"}}}
	require.Same(t, module, c.replaceImports(module))
}

func TestModuleConfig_ReplaceImports_NilImportSection(t *testing.T) {
	c := NewModuleConfig().WithImportModule("old_mod", "new_mod")
	module := &wasm.ModuleInfo{}
	require.Same(t, module, c.replaceImports(module))
}
