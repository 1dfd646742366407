package wasmrt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmrt/wasmrt/api"
)

func TestHostModuleBuilder_WithFunc_PlainOperands(t *testing.T) {
	rt := NewRuntime(context.Background())
	mod, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, x, y uint32) uint32 { return x + y }).
		Export("add").
		Instantiate(context.Background())
	require.NoError(t, err)

	fn := mod.ExportedFunction("add")
	require.NotNil(t, fn)
	results, err := fn.Call(context.Background(), 2, 40)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

func TestHostModuleBuilder_WithFunc_ModuleOperand(t *testing.T) {
	rt := NewRuntime(context.Background())
	var sawModule api.Module
	mod, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, x uint32) uint32 {
			sawModule = m
			return x * 2
		}).
		Export("double").
		Instantiate(context.Background())
	require.NoError(t, err)

	fn := mod.ExportedFunction("double")
	results, err := fn.Call(context.Background(), 21)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
	require.Same(t, mod, sawModule)
}

// A malformed WithFunc signature doesn't fail Export or Instantiate
// (HostModuleBuilder's methods don't return errors, to allow chaining); the
// error instead surfaces as a trap the first time the bad function is
// called, since callHostSlot recovers any host function panic.
func TestHostModuleBuilder_WithFunc_RejectsNonFunc(t *testing.T) {
	rt := NewRuntime(context.Background())
	mod, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(42).
		Export("bad").
		Instantiate(context.Background())
	require.NoError(t, err)

	fn := mod.ExportedFunction("bad")
	require.NotNil(t, fn)
	_, err = fn.Call(context.Background())
	require.Error(t, err)
}

func TestHostModuleBuilder_WithFunc_RejectsMissingContext(t *testing.T) {
	rt := NewRuntime(context.Background())
	mod, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(x uint32) uint32 { return x }).
		Export("bad").
		Instantiate(context.Background())
	require.NoError(t, err)

	fn := mod.ExportedFunction("bad")
	require.NotNil(t, fn)
	_, err = fn.Call(context.Background())
	require.Error(t, err)
}

func TestHostModuleBuilder_WithGoModuleFunction(t *testing.T) {
	rt := NewRuntime(context.Background())
	called := false
	mod, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
			called = true
			stack[0] = stack[0] + 1
		}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("inc").
		Instantiate(context.Background())
	require.NoError(t, err)

	fn := mod.ExportedFunction("inc")
	results, err := fn.Call(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, []uint64{2}, results)
}

func TestHostModuleBuilder_ExportMemory(t *testing.T) {
	rt := NewRuntime(context.Background())
	mod, err := rt.NewHostModuleBuilder("env").
		ExportMemory("memory", 1).
		Instantiate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, mod.ExportedMemory("memory"))
}

func TestReflectHostFunc_Int64Roundtrip(t *testing.T) {
	rt := NewRuntime(context.Background())
	mod, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, x int64) int64 { return -x }).
		Export("neg").
		Instantiate(context.Background())
	require.NoError(t, err)

	fn := mod.ExportedFunction("neg")
	results, err := fn.Call(context.Background(), api.EncodeI64(7))
	require.NoError(t, err)
	require.Equal(t, int64(-7), int64(results[0]))
}
