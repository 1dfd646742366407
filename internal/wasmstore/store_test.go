package wasmstore_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/engine"
	"github.com/wasmrt/wasmrt/internal/engine/interpreter"
	"github.com/wasmrt/wasmrt/internal/wasm"
	"github.com/wasmrt/wasmrt/internal/wasm/binary"
	"github.com/wasmrt/wasmrt/internal/wasmstore"
)

func newTestEngine() *engine.Engine {
	return engine.NewEngine(interpreter.NewCompiler(), wasm.Features20191205, nil)
}

// addModuleBytes hand-encodes a module exporting "add" of type
// (i32,i32)->i32, the same fixture shape used across this repo's other
// binary-level tests.
func addModuleBytes() []byte {
	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	typeSection := []byte{0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f}
	b.WriteByte(1)
	b.WriteByte(byte(len(typeSection)))
	b.Write(typeSection)

	funcSection := []byte{0x01, 0x00}
	b.WriteByte(3)
	b.WriteByte(byte(len(funcSection)))
	b.Write(funcSection)

	exportSection := []byte{0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00}
	b.WriteByte(7)
	b.WriteByte(byte(len(exportSection)))
	b.Write(exportSection)

	body := []byte{0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b}
	codeSection := append([]byte{0x01, byte(len(body))}, body...)
	b.WriteByte(10)
	b.WriteByte(byte(len(codeSection)))
	b.Write(codeSection)

	return b.Bytes()
}

func decode(t *testing.T, wasmBytes []byte) *wasm.ModuleInfo {
	t.Helper()
	m, err := binary.DecodeModule(bytes.NewReader(wasmBytes), wasm.Features20191205)
	require.NoError(t, err)
	require.NoError(t, binary.Validate(m, wasm.Features20191205))
	return m
}

func TestInstantiate_CallExportedFunction(t *testing.T) {
	store := wasmstore.NewStore(newTestEngine(), wasm.Features20191205, nil)
	wasmBytes := addModuleBytes()
	module := decode(t, wasmBytes)

	inst, err := wasmstore.Instantiate(context.Background(), store, "adder", wasmBytes, module)
	require.NoError(t, err)

	fn := inst.ExportedFunction("add")
	require.NotNil(t, fn)
	results, err := fn.Call(context.Background(), 2, 40)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

func TestInstantiate_DuplicateNameRejected(t *testing.T) {
	store := wasmstore.NewStore(newTestEngine(), wasm.Features20191205, nil)
	wasmBytes := addModuleBytes()
	module := decode(t, wasmBytes)

	_, err := wasmstore.Instantiate(context.Background(), store, "adder", wasmBytes, module)
	require.NoError(t, err)

	_, err = wasmstore.Instantiate(context.Background(), store, "adder", wasmBytes, module)
	require.Error(t, err)
}

func TestInstantiate_MissingImport(t *testing.T) {
	store := wasmstore.NewStore(newTestEngine(), wasm.Features20191205, nil)

	// Module importing a function "env.missing" that was never registered.
	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})
	typeSection := []byte{0x01, 0x60, 0x00, 0x00}
	b.WriteByte(1)
	b.WriteByte(byte(len(typeSection)))
	b.Write(typeSection)
	importSection := []byte{0x01, 0x03, 'e', 'n', 'v', 0x07, 'm', 'i', 's', 's', 'i', 'n', 'g', 0x00, 0x00}
	b.WriteByte(2)
	b.WriteByte(byte(len(importSection)))
	b.Write(importSection)

	module, err := binary.DecodeModule(bytes.NewReader(b.Bytes()), wasm.Features20191205)
	require.NoError(t, err)

	_, err = wasmstore.Instantiate(context.Background(), store, "importer", b.Bytes(), module)
	require.Error(t, err)
	var le *wasmstore.LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "MissingImport", le.Tag)
}

func TestNewHostInstance_ExportedFunctionAndCrossModuleCall(t *testing.T) {
	store := wasmstore.NewStore(newTestEngine(), wasm.Features20191205, nil)

	called := false
	hostFn := wasmstore.HostFunc{
		Name:    "double",
		Params:  []api.ValueType{api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
		Func: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			called = true
			stack[0] = stack[0] * 2
		}),
	}
	hostInst, err := wasmstore.NewHostInstance(store, "env", []wasmstore.HostFunc{hostFn}, nil)
	require.NoError(t, err)

	fn := hostInst.ExportedFunction("double")
	require.NotNil(t, fn)
	results, err := fn.Call(context.Background(), 21)
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, []uint64{42}, results)
}

func TestInstance_CloseUnregistersFromStore(t *testing.T) {
	store := wasmstore.NewStore(newTestEngine(), wasm.Features20191205, nil)
	wasmBytes := addModuleBytes()
	module := decode(t, wasmBytes)

	inst, err := wasmstore.Instantiate(context.Background(), store, "adder", wasmBytes, module)
	require.NoError(t, err)

	_, ok := store.Module("adder")
	require.True(t, ok)

	require.NoError(t, inst.Close(context.Background()))

	_, ok = store.Module("adder")
	require.False(t, ok)
}

func TestInstance_CallAfterCloseTraps(t *testing.T) {
	store := wasmstore.NewStore(newTestEngine(), wasm.Features20191205, nil)
	wasmBytes := addModuleBytes()
	module := decode(t, wasmBytes)

	inst, err := wasmstore.Instantiate(context.Background(), store, "adder", wasmBytes, module)
	require.NoError(t, err)
	require.NoError(t, inst.Close(context.Background()))

	fn := inst.ExportedFunction("add")
	_, err = fn.Call(context.Background(), 1, 2)
	require.Error(t, err)
}

func TestStore_CloseWithExitCode_ReverseOrder(t *testing.T) {
	store := wasmstore.NewStore(newTestEngine(), wasm.Features20191205, nil)
	wasmBytes := addModuleBytes()
	module := decode(t, wasmBytes)

	_, err := wasmstore.Instantiate(context.Background(), store, "first", wasmBytes, module)
	require.NoError(t, err)
	module2 := decode(t, wasmBytes)
	_, err = wasmstore.Instantiate(context.Background(), store, "second", wasmBytes, module2)
	require.NoError(t, err)

	require.NoError(t, store.CloseWithExitCode(context.Background(), 0))

	_, ok := store.Module("first")
	require.False(t, ok)
	_, ok = store.Module("second")
	require.False(t, ok)
}
