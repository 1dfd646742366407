package wasix_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmrt/wasmrt/internal/engine"
	"github.com/wasmrt/wasmrt/internal/engine/interpreter"
	"github.com/wasmrt/wasmrt/internal/wasix"
	"github.com/wasmrt/wasmrt/internal/wasm"
	"github.com/wasmrt/wasmrt/internal/wasm/binary"
	"github.com/wasmrt/wasmrt/internal/wasmstore"
)

// importingModuleBytes hand-encodes a module that imports
// "wasix"."wasix_context_main" (type ()->(i64)) and exports a local
// function "get_main" of the same type that just forwards the call.
func importingModuleBytes() []byte {
	lpString := func(b *bytes.Buffer, s string) {
		b.WriteByte(byte(len(s)))
		b.WriteString(s)
	}
	section := func(b *bytes.Buffer, id byte, body []byte) {
		b.WriteByte(id)
		b.WriteByte(byte(len(body)))
		b.Write(body)
	}

	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	var typeSection bytes.Buffer
	typeSection.WriteByte(0x01)       // 1 type
	typeSection.WriteByte(0x60)       // functype
	typeSection.WriteByte(0x00)       // 0 params
	typeSection.WriteByte(0x01)       // 1 result
	typeSection.WriteByte(0x7e)       // i64
	section(&b, 1, typeSection.Bytes())

	var importSection bytes.Buffer
	importSection.WriteByte(0x01) // 1 import
	lpString(&importSection, wasix.ModuleName)
	lpString(&importSection, "wasix_context_main")
	importSection.WriteByte(0x00) // func kind
	importSection.WriteByte(0x00) // type index 0
	section(&b, 2, importSection.Bytes())

	var funcSection bytes.Buffer
	funcSection.WriteByte(0x01) // 1 local function
	funcSection.WriteByte(0x00) // type index 0
	section(&b, 3, funcSection.Bytes())

	var exportSection bytes.Buffer
	exportSection.WriteByte(0x01) // 1 export
	lpString(&exportSection, "get_main")
	exportSection.WriteByte(0x00) // func kind
	exportSection.WriteByte(0x01) // function index 1 (0 is the import)
	section(&b, 7, exportSection.Bytes())

	var codeSection bytes.Buffer
	codeSection.WriteByte(0x01) // 1 body
	body := []byte{0x00, 0x10, 0x00, 0x0b} // no locals; call 0; end
	codeSection.WriteByte(byte(len(body)))
	codeSection.Write(body)
	section(&b, 10, codeSection.Bytes())

	return b.Bytes()
}

// contextSwitchModuleBytes hand-encodes a module exercising
// wasix_context_switch end to end, not just wasix_context_main: it defines
// memory (required by wasix_context_create's WriteUint64Le) and a table
// with one element segment pointing "entry" at table position 0.
//
// "entry" reads wasix_context_main from inside itself, stores it at memory
// offset 0, then calls wasix_context_switch(MAIN) to hand control back.
// "run" creates a context targeting "entry", switches into it, then loads
// back what "entry" wrote — round-tripping through a real
// wasix_context_switch rather than only the import resolution path.
func contextSwitchModuleBytes() []byte {
	lpString := func(b *bytes.Buffer, s string) {
		b.WriteByte(byte(len(s)))
		b.WriteString(s)
	}
	section := func(b *bytes.Buffer, id byte, body []byte) {
		b.WriteByte(id)
		b.WriteByte(byte(len(body)))
		b.Write(body)
	}

	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	// Types: 0 ()->(i64), 1 (i32,i32)->(i32), 2 (i64)->(), 3 ()->()
	var typeSection bytes.Buffer
	typeSection.WriteByte(0x04)
	typeSection.Write([]byte{0x60, 0x00, 0x01, 0x7e})
	typeSection.Write([]byte{0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f})
	typeSection.Write([]byte{0x60, 0x01, 0x7e, 0x00})
	typeSection.Write([]byte{0x60, 0x00, 0x00})
	section(&b, 1, typeSection.Bytes())

	var importSection bytes.Buffer
	importSection.WriteByte(0x03)
	lpString(&importSection, wasix.ModuleName)
	lpString(&importSection, "wasix_context_main")
	importSection.WriteByte(0x00)
	importSection.WriteByte(0x00)
	lpString(&importSection, wasix.ModuleName)
	lpString(&importSection, "wasix_context_create")
	importSection.WriteByte(0x00)
	importSection.WriteByte(0x01)
	lpString(&importSection, wasix.ModuleName)
	lpString(&importSection, "wasix_context_switch")
	importSection.WriteByte(0x00)
	importSection.WriteByte(0x02)
	section(&b, 2, importSection.Bytes())

	var funcSection bytes.Buffer
	funcSection.WriteByte(0x02)
	funcSection.WriteByte(0x03) // entry: type 3
	funcSection.WriteByte(0x00) // run: type 0
	section(&b, 3, funcSection.Bytes())

	var tableSection bytes.Buffer
	tableSection.WriteByte(0x01)
	tableSection.Write([]byte{0x70, 0x01, 0x01, 0x01}) // funcref, hasMax, min 1, max 1
	section(&b, 4, tableSection.Bytes())

	var memSection bytes.Buffer
	memSection.WriteByte(0x01)
	memSection.Write([]byte{0x00, 0x01}) // no max, min 1 page
	section(&b, 5, memSection.Bytes())

	var exportSection bytes.Buffer
	exportSection.WriteByte(0x01)
	lpString(&exportSection, "run")
	exportSection.WriteByte(0x00)
	exportSection.WriteByte(0x04) // func index 4 (3 imports + entry=3, run=4)
	section(&b, 7, exportSection.Bytes())

	var elemSection bytes.Buffer
	elemSection.WriteByte(0x01)
	elemSection.WriteByte(0x00)                 // flags: active, table 0
	elemSection.Write([]byte{0x41, 0x00, 0x0b}) // offset: i32.const 0; end
	elemSection.WriteByte(0x01)
	elemSection.WriteByte(0x03) // entry's func index
	section(&b, 9, elemSection.Bytes())

	entryBody := []byte{
		0x00,             // no locals
		0x41, 0x00,       // i32.const 0   (store addr)
		0x10, 0x00,       // call 0        (wasix_context_main)
		0x37, 0x00, 0x00, // i64.store align=0 offset=0
		0x42, 0x00, // i64.const 0   (MainID)
		0x10, 0x02, // call 2        (wasix_context_switch)
		0x0b, // end
	}
	runBody := []byte{
		0x00,             // no locals
		0x41, 0x08,       // i32.const 8   (out_id_ptr)
		0x41, 0x00,       // i32.const 0   (entry table position)
		0x10, 0x01,       // call 1        (wasix_context_create)
		0x1a,             // drop          (errno)
		0x41, 0x08,       // i32.const 8
		0x29, 0x00, 0x00, // i64.load align=0 offset=0 (the created id)
		0x10, 0x02,       // call 2        (wasix_context_switch)
		0x41, 0x00,       // i32.const 0
		0x29, 0x00, 0x00, // i64.load align=0 offset=0 (what entry wrote)
		0x0b, // end
	}
	var codeSection bytes.Buffer
	codeSection.WriteByte(0x02)
	codeSection.WriteByte(byte(len(entryBody)))
	codeSection.Write(entryBody)
	codeSection.WriteByte(byte(len(runBody)))
	codeSection.Write(runBody)
	section(&b, 10, codeSection.Bytes())

	return b.Bytes()
}

// TestWasixHostModule_S5_ContextSwitchRoundTrip is scenario S5 exercised
// through a real Instance: unlike TestWasixHostModule_ContextMainViaImport,
// this calls wasix_context_switch, not just wasix_context_main, so the
// context actually created by wasix_context_create runs its entry function
// and hands control back via a real switch before "run" observes the
// result.
func TestWasixHostModule_S5_ContextSwitchRoundTrip(t *testing.T) {
	store := wasmstore.NewStore(engine.NewEngine(interpreter.NewCompiler(), wasm.Features20191205, nil), wasm.Features20191205, nil)

	_, err := wasix.NewHostModule(store, nil)
	require.NoError(t, err)

	wasmBytes := contextSwitchModuleBytes()
	module, err := binary.DecodeModule(bytes.NewReader(wasmBytes), wasm.Features20191205)
	require.NoError(t, err)
	require.NoError(t, binary.Validate(module, wasm.Features20191205))

	inst, err := wasmstore.Instantiate(context.Background(), store, "guest", wasmBytes, module)
	require.NoError(t, err)

	fn := inst.ExportedFunction("run")
	require.NotNil(t, fn)
	results, err := fn.Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{wasix.MainID}, results)
}

func TestWasixHostModule_ContextMainViaImport(t *testing.T) {
	store := wasmstore.NewStore(engine.NewEngine(interpreter.NewCompiler(), wasm.Features20191205, nil), wasm.Features20191205, nil)

	_, err := wasix.NewHostModule(store, nil)
	require.NoError(t, err)

	wasmBytes := importingModuleBytes()
	module, err := binary.DecodeModule(bytes.NewReader(wasmBytes), wasm.Features20191205)
	require.NoError(t, err)
	require.NoError(t, binary.Validate(module, wasm.Features20191205))

	inst, err := wasmstore.Instantiate(context.Background(), store, "guest", wasmBytes, module)
	require.NoError(t, err)

	fn := inst.ExportedFunction("get_main")
	require.NotNil(t, fn)
	results, err := fn.Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{wasix.MainID}, results)
}
