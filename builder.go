package wasmrt

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/wasm"
	"github.com/wasmrt/wasmrt/internal/wasmstore"
)

// HostFunctionBuilder defines a host function (in Go), so that a guest
// WebAssembly module can import and call it.
//
// Here's an example of an addition function:
//
//	hostModuleBuilder.NewFunctionBuilder().
//		WithFunc(func(ctx context.Context, x, y uint32) uint32 {
//			return x + y
//		}).
//		Export("add")
//
// # Memory
//
// All host functions act on the importing api.Module, including any memory
// it exports. If you are reading or writing memory, it is sandboxed Wasm
// memory owned by the guest:
//
//	fn := func(ctx context.Context, m api.Module, offset uint32) uint32 {
//		x, _ := m.Memory().ReadUint32Le(offset)
//		return x
//	}
type HostFunctionBuilder interface {
	// WithGoFunction is an advanced alternative to WithFunc for callers who
	// need to avoid reflect's overhead: params/results are explicit, and fn
	// reads/writes its operands directly on the uint64 stack.
	WithGoFunction(fn api.GoFunction, params, results []api.ValueType) HostFunctionBuilder

	// WithGoModuleFunction is like WithGoFunction, but fn also receives the
	// calling api.Module, typically to access its Memory.
	WithGoModuleFunction(fn api.GoModuleFunction, params, results []api.ValueType) HostFunctionBuilder

	// WithFunc uses reflect to map a Go func to a WebAssembly-compatible
	// signature. An input that isn't a func, or whose signature breaks the
	// rules below, doesn't fail Export: the function is still exported, and
	// calling it traps with the signature error.
	//
	// Except for a leading context.Context and an optional second
	// api.Module parameter, every parameter and result must be uint32,
	// int32, uint64, int64, float32 or float64 — the Go-side encodings of
	// the four Wasm numeric value types.
	//
	//	builder.WithFunc(func(ctx context.Context, m api.Module, offset, byteCount uint32) uint32 {
	//		buf, _ := m.Memory().Read(offset, byteCount)
	//		return uint32(len(buf))
	//	})
	WithFunc(fn interface{}) HostFunctionBuilder

	// WithName defines the optional module-local name of this function,
	// e.g. "random_get". This need not match the name passed to Export.
	WithName(name string) HostFunctionBuilder

	// Export exports this function from the enclosing HostModuleBuilder
	// under name.
	Export(name string) HostModuleBuilder
}

// HostModuleBuilder defines a set of host functions (and optionally a
// memory) as a single importable instance, the host side of an ABI like
// WASIX. Methods do not return errors, to allow chaining: a malformed
// WithFunc signature doesn't fail Instantiate either, and surfaces as a
// trap when the function is called.
type HostModuleBuilder interface {
	// ExportMemory adds linear memory which a guest module can import and
	// access via api.Memory.
	ExportMemory(name string, minPages uint32) HostModuleBuilder

	// ExportMemoryWithMax is like ExportMemory, but bounds how far the
	// memory can grow.
	ExportMemoryWithMax(name string, minPages, maxPages uint32) HostModuleBuilder

	// NewFunctionBuilder begins the definition of a host function.
	NewFunctionBuilder() HostFunctionBuilder

	// Instantiate builds and registers this host module against the owning
	// Runtime's Store, returning it as an api.Module.
	Instantiate(ctx context.Context) (api.Module, error)
}

type hostModuleBuilder struct {
	r          *Runtime
	moduleName string
	funcs      []wasmstore.HostFunc
	memory     *wasm.Memory
}

// ExportMemory adds linear memory to this host module. name is accepted for
// interface symmetry with guest modules, but wasmstore.NewHostInstance
// always exports a host module's sole memory under the conventional name
// "memory" (the name every WASI-style ABI expects).
func (b *hostModuleBuilder) ExportMemory(name string, minPages uint32) HostModuleBuilder {
	b.memory = &wasm.Memory{Min: minPages, HasMax: false}
	return b
}

// ExportMemoryWithMax is like ExportMemory, but bounds how far the memory
// can grow.
func (b *hostModuleBuilder) ExportMemoryWithMax(name string, minPages, maxPages uint32) HostModuleBuilder {
	b.memory = &wasm.Memory{Min: minPages, Max: maxPages, HasMax: true}
	return b
}

func (b *hostModuleBuilder) NewFunctionBuilder() HostFunctionBuilder {
	return &hostFunctionBuilder{b: b}
}

func (b *hostModuleBuilder) Instantiate(ctx context.Context) (api.Module, error) {
	return wasmstore.NewHostInstance(b.r.store, b.moduleName, b.funcs, b.memory)
}

type hostFunctionBuilder struct {
	b       *hostModuleBuilder
	fn      interface{}
	params  []api.ValueType
	results []api.ValueType
	name    string
	err     error
}

func (h *hostFunctionBuilder) WithGoFunction(fn api.GoFunction, params, results []api.ValueType) HostFunctionBuilder {
	h.fn = api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) { fn.Call(ctx, stack) })
	h.params, h.results = params, results
	return h
}

func (h *hostFunctionBuilder) WithGoModuleFunction(fn api.GoModuleFunction, params, results []api.ValueType) HostFunctionBuilder {
	h.fn = fn
	h.params, h.results = params, results
	return h
}

func (h *hostFunctionBuilder) WithFunc(fn interface{}) HostFunctionBuilder {
	params, results, goFn, err := reflectHostFunc(fn)
	if err != nil {
		h.err = err
		return h
	}
	h.fn, h.params, h.results = goFn, params, results
	return h
}

func (h *hostFunctionBuilder) WithName(name string) HostFunctionBuilder {
	h.name = name
	return h
}

func (h *hostFunctionBuilder) Export(exportName string) HostModuleBuilder {
	if h.err != nil {
		h.b.funcs = append(h.b.funcs, wasmstore.HostFunc{
			Name: exportName,
			Func: api.GoModuleFunc(func(context.Context, api.Module, []uint64) {
				panic(fmt.Errorf("wasmrt: host function %q: %w", exportName, h.err))
			}),
		})
		return h.b
	}
	goFn, _ := h.fn.(api.GoModuleFunction)
	h.b.funcs = append(h.b.funcs, wasmstore.HostFunc{
		Name:    exportName,
		Debug:   h.name,
		Params:  h.params,
		Results: h.results,
		Func:    goFn,
	})
	return h.b
}

// contextType and moduleType anchor the reflect-based signature scan in
// reflectHostFunc.
var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	moduleType  = reflect.TypeOf((*api.Module)(nil)).Elem()
)

// reflectHostFunc maps an arbitrary Go func to the (params, results,
// api.GoModuleFunction) triple HostFunctionBuilder.Export needs, per
// WithFunc's documented calling convention: a leading context.Context, an
// optional api.Module, then numeric operands/results.
func reflectHostFunc(fn interface{}) (params, results []api.ValueType, goFn api.GoModuleFunction, err error) {
	rv := reflect.ValueOf(fn)
	rt := rv.Type()
	if rt.Kind() != reflect.Func {
		return nil, nil, nil, fmt.Errorf("wasmrt: WithFunc requires a func, got %s", rt.Kind())
	}
	if rt.NumIn() == 0 || rt.In(0) != contextType {
		return nil, nil, nil, fmt.Errorf("wasmrt: WithFunc's first parameter must be context.Context")
	}

	firstOperand := 1
	withModule := rt.NumIn() > 1 && rt.In(1) == moduleType
	if withModule {
		firstOperand = 2
	}

	params = make([]api.ValueType, 0, rt.NumIn()-firstOperand)
	for i := firstOperand; i < rt.NumIn(); i++ {
		vt, verr := goKindToValueType(rt.In(i).Kind())
		if verr != nil {
			return nil, nil, nil, fmt.Errorf("wasmrt: WithFunc parameter %d: %w", i, verr)
		}
		params = append(params, vt)
	}
	results = make([]api.ValueType, 0, rt.NumOut())
	for i := 0; i < rt.NumOut(); i++ {
		vt, verr := goKindToValueType(rt.Out(i).Kind())
		if verr != nil {
			return nil, nil, nil, fmt.Errorf("wasmrt: WithFunc result %d: %w", i, verr)
		}
		results = append(results, vt)
	}

	goFn = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		args := make([]reflect.Value, rt.NumIn())
		args[0] = reflect.ValueOf(ctx)
		if withModule {
			args[1] = reflect.ValueOf(mod)
		}
		for i, vt := range params {
			args[firstOperand+i] = decodeOperand(vt, rt.In(firstOperand+i), stack[i])
		}
		out := rv.Call(args)
		for i := range out {
			stack[i] = encodeOperand(results[i], out[i])
		}
	})
	return params, results, goFn, nil
}

func goKindToValueType(k reflect.Kind) (api.ValueType, error) {
	switch k {
	case reflect.Uint32, reflect.Int32:
		return api.ValueTypeI32, nil
	case reflect.Uint64, reflect.Int64:
		return api.ValueTypeI64, nil
	case reflect.Float32:
		return api.ValueTypeF32, nil
	case reflect.Float64:
		return api.ValueTypeF64, nil
	default:
		return 0, fmt.Errorf("unsupported Go type kind %s", k)
	}
}

func decodeOperand(vt api.ValueType, t reflect.Type, v uint64) reflect.Value {
	switch vt {
	case api.ValueTypeI32:
		if t.Kind() == reflect.Int32 {
			return reflect.ValueOf(int32(uint32(v))).Convert(t)
		}
		return reflect.ValueOf(uint32(v)).Convert(t)
	case api.ValueTypeI64:
		if t.Kind() == reflect.Int64 {
			return reflect.ValueOf(int64(v)).Convert(t)
		}
		return reflect.ValueOf(v).Convert(t)
	case api.ValueTypeF32:
		return reflect.ValueOf(api.DecodeF32(v)).Convert(t)
	default: // api.ValueTypeF64
		return reflect.ValueOf(api.DecodeF64(v)).Convert(t)
	}
}

func encodeOperand(vt api.ValueType, v reflect.Value) uint64 {
	switch vt {
	case api.ValueTypeI32:
		if v.Kind() == reflect.Int32 {
			return api.EncodeI32(int32(v.Int()))
		}
		return uint64(uint32(v.Uint()))
	case api.ValueTypeI64:
		if v.Kind() == reflect.Uint64 {
			return v.Uint()
		}
		return api.EncodeI64(v.Int())
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v.Float()))
	default: // api.ValueTypeF64
		return api.EncodeF64(v.Float())
	}
}
