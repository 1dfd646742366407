package wasix

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/wasm"
	"github.com/wasmrt/wasmrt/internal/wasmstore"
)

// ModuleName is the import module name guest code names in its import
// section to reach these functions, e.g. (import "wasix" "wasix_context_switch" ...).
const ModuleName = "wasix"

// registry lazily builds one Manager per importing api.Module: the host
// instance built by NewHostModule is constructed before any guest module
// has resolved imports against it, so which Instance calls in first is
// only known at call time.
type registry struct {
	mu       sync.Mutex
	managers map[api.Module]*Manager
	log      *logrus.Entry
}

func (r *registry) managerFor(mod api.Module) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[mod]; ok {
		return m
	}
	m, err := NewManager(mod, r.log)
	if err != nil {
		// mod does not implement funcCaller: can only happen if something
		// other than internal/wasmstore.Instance imports this module.
		panic(api.NewTrap(api.TrapCodeHostError))
	}
	r.managers[mod] = m
	return m
}

// NewHostModule builds the "wasix" host instance exposing the context
// subsystem's import surface (spec.md §6.2, SPEC_FULL.md §4.8): a guest
// module imports from it exactly as it would import from any other
// instance registered in the same Store.
func NewHostModule(store *wasmstore.Store, log *logrus.Entry) (*wasmstore.Instance, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	reg := &registry{managers: map[api.Module]*Manager{}, log: log}

	funcs := []wasmstore.HostFunc{
		{
			Name:    "wasix_context_create",
			Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			Results: []api.ValueType{api.ValueTypeI32},
			Func: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				outIDPtr := uint32(stack[0])
				entryTablePos := wasm.Index(uint32(stack[1]))
				mgr := reg.managerFor(mod)
				id := mgr.Create(entryTablePos)
				if !mod.Memory().WriteUint64Le(outIDPtr, id) {
					stack[0] = uint64(errno(errOutOfMemory))
					return
				}
				stack[0] = uint64(errno(nil))
			}),
		},
		{
			Name:    "wasix_context_switch",
			Params:  []api.ValueType{api.ValueTypeI64},
			Results: nil,
			Func: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				reg.managerFor(mod).Switch(stack[0])
			}),
		},
		{
			Name:    "wasix_context_destroy",
			Params:  []api.ValueType{api.ValueTypeI64},
			Results: []api.ValueType{api.ValueTypeI32},
			Func: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				err := reg.managerFor(mod).Destroy(stack[0])
				stack[0] = uint64(errno(err))
			}),
		},
		{
			Name:    "wasix_context_main",
			Params:  nil,
			Results: []api.ValueType{api.ValueTypeI64},
			Func: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = reg.managerFor(mod).Main()
			}),
		},
		{
			Name:    "wasix_context_yield",
			Params:  nil,
			Results: nil,
			Func: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				reg.managerFor(mod).Yield()
			}),
		},
		{
			Name:    "wasix_context_status",
			Params:  []api.ValueType{api.ValueTypeI64},
			Results: []api.ValueType{api.ValueTypeI32},
			Func: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				state, _ := reg.managerFor(mod).Status(stack[0])
				stack[0] = uint64(state)
			}),
		},
	}

	return wasmstore.NewHostInstance(store, ModuleName, funcs, nil)
}
