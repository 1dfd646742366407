package wasmstore

import (
	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// nullRef is the sentinel stored in a table slot or local for a null
// reference, matching the convention internal/engine/interpreter uses for
// ref.null/table element results (reference values are opaque 64-bit
// handles, and 0 is a valid funcref index, so null cannot be 0).
const nullRef = ^uint64(0)

// tableInstance is the runtime representation of a table of references
// (spec.md §3, §4.6). It implements both api.Table and engine.TableAccess.
type tableInstance struct {
	storeID StoreId
	refType api.ValueType
	max     uint32
	refs    []uint64
}

func newTableInstance(storeID StoreId, t *wasm.Table) *tableInstance {
	max := t.Max
	if !t.HasMax {
		max = ^uint32(0)
	}
	refs := make([]uint64, t.Min)
	for i := range refs {
		refs[i] = nullRef
	}
	return &tableInstance{storeID: storeID, refType: t.Type, max: max, refs: refs}
}

func (t *tableInstance) Size() uint32 { return uint32(len(t.refs)) }

func (t *tableInstance) Type() api.ValueType { return t.refType }

func (t *tableInstance) Grow(delta uint32, init uint64) (previous uint32, ok bool) {
	prev := t.Size()
	next := prev + delta
	if delta > 0 && next < prev {
		return prev, false
	}
	if next > t.max {
		return prev, false
	}
	grown := make([]uint64, next)
	copy(grown, t.refs)
	for i := prev; i < next; i++ {
		grown[i] = init
	}
	t.refs = grown
	return prev, true
}

func (t *tableInstance) Get(idx uint32) (uint64, bool) {
	if idx >= uint32(len(t.refs)) {
		return 0, false
	}
	return t.refs[idx], true
}

func (t *tableInstance) Set(idx uint32, v uint64) bool {
	if idx >= uint32(len(t.refs)) {
		return false
	}
	t.refs[idx] = v
	return true
}
