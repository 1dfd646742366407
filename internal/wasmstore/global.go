package wasmstore

import (
	"fmt"

	"github.com/wasmrt/wasmrt/api"
)

// globalInstance is the runtime representation of a global cell (spec.md
// §3). Immutable globals are never written after instantiate() returns them
// (spec.md §3 Global invariant); nothing in this package enforces that at
// the type level beyond Instance never calling Set on one.
type globalInstance struct {
	storeID StoreId
	typ     api.ValueType
	mutable bool
	val     uint64
}

func (g *globalInstance) Type() api.ValueType { return g.typ }
func (g *globalInstance) Get() uint64         { return g.val }
func (g *globalInstance) Set(v uint64)        { g.val = v }

func (g *globalInstance) String() string {
	return fmt.Sprintf("Global(%s,%v)", api.ValueTypeName(g.typ), g.val)
}

var (
	_ api.Global        = (*globalInstance)(nil)
	_ api.MutableGlobal  = (*globalInstance)(nil)
)
