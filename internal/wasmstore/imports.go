package wasmstore

import (
	"fmt"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// resolveImports matches every entry of module's import section against an
// already-registered Instance in store, by (module name, export name),
// exactly as wazero's Store.resolveImports does (spec.md §4.5 step 1).
func resolveImports(store *Store, module *wasm.ModuleInfo) (
	funcs []*funcSlot,
	mems []*memoryInstance,
	tables []*tableInstance,
	globals []*globalInstance,
	err error,
) {
	for idx, imp := range module.ImportSection {
		owner, ok := store.Module(imp.Module)
		if !ok {
			return nil, nil, nil, nil, errMissingImport(imp.Module, imp.Name)
		}
		if err := store.checkStore(owner.storeID, fmt.Sprintf("import source module %q", imp.Module)); err != nil {
			return nil, nil, nil, nil, err
		}
		exp, ok := owner.exports[imp.Name]
		if !ok || exp.Type != imp.Type {
			return nil, nil, nil, nil, errMissingImport(imp.Module, imp.Name)
		}

		switch imp.Type {
		case api.ExternTypeFunc:
			if int(imp.DescFunc) >= len(module.TypeSection) {
				return nil, nil, nil, nil, errIncompatibleImportType(imp.Module, imp.Name, "function type index out of range")
			}
			want := module.TypeSection[imp.DescFunc]
			slot := owner.functions[exp.Index]
			if !slot.typ.Equal(want) {
				return nil, nil, nil, nil, errIncompatibleImportType(imp.Module, imp.Name,
					fmt.Sprintf("signature mismatch: want %s, have %s", want, slot.typ))
			}
			funcs = append(funcs, slot)

		case api.ExternTypeMemory:
			want := imp.DescMem
			have := owner.memories[exp.Index]
			if want.Min > have.Size() {
				return nil, nil, nil, nil, errIncompatibleImportType(imp.Module, imp.Name,
					fmt.Sprintf("minimum size mismatch: %d > %d", want.Min, have.Size()))
			}
			if want.MaxOrDefault() < have.max {
				return nil, nil, nil, nil, errIncompatibleImportType(imp.Module, imp.Name,
					fmt.Sprintf("maximum size mismatch: %d < %d", want.MaxOrDefault(), have.max))
			}
			mems = append(mems, have)

		case api.ExternTypeTable:
			want := imp.DescTable
			have := owner.tables[exp.Index]
			if want.Type != have.refType {
				return nil, nil, nil, nil, errIncompatibleImportType(imp.Module, imp.Name, "reference type mismatch")
			}
			if want.Min > have.Size() {
				return nil, nil, nil, nil, errIncompatibleImportType(imp.Module, imp.Name,
					fmt.Sprintf("minimum size mismatch: %d > %d", want.Min, have.Size()))
			}
			wantMax := ^uint32(0)
			if want.HasMax {
				wantMax = want.Max
			}
			if wantMax < have.max {
				return nil, nil, nil, nil, errIncompatibleImportType(imp.Module, imp.Name,
					fmt.Sprintf("maximum size mismatch: %d < %d", wantMax, have.max))
			}
			tables = append(tables, have)

		case api.ExternTypeGlobal:
			want := imp.DescGlobal
			have := owner.globals[exp.Index]
			if want.Mutable != have.mutable {
				return nil, nil, nil, nil, errIncompatibleImportType(imp.Module, imp.Name, "mutability mismatch")
			}
			if want.ValType != have.typ {
				return nil, nil, nil, nil, errIncompatibleImportType(imp.Module, imp.Name, "value type mismatch")
			}
			globals = append(globals, have)

		default:
			return nil, nil, nil, nil, errIncompatibleImportType(imp.Module, imp.Name, fmt.Sprintf("import[%d]: unknown kind", idx))
		}
	}
	return funcs, mems, tables, globals, nil
}
