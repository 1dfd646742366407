package wasmstore

import (
	"context"
	"reflect"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// funcSlot is one entry of an Instance's combined (imports-first) function
// index space. A slot is either a guest function compiled into some
// instance's Artifact (possibly this one, possibly an imported owner when
// the slot resolves an import), or a host function supplied directly as a
// Go closure.
type funcSlot struct {
	typ *wasm.FunctionType

	// guest function
	isGuest     bool
	ownerInst   *Instance // the instance whose Artifact.Functions/VM this call runs against
	compiledIdx int       // index into ownerInst.artifact.Functions

	// host function
	host     api.GoModuleFunction
	hostName string

	def *funcDefinition
}

// funcDefinition implements api.FunctionDefinition.
type funcDefinition struct {
	moduleName, name string
	index            uint32
	exportNames      []string
	importModule     string
	importName       string
	isImport         bool
	goFunc           *reflect.Value
	params, results  []api.ValueType
}

func (d *funcDefinition) ModuleName() string { return d.moduleName }
func (d *funcDefinition) Index() uint32      { return d.index }
func (d *funcDefinition) Name() string       { return d.name }
func (d *funcDefinition) DebugName() string {
	if d.name != "" {
		return d.moduleName + "." + d.name
	}
	return d.moduleName
}
func (d *funcDefinition) Import() (moduleName, name string, isImport bool) {
	return d.importModule, d.importName, d.isImport
}
func (d *funcDefinition) ExportNames() []string       { return d.exportNames }
func (d *funcDefinition) GoFunc() *reflect.Value       { return d.goFunc }
func (d *funcDefinition) ParamTypes() []api.ValueType  { return d.params }
func (d *funcDefinition) ParamNames() []string         { return nil }
func (d *funcDefinition) ResultTypes() []api.ValueType { return d.results }

// exportedFunction implements api.Function for a function reached via
// api.Module.ExportedFunction.
type exportedFunction struct {
	inst *Instance
	idx  wasm.Index
	def  api.FunctionDefinition
}

func (f *exportedFunction) Definition() api.FunctionDefinition { return f.def }

func (f *exportedFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	results, trap := f.inst.callExported(ctx, f.idx, params)
	if trap != nil {
		return nil, trap
	}
	return results, nil
}

var _ api.Function = (*exportedFunction)(nil)
