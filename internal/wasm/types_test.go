package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmrt/wasmrt/api"
)

func TestFunctionType_Equal(t *testing.T) {
	i32i32_i32 := &FunctionType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	i32i32_i32b := &FunctionType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	i32_i32 := &FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}

	require.True(t, i32i32_i32.Equal(i32i32_i32b))
	require.False(t, i32i32_i32.Equal(i32_i32))
	require.False(t, (*FunctionType)(nil).Equal(i32_i32))
	require.True(t, (*FunctionType)(nil).Equal(nil))
}

func TestFunctionType_String(t *testing.T) {
	ft := &FunctionType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI64}, Results: []api.ValueType{api.ValueTypeF32}}
	require.Equal(t, "(i32,i64)->(f32)", ft.String())
}

func TestMemory_MaxOrDefault(t *testing.T) {
	require.Equal(t, uint32(MemoryMaxPages), (&Memory{}).MaxOrDefault())
	require.Equal(t, uint32(10), (&Memory{HasMax: true, Max: 10}).MaxOrDefault())
}

func TestModuleInfo_ImportedFunctionCount(t *testing.T) {
	m := &ModuleInfo{
		ImportSection: []*Import{
			{Type: api.ExternTypeFunc, DescFunc: 0},
			{Type: api.ExternTypeMemory, DescMem: &Memory{}},
			{Type: api.ExternTypeFunc, DescFunc: 0},
		},
		FunctionSection: []Index{0},
	}
	require.Equal(t, Index(2), m.ImportedFunctionCount())
	require.Equal(t, Index(0), m.ImportedTableCount())
	require.Equal(t, Index(1), m.ImportedMemoryCount())
}

func TestModuleInfo_TypeOfFunction(t *testing.T) {
	addType := &FunctionType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	negType := &FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	m := &ModuleInfo{
		TypeSection:     []*FunctionType{addType, negType},
		ImportSection:   []*Import{{Type: api.ExternTypeFunc, DescFunc: 1}}, // imported "neg"
		FunctionSection: []Index{0},                                        // local "add"
	}

	require.Same(t, negType, m.TypeOfFunction(0))
	require.Same(t, addType, m.TypeOfFunction(1))
	require.Nil(t, m.TypeOfFunction(2))
}
