package wasmstore

import (
	"encoding/binary"
	"math"

	"github.com/wasmrt/wasmrt/internal/wasm"
)

// memoryInstance is the runtime representation of a linear memory (spec.md
// §3, §4.6). It implements both api.Memory (the surface exposed to host
// functions and embedders) and engine.MemoryAccess (the narrower surface a
// CompiledFunction needs).
type memoryInstance struct {
	storeID StoreId
	min     uint32 // pages
	max     uint32 // pages, always valid: defaults to wasm.MemoryMaxPages
	shared  bool
	buf     []byte
}

func newMemoryInstance(storeID StoreId, m *wasm.Memory) *memoryInstance {
	return &memoryInstance{
		storeID: storeID,
		min:     m.Min,
		max:     m.MaxOrDefault(),
		shared:  m.Shared,
		buf:     make([]byte, uint64(m.Min)*wasm.MemoryPageSize),
	}
}

// Size implements api.Memory and engine.MemoryAccess.
func (m *memoryInstance) Size() uint32 { return uint32(len(m.buf) / wasm.MemoryPageSize) }

// Bytes implements engine.MemoryAccess: a direct view for the interpreter's
// load/store opcodes, which do their own bounds checking.
func (m *memoryInstance) Bytes() []byte { return m.buf }

// Grow implements api.Memory and engine.MemoryAccess. Existing bytes are
// preserved for [0, prevSize*65536) per spec.md §3/TESTABLE PROPERTY 2.
func (m *memoryInstance) Grow(deltaPages uint32) (previousPages uint32, ok bool) {
	prev := m.Size()
	next := prev + deltaPages
	if deltaPages > 0 && next < prev { // overflow
		return prev, false
	}
	if next > m.max {
		return prev, false
	}
	grown := make([]byte, uint64(next)*wasm.MemoryPageSize)
	copy(grown, m.buf)
	m.buf = grown
	return prev, true
}

func (m *memoryInstance) inBounds(offset, byteCount uint32) bool {
	end := uint64(offset) + uint64(byteCount)
	return end <= uint64(len(m.buf))
}

func (m *memoryInstance) ReadByte(offset uint32) (byte, bool) {
	if !m.inBounds(offset, 1) {
		return 0, false
	}
	return m.buf[offset], true
}

func (m *memoryInstance) ReadUint16Le(offset uint32) (uint16, bool) {
	if !m.inBounds(offset, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.buf[offset:]), true
}

func (m *memoryInstance) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.inBounds(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.buf[offset:]), true
}

func (m *memoryInstance) ReadFloat32Le(offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(offset)
	return math.Float32frombits(v), ok
}

func (m *memoryInstance) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.inBounds(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.buf[offset:]), true
}

func (m *memoryInstance) ReadFloat64Le(offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(offset)
	return math.Float64frombits(v), ok
}

func (m *memoryInstance) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.inBounds(offset, byteCount) {
		return nil, false
	}
	return m.buf[offset : offset+byteCount : offset+byteCount], true
}

func (m *memoryInstance) WriteByte(offset uint32, v byte) bool {
	if !m.inBounds(offset, 1) {
		return false
	}
	m.buf[offset] = v
	return true
}

func (m *memoryInstance) WriteUint16Le(offset uint32, v uint16) bool {
	if !m.inBounds(offset, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.buf[offset:], v)
	return true
}

func (m *memoryInstance) WriteUint32Le(offset, v uint32) bool {
	if !m.inBounds(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.buf[offset:], v)
	return true
}

func (m *memoryInstance) WriteFloat32Le(offset uint32, v float32) bool {
	return m.WriteUint32Le(offset, math.Float32bits(v))
}

func (m *memoryInstance) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.inBounds(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.buf[offset:], v)
	return true
}

func (m *memoryInstance) WriteFloat64Le(offset uint32, v float64) bool {
	return m.WriteUint64Le(offset, math.Float64bits(v))
}

func (m *memoryInstance) Write(offset uint32, v []byte) bool {
	if !m.inBounds(offset, uint32(len(v))) {
		return false
	}
	copy(m.buf[offset:], v)
	return true
}
