// Package binary implements the streaming decoder and validator for the
// WebAssembly binary format (spec.md §4.1): bytes -> wasm.ModuleInfo.
package binary

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/leb128"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

var wasmMagic = [4]byte{0x00, 0x61, 0x73, 0x6d} // "\0asm"

const wasmVersion = 1

type sectionID = byte

const (
	sectionCustom sectionID = iota
	sectionType
	sectionImport
	sectionFunction
	sectionTable
	sectionMemory
	sectionGlobal
	sectionExport
	sectionStart
	sectionElement
	sectionCode
	sectionData
)

// DecodeModule performs a single forward pass over r, decoding it into a
// ModuleInfo. It never requires random access beyond section-local
// lookahead, per spec.md §4.1's streaming contract. The result is not yet
// validated; call Validate before compiling.
func DecodeModule(r io.Reader, features wasm.Features) (*wasm.ModuleInfo, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, wasm.ErrBadMagic(magic[:])
	}
	if magic != wasmMagic {
		return nil, wasm.ErrBadMagic(magic[:])
	}
	var versionBytes [4]byte
	if _, err := io.ReadFull(br, versionBytes[:]); err != nil {
		return nil, wasm.ErrUnsupportedVersion(0)
	}
	version := leU32(versionBytes[:])
	if version != wasmVersion {
		return nil, wasm.ErrUnsupportedVersion(version)
	}

	d := &decoder{features: features}
	seen := map[sectionID]bool{}
	lastNonCustom := sectionID(0)

	for {
		id, err := br.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("wasm: read section id: %w", err)
		}
		size, _, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, wasm.ErrBadLeb("section size", err)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, wasm.ErrTruncatedSection(sectionName(id))
		}
		pr := bytes.NewReader(payload)

		if id != sectionCustom {
			if seen[id] {
				return nil, wasm.ErrDuplicateSection(id)
			}
			if id < lastNonCustom {
				return nil, wasm.ErrOutOfOrderSection(id)
			}
			seen[id] = true
			lastNonCustom = id
		}

		if err := d.decodeSection(id, pr); err != nil {
			return nil, err
		}
	}

	return &d.module, nil
}

type decoder struct {
	module   wasm.ModuleInfo
	features wasm.Features
}

func (d *decoder) decodeSection(id sectionID, r *bytes.Reader) error {
	switch id {
	case sectionCustom:
		return d.decodeCustomSection(r)
	case sectionType:
		return d.decodeTypeSection(r)
	case sectionImport:
		return d.decodeImportSection(r)
	case sectionFunction:
		return d.decodeFunctionSection(r)
	case sectionTable:
		return d.decodeTableSection(r)
	case sectionMemory:
		return d.decodeMemorySection(r)
	case sectionGlobal:
		return d.decodeGlobalSection(r)
	case sectionExport:
		return d.decodeExportSection(r)
	case sectionStart:
		return d.decodeStartSection(r)
	case sectionElement:
		return d.decodeElementSection(r)
	case sectionCode:
		return d.decodeCodeSection(r)
	case sectionData:
		return d.decodeDataSection(r)
	default:
		return wasm.ErrUnknownSection(id)
	}
}

func sectionName(id sectionID) string {
	names := [...]string{"custom", "type", "import", "function", "table", "memory", "global", "export", "start", "element", "code", "data"}
	if int(id) < len(names) {
		return names[id]
	}
	return fmt.Sprintf("section(%d)", id)
}

func readVecCount(r *bytes.Reader, what string) (uint32, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, wasm.ErrBadLeb(what+" count", err)
	}
	return n, nil
}

func readName(r *bytes.Reader) (string, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", wasm.ErrBadLeb("name length", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("wasm: read name: %w", err)
	}
	return string(buf), nil
}

func (d *decoder) decodeCustomSection(r *bytes.Reader) error {
	name, err := readName(r)
	if err != nil {
		return err
	}
	rest := make([]byte, r.Len())
	if _, err := io.ReadFull(r, rest); err != nil {
		return err
	}
	if name == "name" {
		d.module.NameSection = decodeNameSection(rest)
	}
	d.module.CustomSections = append(d.module.CustomSections, &wasm.CustomSection{Name: name, Data: rest})
	return nil
}

func (d *decoder) decodeTypeSection(r *bytes.Reader) error {
	n, err := readVecCount(r, "type section")
	if err != nil {
		return err
	}
	d.module.TypeSection = make([]*wasm.FunctionType, n)
	for i := range d.module.TypeSection {
		form, err := r.ReadByte()
		if err != nil || form != 0x60 {
			return wasm.ErrBadLeb("functype form", fmt.Errorf("expected 0x60, got %#x", form))
		}
		params, err := readValTypeVec(r)
		if err != nil {
			return err
		}
		results, err := readValTypeVec(r)
		if err != nil {
			return err
		}
		if len(results) > 1 {
			if err := d.features.Require(wasm.FeatureMultiValue, "multi-value"); err != nil {
				return err
			}
		}
		d.module.TypeSection[i] = &wasm.FunctionType{Params: params, Results: results}
	}
	return nil
}

func readValTypeVec(r *bytes.Reader) ([]api.ValueType, error) {
	n, err := readVecCount(r, "value type vector")
	if err != nil {
		return nil, err
	}
	out := make([]api.ValueType, n)
	for i := range out {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("wasm: read value type: %w", err)
		}
		out[i] = b
	}
	return out, nil
}

func (d *decoder) decodeImportSection(r *bytes.Reader) error {
	n, err := readVecCount(r, "import section")
	if err != nil {
		return err
	}
	d.module.ImportSection = make([]*wasm.Import, n)
	for i := range d.module.ImportSection {
		mod, err := readName(r)
		if err != nil {
			return err
		}
		name, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("wasm: read import kind: %w", err)
		}
		imp := &wasm.Import{Type: kind, Module: mod, Name: name}
		switch kind {
		case api.ExternTypeFunc:
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return wasm.ErrBadLeb("import func type index", err)
			}
			imp.DescFunc = idx
		case api.ExternTypeTable:
			tbl, err := decodeTableType(r)
			if err != nil {
				return err
			}
			imp.DescTable = tbl
		case api.ExternTypeMemory:
			mem, err := decodeMemoryType(r)
			if err != nil {
				return err
			}
			imp.DescMem = mem
		case api.ExternTypeGlobal:
			gt, err := decodeGlobalType(r)
			if err != nil {
				return err
			}
			imp.DescGlobal = gt
		default:
			return wasm.ErrBadLeb("import kind", fmt.Errorf("unknown kind %#x", kind))
		}
		d.module.ImportSection[i] = imp
	}
	return nil
}

func decodeTableType(r *bytes.Reader) (*wasm.Table, error) {
	elemType, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wasm: read table elem type: %w", err)
	}
	min, max, hasMax, err := decodeLimits(r)
	if err != nil {
		return nil, err
	}
	return &wasm.Table{Type: elemType, Min: min, Max: max, HasMax: hasMax}, nil
}

func decodeMemoryType(r *bytes.Reader) (*wasm.Memory, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wasm: read memory flags: %w", err)
	}
	shared := flags&0x02 != 0
	hasMax := flags&0x01 != 0
	min, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wasm.ErrBadLeb("memory min", err)
	}
	var max uint32
	if hasMax {
		max, _, err = leb128.DecodeUint32(r)
		if err != nil {
			return nil, wasm.ErrBadLeb("memory max", err)
		}
	}
	return &wasm.Memory{Min: min, Max: max, HasMax: hasMax, Shared: shared}, nil
}

func decodeLimits(r *bytes.Reader) (min, max uint32, hasMax bool, err error) {
	flags, err := r.ReadByte()
	if err != nil {
		return 0, 0, false, fmt.Errorf("wasm: read limits flags: %w", err)
	}
	hasMax = flags == 1
	min, _, err = leb128.DecodeUint32(r)
	if err != nil {
		return 0, 0, false, wasm.ErrBadLeb("limits min", err)
	}
	if hasMax {
		max, _, err = leb128.DecodeUint32(r)
		if err != nil {
			return 0, 0, false, wasm.ErrBadLeb("limits max", err)
		}
	}
	return
}

func decodeGlobalType(r *bytes.Reader) (*wasm.GlobalType, error) {
	vt, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wasm: read global value type: %w", err)
	}
	m, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wasm: read global mutability: %w", err)
	}
	return &wasm.GlobalType{ValType: vt, Mutable: m == 1}, nil
}

func (d *decoder) decodeFunctionSection(r *bytes.Reader) error {
	n, err := readVecCount(r, "function section")
	if err != nil {
		return err
	}
	d.module.FunctionSection = make([]wasm.Index, n)
	for i := range d.module.FunctionSection {
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.ErrBadLeb("function type index", err)
		}
		d.module.FunctionSection[i] = idx
	}
	return nil
}

func (d *decoder) decodeTableSection(r *bytes.Reader) error {
	n, err := readVecCount(r, "table section")
	if err != nil {
		return err
	}
	d.module.TableSection = make([]*wasm.Table, n)
	for i := range d.module.TableSection {
		t, err := decodeTableType(r)
		if err != nil {
			return err
		}
		d.module.TableSection[i] = t
	}
	return nil
}

func (d *decoder) decodeMemorySection(r *bytes.Reader) error {
	n, err := readVecCount(r, "memory section")
	if err != nil {
		return err
	}
	d.module.MemorySection = make([]*wasm.Memory, n)
	for i := range d.module.MemorySection {
		m, err := decodeMemoryType(r)
		if err != nil {
			return err
		}
		d.module.MemorySection[i] = m
	}
	return nil
}

func (d *decoder) decodeGlobalSection(r *bytes.Reader) error {
	n, err := readVecCount(r, "global section")
	if err != nil {
		return err
	}
	d.module.GlobalSection = make([]*wasm.GlobalInstance, n)
	for i := range d.module.GlobalSection {
		gt, err := decodeGlobalType(r)
		if err != nil {
			return err
		}
		expr, err := decodeConstExpr(r)
		if err != nil {
			return err
		}
		d.module.GlobalSection[i] = &wasm.GlobalInstance{Type: gt, Init: expr}
	}
	return nil
}

func (d *decoder) decodeExportSection(r *bytes.Reader) error {
	n, err := readVecCount(r, "export section")
	if err != nil {
		return err
	}
	d.module.ExportSection = make([]*wasm.Export, n)
	for i := range d.module.ExportSection {
		name, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("wasm: read export kind: %w", err)
		}
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.ErrBadLeb("export index", err)
		}
		d.module.ExportSection[i] = &wasm.Export{Type: kind, Name: name, Index: idx}
	}
	return nil
}

func (d *decoder) decodeStartSection(r *bytes.Reader) error {
	idx, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wasm.ErrBadLeb("start function index", err)
	}
	d.module.StartSection = &idx
	return nil
}

func (d *decoder) decodeElementSection(r *bytes.Reader) error {
	n, err := readVecCount(r, "element section")
	if err != nil {
		return err
	}
	d.module.ElementSection = make([]*wasm.ElementSegment, n)
	for i := range d.module.ElementSection {
		flags, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.ErrBadLeb("element flags", err)
		}
		seg := &wasm.ElementSegment{}
		switch flags {
		case 0: // active, table 0, funcidx vector
			expr, err := decodeConstExpr(r)
			if err != nil {
				return err
			}
			seg.Offset = expr
			count, err := readVecCount(r, "element init")
			if err != nil {
				return err
			}
			seg.Init = make([]wasm.Index, count)
			for j := range seg.Init {
				idx, _, err := leb128.DecodeUint32(r)
				if err != nil {
					return wasm.ErrBadLeb("element func index", err)
				}
				seg.Init[j] = idx
			}
		default:
			return wasm.NewCompileError("UnsupportedFeature", "element segment flags %d not supported", flags)
		}
		d.module.ElementSection[i] = seg
	}
	return nil
}

func (d *decoder) decodeCodeSection(r *bytes.Reader) error {
	n, err := readVecCount(r, "code section")
	if err != nil {
		return err
	}
	d.module.CodeSection = make([]*wasm.Code, n)
	for i := range d.module.CodeSection {
		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.ErrBadLeb("function body size", err)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return wasm.ErrTruncatedSection("code")
		}
		code, err := decodeFunctionBody(body)
		if err != nil {
			return err
		}
		d.module.CodeSection[i] = code
	}
	return nil
}

func decodeFunctionBody(body []byte) (*wasm.Code, error) {
	br := bytes.NewReader(body)
	groupCount, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return nil, wasm.ErrBadLeb("local group count", err)
	}
	var locals []api.ValueType
	for i := uint32(0); i < groupCount; i++ {
		count, _, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, wasm.ErrBadLeb("local group size", err)
		}
		vt, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("wasm: read local type: %w", err)
		}
		for j := uint32(0); j < count; j++ {
			locals = append(locals, vt)
		}
	}
	rest := body[len(body)-br.Len():]
	return &wasm.Code{LocalTypes: locals, Body: rest}, nil
}

func (d *decoder) decodeDataSection(r *bytes.Reader) error {
	n, err := readVecCount(r, "data section")
	if err != nil {
		return err
	}
	d.module.DataSection = make([]*wasm.DataSegment, n)
	for i := range d.module.DataSection {
		flags, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.ErrBadLeb("data flags", err)
		}
		seg := &wasm.DataSegment{}
		switch flags {
		case 0: // active, memory 0
			expr, err := decodeConstExpr(r)
			if err != nil {
				return err
			}
			seg.Offset = expr
		case 1: // passive
			seg.MemoryIndex = wasm.ElementSegmentNullFunc // marker: no offset/active memory
		case 2: // active, explicit memory index
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return wasm.ErrBadLeb("data memory index", err)
			}
			expr, err := decodeConstExpr(r)
			if err != nil {
				return err
			}
			seg.MemoryIndex, seg.Offset = idx, expr
		default:
			return wasm.ErrBadLeb("data flags", fmt.Errorf("unsupported flags %d", flags))
		}
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.ErrBadLeb("data length", err)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return wasm.ErrTruncatedSection("data")
		}
		seg.Init = buf
		d.module.DataSection[i] = seg
	}
	return nil
}

// decodeConstExpr decodes a constant initializer expression, accepting only
// the opcodes allowed by spec.md §4.1: i32/i64/f32/f64 const, global.get of
// an imported immutable global, and ref.null/ref.func.
func decodeConstExpr(r *bytes.Reader) (wasm.ConstantExpression, error) {
	startOff := r.Size() - int64(r.Len())
	op, err := r.ReadByte()
	if err != nil {
		return wasm.ConstantExpression{}, fmt.Errorf("wasm: read const expr opcode: %w", err)
	}
	switch op {
	case wasm.OpcodeI32Const:
		if _, _, err := leb128.DecodeInt32(r); err != nil {
			return wasm.ConstantExpression{}, wasm.ErrBadLeb("const expr i32", err)
		}
	case wasm.OpcodeI64Const:
		if _, _, err := leb128.DecodeInt64(r); err != nil {
			return wasm.ConstantExpression{}, wasm.ErrBadLeb("const expr i64", err)
		}
	case wasm.OpcodeF32Const:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return wasm.ConstantExpression{}, fmt.Errorf("const expr f32: %w", err)
		}
	case wasm.OpcodeF64Const:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return wasm.ConstantExpression{}, fmt.Errorf("const expr f64: %w", err)
		}
	case wasm.OpcodeGlobalGet:
		if _, _, err := leb128.DecodeUint32(r); err != nil {
			return wasm.ConstantExpression{}, wasm.ErrBadLeb("const expr global.get", err)
		}
	case wasm.OpcodeRefNull:
		if _, err := r.ReadByte(); err != nil {
			return wasm.ConstantExpression{}, fmt.Errorf("const expr ref.null: %w", err)
		}
	case wasm.OpcodeRefFunc:
		if _, _, err := leb128.DecodeUint32(r); err != nil {
			return wasm.ConstantExpression{}, wasm.ErrBadLeb("const expr ref.func", err)
		}
	default:
		return wasm.ConstantExpression{}, wasm.ErrConstantExprInvalid(op)
	}
	end, err := r.ReadByte()
	if err != nil {
		return wasm.ConstantExpression{}, fmt.Errorf("wasm: const expr missing end: %w", err)
	}
	if end != wasm.OpcodeEnd {
		return wasm.ConstantExpression{}, wasm.ErrConstantExprInvalid(end)
	}
	endOff := r.Size() - int64(r.Len())
	length := endOff - startOff
	if _, err := r.Seek(-length, io.SeekCurrent); err != nil {
		return wasm.ConstantExpression{}, fmt.Errorf("wasm: const expr rewind: %w", err)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return wasm.ConstantExpression{}, fmt.Errorf("wasm: const expr re-read: %w", err)
	}
	return wasm.ConstantExpression{Opcode: op, Data: data}, nil
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// nameSubsectionModule, nameSubsectionFunction and nameSubsectionLocal are
// the subsection ids of the custom "name" section (core spec Appendix A).
const (
	nameSubsectionModule = iota
	nameSubsectionFunction
	nameSubsectionLocal
)

// decodeNameSection best-effort parses the "name" custom section payload.
// Any malformed subsection is skipped rather than failing decode: debug
// names are advisory only and never gate validation (spec.md §4.1).
func decodeNameSection(data []byte) *wasm.NameSection {
	ns := &wasm.NameSection{
		FunctionNames: map[wasm.Index]string{},
		LocalNames:    map[wasm.Index]map[wasm.Index]string{},
	}
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return ns
		}
		size, _, err := leb128.DecodeUint32(r)
		if err != nil || int(size) > r.Len() {
			return ns
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return ns
		}
		pr := bytes.NewReader(payload)
		switch id {
		case nameSubsectionModule:
			name, err := readName(pr)
			if err == nil {
				ns.ModuleName = name
			}
		case nameSubsectionFunction:
			decodeNameMap(pr, ns.FunctionNames)
		case nameSubsectionLocal:
			n, _, err := leb128.DecodeUint32(pr)
			if err != nil {
				continue
			}
			for i := uint32(0); i < n; i++ {
				fnIdx, _, err := leb128.DecodeUint32(pr)
				if err != nil {
					break
				}
				locals := map[wasm.Index]string{}
				decodeNameMap(pr, locals)
				ns.LocalNames[fnIdx] = locals
			}
		}
	}
	return ns
}

func decodeNameMap(r *bytes.Reader, into map[wasm.Index]string) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return
	}
	for i := uint32(0); i < n; i++ {
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return
		}
		name, err := readName(r)
		if err != nil {
			return
		}
		into[idx] = name
	}
}
