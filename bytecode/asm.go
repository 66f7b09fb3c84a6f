// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytecode

import "fmt"

// Asm assembles a Module programmatically. It is the interface the
// code generator emits through, and the way runtime tests build their
// input programs. Functions are declared up front so their ids can be
// referenced before their bodies exist.
type Asm struct {
	m          Module
	constIndex map[Const]uint32
	globalSlot int
	funcs      []*FuncAsm
}

func NewAsm(name string) *Asm {
	return &Asm{
		m:          Module{Name: name, Itabs: make(map[ItabKey][]uint32)},
		constIndex: make(map[Const]uint32),
	}
}

// Const interns a constant and returns its pool index.
func (a *Asm) Const(c Const) uint32 {
	if i, ok := a.constIndex[c]; ok {
		return i
	}
	i := uint32(len(a.m.Consts))
	a.m.Consts = append(a.m.Consts, c)
	a.constIndex[c] = i
	return i
}

func (a *Asm) StrConst(s string) uint32 { return a.Const(StringConst(s)) }

// Global declares a global and returns its starting slot index.
func (a *Asm) Global(name string, kind ValueKind, metaID uint32) uint16 {
	slots := uint16(1)
	if kind == KindInterface {
		slots = 2
	}
	g := Global{Name: name, Slots: slots, Kind: kind, MetaID: metaID}
	a.m.Globals = append(a.m.Globals, g)
	at := a.globalSlot
	a.globalSlot += int(slots)
	return uint16(at)
}

// Struct registers a user struct layout and returns its meta id.
func (a *Asm) Struct(name string, types ...SlotType) uint32 {
	a.m.Structs = append(a.m.Structs, StructMeta{Name: name, SlotTypes: types})
	return uint32(FirstUserStruct + len(a.m.Structs) - 1)
}

// Iface registers an interface and returns its meta id.
func (a *Asm) Iface(name string, methods ...string) uint32 {
	a.m.Ifaces = append(a.m.Ifaces, IfaceMeta{Name: name, Methods: methods})
	return uint32(FirstIface + len(a.m.Ifaces) - 1)
}

// Extern declares a native function and returns its extern id.
func (a *Asm) Extern(name, sig string) uint16 {
	a.m.Externs = append(a.m.Externs, ExternDecl{Name: name, Sig: sig})
	return uint16(len(a.m.Externs) - 1)
}

// Itab binds the method table for a (concrete, iface) pair.
func (a *Asm) Itab(concrete, iface uint32, funcIDs ...uint32) {
	a.m.Itabs[ItabKey{concrete, iface}] = funcIDs
}

// Func declares a function and returns its assembler. Slot types
// default to SlotValue; override per slot with SlotType.
func (a *Asm) Func(name string, paramSlots, localSlots, retSlots int) *FuncAsm {
	f := &FuncAsm{
		asm: a,
		id:  uint32(len(a.funcs)),
		proto: FuncProto{
			Name:       name,
			ParamCount: uint16(paramSlots),
			ParamSlots: uint16(paramSlots),
			LocalSlots: uint16(localSlots),
			RetSlots:   uint16(retSlots),
			SlotTypes:  make([]SlotType, localSlots),
		},
	}
	a.funcs = append(a.funcs, f)
	return f
}

// Module finalizes the assembly.
func (a *Asm) Module(entry uint32) (*Module, error) {
	a.m.Funcs = make([]FuncProto, len(a.funcs))
	for i, f := range a.funcs {
		if f.pending != 0 {
			return nil, fmt.Errorf("bytecode: func %s: %d unpatched jumps", f.proto.Name, f.pending)
		}
		a.m.Funcs[i] = f.proto
	}
	a.m.Entry = entry
	if err := a.m.Validate(); err != nil {
		return nil, err
	}
	return &a.m, nil
}

// FuncAsm assembles one function body.
type FuncAsm struct {
	asm     *Asm
	id      uint32
	proto   FuncProto
	pending int
}

func (f *FuncAsm) ID() uint32 { return f.id }

// Results records the named-result location for functions with defers.
func (f *FuncAsm) Results(base int, cells bool) *FuncAsm {
	f.proto.ResultBase = uint16(base)
	f.proto.ResultCells = cells
	return f
}

// SlotType overrides the scanning classification of one local slot.
func (f *FuncAsm) SlotType(slot int, t SlotType) *FuncAsm {
	f.proto.SlotTypes[slot] = t
	return f
}

// RefSlots marks the given slots as unconditional heap references.
func (f *FuncAsm) RefSlots(slots ...int) *FuncAsm {
	for _, s := range slots {
		f.proto.SlotTypes[s] = SlotGcRef
	}
	return f
}

// IfaceSlots marks slot and slot+1 as an interface pair.
func (f *FuncAsm) IfaceSlots(slot int) *FuncAsm {
	f.proto.SlotTypes[slot] = SlotInterface0
	f.proto.SlotTypes[slot+1] = SlotInterface1
	return f
}

// Emit appends one instruction and returns its pc.
func (f *FuncAsm) Emit(op Op, flags uint8, a, b, c uint16) int {
	f.proto.Code = append(f.proto.Code, Instr{Op: op, Flags: flags, A: a, B: b, C: c})
	return len(f.proto.Code) - 1
}

// EmitImm emits an instruction carrying a signed immediate.
func (f *FuncAsm) EmitImm(op Op, flags uint8, a uint16, imm int32) int {
	b, c := MakeImm(imm)
	return f.Emit(op, flags, a, b, c)
}

// Here returns the pc of the next instruction.
func (f *FuncAsm) Here() int { return len(f.proto.Code) }

// Jump emits a forward jump to be resolved later with Patch.
func (f *FuncAsm) Jump(op Op, cond uint16) int {
	f.pending++
	return f.EmitImm(op, 0, cond, 0)
}

// Patch resolves a forward jump to the next instruction.
func (f *FuncAsm) Patch(pc int) {
	off := int32(f.Here() - (pc + 1))
	b, c := MakeImm(off)
	f.proto.Code[pc].B = b
	f.proto.Code[pc].C = c
	f.pending--
}

// JumpBack emits a backward jump to an existing pc.
func (f *FuncAsm) JumpBack(op Op, cond uint16, target int) int {
	off := int32(target - (f.Here() + 1))
	return f.EmitImm(op, 0, cond, off)
}
