// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	ErrBadMagic   = errors.New("bytecode: bad magic")
	ErrBadVersion = errors.New("bytecode: unsupported version")
)

func floatBits(f float64) uint64   { return math.Float64bits(f) }
func floatFrom(b uint64) float64   { return math.Float64frombits(b) }

type reader struct {
	r   io.Reader
	err error
	buf [8]byte
}

func (r *reader) bytes(p []byte) {
	if r.err != nil {
		return
	}
	_, r.err = io.ReadFull(r.r, p)
}

func (r *reader) u8() uint8   { r.bytes(r.buf[:1]); return r.buf[0] }
func (r *reader) u16() uint16 { r.bytes(r.buf[:2]); return binary.LittleEndian.Uint16(r.buf[:2]) }
func (r *reader) u32() uint32 { r.bytes(r.buf[:4]); return binary.LittleEndian.Uint32(r.buf[:4]) }
func (r *reader) u64() uint64 { r.bytes(r.buf[:8]); return binary.LittleEndian.Uint64(r.buf[:8]) }

const maxTableLen = 1 << 24 // refuse absurd counts from corrupt images

func (r *reader) count() int {
	n := r.u32()
	if n > maxTableLen && r.err == nil {
		r.err = fmt.Errorf("bytecode: table length %d too large", n)
	}
	return int(n)
}

func (r *reader) str() string {
	n := r.count()
	if r.err != nil || n == 0 {
		return ""
	}
	p := make([]byte, n)
	r.bytes(p)
	return string(p)
}

// Decode reads a module image. The returned module is validated.
func Decode(rd io.Reader) (*Module, error) {
	r := &reader{r: rd}

	var magic [4]byte
	r.bytes(magic[:])
	if r.err != nil {
		return nil, r.err
	}
	if magic != Magic {
		return nil, ErrBadMagic
	}
	if v := r.u32(); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}

	m := &Module{Itabs: make(map[ItabKey][]uint32)}
	m.Name = r.str()

	m.Structs = make([]StructMeta, r.count())
	for i := range m.Structs {
		st := &m.Structs[i]
		st.Name = r.str()
		st.SlotTypes = make([]SlotType, r.count())
		for j := range st.SlotTypes {
			st.SlotTypes[j] = SlotType(r.u8())
		}
	}

	m.Ifaces = make([]IfaceMeta, r.count())
	for i := range m.Ifaces {
		it := &m.Ifaces[i]
		it.Name = r.str()
		it.Methods = make([]string, r.count())
		for j := range it.Methods {
			it.Methods[j] = r.str()
		}
	}

	m.Consts = make([]Const, r.count())
	for i := range m.Consts {
		c := &m.Consts[i]
		c.Kind = ValueKind(r.u8())
		switch c.Kind {
		case KindNil:
		case KindString:
			c.S = r.str()
		case KindFloat32, KindFloat64:
			c.F = floatFrom(r.u64())
		default:
			c.I = int64(r.u64())
		}
	}

	m.Globals = make([]Global, r.count())
	for i := range m.Globals {
		g := &m.Globals[i]
		g.Name = r.str()
		g.Slots = r.u16()
		g.Kind = ValueKind(r.u8())
		g.MetaID = r.u32()
	}

	m.Funcs = make([]FuncProto, r.count())
	for i := range m.Funcs {
		f := &m.Funcs[i]
		f.Name = r.str()
		f.ParamCount = r.u16()
		f.ParamSlots = r.u16()
		f.LocalSlots = r.u16()
		f.RetSlots = r.u16()
		f.ResultBase = r.u16()
		f.ResultCells = r.u8() != 0
		f.Code = make([]Instr, r.count())
		for j := range f.Code {
			ins := &f.Code[j]
			ins.Op = Op(r.u8())
			ins.Flags = r.u8()
			ins.A = r.u16()
			ins.B = r.u16()
			ins.C = r.u16()
		}
		f.SlotTypes = make([]SlotType, f.LocalSlots)
		for j := range f.SlotTypes {
			f.SlotTypes[j] = SlotType(r.u8())
		}
	}

	m.Externs = make([]ExternDecl, r.count())
	for i := range m.Externs {
		m.Externs[i].Name = r.str()
		m.Externs[i].Sig = r.str()
	}

	for n := r.count(); n > 0 && r.err == nil; n-- {
		var k ItabKey
		k.Concrete = r.u32()
		k.Iface = r.u32()
		tab := make([]uint32, r.count())
		for j := range tab {
			tab[j] = r.u32()
		}
		m.Itabs[k] = tab
	}

	m.Entry = r.u32()

	if r.u8() != 0 {
		d := &DebugInfo{}
		d.Files = make([]string, r.count())
		for i := range d.Files {
			d.Files[i] = r.str()
		}
		d.Funcs = make([][]PCLine, r.count())
		for i := range d.Funcs {
			lines := make([]PCLine, r.count())
			for j := range lines {
				lines[j].PC = r.u32()
				lines[j].File = r.u16()
				lines[j].Line = r.u32()
			}
			d.Funcs[i] = lines
		}
		m.Debug = d
	}

	if r.err != nil {
		return nil, r.err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
