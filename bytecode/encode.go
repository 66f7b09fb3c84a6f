// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Bytecode serialization.
//
// A .vob image is the magic "GOXB", a u32 version, then the module
// tables in fixed order, all little-endian. The wire format is not
// stable across minor versions; the version word is the only
// compatibility gate.

package bytecode

import (
	"encoding/binary"
	"io"
	"sort"
)

var Magic = [4]byte{'G', 'O', 'X', 'B'}

const Version = 1

type writer struct {
	w   io.Writer
	err error
	buf [8]byte
}

func (w *writer) bytes(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

func (w *writer) u8(v uint8)   { w.buf[0] = v; w.bytes(w.buf[:1]) }
func (w *writer) u16(v uint16) { binary.LittleEndian.PutUint16(w.buf[:2], v); w.bytes(w.buf[:2]) }
func (w *writer) u32(v uint32) { binary.LittleEndian.PutUint32(w.buf[:4], v); w.bytes(w.buf[:4]) }
func (w *writer) u64(v uint64) { binary.LittleEndian.PutUint64(w.buf[:8], v); w.bytes(w.buf[:8]) }

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.bytes([]byte(s))
}

// Encode writes the module image to w.
func Encode(w io.Writer, m *Module) error {
	e := &writer{w: w}
	e.bytes(Magic[:])
	e.u32(Version)
	e.str(m.Name)

	e.u32(uint32(len(m.Structs)))
	for i := range m.Structs {
		st := &m.Structs[i]
		e.str(st.Name)
		e.u32(uint32(len(st.SlotTypes)))
		for _, t := range st.SlotTypes {
			e.u8(uint8(t))
		}
	}

	e.u32(uint32(len(m.Ifaces)))
	for i := range m.Ifaces {
		it := &m.Ifaces[i]
		e.str(it.Name)
		e.u32(uint32(len(it.Methods)))
		for _, name := range it.Methods {
			e.str(name)
		}
	}

	e.u32(uint32(len(m.Consts)))
	for _, c := range m.Consts {
		e.u8(uint8(c.Kind))
		switch c.Kind {
		case KindNil:
		case KindString:
			e.str(c.S)
		case KindFloat32, KindFloat64:
			e.u64(floatBits(c.F))
		default:
			e.u64(uint64(c.I))
		}
	}

	e.u32(uint32(len(m.Globals)))
	for _, g := range m.Globals {
		e.str(g.Name)
		e.u16(g.Slots)
		e.u8(uint8(g.Kind))
		e.u32(g.MetaID)
	}

	e.u32(uint32(len(m.Funcs)))
	for i := range m.Funcs {
		f := &m.Funcs[i]
		e.str(f.Name)
		e.u16(f.ParamCount)
		e.u16(f.ParamSlots)
		e.u16(f.LocalSlots)
		e.u16(f.RetSlots)
		e.u16(f.ResultBase)
		if f.ResultCells {
			e.u8(1)
		} else {
			e.u8(0)
		}
		e.u32(uint32(len(f.Code)))
		for _, ins := range f.Code {
			e.u8(uint8(ins.Op))
			e.u8(ins.Flags)
			e.u16(ins.A)
			e.u16(ins.B)
			e.u16(ins.C)
		}
		for _, t := range f.SlotTypes {
			e.u8(uint8(t))
		}
	}

	e.u32(uint32(len(m.Externs)))
	for _, x := range m.Externs {
		e.str(x.Name)
		e.str(x.Sig)
	}

	keys := make([]ItabKey, 0, len(m.Itabs))
	for k := range m.Itabs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Concrete != keys[j].Concrete {
			return keys[i].Concrete < keys[j].Concrete
		}
		return keys[i].Iface < keys[j].Iface
	})
	e.u32(uint32(len(keys)))
	for _, k := range keys {
		tab := m.Itabs[k]
		e.u32(k.Concrete)
		e.u32(k.Iface)
		e.u32(uint32(len(tab)))
		for _, fid := range tab {
			e.u32(fid)
		}
	}

	e.u32(m.Entry)

	if m.Debug == nil {
		e.u8(0)
	} else {
		e.u8(1)
		d := m.Debug
		e.u32(uint32(len(d.Files)))
		for _, f := range d.Files {
			e.str(f)
		}
		e.u32(uint32(len(d.Funcs)))
		for _, lines := range d.Funcs {
			e.u32(uint32(len(lines)))
			for _, l := range lines {
				e.u32(l.PC)
				e.u16(l.File)
				e.u32(l.Line)
			}
		}
	}

	return e.err
}
