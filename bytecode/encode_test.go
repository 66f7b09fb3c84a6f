// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
)

func sampleModule(t *testing.T) *Module {
	t.Helper()
	a := NewAsm("sample")
	node := a.Struct("Node", SlotGcRef, SlotValue, SlotInterface0, SlotInterface1)
	stringer := a.Iface("Stringer", "String")
	a.Global("count", KindInt64, 0)
	a.Global("root", KindStruct, node)
	a.Extern("print", "(...) -> ()")

	str := a.Func("Node.String", 1, 3, 1)
	str.RefSlots(0, 1)
	str.EmitImm(LoadK, 0, 1, int32(a.StrConst("node")))
	str.Emit(Return, 1, 1, 0, 0)
	a.Itab(node, stringer, str.ID())

	mn := a.Func("main", 0, 4, 1)
	mn.EmitImm(LoadInt, 0, 0, -7)
	mn.EmitImm(LoadK, 0, 1, int32(a.Const(FloatConst(2.5))))
	mn.EmitImm(LoadK, 0, 2, int32(a.Const(BoolConst(true))))
	mn.Emit(Return, 1, 0, 0, 0)

	mod, err := a.Module(mn.ID())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	mod.Debug = &DebugInfo{
		Files: []string{"sample.vo"},
		Funcs: [][]PCLine{
			{{PC: 0, File: 0, Line: 3}},
			{{PC: 0, File: 0, Line: 10}, {PC: 2, File: 0, Line: 12}},
		},
	}
	return mod
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	mod := sampleModule(t)
	var buf bytes.Buffer
	if err := Encode(&buf, mod); err != nil {
		t.Fatalf("encode: %v", err)
	}
	first := append([]byte(nil), buf.Bytes()...)

	dec, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Byte-stable round trip: re-encoding the decoded module must
	// reproduce the image exactly.
	var buf2 bytes.Buffer
	if err := Encode(&buf2, dec); err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(first, buf2.Bytes()) {
		t.Fatalf("round trip is not byte-stable (%d vs %d bytes)", len(first), len(buf2.Bytes()))
	}

	if dec.Name != "sample" || len(dec.Funcs) != 2 || len(dec.Globals) != 2 {
		t.Errorf("table counts wrong after decode: %+v", dec)
	}
	if !reflect.DeepEqual(dec.Itabs, mod.Itabs) {
		t.Errorf("itabs differ: %v vs %v", dec.Itabs, mod.Itabs)
	}
	if got := dec.Debug.Lookup(1, 2); got != "sample.vo:12" {
		t.Errorf("debug lookup = %q, want sample.vo:12", got)
	}
	if got := dec.Debug.Lookup(1, 1); got != "sample.vo:10" {
		t.Errorf("debug lookup = %q, want sample.vo:10", got)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("MOJO....")))
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("got %v, want ErrBadMagic", err)
	}
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], Version+1)
	buf.Write(v[:])
	_, err := Decode(&buf)
	if !errors.Is(err, ErrBadVersion) {
		t.Fatalf("got %v, want ErrBadVersion", err)
	}
}

func TestDebugStrippable(t *testing.T) {
	mod := sampleModule(t)
	mod.Debug = nil
	var buf bytes.Buffer
	if err := Encode(&buf, mod); err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.Debug != nil {
		t.Errorf("stripped debug info reappeared")
	}
	if dec.Debug.Lookup(0, 0) != "" {
		t.Errorf("nil debug info lookup must be empty")
	}
}

func TestValidateCatchesBrokenModules(t *testing.T) {
	mk := func(mutate func(m *Module)) error {
		a := NewAsm("bad")
		mn := a.Func("main", 0, 2, 0)
		mn.Emit(Return, 0, 0, 0, 0)
		mod, err := a.Module(mn.ID())
		if err != nil {
			return err
		}
		mutate(mod)
		return mod.Validate()
	}
	if err := mk(func(m *Module) { m.Entry = 9 }); err == nil {
		t.Errorf("out-of-range entry accepted")
	}
	if err := mk(func(m *Module) { m.Funcs[0].SlotTypes = m.Funcs[0].SlotTypes[:1] }); err == nil {
		t.Errorf("slot-type length mismatch accepted")
	}
	if err := mk(func(m *Module) {
		m.Structs = append(m.Structs, StructMeta{Name: "Bad", SlotTypes: []SlotType{SlotInterface0}})
	}); err == nil {
		t.Errorf("unpaired interface slot accepted")
	}
	if err := mk(func(m *Module) {
		m.Funcs[0].Code = append(m.Funcs[0].Code, Instr{Op: opCount})
	}); err == nil {
		t.Errorf("bad opcode accepted")
	}
}

func TestImmRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 1 << 20, -(1 << 20), 1<<31 - 1, -(1 << 31)} {
		b, c := MakeImm(v)
		ins := Instr{B: b, C: c}
		if got := ins.Imm(); got != v {
			t.Errorf("imm %d round-tripped to %d", v, got)
		}
	}
}

func TestMetaPacking(t *testing.T) {
	m := PackValueMeta(12345, KindStruct)
	if m.MetaID() != 12345 || m.Kind() != KindStruct {
		t.Fatalf("value meta unpacked to (%d, %v)", m.MetaID(), m.Kind())
	}
	s := PackIface(FirstIface+3, m)
	if IfaceMetaID(s) != FirstIface+3 || IfaceValueMeta(s) != m {
		t.Fatalf("iface slot unpacked to (%d, %v)", IfaceMetaID(s), IfaceValueMeta(s))
	}
	if NeedsGC(KindInt64) || !NeedsGC(KindString) || !NeedsGC(KindStruct) {
		t.Fatalf("NeedsGC boundary wrong")
	}
	if KindInt8.PackedBytes() != 1 || KindFloat32.PackedBytes() != 4 || KindInt64.PackedBytes() != 0 {
		t.Fatalf("packed widths wrong")
	}
}
