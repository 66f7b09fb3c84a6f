// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"testing"

	"github.com/oxfeeefeee/volang/bytecode"
)

// emitMapABC builds m = {"a":1, "b":2, "c":3} into r0.
func emitMapABC(a *bytecode.Asm, mn *bytecode.FuncAsm) {
	mn.Emit(bytecode.MapNew, uint8(bytecode.KindString), 0, uint16(bytecode.KindInt64), 0)
	for i, key := range []string{"a", "b", "c"} {
		mn.EmitImm(bytecode.LoadK, 0, 1, int32(a.StrConst(key)))
		mn.EmitImm(bytecode.LoadInt, 0, 2, int32(i+1))
		mn.Emit(bytecode.MapSet, 1, 2, 0, 1)
	}
}

func TestMapInsertionOrder(t *testing.T) {
	// Iterating {"a":1,"b":2,"c":3} must observe exactly 1, 2, 3.
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 10, 2)
		mn.RefSlots(0, 1, 4)
		emitMapABC(a, mn)
		mn.EmitImm(bytecode.LoadInt, 0, 3, 0) // acc
		mn.EmitImm(bytecode.LoadInt, 0, 8, 0) // count
		mn.Emit(bytecode.IterBegin, bytecode.IterMap, 0, 0, 0)
		loop := mn.Here()
		mn.Emit(bytecode.IterNext, 0, 4, 0, 0) // r4 key, r5 val, r6 ok
		j := mn.Jump(bytecode.JumpIfNot, 6)
		mn.EmitImm(bytecode.LoadInt, 0, 7, 10)
		mn.Emit(bytecode.MulI, 0, 3, 3, 7)
		mn.Emit(bytecode.AddI, 0, 3, 3, 5)
		mn.EmitImm(bytecode.LoadInt, 0, 7, 1)
		mn.Emit(bytecode.AddI, 0, 8, 8, 7)
		mn.JumpBack(bytecode.Jump, 0, loop)
		mn.Patch(j)
		mn.Emit(bytecode.IterEnd, 0, 0, 0, 0)
		mn.Emit(bytecode.Move, 0, 0, 3, 0)
		mn.Emit(bytecode.Move, 0, 1, 8, 0)
		mn.Emit(bytecode.Return, 2, 0, 0, 0)
		return mn.ID()
	})
	if acc := int64(res[0]); acc != 123 {
		t.Errorf("iteration signature = %d, want 123 (insertion order)", acc)
	}
	if n := int64(res[1]); n != 3 {
		t.Errorf("iterated %d entries, want 3", n)
	}
}

func TestMapDeleteReinsert(t *testing.T) {
	// Deleting "b" and reinserting it moves it to the end: a, c, b.
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 10, 1)
		mn.RefSlots(0, 1, 4)
		emitMapABC(a, mn)
		mn.EmitImm(bytecode.LoadK, 0, 1, int32(a.StrConst("b")))
		mn.Emit(bytecode.MapDel, 0, 0, 0, 1)
		mn.EmitImm(bytecode.LoadInt, 0, 2, 2)
		mn.Emit(bytecode.MapSet, 1, 2, 0, 1)
		mn.EmitImm(bytecode.LoadInt, 0, 3, 0)
		mn.Emit(bytecode.IterBegin, bytecode.IterMap, 0, 0, 0)
		loop := mn.Here()
		mn.Emit(bytecode.IterNext, 0, 4, 0, 0)
		j := mn.Jump(bytecode.JumpIfNot, 6)
		mn.EmitImm(bytecode.LoadInt, 0, 7, 10)
		mn.Emit(bytecode.MulI, 0, 3, 3, 7)
		mn.Emit(bytecode.AddI, 0, 3, 3, 5)
		mn.JumpBack(bytecode.Jump, 0, loop)
		mn.Patch(j)
		mn.Emit(bytecode.IterEnd, 0, 0, 0, 0)
		mn.Emit(bytecode.Move, 0, 0, 3, 0)
		mn.Emit(bytecode.Return, 1, 0, 0, 0)
		return mn.ID()
	})
	if acc := int64(res[0]); acc != 132 {
		t.Errorf("order after delete+reinsert = %d, want 132", acc)
	}
}

func TestMapCommaOk(t *testing.T) {
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 10, 4)
		mn.RefSlots(0, 1)
		emitMapABC(a, mn)
		mn.EmitImm(bytecode.LoadK, 0, 1, int32(a.StrConst("b")))
		mn.Emit(bytecode.MapGet, 1|bytecode.FlagCommaOk, 4, 0, 1) // r4 val, r5 ok
		mn.EmitImm(bytecode.LoadK, 0, 1, int32(a.StrConst("zz")))
		mn.Emit(bytecode.MapGet, 1|bytecode.FlagCommaOk, 6, 0, 1) // r6 val, r7 ok
		mn.Emit(bytecode.Move, 0, 0, 4, 0)
		mn.Emit(bytecode.Move, 0, 1, 5, 0)
		mn.Emit(bytecode.Move, 0, 2, 6, 0)
		mn.Emit(bytecode.Move, 0, 3, 7, 0)
		mn.Emit(bytecode.Return, 4, 0, 0, 0)
		return mn.ID()
	})
	if int64(res[0]) != 2 || res[1] != 1 {
		t.Errorf(`m["b"] = %d, %d; want 2, true`, int64(res[0]), res[1])
	}
	if res[2] != 0 || res[3] != 0 {
		t.Errorf(`m["zz"] = %d, %d; want 0, false`, int64(res[2]), res[3])
	}
}

func TestMapLenAndStringKeyContent(t *testing.T) {
	// Content-equal keys built at runtime must hit the same entry.
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 10, 2)
		mn.RefSlots(0, 1, 4, 5)
		emitMapABC(a, mn)
		// key "ab"[0:1] == "a" built by slicing
		mn.EmitImm(bytecode.LoadK, 0, 4, int32(a.StrConst("ab")))
		mn.EmitImm(bytecode.LoadInt, 0, 6, 0)
		mn.EmitImm(bytecode.LoadInt, 0, 7, 1)
		mn.Emit(bytecode.StrSlice, 0, 5, 4, 6)
		mn.Emit(bytecode.MapGet, 1, 2, 0, 5) // r2 = m["a"]
		mn.Emit(bytecode.Len, uint8(bytecode.KindMap), 3, 0, 0)
		mn.Emit(bytecode.Move, 0, 0, 2, 0)
		mn.Emit(bytecode.Move, 0, 1, 3, 0)
		mn.Emit(bytecode.Return, 2, 0, 0, 0)
		return mn.ID()
	})
	if v := int64(res[0]); v != 1 {
		t.Errorf(`m[computed "a"] = %d, want 1`, v)
	}
	if n := int64(res[1]); n != 3 {
		t.Errorf("len(m) = %d, want 3", n)
	}
}

func TestNilMapAssign(t *testing.T) {
	v := buildVM(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 4, 0)
		mn.RefSlots(0)
		mn.EmitImm(bytecode.LoadInt, 0, 1, 1)
		mn.Emit(bytecode.MapSet, 1, 1, 0, 1) // r0 is nil
		mn.Emit(bytecode.Return, 0, 0, 0, 0)
		return mn.ID()
	})
	if _, err := v.Run(); err == nil {
		t.Fatalf("assignment to entry in nil map did not fail")
	}
}
