// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"testing"

	"github.com/oxfeeefeee/volang/bytecode"
)

// TestClosureCounter: the canonical escaping-counter shape. The
// captured variable lives in a heap cell; the closure reads and
// writes it through its capture.
func TestClosureCounter(t *testing.T) {
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		// inc() captures the count cell; returns the bumped value.
		inc := a.Func("inc", 1, 4, 1)
		inc.RefSlots(0, 1)
		inc.Emit(bytecode.ClosureGet, 0, 1, 0, 0) // r1 = cell
		inc.Emit(bytecode.PtrGet, 0, 2, 1, 0)     // r2 = *cell
		inc.EmitImm(bytecode.LoadInt, 0, 3, 1)
		inc.Emit(bytecode.AddI, 0, 2, 2, 3)
		inc.Emit(bytecode.PtrSet, 0, 2, 1, 0) // *cell = r2
		inc.Emit(bytecode.Return, 1, 2, 0, 0)

		mn := a.Func("main", 0, 6, 2)
		mn.RefSlots(0, 1)
		mn.Emit(bytecode.New, uint8(bytecode.KindPointer), 0, 1, uint16(bytecode.KindInt64))
		mn.Emit(bytecode.ClosureNew, 1, 1, uint16(inc.ID()), 0)
		mn.Emit(bytecode.CallClosure, 1, 1, 2, 0) // r2 = inc()
		mn.Emit(bytecode.Move, 0, 4, 2, 0)
		mn.Emit(bytecode.CallClosure, 1, 1, 2, 0) // r2 = inc()
		mn.Emit(bytecode.Move, 0, 0, 4, 0)
		mn.Emit(bytecode.Move, 0, 1, 2, 0)
		mn.Emit(bytecode.Return, 2, 0, 0, 0)
		return mn.ID()
	})
	if int64(res[0]) != 1 || int64(res[1]) != 2 {
		t.Errorf("counter returned %d, %d; want 1, 2", int64(res[0]), int64(res[1]))
	}
}

func TestNilClosureCall(t *testing.T) {
	v := buildVM(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 4, 0)
		mn.RefSlots(0)
		mn.Emit(bytecode.CallClosure, 0, 0, 1, 0)
		mn.Emit(bytecode.Return, 0, 0, 0, 0)
		return mn.ID()
	})
	if _, err := v.Run(); err == nil {
		t.Fatalf("call of nil closure did not fail")
	}
}

// TestStackArray: a non-escaping array lives in consecutive frame
// slots and is indexed dynamically.
func TestStackArray(t *testing.T) {
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 10, 1)
		// array at r2..r4; fill a[i] = i*i, then sum.
		mn.EmitImm(bytecode.LoadInt, 0, 5, 0) // i
		mn.EmitImm(bytecode.LoadInt, 0, 6, 3)
		fill := mn.Here()
		mn.Emit(bytecode.LtI, 0, 7, 5, 6)
		j1 := mn.Jump(bytecode.JumpIfNot, 7)
		mn.Emit(bytecode.MulI, 0, 8, 5, 5)
		mn.Emit(bytecode.StackSet, 0, 8, 2, 5) // frame[2 + i] = r8
		mn.EmitImm(bytecode.LoadInt, 0, 7, 1)
		mn.Emit(bytecode.AddI, 0, 5, 5, 7)
		mn.JumpBack(bytecode.Jump, 0, fill)
		mn.Patch(j1)

		mn.EmitImm(bytecode.LoadInt, 0, 0, 0) // sum
		mn.EmitImm(bytecode.LoadInt, 0, 5, 0)
		sum := mn.Here()
		mn.Emit(bytecode.LtI, 0, 7, 5, 6)
		j2 := mn.Jump(bytecode.JumpIfNot, 7)
		mn.Emit(bytecode.StackGet, 0, 8, 2, 5) // r8 = frame[2 + i]
		mn.Emit(bytecode.AddI, 0, 0, 0, 8)
		mn.EmitImm(bytecode.LoadInt, 0, 7, 1)
		mn.Emit(bytecode.AddI, 0, 5, 5, 7)
		mn.JumpBack(bytecode.Jump, 0, sum)
		mn.Patch(j2)
		mn.Emit(bytecode.Return, 1, 0, 0, 0)
		return mn.ID()
	})
	if got := int64(res[0]); got != 5 { // 0 + 1 + 4
		t.Errorf("stack array sum = %d, want 5", got)
	}
}

func TestIntRangeIteration(t *testing.T) {
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 8, 1)
		mn.EmitImm(bytecode.LoadInt, 0, 0, 0) // sum
		mn.EmitImm(bytecode.LoadInt, 0, 1, 3)
		mn.EmitImm(bytecode.LoadInt, 0, 2, 7)
		mn.Emit(bytecode.IterBegin, bytecode.IterIntRange, 0, 1, 2)
		loop := mn.Here()
		mn.Emit(bytecode.IterNext, 0, 3, 0, 0) // r3 key, r4 val, r5 ok
		j := mn.Jump(bytecode.JumpIfNot, 5)
		mn.Emit(bytecode.AddI, 0, 0, 0, 4)
		mn.JumpBack(bytecode.Jump, 0, loop)
		mn.Patch(j)
		mn.Emit(bytecode.IterEnd, 0, 0, 0, 0)
		mn.Emit(bytecode.Return, 1, 0, 0, 0)
		return mn.ID()
	})
	if got := int64(res[0]); got != 3+4+5+6 {
		t.Errorf("range 3..7 sum = %d, want 18", got)
	}
}

func TestSliceIteration(t *testing.T) {
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 10, 1)
		mn.RefSlots(1)
		mn.EmitImm(bytecode.LoadInt, 0, 2, 4)
		mn.EmitImm(bytecode.LoadInt, 0, 3, 4)
		mn.Emit(bytecode.SliceNew, uint8(bytecode.KindInt64), 1, 2, 0)
		// s[i] = i + 10
		mn.EmitImm(bytecode.LoadInt, 0, 4, 0)
		fill := mn.Here()
		mn.Emit(bytecode.LtI, 0, 5, 4, 2)
		j1 := mn.Jump(bytecode.JumpIfNot, 5)
		mn.EmitImm(bytecode.LoadInt, 0, 6, 10)
		mn.Emit(bytecode.AddI, 0, 6, 4, 6)
		mn.Emit(bytecode.IndexSet, 8, 6, 1, 4)
		mn.EmitImm(bytecode.LoadInt, 0, 5, 1)
		mn.Emit(bytecode.AddI, 0, 4, 4, 5)
		mn.JumpBack(bytecode.Jump, 0, fill)
		mn.Patch(j1)

		mn.EmitImm(bytecode.LoadInt, 0, 0, 0)
		mn.Emit(bytecode.IterBegin, bytecode.IterSlice, 0, 1, 0)
		loop := mn.Here()
		mn.Emit(bytecode.IterNext, 0, 4, 0, 0) // r4 idx, r5 val, r6 ok
		j2 := mn.Jump(bytecode.JumpIfNot, 6)
		mn.Emit(bytecode.AddI, 0, 0, 0, 5)
		mn.JumpBack(bytecode.Jump, 0, loop)
		mn.Patch(j2)
		mn.Emit(bytecode.IterEnd, 0, 0, 0, 0)
		mn.Emit(bytecode.Return, 1, 0, 0, 0)
		return mn.ID()
	})
	if got := int64(res[0]); got != 10+11+12+13 {
		t.Errorf("slice sum = %d, want 46", got)
	}
}

// TestStringConversionOps: string <-> byte slice round trip.
func TestStringConversionOps(t *testing.T) {
	v := buildVM(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 6, 2)
		mn.RefSlots(0, 2, 4)
		mn.EmitImm(bytecode.LoadK, 0, 2, int32(a.StrConst("vo")))
		mn.Emit(bytecode.StrToBytes, 0, 4, 2, 0)
		mn.Emit(bytecode.BytesToStr, 0, 0, 4, 0)
		mn.Emit(bytecode.EqStr, 0, 1, 0, 2)
		mn.Emit(bytecode.Return, 2, 0, 0, 0)
		return mn.ID()
	})
	res, err := v.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := v.goString(res[0]); got != "vo" {
		t.Errorf("round trip = %q", got)
	}
	if res[1] != 1 {
		t.Errorf("round-tripped string not content-equal")
	}
}
