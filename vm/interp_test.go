// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"testing"

	"github.com/oxfeeefeee/volang/bytecode"
)

// buildVM assembles a module and loads it with diagnostics silenced.
func buildVM(t *testing.T, build func(a *bytecode.Asm) uint32) *VM {
	t.Helper()
	a := bytecode.NewAsm("test")
	entry := build(a)
	mod, err := a.Module(entry)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	v, err := New(mod, Config{})
	if err != nil {
		t.Fatalf("new vm: %v", err)
	}
	v.SetDiagnostic(func(kind, loc, msg string) {
		t.Logf("[VO:%s:%s: %s]", kind, loc, msg)
	})
	return v
}

func runProgram(t *testing.T, build func(a *bytecode.Asm) uint32) []uint64 {
	t.Helper()
	v := buildVM(t, build)
	res, err := v.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

// emitFib assembles the recursive fib and returns its func id.
func emitFib(a *bytecode.Asm) *bytecode.FuncAsm {
	fb := a.Func("fib", 1, 6, 1)
	fb.EmitImm(bytecode.LoadInt, 0, 1, 2)
	fb.Emit(bytecode.LtI, 0, 2, 0, 1)
	j := fb.Jump(bytecode.JumpIfNot, 2)
	fb.Emit(bytecode.Return, 1, 0, 0, 0)
	fb.Patch(j)
	fb.EmitImm(bytecode.LoadInt, 0, 1, 1)
	fb.Emit(bytecode.SubI, 0, 4, 0, 1)
	fb.Emit(bytecode.Call, 1, uint16(fb.ID()), 4, 1)
	fb.EmitImm(bytecode.LoadInt, 0, 1, 2)
	fb.Emit(bytecode.SubI, 0, 5, 0, 1)
	fb.Emit(bytecode.Call, 1, uint16(fb.ID()), 5, 1)
	fb.Emit(bytecode.AddI, 0, 4, 4, 5)
	fb.Emit(bytecode.Return, 1, 4, 0, 0)
	return fb
}

func TestFib(t *testing.T) {
	for _, tc := range []struct{ n, want int64 }{{0, 0}, {1, 1}, {10, 55}} {
		n := tc.n
		res := runProgram(t, func(a *bytecode.Asm) uint32 {
			emitFib(a)
			mn := a.Func("main", 0, 1, 1)
			mn.EmitImm(bytecode.LoadInt, 0, 0, int32(n))
			mn.Emit(bytecode.Call, 1, 0, 0, 1)
			mn.Emit(bytecode.Return, 1, 0, 0, 0)
			return mn.ID()
		})
		if got := int64(res[0]); got != tc.want {
			t.Errorf("fib(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestArithmetic(t *testing.T) {
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 8, 4)
		// r0 = (7*6 - 2) / 4  = 10
		mn.EmitImm(bytecode.LoadInt, 0, 4, 7)
		mn.EmitImm(bytecode.LoadInt, 0, 5, 6)
		mn.Emit(bytecode.MulI, 0, 4, 4, 5)
		mn.EmitImm(bytecode.LoadInt, 0, 5, 2)
		mn.Emit(bytecode.SubI, 0, 4, 4, 5)
		mn.EmitImm(bytecode.LoadInt, 0, 5, 4)
		mn.Emit(bytecode.DivI, 0, 0, 4, 5)
		// r1 = -9 % 4 = -1
		mn.EmitImm(bytecode.LoadInt, 0, 4, -9)
		mn.EmitImm(bytecode.LoadInt, 0, 5, 4)
		mn.Emit(bytecode.ModI, 0, 1, 4, 5)
		// r2 = float64(3) / 2  == 1.5 -> back to int64 = 1
		mn.EmitImm(bytecode.LoadInt, 0, 4, 3)
		mn.Emit(bytecode.CvtIF, 0, 4, 4, 0)
		mn.EmitImm(bytecode.LoadInt, 0, 5, 2)
		mn.Emit(bytecode.CvtIF, 0, 5, 5, 0)
		mn.Emit(bytecode.DivF, 0, 4, 4, 5)
		mn.Emit(bytecode.CvtFI, 0, 2, 4, 0)
		// r3 = (1 << 5) >> 2 = 8
		mn.EmitImm(bytecode.LoadInt, 0, 4, 1)
		mn.EmitImm(bytecode.LoadInt, 0, 5, 5)
		mn.Emit(bytecode.Shl, 0, 4, 4, 5)
		mn.EmitImm(bytecode.LoadInt, 0, 5, 2)
		mn.Emit(bytecode.ShrU, 0, 3, 4, 5)
		mn.Emit(bytecode.Return, 4, 0, 0, 0)
		return mn.ID()
	})
	want := []int64{10, -1, 1, 8}
	for i, w := range want {
		if got := int64(res[i]); got != w {
			t.Errorf("result %d = %d, want %d", i, got, w)
		}
	}
}

func TestSignExtension(t *testing.T) {
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 4, 2)
		mn.EmitImm(bytecode.LoadInt, 0, 2, 0x1ff) // low byte 0xff
		mn.Emit(bytecode.SextI8, 0, 0, 2, 0)      // -1
		mn.Emit(bytecode.TruncU8, 0, 1, 2, 0)     // 255
		mn.Emit(bytecode.Return, 2, 0, 0, 0)
		return mn.ID()
	})
	if int64(res[0]) != -1 || int64(res[1]) != 255 {
		t.Errorf("got %d, %d; want -1, 255", int64(res[0]), int64(res[1]))
	}
}

func TestGlobals(t *testing.T) {
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		g := a.Global("counter", bytecode.KindInt64, 0)
		bump := a.Func("bump", 0, 2, 0)
		bump.Emit(bytecode.GlobalGet, 0, 0, g, 0)
		bump.EmitImm(bytecode.LoadInt, 0, 1, 1)
		bump.Emit(bytecode.AddI, 0, 0, 0, 1)
		bump.Emit(bytecode.GlobalSet, 0, 0, g, 0)
		bump.Emit(bytecode.Return, 0, 0, 0, 0)

		mn := a.Func("main", 0, 1, 1)
		for i := 0; i < 3; i++ {
			mn.Emit(bytecode.Call, 0, uint16(bump.ID()), 0, 0)
		}
		mn.Emit(bytecode.GlobalGet, 0, 0, g, 0)
		mn.Emit(bytecode.Return, 1, 0, 0, 0)
		return mn.ID()
	})
	if int64(res[0]) != 3 {
		t.Errorf("counter = %d, want 3", int64(res[0]))
	}
}

func TestStrings(t *testing.T) {
	v := buildVM(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 8, 3)
		mn.RefSlots(0, 1, 4, 5)
		mn.EmitImm(bytecode.LoadK, 0, 4, int32(a.StrConst("hello, ")))
		mn.EmitImm(bytecode.LoadK, 0, 5, int32(a.StrConst("world")))
		mn.Emit(bytecode.StrConcat, 0, 0, 4, 5) // r0 = "hello, world"
		// r1 = r0[7:12] == "world", r2 = r1 == r5
		mn.EmitImm(bytecode.LoadInt, 0, 6, 7)
		mn.EmitImm(bytecode.LoadInt, 0, 7, 12)
		mn.Emit(bytecode.StrSlice, 0, 1, 0, 6)
		mn.Emit(bytecode.EqStr, 0, 2, 1, 5)
		mn.Emit(bytecode.Return, 3, 0, 0, 0)
		return mn.ID()
	})
	res, err := v.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := v.goString(res[0]); got != "hello, world" {
		t.Errorf("concat = %q", got)
	}
	if got := v.goString(res[1]); got != "world" {
		t.Errorf("substring = %q", got)
	}
	if res[2] != 1 {
		t.Errorf("content equality failed")
	}
}

func TestStringOrdering(t *testing.T) {
	v := buildVM(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 4, 2)
		mn.RefSlots(2, 3)
		mn.EmitImm(bytecode.LoadK, 0, 2, int32(a.StrConst("abc")))
		mn.EmitImm(bytecode.LoadK, 0, 3, int32(a.StrConst("abd")))
		mn.Emit(bytecode.LtStr, 0, 0, 2, 3)
		mn.Emit(bytecode.GeStr, 0, 1, 2, 3)
		mn.Emit(bytecode.Return, 2, 0, 0, 0)
		return mn.ID()
	})
	res, err := v.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res[0] != 1 || res[1] != 0 {
		t.Errorf(`"abc" < "abd" = %d, >= %d`, res[0], res[1])
	}
}

func TestStringRangeLoop(t *testing.T) {
	// Summing the runes of "héllo" exercises the UTF-8 iterator.
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		mn := a.Func("main", 0, 8, 1)
		mn.RefSlots(1)
		mn.EmitImm(bytecode.LoadK, 0, 1, int32(a.StrConst("héllo")))
		mn.EmitImm(bytecode.LoadInt, 0, 0, 0)
		mn.Emit(bytecode.IterBegin, bytecode.IterString, 0, 1, 0)
		loop := mn.Here()
		mn.Emit(bytecode.IterNext, 0, 2, 0, 0) // r2 idx, r3 rune, r4 ok
		j := mn.Jump(bytecode.JumpIfNot, 4)
		mn.Emit(bytecode.AddI, 0, 0, 0, 3)
		mn.JumpBack(bytecode.Jump, 0, loop)
		mn.Patch(j)
		mn.Emit(bytecode.IterEnd, 0, 0, 0, 0)
		mn.Emit(bytecode.Return, 1, 0, 0, 0)
		return mn.ID()
	})
	want := int64('h') + int64('é') + int64('l') + int64('l') + int64('o')
	if got := int64(res[0]); got != want {
		t.Errorf("rune sum = %d, want %d", got, want)
	}
}

func TestExternCall(t *testing.T) {
	RegisterExtern("test.double", func(ctx *ExternCallContext) ExternResult {
		ctx.RetI64(0, ctx.ArgI64(0)*2)
		return ExternReturn(1)
	})
	res := runProgram(t, func(a *bytecode.Asm) uint32 {
		x := a.Extern("test.double", "(i64) -> i64")
		mn := a.Func("main", 0, 1, 1)
		mn.EmitImm(bytecode.LoadInt, 0, 0, 21)
		mn.Emit(bytecode.CallExtern, 1, x, 0, 1)
		mn.Emit(bytecode.Return, 1, 0, 0, 0)
		return mn.ID()
	})
	if int64(res[0]) != 42 {
		t.Errorf("extern double(21) = %d", int64(res[0]))
	}
}

func TestExternError(t *testing.T) {
	RegisterExtern("test.fail", func(ctx *ExternCallContext) ExternResult {
		return ExternError(ExternErrIO, "backend unavailable")
	})
	v := buildVM(t, func(a *bytecode.Asm) uint32 {
		x := a.Extern("test.fail", "() -> (i64, error)")
		mn := a.Func("main", 0, 4, 1)
		mn.IfaceSlots(1)
		mn.Emit(bytecode.CallExtern, 3, x, 0, 0) // rets r0, error pair r1,r2
		mn.Emit(bytecode.IfaceIsNil, 0, 3, 1, 0)
		mn.Emit(bytecode.Return, 1, 3, 0, 0)
		return mn.ID()
	})
	res, err := v.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res[0] != 0 {
		t.Errorf("error interface reported nil after failing extern")
	}
}

func TestUnresolvedExtern(t *testing.T) {
	a := bytecode.NewAsm("test")
	a.Extern("no.such.native", "")
	mn := a.Func("main", 0, 1, 0)
	mn.Emit(bytecode.Return, 0, 0, 0, 0)
	mod, err := a.Module(mn.ID())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if _, err := New(mod, Config{}); err == nil {
		t.Fatalf("New accepted a module with an unbound extern")
	}
}

func TestExtensionABIGate(t *testing.T) {
	err := LoadExtension(ExtensionTable{ABIVersion: ExternABIVersion + 1})
	if err == nil {
		t.Fatalf("extension with wrong ABI version loaded")
	}
	err = LoadExtension(ExtensionTable{
		ABIVersion: ExternABIVersion,
		Entries: []ExtensionEntry{{
			Name: "test.ext.ok",
			Fn:   func(ctx *ExternCallContext) ExternResult { return ExternReturn(0) },
		}},
	})
	if err != nil {
		t.Fatalf("extension refused: %v", err)
	}
	if _, ok := lookupExtern("test.ext.ok"); !ok {
		t.Fatalf("extension entry not registered")
	}
}
