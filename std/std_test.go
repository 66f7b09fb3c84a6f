// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package std

import (
	"bytes"
	"testing"

	"github.com/oxfeeefeee/volang/bytecode"
	"github.com/oxfeeefeee/volang/vm"
)

func TestPrintlnAndItoa(t *testing.T) {
	var out bytes.Buffer
	old := Stdout
	Stdout = &out
	defer func() { Stdout = old }()

	a := bytecode.NewAsm("stdtest")
	itoa := a.Extern("itoa", "(i64) -> string")
	println_ := a.Extern("println", "(...) -> ()")

	mn := a.Func("main", 0, 4, 0)
	mn.RefSlots(0, 1)
	mn.EmitImm(bytecode.LoadK, 0, 0, int32(a.StrConst("answer")))
	mn.EmitImm(bytecode.LoadInt, 0, 1, 42)
	mn.Emit(bytecode.CallExtern, 1, itoa, 1, 1) // r1 = itoa(42)
	mn.Emit(bytecode.CallExtern, 0, println_, 0, 2)
	mn.Emit(bytecode.Return, 0, 0, 0, 0)

	mod, err := a.Module(mn.ID())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	v, err := vm.New(mod, vm.Config{})
	if err != nil {
		t.Fatalf("new vm: %v", err)
	}
	if _, err := v.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.String(); got != "answer 42\n" {
		t.Errorf("println output = %q, want %q", got, "answer 42\n")
	}
}

func TestAtoiError(t *testing.T) {
	a := bytecode.NewAsm("stdtest2")
	atoi := a.Extern("atoi", "(string) -> (i64, error)")

	mn := a.Func("main", 0, 5, 1)
	mn.RefSlots(0).IfaceSlots(1)
	mn.EmitImm(bytecode.LoadK, 0, 0, int32(a.StrConst("not-a-number")))
	mn.Emit(bytecode.CallExtern, 3, atoi, 0, 1) // rets r0, err pair r1,r2
	mn.Emit(bytecode.IfaceIsNil, 0, 3, 1, 0)
	mn.Emit(bytecode.Return, 1, 3, 0, 0)
	mod, err := a.Module(mn.ID())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	v, err := vm.New(mod, vm.Config{})
	if err != nil {
		t.Fatalf("new vm: %v", err)
	}
	res, err := v.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res[0] != 0 {
		t.Errorf("atoi on garbage returned a nil error")
	}
}
