// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"testing"

	"github.com/oxfeeefeee/volang/bytecode"
)

func TestErrorsIsIdentity(t *testing.T) {
	v := gcTestVM(t, nil)

	e0, e1 := v.packError(v.newString("file not found"))
	same0, same1 := v.packError(v.newString("file not found"))
	other0, other1 := v.packError(v.newString("permission denied"))

	if !v.ErrorsIs(e0, e1, e0, e1) {
		t.Errorf("error does not match itself")
	}
	// String-kinded errors compare by content.
	if !v.ErrorsIs(e0, e1, same0, same1) {
		t.Errorf("content-equal string errors do not match")
	}
	if v.ErrorsIs(e0, e1, other0, other1) {
		t.Errorf("distinct errors matched")
	}
}

func TestErrorsUnwrapChain(t *testing.T) {
	// Wrap holds an inner error pair; its Unwrap method returns it.
	a := bytecode.NewAsm("errtest")
	wrapMeta := a.Struct("Wrap", bytecode.SlotInterface0, bytecode.SlotInterface1)

	unwrap := a.Func("Wrap.Unwrap", 1, 3, 2)
	unwrap.RefSlots(0).IfaceSlots(1)
	unwrap.Emit(bytecode.PtrGet, 2, 1, 0, 0)
	unwrap.Emit(bytecode.Return, 2, 1, 0, 0)
	a.Itab(wrapMeta, UnwrapIfaceID, unwrap.ID())

	mn := a.Func("main", 0, 1, 0)
	mn.Emit(bytecode.Return, 0, 0, 0, 0)
	mod, err := a.Module(mn.ID())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	v, err := New(mod, Config{})
	if err != nil {
		t.Fatalf("new vm: %v", err)
	}

	base0, base1 := v.packError(v.newString("base"))
	wrapRef := v.alloc(bytecode.KindStruct, wrapMeta, 2)
	v.writeSlot(wrapRef, 0, base0, false)
	v.writeSlot(wrapRef, 1, base1, true)
	w0 := bytecode.PackIface(ErrorIfaceID, bytecode.PackValueMeta(wrapMeta, bytecode.KindStruct))
	w1 := wrapRef

	// The walkers call the Unwrap method on the current fiber.
	v.curFiber = v.newFiber(true)

	if !v.ErrorsIs(w0, w1, base0, base1) {
		t.Errorf("errors.Is failed to walk the Unwrap chain")
	}
	if v.ErrorsIs(base0, base1, w0, w1) {
		t.Errorf("errors.Is matched in the wrong direction")
	}

	g0, g1, ok := v.ErrorsAs(w0, w1, bytecode.PackValueMeta(wrapMeta, bytecode.KindStruct))
	if !ok || g1 != wrapRef {
		t.Errorf("errors.As did not find the wrapper itself (%v, %#x)", ok, g1)
	}
	_ = g0
	got0, got1, ok := v.ErrorsAs(w0, w1, bytecode.IfaceValueMeta(base0))
	if !ok || got1 != base1 {
		t.Errorf("errors.As did not reach the base error")
	}
	_ = got0
}
