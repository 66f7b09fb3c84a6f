// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Runtime errors and the builtin error interface.
//
// Three failure classes share the bookkeeping:
//
//   - runtime errors (nil deref, bounds, failed assertions) enter the
//     ordinary panic pipeline carrying an error value, so user code
//     can recover them;
//   - explicit panics carry whatever value the program passed;
//   - fatal errors (stack overflow, internal corruption) abort the
//     run; no Vo code observes them.

package vm

import (
	"fmt"
	"strconv"

	"github.com/oxfeeefeee/volang/bytecode"
)

// vmFatal aborts the whole run; Run converts it into an error.
type vmFatal struct{ msg string }

func (e vmFatal) Error() string { return "vo: fatal error: " + e.msg }

func fatal(msg string) { panic(vmFatal{msg: msg}) }

// vmThrow marks an internal invariant violation (a VM bug, never a
// user program condition).
type vmThrow struct{ msg string }

func (e vmThrow) Error() string { return "vo: internal error: " + e.msg }

func throw(msg string) { panic(vmThrow{msg: msg}) }

// UncaughtPanic is returned by Run when a panic reached a fiber root.
type UncaughtPanic struct{ Msg string }

func (e *UncaughtPanic) Error() string { return "vo: panic: " + e.Msg }

// packError wraps a message string ref into an error interface pair.
func (vm *VM) packError(msg GcRef) (uint64, uint64) {
	return bytecode.PackIface(ErrorIfaceID,
		bytecode.PackValueMeta(runtimeErrorMeta, bytecode.KindString)), msg
}

// runtimeError raises a recoverable runtime error through the panic
// pipeline, tagging the diagnostic with the current source location.
func (vm *VM) runtimeError(f *fiber, msg string) {
	ref := vm.newString("runtime error: " + msg)
	v0, v1 := vm.packError(ref)
	vm.panicOp(f, v0, v1)
}

// assertError raises the failed-assertion runtime error.
func (vm *VM) assertError(f *fiber, s0 uint64, kind bytecode.ValueKind, metaID uint32) {
	dyn := bytecode.IfaceValueMeta(s0)
	want := kind.String()
	if kind == bytecode.KindStruct {
		if st, ok := vm.mod.StructByID(metaID); ok {
			want = st.Name
		}
	} else if kind == bytecode.KindInterface {
		if it, ok := vm.mod.IfaceByID(metaID); ok {
			want = it.Name
		}
	}
	have := dyn.Kind().String()
	if dyn.Kind() == bytecode.KindStruct {
		if st, ok := vm.mod.StructByID(dyn.MetaID()); ok {
			have = st.Name
		}
	}
	if dyn.Kind() == bytecode.KindNil {
		vm.runtimeError(f, "interface conversion: interface is nil, not "+want)
		return
	}
	vm.runtimeError(f, "interface conversion: interface is "+have+", not "+want)
}

// panicMessage renders a panic value for diagnostics. There is room
// for arbitrary complexity here; we handle the few shapes that
// matter: strings, integers, floats, bools and error values.
func (vm *VM) panicMessage(v0, v1 uint64) string {
	meta := bytecode.IfaceValueMeta(v0)
	switch meta.Kind() {
	case bytecode.KindNil:
		return "nil"
	case bytecode.KindString:
		return vm.goString(v1)
	case bytecode.KindBool:
		if v1 != 0 {
			return "true"
		}
		return "false"
	case bytecode.KindFloat32, bytecode.KindFloat64:
		return strconv.FormatFloat(f64(v1), 'g', -1, 64)
	case bytecode.KindInt8, bytecode.KindInt16, bytecode.KindInt32, bytecode.KindInt64:
		return strconv.FormatInt(i64(v1), 10)
	case bytecode.KindUint8, bytecode.KindUint16, bytecode.KindUint32, bytecode.KindUint64:
		return strconv.FormatUint(v1, 10)
	default:
		return fmt.Sprintf("(%s) %#x", meta.Kind(), v1)
	}
}

// ErrorsIs walks an error chain by identity, in the manner of the
// stdlib: the pair matches the target when the dynamic metas agree
// and the data words are identical (string-kinded errors compare by
// content), else the chain is followed through the Unwrap itab.
func (vm *VM) ErrorsIs(e0, e1, t0, t1 uint64) bool {
	for {
		em, tm := bytecode.IfaceValueMeta(e0), bytecode.IfaceValueMeta(t0)
		if em == tm {
			if em.Kind() == bytecode.KindString {
				if vm.strEqual(e1, t1) {
					return true
				}
			} else if e1 == t1 {
				return true
			}
		}
		var ok bool
		e0, e1, ok = vm.errorUnwrap(e0, e1)
		if !ok {
			return false
		}
	}
}

// ErrorsAs reports whether some error in the chain has the concrete
// meta of the target, returning that error's pair.
func (vm *VM) ErrorsAs(e0, e1 uint64, wantMeta bytecode.ValueMeta) (uint64, uint64, bool) {
	for {
		if bytecode.IfaceValueMeta(e0) == wantMeta {
			return e0, e1, true
		}
		var ok bool
		e0, e1, ok = vm.errorUnwrap(e0, e1)
		if !ok {
			return 0, 0, false
		}
	}
}

// errorUnwrap follows the optional Unwrap method via the reserved
// unwrap itab. A concrete type without one ends the chain.
func (vm *VM) errorUnwrap(e0, e1 uint64) (uint64, uint64, bool) {
	dyn := bytecode.IfaceValueMeta(e0)
	if dyn.Kind() == bytecode.KindNil {
		return 0, 0, false
	}
	funcID, ok := vm.mod.Method(dyn.MetaID(), UnwrapIfaceID, 0)
	if !ok {
		return 0, 0, false
	}
	f := vm.curFiber
	if f == nil {
		return 0, 0, false
	}
	base := f.allocBase(vm)
	if base+2 > len(f.stack) {
		fatal("fiber stack overflow")
	}
	if !vm.callFromJitArgs(f, funcID, []uint64{e1}, base, 2) {
		return 0, 0, false
	}
	r0, r1 := f.stack[base], f.stack[base+1]
	if ifaceIsNil(r0) {
		return 0, 0, false
	}
	return r0, r1, true
}
