// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Interface values.
//
// An interface value is a slot pair: slot 0 packs the static
// interface identity with the dynamic value meta, slot 1 holds the
// data word. The nil test is on the dynamic ValueKind, never on the
// data word: a typed-nil pointer boxes to a non-nil interface whose
// data happens to be 0.

package vm

import "github.com/oxfeeefeee/volang/bytecode"

// Reserved interface meta ids, below the module range.
const (
	// ErrorIfaceID is the builtin `error` interface: method 0 is
	// Error() string.
	ErrorIfaceID = bytecode.FirstIface - 1

	// UnwrapIfaceID is the optional-unwrap convention: method 0 is
	// Unwrap() error. The code generator emits itabs for concrete
	// types declaring it; errors.Is/As walk through it.
	UnwrapIfaceID = bytecode.FirstIface - 2
)

// Reserved struct meta id for runtime error values (data is the
// message string).
const runtimeErrorMeta = 1

// ifaceAssign boxes a value into an interface pair. For reference
// kinds with per-object metadata the dynamic meta is read from the
// object header; a typed nil keeps its static kind.
func (vm *VM) ifaceAssign(srcKind bytecode.ValueKind, src uint64, ifaceMetaID uint32) (uint64, uint64) {
	var meta bytecode.ValueMeta
	switch srcKind {
	case bytecode.KindNil:
		return ifaceNil(ifaceMetaID)
	case bytecode.KindStruct, bytecode.KindPointer:
		if src != 0 {
			meta = vm.heap.obj(src).hdr.meta
		} else {
			meta = bytecode.PackValueMeta(0, srcKind)
		}
	default:
		meta = bytecode.PackValueMeta(0, srcKind)
	}
	return bytecode.PackIface(ifaceMetaID, meta), src
}

// ifaceConvert re-targets an interface pair at another interface type.
func ifaceConvert(s0, s1 uint64, ifaceMetaID uint32) (uint64, uint64) {
	return bytecode.PackIface(ifaceMetaID, bytecode.IfaceValueMeta(s0)), s1
}

// ifaceAssert checks pair (s0,s1) against an expected type. For a
// concrete target the dynamic meta must match kind (and meta id for
// struct/pointer targets); for an interface target the module must
// carry an itab for (concrete, target).
func (vm *VM) ifaceAssert(s0, s1 uint64, kind bytecode.ValueKind, metaID uint32) (uint64, uint64, bool) {
	dyn := bytecode.IfaceValueMeta(s0)
	if dyn.Kind() == bytecode.KindNil {
		return 0, 0, false
	}
	if kind == bytecode.KindInterface {
		if _, ok := vm.mod.Itabs[bytecode.ItabKey{Concrete: dyn.MetaID(), Iface: metaID}]; !ok {
			return 0, 0, false
		}
		r0, r1 := ifaceConvert(s0, s1, metaID)
		return r0, r1, true
	}
	if dyn.Kind() != kind {
		return 0, 0, false
	}
	if (kind == bytecode.KindStruct || kind == bytecode.KindPointer) && dyn.MetaID() != metaID {
		return 0, 0, false
	}
	return s1, 0, true
}

// ifaceMethod resolves the target function of an interface call.
func (vm *VM) ifaceMethod(s0 uint64, methodIdx int) (uint32, bool) {
	dyn := bytecode.IfaceValueMeta(s0)
	if dyn.Kind() == bytecode.KindNil {
		return 0, false
	}
	return vm.mod.Method(dyn.MetaID(), bytecode.IfaceMetaID(s0), methodIdx)
}
