// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// String objects.
//
// A string is [arrayRef, start, len] over a packed byte array, always
// immutable. start/len are byte offsets, so substring never copies.
// Equality is content equality; ordering is byte-lexicographic. The
// nil ref reads as the empty string.

package vm

import (
	"unicode/utf8"

	"github.com/oxfeeefeee/volang/bytecode"
)

const (
	strArray = 0
	strStart = 1
	strLen   = 2
	strSlots = 3
)

// newByteArrayRaw builds a packed byte array without a safepoint; the
// caller owns the rooting discipline.
func (vm *VM) newByteArrayRaw(b []byte) GcRef {
	ref := vm.allocBytesRaw(0, arrHeaderSlots, len(b))
	o := vm.heap.obj(ref)
	o.slots[arrLen] = uint64(len(b))
	o.slots[arrElemMeta] = uint64(bytecode.PackValueMeta(0, bytecode.KindUint8))
	o.slots[arrElemBytes] = 1
	copy(o.data, b)
	return ref
}

// newString interns nothing: each call builds a fresh two-object
// string. One safepoint covers both allocations.
func (vm *VM) newString(s string) GcRef {
	vm.gcAllocHook()
	arr := vm.newByteArrayRaw([]byte(s))
	ref := vm.allocRaw(bytecode.KindString, 0, strSlots)
	o := vm.heap.obj(ref)
	o.slots[strArray] = arr
	o.slots[strLen] = uint64(len(s))
	return ref
}

// newStringSlice shares an existing byte array.
func (vm *VM) newStringSlice(arr GcRef, start, n int) GcRef {
	ref := vm.alloc(bytecode.KindString, 0, strSlots)
	o := vm.heap.obj(ref)
	o.slots[strArray] = arr
	o.slots[strStart] = uint64(start)
	o.slots[strLen] = uint64(n)
	vm.writeBarrier(ref, arr)
	return ref
}

// goString materializes the content of a string object.
func (vm *VM) goString(ref GcRef) string {
	if ref == 0 {
		return ""
	}
	o := vm.heap.obj(ref)
	n := int(o.slots[strLen])
	if n == 0 {
		return ""
	}
	arr := vm.heap.obj(o.slots[strArray])
	start := int(o.slots[strStart])
	return string(arr.data[start : start+n])
}

func (vm *VM) strBytes(ref GcRef) []byte {
	if ref == 0 {
		return nil
	}
	o := vm.heap.obj(ref)
	n := int(o.slots[strLen])
	if n == 0 {
		return nil
	}
	arr := vm.heap.obj(o.slots[strArray])
	start := int(o.slots[strStart])
	return arr.data[start : start+n]
}

func (vm *VM) strLenOf(ref GcRef) int {
	if ref == 0 {
		return 0
	}
	return int(vm.heap.obj(ref).slots[strLen])
}

func (vm *VM) strConcat(a, b GcRef) GcRef {
	sa, sb := vm.strBytes(a), vm.strBytes(b)
	buf := make([]byte, 0, len(sa)+len(sb))
	buf = append(buf, sa...)
	buf = append(buf, sb...)
	vm.gcAllocHook()
	arr := vm.newByteArrayRaw(buf)
	ref := vm.allocRaw(bytecode.KindString, 0, strSlots)
	o := vm.heap.obj(ref)
	o.slots[strArray] = arr
	o.slots[strLen] = uint64(len(buf))
	return ref
}

// strCompare returns -1, 0 or 1 by byte-lexicographic order.
func (vm *VM) strCompare(a, b GcRef) int {
	sa, sb := vm.strBytes(a), vm.strBytes(b)
	n := len(sa)
	if len(sb) < n {
		n = len(sb)
	}
	for i := 0; i < n; i++ {
		if sa[i] != sb[i] {
			if sa[i] < sb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(sa) < len(sb):
		return -1
	case len(sa) > len(sb):
		return 1
	}
	return 0
}

func (vm *VM) strEqual(a, b GcRef) bool {
	sa, sb := vm.strBytes(a), vm.strBytes(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// decodeRune decodes one rune at byte offset i, returning the rune
// and its width. Exported through the symbol table for string range
// loops.
func (vm *VM) decodeRune(ref GcRef, i int) (rune, int) {
	b := vm.strBytes(ref)
	if i >= len(b) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRune(b[i:])
}
