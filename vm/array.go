// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Arrays and slices.
//
// An array object is a three-slot header [len, elemMeta, elemBytes]
// followed by the element payload: a packed byte region for element
// widths 1, 2 and 4, or a slot region for everything else (width is
// then a multiple of 8). A slice is [arrayRef, start, len, cap] where
// start is an element index into the backing array; slicing shares
// the array, append copies on growth. Slice headers are immutable
// values: append and reslice always build a new header, so aliases
// only ever share element storage.

package vm

import (
	"encoding/binary"

	"github.com/oxfeeefeee/volang/bytecode"
)

const (
	arrLen         = 0
	arrElemMeta    = 1
	arrElemBytes   = 2
	arrHeaderSlots = 3
)

const (
	slcArray = 0
	slcStart = 1
	slcLen   = 2
	slcCap   = 3
	slcSlots = 4
)

// elemWidth returns the storage width in bytes for an element kind:
// the packed width, or slots*8 for slot-based elements.
func (vm *VM) elemWidth(kind bytecode.ValueKind, metaID uint32) int {
	if w := kind.PackedBytes(); w != 0 {
		return w
	}
	switch kind {
	case bytecode.KindInterface:
		return 16
	case bytecode.KindStruct:
		st, ok := vm.mod.StructByID(metaID)
		if !ok {
			throw("array: struct element without metadata")
		}
		return st.Slots() * 8
	}
	return 8
}

// newArrayRaw allocates an array of n elements. No safepoint.
func (vm *VM) newArrayRaw(kind bytecode.ValueKind, metaID uint32, n int) GcRef {
	w := vm.elemWidth(kind, metaID)
	var ref GcRef
	if w < 8 {
		ref = vm.allocBytesRaw(0, arrHeaderSlots, n*w)
	} else {
		ref = vm.allocRaw(bytecode.KindArray, 0, arrHeaderSlots+n*w/8)
	}
	o := vm.heap.obj(ref)
	o.slots[arrLen] = uint64(n)
	o.slots[arrElemMeta] = uint64(bytecode.PackValueMeta(metaID, kind))
	o.slots[arrElemBytes] = uint64(w)
	return ref
}

func (vm *VM) newArray(kind bytecode.ValueKind, metaID uint32, n int) GcRef {
	vm.gcAllocHook()
	return vm.newArrayRaw(kind, metaID, n)
}

func (vm *VM) arrayLen(ref GcRef) int { return int(vm.heap.obj(ref).slots[arrLen]) }

func (vm *VM) arrayElemMeta(ref GcRef) bytecode.ValueMeta {
	return bytecode.ValueMeta(vm.heap.obj(ref).slots[arrElemMeta])
}

// arrayGet loads element i as a canonical 64-bit register value,
// extending packed elements per the element kind's signedness.
func (vm *VM) arrayGet(ref GcRef, i int) uint64 {
	o := vm.heap.obj(ref)
	w := int(o.slots[arrElemBytes])
	if w >= 8 {
		return o.slots[arrHeaderSlots+i*(w/8)]
	}
	k := bytecode.ValueMeta(o.slots[arrElemMeta]).Kind()
	off := i * w
	switch w {
	case 1:
		v := uint64(o.data[off])
		if k == bytecode.KindInt8 {
			return u64(int64(int8(v)))
		}
		return v
	case 2:
		v := uint64(binary.LittleEndian.Uint16(o.data[off:]))
		if k == bytecode.KindInt16 {
			return u64(int64(int16(v)))
		}
		return v
	default:
		v := uint64(binary.LittleEndian.Uint32(o.data[off:]))
		if k == bytecode.KindInt32 {
			return u64(int64(int32(v)))
		}
		return v
	}
}

func (vm *VM) arraySet(ref GcRef, i int, v uint64) {
	o := vm.heap.obj(ref)
	w := int(o.slots[arrElemBytes])
	if w >= 8 {
		o.slots[arrHeaderSlots+i*(w/8)] = v
		if bytecode.NeedsGC(bytecode.ValueMeta(o.slots[arrElemMeta]).Kind()) {
			vm.writeBarrier(ref, v)
		}
		return
	}
	off := i * w
	switch w {
	case 1:
		o.data[off] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(o.data[off:], uint16(v))
	default:
		binary.LittleEndian.PutUint32(o.data[off:], uint32(v))
	}
}

// arrayGetN / arraySetN move multi-slot elements.
func (vm *VM) arrayGetN(ref GcRef, i, slots int, dst []uint64) {
	o := vm.heap.obj(ref)
	base := arrHeaderSlots + i*slots
	copy(dst, o.slots[base:base+slots])
}

func (vm *VM) arraySetN(ref GcRef, i, slots int, src []uint64) {
	o := vm.heap.obj(ref)
	base := arrHeaderSlots + i*slots
	copy(o.slots[base:base+slots], src)
	vm.bulkBarrier(ref)
}

// newSliceRaw builds a slice header. No safepoint.
func (vm *VM) newSliceRaw(arr GcRef, start, n, cap_ int) GcRef {
	ref := vm.allocRaw(bytecode.KindSlice, 0, slcSlots)
	o := vm.heap.obj(ref)
	o.slots[slcArray] = arr
	o.slots[slcStart] = uint64(start)
	o.slots[slcLen] = uint64(n)
	o.slots[slcCap] = uint64(cap_)
	return ref
}

// newSlice makes a slice of n elements with the given capacity,
// backed by a fresh array.
func (vm *VM) newSlice(kind bytecode.ValueKind, metaID uint32, n, cap_ int) GcRef {
	if cap_ < n {
		cap_ = n
	}
	vm.gcAllocHook()
	arr := vm.newArrayRaw(kind, metaID, cap_)
	return vm.newSliceRaw(arr, 0, n, cap_)
}

func (vm *VM) sliceParts(ref GcRef) (arr GcRef, start, n, cap_ int) {
	o := vm.heap.obj(ref)
	return o.slots[slcArray], int(o.slots[slcStart]), int(o.slots[slcLen]), int(o.slots[slcCap])
}

func (vm *VM) sliceLen(ref GcRef) int {
	if ref == 0 {
		return 0
	}
	return int(vm.heap.obj(ref).slots[slcLen])
}

// sliceAppend appends one element (elemSlots wide for slot-based
// elements, 1 for packed) and returns the new header. Growth doubles
// from a floor of 4.
func (vm *VM) sliceAppend(ref GcRef, val []uint64) GcRef {
	arr, start, n, cap_ := vm.sliceParts(ref)
	if n < cap_ {
		vm.storeElem(arr, start+n, val)
		vm.gcAllocHook()
		return vm.newSliceRaw(arr, start, n+1, cap_)
	}
	newCap := cap_ * 2
	if newCap < 4 {
		newCap = 4
	}
	elem := vm.arrayElemMeta(arr)
	vm.gcAllocHook()
	newArr := vm.newArrayRaw(elem.Kind(), elem.MetaID(), newCap)
	vm.arrayCopy(newArr, 0, arr, start, n)
	vm.storeElem(newArr, n, val)
	return vm.newSliceRaw(newArr, 0, n+1, newCap)
}

func (vm *VM) storeElem(arr GcRef, i int, val []uint64) {
	if len(val) == 1 {
		vm.arraySet(arr, i, val[0])
		return
	}
	vm.arraySetN(arr, i, len(val), val)
}

// arrayCopy copies n elements between arrays of identical element
// layout, handling the packed and slot-based regions.
func (vm *VM) arrayCopy(dst GcRef, dstOff int, src GcRef, srcOff, n int) {
	if n == 0 {
		return
	}
	do, so := vm.heap.obj(dst), vm.heap.obj(src)
	w := int(so.slots[arrElemBytes])
	if w < 8 {
		copy(do.data[dstOff*w:(dstOff+n)*w], so.data[srcOff*w:(srcOff+n)*w])
		return
	}
	ws := w / 8
	copy(do.slots[arrHeaderSlots+dstOff*ws:arrHeaderSlots+(dstOff+n)*ws],
		so.slots[arrHeaderSlots+srcOff*ws:arrHeaderSlots+(srcOff+n)*ws])
	vm.bulkBarrier(dst)
}

// sliceCopy implements copy(dst, src), returning the element count.
func (vm *VM) sliceCopy(dst, src GcRef) int {
	if dst == 0 || src == 0 {
		return 0
	}
	da, ds, dn, _ := vm.sliceParts(dst)
	sa, ss, sn, _ := vm.sliceParts(src)
	n := dn
	if sn < n {
		n = sn
	}
	if n == 0 {
		return 0
	}
	// Same backing array with overlap is fine: the regions are
	// element-aligned and copy() handles overlapping memmove.
	vm.arrayCopy(da, ds, sa, ss, n)
	return n
}

// sliceOf implements s[lo:hi] over a slice or array ref.
func (vm *VM) sliceOf(f *fiber, ref GcRef, lo, hi int) GcRef {
	var arr GcRef
	var start, n, cap_ int
	o := vm.heap.obj(ref)
	if o.hdr.meta.Kind() == bytecode.KindArray {
		arr, start, n, cap_ = ref, 0, int(o.slots[arrLen]), int(o.slots[arrLen])
	} else {
		arr, start, n, cap_ = vm.sliceParts(ref)
	}
	_ = n
	if lo < 0 || hi < lo || hi > cap_ {
		vm.runtimeError(f, "slice bounds out of range")
		return 0
	}
	ns := vm.alloc(bytecode.KindSlice, 0, slcSlots)
	no := vm.heap.obj(ns)
	no.slots[slcArray] = arr
	no.slots[slcStart] = uint64(start + lo)
	no.slots[slcLen] = uint64(hi - lo)
	no.slots[slcCap] = uint64(cap_ - lo)
	vm.writeBarrier(ns, arr)
	return ns
}
