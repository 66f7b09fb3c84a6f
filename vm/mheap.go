// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Heap object model.
//
// The heap is a table of objects addressed by GcRef handles: handle 0
// is nil, handle n refers to table slot n-1. Every object starts with
// a fixed header carrying the mark color and the value meta; the
// payload is a slot array, plus a packed byte region for arrays of
// narrow elements and an inner-state record for maps and channels.

package vm

import (
	"github.com/oxfeeefeee/volang/bytecode"
)

type gcHeader struct {
	mark  uint8 // color, whites flip each cycle
	gen   uint8 // Young/Old/Touched, reserved
	flags uint8 // finalization/pinning bits, reserved
	meta  bytecode.ValueMeta
}

type object struct {
	hdr   gcHeader
	slots []uint64
	data  []byte // packed array payload
	ext   any    // *voMap or *voChan inner state
	size  uint64 // accounted bytes
}

const objHeaderBytes = 16

type heap struct {
	objects []*object
	free    []uint32 // free table slots
	limit   uint64   // hard byte budget, 0 = unlimited

	// Byte accounting, in the style of mstats.
	live  uint64 // bytes held by reachable-or-unswept objects
	peak  uint64 // high-water mark of live
	count uint64 // live object count

	// Collector state lives alongside the table it sweeps.
	gc gcState
}

func newHeap() *heap {
	h := &heap{}
	h.gc.init()
	return h
}

// obj resolves a handle. Handle 0 and stale handles are the caller's
// bug; resolving them throws.
func (h *heap) obj(ref GcRef) *object {
	o := h.objects[ref-1]
	if o == nil {
		throw("heap: dangling GcRef")
	}
	return o
}

// valid reports whether ref currently names a live object.
func (h *heap) valid(ref GcRef) bool {
	return ref != 0 && ref <= uint64(len(h.objects)) && h.objects[ref-1] != nil
}

func (h *heap) put(o *object) GcRef {
	if n := len(h.free); n > 0 {
		i := h.free[n-1]
		h.free = h.free[:n-1]
		h.objects[i] = o
		return GcRef(i + 1)
	}
	h.objects = append(h.objects, o)
	return GcRef(len(h.objects))
}

func (h *heap) account(o *object) {
	o.size = objHeaderBytes + uint64(len(o.slots))*8 + uint64(len(o.data))
	h.live += o.size
	h.count++
	if h.live > h.peak {
		h.peak = h.live
	}
	// Exhaustion is fatal and uncatchable; no out-of-memory object is
	// ever handed to the program.
	if h.limit != 0 && h.live > h.limit {
		fatal("out of memory")
	}
}

// alloc allocates a slot-based object colored with the current white.
// The safepoint runs before the object exists: a step that completed a
// cycle here would otherwise sweep the not-yet-rooted allocation.
func (vm *VM) alloc(kind bytecode.ValueKind, metaID uint32, slots int) GcRef {
	vm.gcAllocHook()
	return vm.allocRaw(kind, metaID, slots)
}

// allocRaw allocates without a safepoint. Composite constructors that
// build several objects before any of them is rooted take one
// safepoint up front and then allocate each piece raw.
func (vm *VM) allocRaw(kind bytecode.ValueKind, metaID uint32, slots int) GcRef {
	h := vm.heap
	o := &object{
		hdr:   gcHeader{mark: h.gc.currentWhite, meta: bytecode.PackValueMeta(metaID, kind)},
		slots: make([]uint64, slots),
	}
	ref := h.put(o)
	h.account(o)
	return ref
}

// allocBytesRaw allocates an array object whose payload is the packed
// byte region rather than slots. The array header slots are still
// present. No safepoint.
func (vm *VM) allocBytesRaw(metaID uint32, headerSlots, nbytes int) GcRef {
	h := vm.heap
	o := &object{
		hdr:   gcHeader{mark: h.gc.currentWhite, meta: bytecode.PackValueMeta(metaID, bytecode.KindArray)},
		slots: make([]uint64, headerSlots),
		data:  make([]byte, nbytes),
	}
	ref := h.put(o)
	h.account(o)
	return ref
}

// gcAllocHook is the allocation-count safepoint.
func (vm *VM) gcAllocHook() {
	h := vm.heap
	h.gc.allocs++
	if h.gc.allocs >= allocStepThreshold {
		h.gc.allocs = 0
		vm.gcStep()
	}
}

// readSlot and writeSlot are the slot access helpers exported through
// the runtime symbol table. writeSlot runs the write barrier when the
// stored value is a heap reference.
func (vm *VM) readSlot(ref GcRef, i int) uint64 {
	return vm.heap.obj(ref).slots[i]
}

func (vm *VM) writeSlot(ref GcRef, i int, v uint64, isRef bool) {
	o := vm.heap.obj(ref)
	o.slots[i] = v
	if isRef {
		vm.writeBarrier(ref, v)
	}
}

// Stats is a point-in-time heap snapshot.
type Stats struct {
	Live    uint64 // accounted live bytes
	Peak    uint64 // high-water live bytes
	Objects uint64
	Cycles  uint64 // completed GC cycles
}

func (vm *VM) HeapStats() Stats {
	h := vm.heap
	return Stats{Live: h.live, Peak: h.peak, Objects: h.count, Cycles: h.gc.cycles}
}
