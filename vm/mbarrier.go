// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Garbage collector: write barriers.
//
// Incremental marking runs interleaved with the mutator, so a pointer
// store into an already-black object could hide a white child from
// the current cycle. Every heap pointer store therefore runs a
// barrier. Two forms exist:
//
// writeBarrier is the forward (Dijkstra) form, coarsened to always
// shade the stored child during Propagate regardless of the parent's
// color. Shading unconditionally avoids reading the parent's mark on
// the hot path and is strictly stronger than the no-black-to-white
// requirement.
//
// bulkBarrier is the backward form for multi-slot stores where the
// caller does not know which written slots are references: the parent
// is re-greyed so the propagate phase rescans it. Either form
// restores the marking invariant before the mutator continues.
//
// Reads need no barrier. Stack writes need no barrier: stacks are
// rescanned in the atomic phase.

package vm

// writeBarrier records a single heap pointer store parent.slot = child.
func (vm *VM) writeBarrier(parent, child GcRef) {
	if vm.heap.gc.phase != gcPropagate || child == 0 {
		return
	}
	vm.shade(child)
}

// bulkBarrier re-greys parent after an opaque multi-slot store.
func (vm *VM) bulkBarrier(parent GcRef) {
	h := vm.heap
	if h.gc.phase != gcPropagate || parent == 0 {
		return
	}
	o := h.obj(parent)
	if o.hdr.mark == colorBlack {
		o.hdr.mark = colorGray
		h.gc.gray = append(h.gc.gray, parent)
	}
}

// WriteBarrier is the symbol-table export used by JIT code.
func (vm *VM) WriteBarrier(parent, child GcRef) { vm.writeBarrier(parent, child) }
