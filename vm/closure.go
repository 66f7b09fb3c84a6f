// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Closures.
//
// A closure is [funcID, captureCount, cap0, cap1, ...]. Captured
// variables are escaped by definition, so each capture is a raw ref
// to the variable's heap cell; there is no indirection box and no
// open/closed upvalue distinction. Reads and writes inside the
// closure body go through the cell with PtrGet/PtrSet.

package vm

import "github.com/oxfeeefeee/volang/bytecode"

const (
	cloFunc     = 0
	cloCapCount = 1
	cloCaps     = 2
)

func (vm *VM) newClosure(funcID uint32, caps []uint64) GcRef {
	ref := vm.alloc(bytecode.KindClosure, 0, cloCaps+len(caps))
	o := vm.heap.obj(ref)
	o.slots[cloFunc] = uint64(funcID)
	o.slots[cloCapCount] = uint64(len(caps))
	copy(o.slots[cloCaps:], caps)
	vm.bulkBarrier(ref)
	return ref
}

func (vm *VM) closureFunc(ref GcRef) uint32 {
	return uint32(vm.heap.obj(ref).slots[cloFunc])
}

func (vm *VM) closureCap(ref GcRef, i int) uint64 {
	return vm.heap.obj(ref).slots[cloCaps+i]
}

// newCell allocates the heap cell of one escaped variable. The meta
// id records the pointee: a struct id, or the builtin kind.
func (vm *VM) newCell(metaID uint32, slots int) GcRef {
	return vm.alloc(bytecode.KindPointer, metaID, slots)
}
