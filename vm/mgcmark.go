// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// GC marking: root scan and precise object scan.
//
// Roots are the VM stack of every fiber (scanned frame by frame with
// the owning function's slot types), the defer stacks (captured
// argument buffers), the iterator stacks (container refs), pending
// unwind state (dead frame windows and queued defers), panic values,
// globals and the interned constant strings. JIT code contributes
// nothing: it writes through the same fiber stacks.

package vm

import "github.com/oxfeeefeee/volang/bytecode"

// shade greys a white object. It is the core of both the root scan
// and the write barrier.
func (vm *VM) shade(ref GcRef) {
	if ref == 0 {
		return
	}
	h := vm.heap
	o := h.obj(ref)
	if isWhite(o.hdr.mark) {
		o.hdr.mark = colorGray
		h.gc.gray = append(h.gc.gray, ref)
	}
}

// MarkGray is the explicit re-gray hook exported to JIT code and
// native extensions through the symbol table.
func (vm *VM) MarkGray(ref GcRef) { vm.shade(ref) }

func (vm *VM) scanRoots() {
	for _, f := range vm.fibers {
		if f.status == fiberDead {
			continue
		}
		vm.scanFiber(f)
	}
	vm.scanSlots(vm.globals, vm.globalTypes, 0)
	for _, ref := range vm.constRefs {
		vm.shade(ref)
	}
}

func (vm *VM) scanFiber(f *fiber) {
	for i := range f.frames {
		fr := &f.frames[i]
		fn := &vm.mod.Funcs[fr.funcID]
		vm.scanSlots(f.stack[fr.bp:fr.bp+int(fn.LocalSlots)], fn.SlotTypes, 0)
	}
	for i := range f.deferStack {
		vm.scanDefer(&f.deferStack[i])
	}
	for i := range f.iterStack {
		vm.shade(f.iterStack[i].ref)
	}
	if f.panicking {
		vm.scanIfacePair(f.panicVal[0], f.panicVal[1])
	}
	for _, u := range f.unwinds {
		// The dead frame's window stays live on the stack until the
		// unwind completes; its slots still hold the named results
		// and any cells the defers write through.
		fn := &vm.mod.Funcs[u.deadFunc]
		vm.scanSlots(f.stack[u.deadBp:u.deadBp+int(fn.LocalSlots)], fn.SlotTypes, 0)
		for i := range u.defers {
			vm.scanDefer(&u.defers[i])
		}
	}
}

func (vm *VM) scanDefer(d *deferEntry) {
	vm.shade(d.closure)
	for i := 0; i < int(d.argCount); i++ {
		switch d.argTypes[i] {
		case bytecode.SlotGcRef:
			vm.shade(d.args[i])
		case bytecode.SlotInterface1:
			if i > 0 {
				vm.scanIfacePair(d.args[i-1], d.args[i])
			}
		}
	}
}

// scanSlots marks the references in a typed slot window.
func (vm *VM) scanSlots(slots []uint64, types []bytecode.SlotType, off int) {
	for i := range slots {
		switch types[off+i] {
		case bytecode.SlotGcRef:
			vm.shade(slots[i])
		case bytecode.SlotInterface1:
			vm.scanIfacePair(slots[i-1], slots[i])
		}
	}
}

func (vm *VM) scanIfacePair(s0, s1 uint64) {
	if bytecode.NeedsGC(bytecode.IfaceValueMeta(s0).Kind()) {
		vm.shade(s1)
	}
}

// scanObject blackens one object, greying the objects it references.
// Dispatch is by the header's value meta: user structs consult their
// slot-type vector; builtin kinds have fixed layouts.
func (vm *VM) scanObject(ref GcRef) {
	o := vm.heap.obj(ref)
	o.hdr.mark = colorBlack

	switch o.hdr.meta.Kind() {
	case bytecode.KindStruct:
		st, ok := vm.mod.StructByID(o.hdr.meta.MetaID())
		if !ok {
			throw("gc: struct object without metadata")
		}
		vm.scanSlots(o.slots, st.SlotTypes, 0)

	case bytecode.KindString, bytecode.KindSlice:
		// Slot 0 is the backing array.
		vm.shade(o.slots[0])

	case bytecode.KindArray:
		vm.scanArray(o)

	case bytecode.KindMap:
		vm.scanMap(o.ext.(*voMap))

	case bytecode.KindChannel:
		vm.scanChan(o.ext.(*voChan))

	case bytecode.KindClosure:
		// Captures are raw refs to escaped cells.
		n := int(o.slots[1])
		for i := 0; i < n; i++ {
			vm.shade(o.slots[2+i])
		}

	case bytecode.KindPointer:
		vm.scanCell(o)
	}
}

// scanCell scans an escaped-variable cell: the meta id records the
// pointee (a user struct id, or a builtin kind for everything else).
func (vm *VM) scanCell(o *object) {
	mid := o.hdr.meta.MetaID()
	if mid >= bytecode.FirstUserStruct {
		st, ok := vm.mod.StructByID(mid)
		if !ok {
			throw("gc: cell object without struct metadata")
		}
		vm.scanSlots(o.slots, st.SlotTypes, 0)
		return
	}
	switch k := bytecode.ValueKind(mid); {
	case k == bytecode.KindInterface:
		vm.scanIfacePair(o.slots[0], o.slots[1])
	case bytecode.NeedsGC(k):
		for _, s := range o.slots {
			vm.shade(s)
		}
	}
}

func (vm *VM) scanArray(o *object) {
	elem := bytecode.ValueMeta(o.slots[arrElemMeta])
	k := elem.Kind()
	if !bytecode.NeedsGC(k) {
		return // packed or plain-value elements hold no pointers
	}
	n := int(o.slots[arrLen])
	w := int(o.slots[arrElemBytes]) / 8
	switch k {
	case bytecode.KindStruct:
		st, ok := vm.mod.StructByID(elem.MetaID())
		if !ok {
			throw("gc: array of struct without metadata")
		}
		for i := 0; i < n; i++ {
			vm.scanSlots(o.slots[arrHeaderSlots+i*w:arrHeaderSlots+(i+1)*w], st.SlotTypes, 0)
		}
	case bytecode.KindInterface:
		for i := 0; i < n; i++ {
			base := arrHeaderSlots + i*2
			vm.scanIfacePair(o.slots[base], o.slots[base+1])
		}
	default:
		for i := 0; i < n; i++ {
			vm.shade(o.slots[arrHeaderSlots+i*w])
		}
	}
}

func (vm *VM) scanMap(m *voMap) {
	keyRefs := bytecode.NeedsGC(m.keyKind)
	valRefs := bytecode.NeedsGC(m.valKind)
	for i := range m.entries {
		e := &m.entries[i]
		if e.dead {
			continue
		}
		if keyRefs {
			vm.shade(e.key)
		}
		if valRefs {
			if m.valKind == bytecode.KindInterface {
				vm.scanIfacePair(e.val[0], e.val[1])
			} else {
				vm.shade(e.val[0])
			}
		}
	}
}

func (vm *VM) scanChan(c *voChan) {
	if !bytecode.NeedsGC(c.elemKind) {
		return
	}
	scan := func(v []uint64) {
		if c.elemKind == bytecode.KindInterface {
			vm.scanIfacePair(v[0], v[1])
		} else {
			vm.shade(v[0])
		}
	}
	for _, v := range c.buf {
		scan(v)
	}
	for _, w := range c.sendq {
		if w.val != nil {
			scan(w.val)
		}
	}
}
