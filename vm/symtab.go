// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The runtime symbol table.
//
// JIT backends and native extensions link against the runtime by
// name. Each entry is a funcvalue bound to one VM instance; the names
// and signatures are the stable, ABI-versioned surface — the Go types
// behind them are not.

package vm

import "github.com/oxfeeefeee/volang/bytecode"

// SymtabVersion gates symbol-table consumers, separately from the
// extern ABI.
const SymtabVersion = 1

// Symbols builds the entry-point table for one VM.
func Symbols(vm *VM) map[string]any {
	return map[string]any{
		// Collector.
		"vo_gc_alloc": func(kind uint8, metaID uint32, slots int) GcRef {
			return vm.alloc(bytecode.ValueKind(kind), metaID, slots)
		},
		"vo_gc_read_slot":     vm.readSlot,
		"vo_gc_write_slot":    vm.writeSlot,
		"vo_gc_write_barrier": vm.WriteBarrier,
		"vo_gc_mark_gray":     vm.MarkGray,
		"vo_gc_pause":         vm.PauseGC,
		"vo_gc_resume":        vm.ResumeGC,
		"vo_gc_collect":       vm.Collect,

		// Globals.
		"vo_rt_get_global": func(i int) uint64 { return vm.globals[i] },
		"vo_rt_set_global": func(i int, v uint64) { vm.globals[i] = v },

		// Object model.
		"vo_string_new":    vm.newString,
		"vo_string_concat": vm.strConcat,
		"vo_string_cmp":    vm.strCompare,
		"vo_string_len":    vm.strLenOf,
		"vo_decode_rune":   vm.decodeRune,
		"vo_array_new":     vm.newArray,
		"vo_array_get":     vm.arrayGet,
		"vo_array_set":     vm.arraySet,
		"vo_slice_new":     vm.newSlice,
		"vo_slice_append":  vm.sliceAppend,
		"vo_slice_len":     vm.sliceLen,
		"vo_copy":          vm.sliceCopy,
		"vo_map_new":       vm.newMap,
		"vo_map_get":       vm.mapGet,
		"vo_map_set":       vm.mapSet,
		"vo_map_delete":    vm.mapDelete,
		"vo_map_iter_next": vm.mapIterNext,
		"vo_closure_new":   vm.newClosure,
		"vo_closure_fn":    vm.closureFunc,
		"vo_upval_box_new": vm.newCell,
		"vo_interface_is":  vm.ErrorsIs,
		"vo_interface_as":  vm.ErrorsAs,

		// Concurrency, unwinding and iteration are fiber-relative:
		// the entries bind to the fiber executing when the call is
		// made (native code only ever runs inside one).
		"vo_chan_len": vm.chanLen,
		"vo_go_spawn": func(funcID uint32, args []uint64) {
			vm.spawn(vm.curFiber, funcID, args)
		},
		"vo_panic": func(v0, v1 uint64) {
			vm.panicOp(vm.curFiber, v0, v1)
		},

		// Extern dispatch: invoke a registered native on scratch
		// stack space of the current fiber.
		"vo_extern_call": vm.externCallRaw,
	}
}

// externCallRaw dispatches an extern over caller-supplied slots,
// outside any bytecode frame.
func (vm *VM) externCallRaw(id int, args []uint64, rets []uint64) {
	f := vm.curFiber
	if f == nil || id >= len(vm.externs) || vm.externs[id] == nil {
		return
	}
	base := f.allocBase(vm)
	n := copy(f.stack[base:], args)
	ctx := &ExternCallContext{vm: vm, f: f, base: base, argc: n, retc: len(rets)}
	vm.PauseGC()
	res := vm.externs[id](ctx)
	vm.ResumeGC()
	if res.Code != ExternOk {
		vm.writeExternError(f, ctx, res)
	}
	copy(rets, f.stack[base:base+len(rets)])
}
