// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vm executes Vo bytecode: a register interpreter over
// per-fiber slot stacks, a precise incremental mark-sweep collector
// over a shared heap, a cooperative fiber scheduler, the native-call
// ABI, and the VM side of the JIT bridge.
package vm

import (
	"fmt"
	"io"

	"github.com/oxfeeefeee/volang/bytecode"
)

const (
	defaultJitCallThreshold = 100
	defaultJitLoopThreshold = 50
)

// Config tunes one VM instance. Zero fields fall back to the VOGC /
// VOGCSTEPMUL / VOJIT / VODEBUG environment, then to defaults.
type Config struct {
	StackSlots       int
	GCPause          int // percent heap growth between cycles
	GCStepMul        int
	GCOff            bool
	HeapLimit        uint64 // hard byte budget; 0 means unlimited
	JitCallThreshold int
	JitLoopThreshold int

	debug debugFlags
}

// VM is one loaded program: module, heap, fibers, extern bindings and
// installed JIT code.
type VM struct {
	mod  *bytecode.Module
	heap *heap
	cfg  Config

	globals     []uint64
	globalTypes []bytecode.SlotType
	constRefs   []GcRef

	fibers   []*fiber
	runq     []*fiber
	fiberSeq uint64
	curFiber *fiber

	externs []ExternFunc

	compiler    Compiler
	compiled    []CompiledFn
	callCounts  []uint32
	backedges   []uint32
	jitRejected []bool

	diag DiagnosticFunc
}

// New builds a VM for a validated module, binding its extern table
// against the process registry.
func New(mod *bytecode.Module, cfg Config) (*VM, error) {
	if err := mod.Validate(); err != nil {
		return nil, err
	}
	readEnvConfig(&cfg)

	vm := &VM{
		mod:         mod,
		heap:        newHeap(),
		cfg:         cfg,
		constRefs:   make([]GcRef, len(mod.Consts)),
		compiled:    make([]CompiledFn, len(mod.Funcs)),
		callCounts:  make([]uint32, len(mod.Funcs)),
		backedges:   make([]uint32, len(mod.Funcs)),
		jitRejected: make([]bool, len(mod.Funcs)),
	}
	vm.heap.gc.pause = cfg.GCPause
	vm.heap.gc.stepmul = cfg.GCStepMul
	vm.heap.gc.enabled = !cfg.GCOff
	vm.heap.limit = cfg.HeapLimit

	for _, g := range mod.Globals {
		switch {
		case g.Kind == bytecode.KindInterface:
			vm.globalTypes = append(vm.globalTypes, bytecode.SlotInterface0, bytecode.SlotInterface1)
		case bytecode.NeedsGC(g.Kind):
			vm.globalTypes = append(vm.globalTypes, bytecode.SlotGcRef)
		default:
			vm.globalTypes = append(vm.globalTypes, bytecode.SlotValue)
		}
		for extra := int(g.Slots) - 1; extra > 0 && g.Kind != bytecode.KindInterface; extra-- {
			vm.globalTypes = append(vm.globalTypes, bytecode.SlotValue)
		}
	}
	vm.globals = make([]uint64, len(vm.globalTypes))

	vm.externs = make([]ExternFunc, len(mod.Externs))
	for i, x := range mod.Externs {
		fn, ok := lookupExtern(x.Name)
		if !ok {
			return nil, fmt.Errorf("vo: unresolved extern %q", x.Name)
		}
		vm.externs[i] = fn
	}
	return vm, nil
}

// Load decodes a .vob image and builds a VM for it.
func Load(r io.Reader, cfg Config) (*VM, error) {
	mod, err := bytecode.Decode(r)
	if err != nil {
		return nil, err
	}
	return New(mod, cfg)
}

// Module returns the loaded module.
func (vm *VM) Module() *bytecode.Module { return vm.mod }

// ReloadModule swaps in a recompiled module. Installed JIT code is
// invalidated; that is the only reload contract the core honors.
func (vm *VM) ReloadModule(mod *bytecode.Module) error {
	if err := mod.Validate(); err != nil {
		return err
	}
	vm.mod = mod
	vm.constRefs = make([]GcRef, len(mod.Consts))
	vm.compiled = make([]CompiledFn, len(mod.Funcs))
	vm.callCounts = make([]uint32, len(mod.Funcs))
	vm.backedges = make([]uint32, len(mod.Funcs))
	vm.jitRejected = make([]bool, len(mod.Funcs))
	return nil
}

// Run executes the module's entry function on the main fiber and
// returns its result slots. Uncaught panics and fatal conditions come
// back as errors.
func (vm *VM) Run() (result []uint64, err error) {
	defer func() {
		switch r := recover().(type) {
		case nil:
		case vmFatal:
			vm.diagnostic("PANIC", "", r.msg)
			err = r
		case vmThrow:
			err = r
		default:
			panic(r)
		}
	}()

	entry := vm.mod.Entry
	main := vm.newFiber(true)
	main.result = make([]uint64, vm.mod.Funcs[entry].RetSlots)
	vm.pushFrame(main, entry, nil, 0, 0)
	vm.runq = append(vm.runq, main)

	if err := vm.schedule(main); err != nil {
		return nil, err
	}
	return main.result, nil
}

// CallFunction runs an arbitrary function to completion on a fresh
// fiber — the embedding hook tests and tools use.
func (vm *VM) CallFunction(funcID uint32, args []uint64) ([]uint64, error) {
	f := vm.newFiber(true)
	f.result = make([]uint64, vm.mod.Funcs[funcID].RetSlots)
	vm.pushFrame(f, funcID, args, 0, 0)
	vm.runq = append(vm.runq, f)
	if err := vm.schedule(f); err != nil {
		return nil, err
	}
	return f.result, nil
}
