// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// VM side of the JIT bridge: hotness accounting, the trampoline, and
// the context handed to native code.
//
// Native code shares the fiber stack: the trampoline pushes a real
// frame and hands out its window, so root scanning is identical for
// interpreted and compiled activations and no stack maps exist.
// Reference locals are never cached across potentially-safepointing
// operations; compiled code re-reads them from the window.
//
// Panic propagation pauses at a frame pushed by the trampoline
// (frame.isJit): the unwinder sets f.jitUnwind and stops, the native
// call returns JitPanic, and the trampoline pops its frame and
// resumes the propagation — one Go frame unwinding per JIT frame.

package vm

import "github.com/oxfeeefeee/volang/bytecode"

type JitResult uint8

const (
	JitOk JitResult = iota
	JitPanic
)

// CompiledFn is one natively compiled function.
type CompiledFn func(ctx *JitContext) JitResult

// Compiler lowers one bytecode function; ok=false marks the function
// uncompilable (excluded ops), never to be asked about again.
type Compiler interface {
	Compile(m *bytecode.Module, funcID uint32) (CompiledFn, bool)
}

// SetCompiler installs a JIT engine. Passing nil disables compilation.
func (vm *VM) SetCompiler(c Compiler) {
	vm.compiler = c
}

// InvalidateJit drops all installed code; hot functions recompile
// against the current module. This is the whole hot-reload contract.
func (vm *VM) InvalidateJit() {
	for i := range vm.compiled {
		vm.compiled[i] = nil
		vm.callCounts[i] = 0
		vm.backedges[i] = 0
		vm.jitRejected[i] = false
	}
}

// noteBackedge counts loop back-edges; a hot loop marks its function
// for compilation at its next call.
func (vm *VM) noteBackedge(funcID uint32) {
	vm.backedges[funcID]++
}

// hotCall returns installed code for funcID, compiling it first when
// its call or backedge count crosses the threshold.
func (vm *VM) hotCall(funcID uint32) CompiledFn {
	if vm.compiler == nil {
		return nil
	}
	if cf := vm.compiled[funcID]; cf != nil {
		return cf
	}
	if vm.jitRejected[funcID] {
		return nil
	}
	vm.callCounts[funcID]++
	if int(vm.callCounts[funcID]) < vm.cfg.JitCallThreshold &&
		int(vm.backedges[funcID]) < vm.cfg.JitLoopThreshold {
		return nil
	}
	cf, ok := vm.compiler.Compile(vm.mod, funcID)
	if !ok {
		vm.jitRejected[funcID] = true
		return nil
	}
	vm.compiled[funcID] = cf
	return cf
}

// JitContext is the native calling convention: the compiled function
// reads and writes its frame through Locals and calls back through
// the context for everything it does not lower itself.
type JitContext struct {
	Locals []uint64

	vm *VM
	f  *fiber
	fr *frame

	// Result window recorded by the compiled Return.
	retBase  int
	retCount int
}

// invokeJit is the trampoline: frame push, native call, return or
// panic handoff.
func (vm *VM) invokeJit(f *fiber, funcID uint32, cf CompiledFn, args []uint64, retReg, retc int) {
	fr := vm.pushFrame(f, funcID, args, retReg, retc)
	fr.isJit = true
	ctx := &JitContext{
		Locals: f.stack[fr.bp : fr.bp+int(vm.mod.Funcs[funcID].LocalSlots)],
		vm:     vm,
		f:      f,
		fr:     fr,
	}
	res := cf(ctx)
	if res == JitPanic {
		f.jitUnwind = false
		f.popFrame()
		vm.resumePanic(f)
		return
	}
	// Returns were written into the frame window; deliver them.
	src := fr.bp + ctx.retBase
	n := retc
	if ctx.retCount < n {
		n = ctx.retCount
	}
	copy(f.stack[retReg:retReg+n], f.stack[src:src+n])
	f.popFrame()
	if len(f.frames) == 0 {
		vm.fiberExit(f, src, retc)
	}
}

// resumePanic continues panic propagation after a JIT frame has been
// popped off both stacks.
func (vm *VM) resumePanic(f *fiber) { vm.panicUnwind(f) }

// SetPC records the bytecode pc for diagnostics.
func (c *JitContext) SetPC(pc int) { c.fr.pc = pc }

// Return records where the function's results sit in its window.
func (c *JitContext) Return(base, count int) {
	c.retBase = base
	c.retCount = count
}

// Exec1 executes one non-control instruction through the shared
// object-model executor. It reports false when the instruction
// panicked; the native code must then return JitPanic.
func (c *JitContext) Exec1(ins bytecode.Instr) bool {
	return c.vm.exec1(c.f, c.fr, ins)
}

// Panic raises a Vo panic with an already-boxed value.
func (c *JitContext) Panic(v0, v1 uint64) {
	c.vm.panicOp(c.f, v0, v1)
}

// RuntimeError raises a recoverable runtime error (nil deref, bounds).
func (c *JitContext) RuntimeError(msg string) {
	c.vm.runtimeError(c.f, msg)
}

// Call invokes funcID with arguments at the frame-relative window
// argBase, returns landing there too. It reports false when a panic
// escaped the callee.
func (c *JitContext) Call(funcID uint32, argBase, argc, retc int) bool {
	base := c.fr.bp + argBase
	return c.vm.callFromJit(c.f, funcID, c.f.stack[base:base+argc], base, retc, 0)
}

// CallClosure invokes a closure value.
func (c *JitContext) CallClosure(clo GcRef, argBase, argc, retc int) bool {
	if clo == 0 {
		c.vm.runtimeError(c.f, "call of nil closure")
		return false
	}
	base := c.fr.bp + argBase
	return c.vm.callFromJit(c.f, c.vm.closureFunc(clo), c.f.stack[base:base+argc], base, retc, clo)
}

// CallIface invokes interface method methodIdx on the pair at the
// frame-relative index pair.
func (c *JitContext) CallIface(pair, methodIdx, argBase, argc, retc int) bool {
	s0 := c.Locals[pair]
	if ifaceIsNil(s0) {
		c.vm.runtimeError(c.f, "nil interface method call")
		return false
	}
	funcID, ok := c.vm.ifaceMethod(s0, methodIdx)
	if !ok {
		c.vm.runtimeError(c.f, "interface method lookup failed")
		return false
	}
	base := c.fr.bp + argBase
	args := make([]uint64, 1+argc)
	args[0] = c.Locals[pair+1]
	copy(args[1:], c.f.stack[base:base+argc])
	return c.vm.callFromJitArgs(c.f, funcID, args, base, retc)
}

// CallExtern invokes a registered native.
func (c *JitContext) CallExtern(externID, argBase, argc, retc int) bool {
	c.vm.callExtern(c.f, c.fr, externID, argBase, argc, retc)
	return !c.f.jitUnwind && !c.vm.unwindActiveAt(c.f, c.fr)
}

// callFromJit runs a bytecode (or nested-compiled) call on behalf of
// native code, handling blocking by scheduling other fibers.
func (vm *VM) callFromJit(f *fiber, funcID uint32, argWindow []uint64, retReg, retc int, clo GcRef) bool {
	var args []uint64
	if clo != 0 {
		buf := make([]uint64, 1+len(argWindow))
		buf[0] = clo
		copy(buf[1:], argWindow)
		args = buf
	} else {
		args = argWindow
	}
	return vm.callFromJitArgs(f, funcID, args, retReg, retc)
}

func (vm *VM) callFromJitArgs(f *fiber, funcID uint32, args []uint64, retReg, retc int) bool {
	vm.gcStep()
	if cf := vm.hotCall(funcID); cf != nil {
		vm.invokeJit(f, funcID, cf, args, retReg, retc)
		return !f.jitUnwind
	}
	depth := len(f.frames) + 1
	vm.pushFrame(f, funcID, args, retReg, retc)
	for {
		vm.execute(f, depth)
		if f.status == fiberSuspended {
			vm.scheduleUntil(f)
			continue
		}
		break
	}
	return !f.jitUnwind
}

// unwindActiveAt reports whether an unwind state is consuming the
// given frame (used after extern calls that may have panicked).
func (vm *VM) unwindActiveAt(f *fiber, fr *frame) bool {
	return len(f.frames) == 0 || f.top() != fr
}
