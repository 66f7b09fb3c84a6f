// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Unified unwinding: return, panic, recover, defer.
//
// Each fiber keeps a stack of unwind states; the top state is the one
// in flight. A state has a mode (Return or Panic), the LIFO queue of
// defers still to run, and targetDepth: the frame count after the
// unwinding function's own frame has been popped. A defer boundary is
// detected exactly when a Return executes with
// len(frames) == targetDepth+1.
//
// Three events drive the machine:
//
//  1. Return with no unwinding active: if the function pushed defers,
//     pop its frame, queue them, enter Return mode; else a plain
//     return to the caller.
//  2. Return at a defer boundary: collect defers the deferred call
//     itself pushed (they run next), pop the frame, then either run
//     the next defer or complete. In Panic mode, a cleared panic
//     value (Recover ran inside that defer) switches the state to
//     Return mode first.
//  3. Panic: record the value; if already unwinding, pop to the
//     current boundary (collecting intermediate defers), switch the
//     mode to Panic and continue with the remaining defers; else
//     start fresh panic unwinding from the current frame.
//
// When a Panic-mode state runs out of defers, the panic propagates
// one frame up with a fresh state, until a recover intervenes or the
// fiber root is reached; a root panic kills the fiber, and the whole
// program when the fiber is the main one. Propagation pauses at a
// frame pushed by the JIT trampoline: the machine parks, the native
// call returns JitPanic, and the interpreter-side trampoline resumes
// the propagation after unwinding its own Go frame.
//
// The unwinding function's frame window stays allocated on the stack
// until its state completes: deferred calls stack above it, and the
// completion step reads the named results (directly, or through their
// escape cells) from the dead window.

package vm

import "github.com/oxfeeefeee/volang/bytecode"

type unwindMode uint8

const (
	unwindReturn unwindMode = iota
	unwindPanic
)

type unwindState struct {
	mode        unwindMode
	defers      []deferEntry // pending, executed from the end
	targetDepth int

	// Dead frame bookkeeping: the unwinding function.
	deadFunc uint32
	deadBp   int

	// Return completion info.
	retReg    int // absolute caller destination
	retCount  int
	retSrc    int  // absolute source window in the dead frame
	errReturn bool // the return carried the error flag
}

// deferMaxArgs bounds the captured-at-push argument buffer.
const deferMaxArgs = 8

type deferEntry struct {
	frameDepth int
	funcID     uint32
	closure    GcRef // nonzero for closure defers
	onErrOnly  bool
	argCount   uint8
	args       [deferMaxArgs]uint64
	argTypes   [deferMaxArgs]bytecode.SlotType
}

// collectDefers pops the defer entries owned by the frame at depth
// (in push order).
func (f *fiber) collectDefers(depth int) []deferEntry {
	i := len(f.deferStack)
	for i > 0 && f.deferStack[i-1].frameDepth == depth {
		i--
	}
	d := make([]deferEntry, len(f.deferStack)-i)
	copy(d, f.deferStack[i:])
	f.deferStack = f.deferStack[:i]
	return d
}

func (f *fiber) curUnwind() *unwindState {
	if n := len(f.unwinds); n > 0 {
		return f.unwinds[n-1]
	}
	return nil
}

// returnOp implements the Return opcode.
func (vm *VM) returnOp(f *fiber, ins bytecode.Instr) {
	fr := f.top()
	retc := int(ins.Flags &^ bytecode.FlagErrReturn)
	depth := len(f.frames)
	u := f.curUnwind()

	if u != nil && depth == u.targetDepth+1 {
		// Event 2: a deferred call returned.
		u.defers = append(u.defers, f.collectDefers(depth)...)
		f.popFrame()
		vm.continueUnwind(f)
		return
	}

	own := f.collectDefers(depth)
	if len(own) == 0 {
		// Plain return.
		src := fr.bp + int(ins.A)
		dst, n := fr.retReg, fr.retCount
		if n > retc {
			n = retc
		}
		copy(f.stack[dst:dst+n], f.stack[src:src+n])
		f.popFrame()
		if len(f.frames) == 0 {
			vm.fiberExit(f, src, retc)
		}
		return
	}

	// Event 1: enter Return-mode unwinding.
	nu := &unwindState{
		mode:        unwindReturn,
		defers:      own,
		targetDepth: depth - 1,
		deadFunc:    fr.funcID,
		deadBp:      fr.bp,
		retReg:      fr.retReg,
		retCount:    fr.retCount,
		retSrc:      fr.bp + int(ins.A),
		errReturn:   ins.Flags&bytecode.FlagErrReturn != 0,
	}
	f.popFrame()
	f.unwinds = append(f.unwinds, nu)
	vm.continueUnwind(f)
}

// panicOp implements the Panic opcode (and the runtime-error path,
// which arrives with the value already boxed).
func (vm *VM) panicOp(f *fiber, v0, v1 uint64) {
	// A panic while already panicking simply replaces the value; the
	// last panic wins and is the one the next recover observes.
	f.panicVal[0], f.panicVal[1] = v0, v1
	f.panicking = true
	vm.panicUnwind(f)
}

// panicUnwind routes an in-flight panic: park at a JIT trampoline
// frame, fold into the active unwind state (event 3), or start fresh
// unwinding of the top frame.
func (vm *VM) panicUnwind(f *fiber) {
	if len(f.frames) == 0 {
		vm.fiberPanicExit(f)
		return
	}
	if f.top().isJit {
		// The trampoline pops its own frame and resumes from there.
		f.jitUnwind = true
		return
	}
	if u := f.curUnwind(); u != nil {
		// Already unwinding: unwind to the current defer boundary,
		// folding in the defers of every frame on the way. A JIT
		// frame on the way parks the machine; the trampoline resumes
		// it after unwinding its own Go frame.
		for len(f.frames) > u.targetDepth {
			if f.top().isJit {
				f.jitUnwind = true
				return
			}
			u.defers = append(u.defers, f.collectDefers(len(f.frames))...)
			f.popFrame()
		}
		vm.continueUnwind(f)
		return
	}
	vm.beginPanicUnwind(f)
}

// beginPanicUnwind starts Panic-mode unwinding of the top frame.
func (vm *VM) beginPanicUnwind(f *fiber) {
	fr := f.top()
	depth := len(f.frames)
	nu := &unwindState{
		mode:        unwindPanic,
		defers:      f.collectDefers(depth),
		targetDepth: depth - 1,
		deadFunc:    fr.funcID,
		deadBp:      fr.bp,
		retReg:      fr.retReg,
		retCount:    fr.retCount,
		retSrc:      fr.bp + int(vm.mod.Funcs[fr.funcID].ResultBase),
	}
	f.popFrame()
	f.unwinds = append(f.unwinds, nu)
	vm.continueUnwind(f)
}

// continueUnwind advances the top unwind state until it either pushes
// a deferred call frame (execution resumes in the dispatch loop),
// completes, propagates, or parks at a JIT boundary.
func (vm *VM) continueUnwind(f *fiber) {
	for {
		u := f.curUnwind()

		// The panicking flag is the source of truth for the mode: a
		// recover inside the last deferred call clears it (resume
		// completing the return); a panic arriving from a deeper
		// propagation re-asserts it over a Return-mode state.
		if f.panicking {
			u.mode = unwindPanic
		} else if u.mode == unwindPanic {
			u.mode = unwindReturn
		}

		for len(u.defers) > 0 {
			n := len(u.defers) - 1
			d := u.defers[n]
			u.defers = u.defers[:n]
			if d.onErrOnly && u.mode == unwindReturn && !u.errReturn {
				continue
			}
			vm.pushDeferFrame(f, &d)
			return
		}

		if u.mode == unwindReturn {
			vm.completeReturn(f, u)
			return
		}

		// Panic mode, defers exhausted: propagate one frame up. The
		// routing (park at a JIT frame, fold into an outer state,
		// start a fresh one) is the same as for a raised panic.
		f.unwinds = f.unwinds[:len(f.unwinds)-1]
		vm.panicUnwind(f)
		return
	}
}

// pushDeferFrame activates one deferred call.
func (vm *VM) pushDeferFrame(f *fiber, d *deferEntry) {
	var args []uint64
	funcID := d.funcID
	if d.closure != 0 {
		funcID = vm.closureFunc(d.closure)
		buf := make([]uint64, 1+int(d.argCount))
		buf[0] = d.closure
		copy(buf[1:], d.args[:d.argCount])
		args = buf
	} else {
		args = d.args[:d.argCount]
	}
	fr := vm.pushFrame(f, funcID, args, 0, 0)
	fr.isDefer = true
}

// completeReturn finishes a Return-mode unwind: the named results are
// read from the dead frame's window (through their escape cells when
// the results escaped) and delivered to the caller.
func (vm *VM) completeReturn(f *fiber, u *unwindState) {
	fn := &vm.mod.Funcs[u.deadFunc]
	n := u.retCount
	if int(fn.RetSlots) < n {
		n = int(fn.RetSlots)
	}
	for i := 0; i < n; i++ {
		v := f.stack[u.retSrc+i]
		if fn.ResultCells {
			v = vm.heap.obj(v).slots[0]
		}
		f.stack[u.retReg+i] = v
	}
	f.unwinds = f.unwinds[:len(f.unwinds)-1]
	if len(f.frames) == 0 {
		// The entry function finished via its defers.
		for i := 0; i < len(f.result) && i < n; i++ {
			f.result[i] = f.stack[u.retReg+i]
		}
		f.status = fiberDead
	}
}

// recoverOp implements Recover: effective only directly inside a
// deferred call while a panic is in flight.
func (vm *VM) recoverOp(f *fiber, dst int) {
	fr := f.top()
	if fr.isDefer && f.panicking {
		f.stack[dst] = f.panicVal[0]
		f.stack[dst+1] = f.panicVal[1]
		f.panicking = false
		f.panicVal[0], f.panicVal[1] = 0, 0
		return
	}
	f.stack[dst], f.stack[dst+1] = ifaceNil(ErrorIfaceID)
}

// deferPush implements DeferPush, capturing arguments by value.
func (vm *VM) deferPush(f *fiber, ins bytecode.Instr) {
	fr := f.top()
	argc := int(ins.C)
	if argc > deferMaxArgs {
		fatal("defer: too many captured arguments")
	}
	d := deferEntry{
		frameDepth: len(f.frames),
		onErrOnly:  ins.Flags&bytecode.FlagDeferOnErr != 0,
		argCount:   uint8(argc),
	}
	var callee uint32
	if ins.Flags&bytecode.FlagDeferClosure != 0 {
		d.closure = f.stack[fr.bp+int(ins.A)]
		if d.closure == 0 {
			vm.runtimeError(f, "defer of nil closure")
			return
		}
		callee = vm.closureFunc(d.closure)
	} else {
		d.funcID = uint32(ins.A)
		callee = d.funcID
	}
	fn := &vm.mod.Funcs[callee]
	base := fr.bp + int(ins.B)
	off := 0
	if d.closure != 0 {
		off = 1 // callee r0 is the closure; args follow
	}
	for i := 0; i < argc; i++ {
		d.args[i] = f.stack[base+i]
		if off+i < len(fn.SlotTypes) {
			d.argTypes[i] = fn.SlotTypes[off+i]
		}
	}
	f.deferStack = append(f.deferStack, d)
}

// fiberExit finishes a fiber whose last frame returned normally.
func (vm *VM) fiberExit(f *fiber, retSrc, retc int) {
	if f.result == nil {
		f.result = make([]uint64, retc)
	}
	for i := 0; i < len(f.result) && i < retc; i++ {
		f.result[i] = f.stack[retSrc+i]
	}
	f.status = fiberDead
}

// fiberPanicExit kills a fiber whose panic reached the root.
func (vm *VM) fiberPanicExit(f *fiber) {
	msg := vm.panicMessage(f.panicVal[0], f.panicVal[1])
	loc := ""
	if len(f.frames) > 0 {
		fr := f.top()
		loc = vm.mod.Debug.Lookup(fr.funcID, fr.pc)
	}
	vm.diagnostic("PANIC", loc, msg)
	f.status = fiberDead
	f.err = &UncaughtPanic{Msg: msg}
	f.panicking = false
}
