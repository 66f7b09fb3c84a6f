// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The dispatch loop.
//
// execute runs one fiber until it parks, dies, or (when stopDepth is
// nonzero) its frame stack shrinks below stopDepth — the nested form
// backs bytecode calls made from JIT code. Control flow, calls and
// blocking ops are inlined here; everything else goes through exec1.
//
// pc is advanced at fetch, so a parked fiber resumes after the
// blocking instruction (the waker delivers results directly into its
// stack); a blocked select instead rewinds pc and re-polls on wake.

package vm

import "github.com/oxfeeefeee/volang/bytecode"

func (vm *VM) execute(f *fiber, stopDepth int) {
	prev := vm.curFiber
	vm.curFiber = f
	defer func() { vm.curFiber = prev }()
	f.status = fiberRunning

	if f.resumeErr != "" {
		msg := f.resumeErr
		f.resumeErr = ""
		vm.runtimeError(f, msg)
	}

	for f.status == fiberRunning {
		if len(f.frames) < stopDepth {
			return
		}
		if len(f.frames) == 0 {
			if f.status == fiberRunning {
				f.status = fiberDead
			}
			return
		}
		fr := f.top()
		if fr.isJit {
			// A parked JIT boundary: panic propagation stopped here.
			return
		}
		code := vm.mod.Funcs[fr.funcID].Code
		ins := code[fr.pc]
		fr.pc++

		switch ins.Op {
		case bytecode.Jump:
			off := int(ins.Imm())
			if off < 0 {
				vm.noteBackedge(fr.funcID)
			}
			fr.pc += off

		case bytecode.JumpIf:
			if f.stack[fr.bp+int(ins.A)] != 0 {
				fr.pc += int(ins.Imm())
			}

		case bytecode.JumpIfNot:
			if f.stack[fr.bp+int(ins.A)] == 0 {
				fr.pc += int(ins.Imm())
			}

		case bytecode.Call:
			vm.callFunc(f, fr, uint32(ins.A), int(ins.B), int(ins.C), int(ins.Flags), 0)

		case bytecode.CallClosure:
			clo := f.stack[fr.bp+int(ins.A)]
			if clo == 0 {
				vm.runtimeError(f, "call of nil closure")
				continue
			}
			vm.callFunc(f, fr, vm.closureFunc(clo), int(ins.B), int(ins.C), int(ins.Flags), clo)

		case bytecode.CallIface:
			pair := fr.bp + int(ins.A)
			argc := int(ins.C & 0xff)
			methodIdx := int(ins.C >> 8)
			s0 := f.stack[pair]
			if ifaceIsNil(s0) {
				vm.runtimeError(f, "nil interface method call")
				continue
			}
			funcID, ok := vm.ifaceMethod(s0, methodIdx)
			if !ok {
				vm.runtimeError(f, "interface method lookup failed")
				continue
			}
			// Receiver into callee r0, arguments follow.
			recv := f.stack[pair+1]
			vm.callMethod(f, fr, funcID, recv, int(ins.B), argc, int(ins.Flags))

		case bytecode.CallExtern:
			vm.callExtern(f, fr, int(ins.A), int(ins.B), int(ins.C), int(ins.Flags))

		case bytecode.Return:
			vm.returnOp(f, ins)

		case bytecode.Go:
			base := fr.bp + int(ins.B)
			args := make([]uint64, int(ins.C))
			copy(args, f.stack[base:base+int(ins.C)])
			vm.spawn(f, uint32(ins.A), args)

		case bytecode.Yield:
			vm.runq = append(vm.runq, f)
			vm.park(f, "yield")

		case bytecode.ChanSend:
			ref := f.stack[fr.bp+int(ins.B)]
			if ref == 0 {
				vm.park(f, "chan send (nil channel)")
				continue
			}
			w := int(ins.Flags)
			if w == 0 {
				w = 1
			}
			base := fr.bp + int(ins.C)
			vm.chanSend(f, ref, f.stack[base:base+w])

		case bytecode.ChanRecv:
			ref := f.stack[fr.bp+int(ins.B)]
			if ref == 0 {
				vm.park(f, "chan receive (nil channel)")
				continue
			}
			w := int(ins.Flags &^ bytecode.FlagCommaOk)
			if w == 0 {
				w = 1
			}
			okDst := -1
			if ins.Flags&bytecode.FlagCommaOk != 0 {
				okDst = fr.bp + int(ins.A) + w
			}
			vm.chanRecv(f, ref, fr.bp+int(ins.A), okDst)

		case bytecode.ChanClose:
			ref := f.stack[fr.bp+int(ins.A)]
			if ref == 0 {
				vm.runtimeError(f, "close of nil channel")
				continue
			}
			vm.chanClose(f, ref)

		case bytecode.Select:
			vm.selectOp(f, fr, ins)

		case bytecode.DeferPush:
			vm.deferPush(f, ins)

		case bytecode.Panic:
			base := fr.bp + int(ins.A)
			vm.panicOp(f, f.stack[base], f.stack[base+1])

		case bytecode.Recover:
			vm.recoverOp(f, fr.bp+int(ins.A))

		default:
			vm.exec1(f, fr, ins)
		}
	}
}

// callFunc dispatches a call: through installed JIT code when
// present, otherwise by pushing an interpreter frame. clo is nonzero
// for closure calls and lands in callee r0.
func (vm *VM) callFunc(f *fiber, fr *frame, funcID uint32, argBase, argc, retc int, clo GcRef) {
	vm.gcStep() // call-boundary safepoint

	base := fr.bp + argBase
	var args []uint64
	if clo != 0 {
		buf := make([]uint64, 1+argc)
		buf[0] = clo
		copy(buf[1:], f.stack[base:base+argc])
		args = buf
	} else {
		args = f.stack[base : base+argc]
	}

	if cf := vm.hotCall(funcID); cf != nil {
		vm.invokeJit(f, funcID, cf, args, base, retc)
		return
	}
	vm.pushFrame(f, funcID, args, base, retc)
}

// callMethod is callFunc with an explicit receiver in r0.
func (vm *VM) callMethod(f *fiber, fr *frame, funcID uint32, recv uint64, argBase, argc, retc int) {
	vm.gcStep()

	base := fr.bp + argBase
	buf := make([]uint64, 1+argc)
	buf[0] = recv
	copy(buf[1:], f.stack[base:base+argc])

	if cf := vm.hotCall(funcID); cf != nil {
		vm.invokeJit(f, funcID, cf, buf, base, retc)
		return
	}
	vm.pushFrame(f, funcID, buf, base, retc)
}

// selectOp polls the case descriptors at r[b..b+5*count). Each case
// is five registers: direction (0 send, 1 recv), channel, two value
// slots, comma-ok slot. Ready cases are taken in case order; with
// none ready the fiber re-polls on any channel activity, or takes the
// default branch when the statement has one (r[a] = case count).
func (vm *VM) selectOp(f *fiber, fr *frame, ins bytecode.Instr) {
	const caseRegs = 5
	count := int(ins.C)
	base := fr.bp + int(ins.B)
	s := f.stack

	for i := 0; i < count; i++ {
		cb := base + i*caseRegs
		ref := s[cb+1]
		if ref == 0 {
			continue // nil channel: never ready
		}
		c := vm.chanOf(ref)
		if s[cb] == 0 {
			if c.sendReady() {
				w := c.elemSlots
				if vm.chanSend(f, ref, s[cb+2:cb+2+w]) {
					throw("select: ready send blocked")
				}
				if vm.unwindActiveAt(f, fr) {
					return // send on closed channel panicked
				}
				s[fr.bp+int(ins.A)] = u64(int64(i))
				return
			}
		} else {
			if c.recvReady() {
				if vm.chanRecv(f, ref, cb+2, cb+4) {
					throw("select: ready receive blocked")
				}
				s[fr.bp+int(ins.A)] = u64(int64(i))
				return
			}
		}
	}

	if ins.Flags&bytecode.FlagSelectDefault != 0 {
		s[fr.bp+int(ins.A)] = u64(int64(count))
		return
	}

	// Nothing ready: rewind to re-execute this Select on wake and
	// register as a poller on every involved channel.
	fr.pc--
	for i := 0; i < count; i++ {
		ref := s[base+i*caseRegs+1]
		if ref == 0 {
			continue
		}
		c := vm.chanOf(ref)
		c.pollers = append(c.pollers, f)
		f.polling = append(f.polling, c)
	}
	vm.park(f, "select")
}
