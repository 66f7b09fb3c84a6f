// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jit lowers hot bytecode functions to native Go call targets.
//
// The engine compiles one function at a time when the VM reports its
// call or back-edge count hot. Lowering is direct-threaded: each
// instruction becomes a funcvalue with its operands pre-decoded, so
// the hot path runs no fetch, no decode and no central dispatch.
// Arithmetic, comparisons, moves and control flow are lowered to
// dedicated steps; the rest of the instruction set funnels through
// the VM's single-instruction executor so the object model has
// exactly one implementation.
//
// The compiled code keeps the VM's root discipline: every value,
// reference or not, lives in the frame window the trampoline hands
// over (ctx.Locals), and nothing is cached across an operation that
// can reach a safepoint. Allocation and barriers happen inside the
// runtime helpers the steps call. Root scanning therefore never knows
// whether a frame is interpreted or compiled.
//
// Functions containing defer, recover, go, channel ops or select are
// not compiled; they stay on the interpreter, which keeps the
// unwinding and scheduling machinery out of native code. Every call
// step checks for an escaped panic and surrenders to the interpreter
// with JitPanic.

package jit

import (
	"github.com/oxfeeefeee/volang/bytecode"
	"github.com/oxfeeefeee/volang/vm"
)

// Engine implements vm.Compiler.
type Engine struct {
	compiled int
	rejected int
}

func NewEngine() *Engine { return &Engine{} }

// Stats reports how many functions this engine compiled and refused.
func (e *Engine) Stats() (compiled, rejected int) { return e.compiled, e.rejected }

// Compile lowers one function. ok=false marks it permanently
// interpreter-only.
func (e *Engine) Compile(m *bytecode.Module, funcID uint32) (vm.CompiledFn, bool) {
	fn := &m.Funcs[funcID]
	if excluded(fn.Code) {
		e.rejected++
		return nil, false
	}
	code := lower(fn.Code)
	e.compiled++
	return func(ctx *vm.JitContext) vm.JitResult {
		pc := 0
		for {
			pc = code[pc](ctx)
			if pc < 0 {
				if pc == retPC {
					return vm.JitOk
				}
				return vm.JitPanic
			}
		}
	}, true
}

// excluded reports whether the function uses an op the JIT keeps out
// of native code.
func excluded(code []bytecode.Instr) bool {
	for _, ins := range code {
		switch ins.Op {
		case bytecode.DeferPush, bytecode.Recover,
			bytecode.Go, bytecode.Yield,
			bytecode.ChanNew, bytecode.ChanSend, bytecode.ChanRecv,
			bytecode.ChanClose, bytecode.Select:
			return true
		}
	}
	return false
}
