// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"math"

	"github.com/oxfeeefeee/volang/bytecode"
	"github.com/oxfeeefeee/volang/vm"
)

// A step executes one lowered instruction and returns the next pc.
type step func(ctx *vm.JitContext) int

const (
	retPC   = -1
	panicPC = -2
)

func i64(v uint64) int64   { return int64(v) }
func u64(v int64) uint64   { return uint64(v) }
func f64(v uint64) float64 { return math.Float64frombits(v) }
func fbits(v float64) uint64 {
	return math.Float64bits(v)
}

func b2s(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// lower translates a function body 1:1 into steps; jump targets are
// resolved at compile time, so bytecode pcs and step indices agree.
func lower(code []bytecode.Instr) []step {
	steps := make([]step, len(code))
	for pc, ins := range code {
		steps[pc] = lowerOne(pc, ins)
	}
	return steps
}

func lowerOne(pc int, ins bytecode.Instr) step {
	next := pc + 1
	a, b, c := int(ins.A), int(ins.B), int(ins.C)

	switch ins.Op {
	case bytecode.Nop:
		return func(ctx *vm.JitContext) int { return next }

	case bytecode.Move:
		if n := int(ins.Flags); n > 1 {
			return func(ctx *vm.JitContext) int {
				copy(ctx.Locals[a:a+n], ctx.Locals[b:b+n])
				return next
			}
		}
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = ctx.Locals[b]
			return next
		}

	case bytecode.LoadInt:
		v := u64(int64(ins.Imm()))
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = v
			return next
		}

	case bytecode.LoadBool:
		v := b2s(ins.B != 0)
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = v
			return next
		}

	case bytecode.LoadNil:
		n := int(ins.Flags)
		if n == 0 {
			n = 1
		}
		return func(ctx *vm.JitContext) int {
			for i := 0; i < n; i++ {
				ctx.Locals[a+i] = 0
			}
			return next
		}

	// Trap-free integer arithmetic.
	case bytecode.AddI:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = u64(i64(ctx.Locals[b]) + i64(ctx.Locals[c]))
			return next
		}
	case bytecode.SubI:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = u64(i64(ctx.Locals[b]) - i64(ctx.Locals[c]))
			return next
		}
	case bytecode.MulI:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = u64(i64(ctx.Locals[b]) * i64(ctx.Locals[c]))
			return next
		}
	case bytecode.NegI:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = u64(-i64(ctx.Locals[b]))
			return next
		}

	// Float arithmetic.
	case bytecode.AddF:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = fbits(f64(ctx.Locals[b]) + f64(ctx.Locals[c]))
			return next
		}
	case bytecode.SubF:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = fbits(f64(ctx.Locals[b]) - f64(ctx.Locals[c]))
			return next
		}
	case bytecode.MulF:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = fbits(f64(ctx.Locals[b]) * f64(ctx.Locals[c]))
			return next
		}
	case bytecode.DivF:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = fbits(f64(ctx.Locals[b]) / f64(ctx.Locals[c]))
			return next
		}
	case bytecode.NegF:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = fbits(-f64(ctx.Locals[b]))
			return next
		}

	// Comparisons.
	case bytecode.EqI:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(ctx.Locals[b] == ctx.Locals[c])
			return next
		}
	case bytecode.NeI:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(ctx.Locals[b] != ctx.Locals[c])
			return next
		}
	case bytecode.LtI:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(i64(ctx.Locals[b]) < i64(ctx.Locals[c]))
			return next
		}
	case bytecode.LeI:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(i64(ctx.Locals[b]) <= i64(ctx.Locals[c]))
			return next
		}
	case bytecode.GtI:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(i64(ctx.Locals[b]) > i64(ctx.Locals[c]))
			return next
		}
	case bytecode.GeI:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(i64(ctx.Locals[b]) >= i64(ctx.Locals[c]))
			return next
		}
	case bytecode.LtU:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(ctx.Locals[b] < ctx.Locals[c])
			return next
		}
	case bytecode.LeU:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(ctx.Locals[b] <= ctx.Locals[c])
			return next
		}
	case bytecode.GtU:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(ctx.Locals[b] > ctx.Locals[c])
			return next
		}
	case bytecode.GeU:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(ctx.Locals[b] >= ctx.Locals[c])
			return next
		}
	case bytecode.EqF:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(f64(ctx.Locals[b]) == f64(ctx.Locals[c]))
			return next
		}
	case bytecode.NeF:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(f64(ctx.Locals[b]) != f64(ctx.Locals[c]))
			return next
		}
	case bytecode.LtF:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(f64(ctx.Locals[b]) < f64(ctx.Locals[c]))
			return next
		}
	case bytecode.LeF:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(f64(ctx.Locals[b]) <= f64(ctx.Locals[c]))
			return next
		}
	case bytecode.GtF:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(f64(ctx.Locals[b]) > f64(ctx.Locals[c]))
			return next
		}
	case bytecode.GeF:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(f64(ctx.Locals[b]) >= f64(ctx.Locals[c]))
			return next
		}

	// Bitwise.
	case bytecode.And:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = ctx.Locals[b] & ctx.Locals[c]
			return next
		}
	case bytecode.Or:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = ctx.Locals[b] | ctx.Locals[c]
			return next
		}
	case bytecode.Xor:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = ctx.Locals[b] ^ ctx.Locals[c]
			return next
		}
	case bytecode.BoolNot:
		return func(ctx *vm.JitContext) int {
			ctx.Locals[a] = b2s(ctx.Locals[b] == 0)
			return next
		}

	// Control flow, targets resolved now.
	case bytecode.Jump:
		target := next + int(ins.Imm())
		return func(ctx *vm.JitContext) int { return target }

	case bytecode.JumpIf:
		target := next + int(ins.Imm())
		return func(ctx *vm.JitContext) int {
			if ctx.Locals[a] != 0 {
				return target
			}
			return next
		}

	case bytecode.JumpIfNot:
		target := next + int(ins.Imm())
		return func(ctx *vm.JitContext) int {
			if ctx.Locals[a] == 0 {
				return target
			}
			return next
		}

	// Calls go through the context; each checks for an escaped panic.
	case bytecode.Call:
		funcID := uint32(ins.A)
		retc := int(ins.Flags)
		return func(ctx *vm.JitContext) int {
			ctx.SetPC(pc)
			if !ctx.Call(funcID, b, c, retc) {
				return panicPC
			}
			return next
		}

	case bytecode.CallClosure:
		retc := int(ins.Flags)
		return func(ctx *vm.JitContext) int {
			ctx.SetPC(pc)
			if !ctx.CallClosure(ctx.Locals[a], b, c, retc) {
				return panicPC
			}
			return next
		}

	case bytecode.CallIface:
		retc := int(ins.Flags)
		argc := c & 0xff
		methodIdx := c >> 8
		return func(ctx *vm.JitContext) int {
			ctx.SetPC(pc)
			if !ctx.CallIface(a, methodIdx, b, argc, retc) {
				return panicPC
			}
			return next
		}

	case bytecode.CallExtern:
		retc := int(ins.Flags)
		return func(ctx *vm.JitContext) int {
			ctx.SetPC(pc)
			if !ctx.CallExtern(a, b, c, retc) {
				return panicPC
			}
			return next
		}

	case bytecode.Return:
		retc := int(ins.Flags &^ bytecode.FlagErrReturn)
		return func(ctx *vm.JitContext) int {
			ctx.Return(a, retc)
			return retPC
		}

	case bytecode.Panic:
		return func(ctx *vm.JitContext) int {
			ctx.SetPC(pc)
			ctx.Panic(ctx.Locals[a], ctx.Locals[a+1])
			return panicPC
		}

	default:
		// Everything else (loads from the constant pool, the whole
		// object model, conversions, traps) shares the interpreter's
		// executor; a false return means a panic is in flight.
		return func(ctx *vm.JitContext) int {
			ctx.SetPC(pc)
			if !ctx.Exec1(ins) {
				return panicPC
			}
			return next
		}
	}
}
