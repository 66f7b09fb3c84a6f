// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Instruction format.
//
// Every instruction is a fixed 8-byte word:
//
//	{Op: u8, Flags: u8, A: u16, B: u16, C: u16}
//
// A usually names the destination register, B and C the operands.
// Flags carries per-op variants: return counts for calls, element byte
// widths for packed index ops, slot counts for multi-slot moves.
// Jump-family ops synthesize a signed 32-bit immediate from (B | C<<16),
// relative to the pc of the following instruction.

package bytecode

import "fmt"

type Instr struct {
	Op    Op
	Flags uint8
	A     uint16
	B     uint16
	C     uint16
}

// Imm returns the signed 32-bit immediate carried in B and C.
func (i Instr) Imm() int32 { return int32(uint32(i.B) | uint32(i.C)<<16) }

// MakeImm splits a signed immediate into the B and C operands.
func MakeImm(v int32) (b, c uint16) {
	return uint16(uint32(v)), uint16(uint32(v) >> 16)
}

func (i Instr) String() string {
	return fmt.Sprintf("%-12s f=%#02x a=%d b=%d c=%d", i.Op, i.Flags, i.A, i.B, i.C)
}

// Flag bits shared by several ops.
const (
	// FlagCommaOk on MapGet/ChanRecv/IfaceAssert selects the comma-ok
	// form: a boolean lands after the value and the trap (if any) is
	// suppressed.
	FlagCommaOk = 0x80

	// FlagErrReturn on Return marks an error return, produced on the
	// `?` desugar path. Error-only defers run exactly on these.
	FlagErrReturn = 0x80

	// FlagDeferClosure on DeferPush means A is a register holding a
	// closure ref rather than a function id.
	FlagDeferClosure = 0x01

	// FlagDeferOnErr marks an errdefer entry.
	FlagDeferOnErr = 0x02

	// FlagSelectDefault on Select means the statement has a default
	// case and never blocks.
	FlagSelectDefault = 0x01
)

// Iterator kinds carried in IterBegin's Flags.
const (
	IterSlice = iota
	IterMap
	IterString
	IterIntRange
	IterArray
	IterStackArray
)
