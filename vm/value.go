// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"math"

	"github.com/oxfeeefeee/volang/bytecode"
)

// A slot is an opaque 64-bit word: a primitive value, a GcRef, or one
// half of an interface pair. GcRef 0 is nil.
type GcRef = uint64

func i64(s uint64) int64   { return int64(s) }
func u64(v int64) uint64   { return uint64(v) }
func f64(s uint64) float64 { return math.Float64frombits(s) }
func fbits(v float64) uint64 {
	return math.Float64bits(v)
}

func b2s(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// ifaceNil builds a nil interface pair for the given interface type.
func ifaceNil(ifaceMetaID uint32) (uint64, uint64) {
	return bytecode.PackIface(ifaceMetaID, bytecode.PackValueMeta(0, bytecode.KindNil)), 0
}

// ifaceIsNil reports whether the pair's upper slot encodes a nil
// value. A typed-nil pointer has kind Pointer and is not nil.
func ifaceIsNil(slot0 uint64) bool {
	return bytecode.IfaceValueMeta(slot0).Kind() == bytecode.KindNil
}
