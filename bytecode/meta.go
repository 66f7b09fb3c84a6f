// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytecode

// ValueKind identifies the intrinsic shape of a value. Kinds below
// KindString are plain bits; kinds from KindString up refer to heap
// objects and are traced by the collector.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64

	// Reference kinds. NeedsGC is true from here on.
	KindString
	KindSlice
	KindMap
	KindPointer
	KindInterface
	KindArray
	KindChannel
	KindClosure
	KindStruct

	kindCount
)

var kindNames = [kindCount]string{
	"nil", "bool", "int8", "int16", "int32", "int64",
	"uint8", "uint16", "uint32", "uint64", "float32", "float64",
	"string", "slice", "map", "pointer", "interface", "array",
	"channel", "closure", "struct",
}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind?"
}

// NeedsGC reports whether values of kind k are heap references the
// collector must trace.
func NeedsGC(k ValueKind) bool { return k >= KindString }

// PackedBytes returns the in-array storage width of kind k: 1, 2 or 4
// for the packed kinds, 0 for everything stored slot-based.
func (k ValueKind) PackedBytes() int {
	switch k {
	case KindBool, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	}
	return 0
}

// SlotType classifies one stack or object slot for the collector.
type SlotType uint8

const (
	// SlotValue holds plain bits. The collector skips it.
	SlotValue SlotType = iota

	// SlotGcRef holds a heap reference (or 0). Marked unconditionally.
	SlotGcRef

	// SlotInterface0 is the upper half of an interface pair: packed
	// (ifaceMetaID, valueMeta). Never a pointer itself.
	SlotInterface0

	// SlotInterface1 is the lower half: the data word. Marked iff the
	// kind recorded in the adjacent SlotInterface0 is a reference kind.
	SlotInterface1
)

// Meta-ID spaces. User struct types and interface types index
// different tables; the bases keep the ranges disjoint so a raw
// meta-ID is never ambiguous. Both bases fit an instruction's 16-bit
// operand, which is how type ids travel in code.
const (
	FirstUserStruct = 16
	FirstIface      = 0x8000
	MetaIDMask      = 1<<24 - 1
)

// ValueMeta packs (metaID:24, kind:8) into one word.
type ValueMeta uint32

func PackValueMeta(metaID uint32, kind ValueKind) ValueMeta {
	return ValueMeta(metaID&MetaIDMask | uint32(kind)<<24)
}

func (m ValueMeta) MetaID() uint32  { return uint32(m) & MetaIDMask }
func (m ValueMeta) Kind() ValueKind { return ValueKind(m >> 24) }

// Interface slot packing. The upper interface slot carries the static
// interface identity alongside the dynamic value meta so a pair is
// self-describing: (ifaceMetaID:32 | valueMeta:32).
func PackIface(ifaceMetaID uint32, vm ValueMeta) uint64 {
	return uint64(ifaceMetaID)<<32 | uint64(vm)
}

func IfaceMetaID(s uint64) uint32     { return uint32(s >> 32) }
func IfaceValueMeta(s uint64) ValueMeta { return ValueMeta(uint32(s)) }
