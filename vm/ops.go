// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Data-op execution.
//
// exec1 executes every instruction that neither transfers control nor
// blocks: loads, typed arithmetic and comparison, bitwise ops,
// conversions, globals, and the whole object-model surface. The
// dispatch loop inlines control flow and calls exec1 for the rest;
// JIT code calls it for the ops it does not lower natively, so the
// object model has exactly one implementation.
//
// Register accesses are unchecked inside the frame window: the code
// generator guarantees operands are in range.

package vm

import (
	"math"

	"github.com/oxfeeefeee/volang/bytecode"
)

// exec1 returns false when the instruction raised a runtime panic
// (the unwind machinery has already reshaped the frame stack).
func (vm *VM) exec1(f *fiber, fr *frame, ins bytecode.Instr) bool {
	s := f.stack
	b := fr.bp

	switch ins.Op {
	case bytecode.Nop:

	case bytecode.Move:
		n := int(ins.Flags)
		if n == 0 {
			n = 1
		}
		copy(s[b+int(ins.A):b+int(ins.A)+n], s[b+int(ins.B):b+int(ins.B)+n])

	case bytecode.LoadK:
		vm.loadConst(f, fr, int(ins.A), int(ins.Imm()))

	case bytecode.LoadInt:
		s[b+int(ins.A)] = u64(int64(ins.Imm()))

	case bytecode.LoadNil:
		n := int(ins.Flags)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			s[b+int(ins.A)+i] = 0
		}

	case bytecode.LoadBool:
		s[b+int(ins.A)] = b2s(ins.B != 0)

	case bytecode.GlobalGet:
		n := int(ins.Flags)
		if n == 0 {
			n = 1
		}
		copy(s[b+int(ins.A):b+int(ins.A)+n], vm.globals[int(ins.B):int(ins.B)+n])

	case bytecode.GlobalSet:
		n := int(ins.Flags)
		if n == 0 {
			n = 1
		}
		copy(vm.globals[int(ins.B):int(ins.B)+n], s[b+int(ins.A):b+int(ins.A)+n])

	// Integer arithmetic.
	case bytecode.AddI:
		s[b+int(ins.A)] = u64(i64(s[b+int(ins.B)]) + i64(s[b+int(ins.C)]))
	case bytecode.SubI:
		s[b+int(ins.A)] = u64(i64(s[b+int(ins.B)]) - i64(s[b+int(ins.C)]))
	case bytecode.MulI:
		s[b+int(ins.A)] = u64(i64(s[b+int(ins.B)]) * i64(s[b+int(ins.C)]))
	case bytecode.DivI:
		x, y := i64(s[b+int(ins.B)]), i64(s[b+int(ins.C)])
		if y == 0 {
			vm.runtimeError(f, "integer divide by zero")
			return false
		}
		if x == math.MinInt64 && y == -1 {
			s[b+int(ins.A)] = u64(x)
		} else {
			s[b+int(ins.A)] = u64(x / y)
		}
	case bytecode.ModI:
		x, y := i64(s[b+int(ins.B)]), i64(s[b+int(ins.C)])
		if y == 0 {
			vm.runtimeError(f, "integer divide by zero")
			return false
		}
		if x == math.MinInt64 && y == -1 {
			s[b+int(ins.A)] = 0
		} else {
			s[b+int(ins.A)] = u64(x % y)
		}
	case bytecode.NegI:
		s[b+int(ins.A)] = u64(-i64(s[b+int(ins.B)]))
	case bytecode.DivU:
		y := s[b+int(ins.C)]
		if y == 0 {
			vm.runtimeError(f, "integer divide by zero")
			return false
		}
		s[b+int(ins.A)] = s[b+int(ins.B)] / y
	case bytecode.ModU:
		y := s[b+int(ins.C)]
		if y == 0 {
			vm.runtimeError(f, "integer divide by zero")
			return false
		}
		s[b+int(ins.A)] = s[b+int(ins.B)] % y

	// Float arithmetic.
	case bytecode.AddF:
		s[b+int(ins.A)] = fbits(f64(s[b+int(ins.B)]) + f64(s[b+int(ins.C)]))
	case bytecode.SubF:
		s[b+int(ins.A)] = fbits(f64(s[b+int(ins.B)]) - f64(s[b+int(ins.C)]))
	case bytecode.MulF:
		s[b+int(ins.A)] = fbits(f64(s[b+int(ins.B)]) * f64(s[b+int(ins.C)]))
	case bytecode.DivF:
		s[b+int(ins.A)] = fbits(f64(s[b+int(ins.B)]) / f64(s[b+int(ins.C)]))
	case bytecode.NegF:
		s[b+int(ins.A)] = fbits(-f64(s[b+int(ins.B)]))

	// Comparison.
	case bytecode.EqI:
		s[b+int(ins.A)] = b2s(s[b+int(ins.B)] == s[b+int(ins.C)])
	case bytecode.NeI:
		s[b+int(ins.A)] = b2s(s[b+int(ins.B)] != s[b+int(ins.C)])
	case bytecode.LtI:
		s[b+int(ins.A)] = b2s(i64(s[b+int(ins.B)]) < i64(s[b+int(ins.C)]))
	case bytecode.LeI:
		s[b+int(ins.A)] = b2s(i64(s[b+int(ins.B)]) <= i64(s[b+int(ins.C)]))
	case bytecode.GtI:
		s[b+int(ins.A)] = b2s(i64(s[b+int(ins.B)]) > i64(s[b+int(ins.C)]))
	case bytecode.GeI:
		s[b+int(ins.A)] = b2s(i64(s[b+int(ins.B)]) >= i64(s[b+int(ins.C)]))
	case bytecode.LtU:
		s[b+int(ins.A)] = b2s(s[b+int(ins.B)] < s[b+int(ins.C)])
	case bytecode.LeU:
		s[b+int(ins.A)] = b2s(s[b+int(ins.B)] <= s[b+int(ins.C)])
	case bytecode.GtU:
		s[b+int(ins.A)] = b2s(s[b+int(ins.B)] > s[b+int(ins.C)])
	case bytecode.GeU:
		s[b+int(ins.A)] = b2s(s[b+int(ins.B)] >= s[b+int(ins.C)])
	case bytecode.EqF:
		s[b+int(ins.A)] = b2s(f64(s[b+int(ins.B)]) == f64(s[b+int(ins.C)]))
	case bytecode.NeF:
		s[b+int(ins.A)] = b2s(f64(s[b+int(ins.B)]) != f64(s[b+int(ins.C)]))
	case bytecode.LtF:
		s[b+int(ins.A)] = b2s(f64(s[b+int(ins.B)]) < f64(s[b+int(ins.C)]))
	case bytecode.LeF:
		s[b+int(ins.A)] = b2s(f64(s[b+int(ins.B)]) <= f64(s[b+int(ins.C)]))
	case bytecode.GtF:
		s[b+int(ins.A)] = b2s(f64(s[b+int(ins.B)]) > f64(s[b+int(ins.C)]))
	case bytecode.GeF:
		s[b+int(ins.A)] = b2s(f64(s[b+int(ins.B)]) >= f64(s[b+int(ins.C)]))
	case bytecode.EqStr:
		s[b+int(ins.A)] = b2s(vm.strEqual(s[b+int(ins.B)], s[b+int(ins.C)]))
	case bytecode.NeStr:
		s[b+int(ins.A)] = b2s(!vm.strEqual(s[b+int(ins.B)], s[b+int(ins.C)]))
	case bytecode.LtStr:
		s[b+int(ins.A)] = b2s(vm.strCompare(s[b+int(ins.B)], s[b+int(ins.C)]) < 0)
	case bytecode.LeStr:
		s[b+int(ins.A)] = b2s(vm.strCompare(s[b+int(ins.B)], s[b+int(ins.C)]) <= 0)
	case bytecode.GtStr:
		s[b+int(ins.A)] = b2s(vm.strCompare(s[b+int(ins.B)], s[b+int(ins.C)]) > 0)
	case bytecode.GeStr:
		s[b+int(ins.A)] = b2s(vm.strCompare(s[b+int(ins.B)], s[b+int(ins.C)]) >= 0)

	// Bitwise and boolean.
	case bytecode.And:
		s[b+int(ins.A)] = s[b+int(ins.B)] & s[b+int(ins.C)]
	case bytecode.Or:
		s[b+int(ins.A)] = s[b+int(ins.B)] | s[b+int(ins.C)]
	case bytecode.Xor:
		s[b+int(ins.A)] = s[b+int(ins.B)] ^ s[b+int(ins.C)]
	case bytecode.BitNot:
		s[b+int(ins.A)] = ^s[b+int(ins.B)]
	case bytecode.Shl:
		if n := s[b+int(ins.C)]; n >= 64 {
			s[b+int(ins.A)] = 0
		} else {
			s[b+int(ins.A)] = s[b+int(ins.B)] << n
		}
	case bytecode.ShrS:
		n := s[b+int(ins.C)]
		if n > 63 {
			n = 63
		}
		s[b+int(ins.A)] = u64(i64(s[b+int(ins.B)]) >> n)
	case bytecode.ShrU:
		if n := s[b+int(ins.C)]; n >= 64 {
			s[b+int(ins.A)] = 0
		} else {
			s[b+int(ins.A)] = s[b+int(ins.B)] >> n
		}
	case bytecode.BoolNot:
		s[b+int(ins.A)] = b2s(s[b+int(ins.B)] == 0)

	// Heap cells.
	case bytecode.New:
		slots := int(ins.B)
		kind := bytecode.ValueKind(ins.Flags)
		s[b+int(ins.A)] = vm.alloc(kind, uint32(ins.C), slots)

	case bytecode.PtrGet:
		ref := s[b+int(ins.B)]
		if ref == 0 {
			vm.runtimeError(f, "nil pointer dereference")
			return false
		}
		n := int(ins.Flags)
		if n == 0 {
			n = 1
		}
		o := vm.heap.obj(ref)
		copy(s[b+int(ins.A):b+int(ins.A)+n], o.slots[int(ins.C):int(ins.C)+n])

	case bytecode.PtrSet:
		ref := s[b+int(ins.B)]
		if ref == 0 {
			vm.runtimeError(f, "nil pointer dereference")
			return false
		}
		n := int(ins.Flags)
		if n == 0 {
			n = 1
		}
		o := vm.heap.obj(ref)
		copy(o.slots[int(ins.C):int(ins.C)+n], s[b+int(ins.A):b+int(ins.A)+n])
		vm.bulkBarrier(ref)

	// Arrays and slices.
	case bytecode.ArrayNew:
		n := int(i64(s[b+int(ins.B)]))
		if n < 0 {
			vm.runtimeError(f, "makearray: negative length")
			return false
		}
		s[b+int(ins.A)] = vm.newArray(bytecode.ValueKind(ins.Flags), uint32(ins.C), n)

	case bytecode.SliceNew:
		n := int(i64(s[b+int(ins.B)]))
		c := int(i64(s[b+int(ins.B)+1]))
		if n < 0 || c < n {
			vm.runtimeError(f, "makeslice: invalid arguments")
			return false
		}
		s[b+int(ins.A)] = vm.newSlice(bytecode.ValueKind(ins.Flags), uint32(ins.C), n, c)

	case bytecode.Append:
		ref := s[b+int(ins.B)]
		if ref == 0 {
			vm.runtimeError(f, "append to uninitialized slice")
			return false
		}
		arr, _, _, _ := vm.sliceParts(ref)
		w := int(vm.heap.obj(arr).slots[arrElemBytes]) / 8
		if w < 1 {
			w = 1
		}
		s[b+int(ins.A)] = vm.sliceAppend(ref, s[b+int(ins.C):b+int(ins.C)+w])

	case bytecode.IndexGet:
		ref := s[b+int(ins.B)]
		arr, start, n, ok := vm.containerElems(ref)
		if !ok {
			vm.runtimeError(f, "index of nil container")
			return false
		}
		i := int(i64(s[b+int(ins.C)]))
		if i < 0 || i >= n {
			vm.runtimeError(f, "index out of range")
			return false
		}
		s[b+int(ins.A)] = vm.arrayGet(arr, start+i)

	case bytecode.IndexSet:
		ref := s[b+int(ins.B)]
		arr, start, n, ok := vm.containerElems(ref)
		if !ok {
			vm.runtimeError(f, "index of nil container")
			return false
		}
		i := int(i64(s[b+int(ins.C)]))
		if i < 0 || i >= n {
			vm.runtimeError(f, "index out of range")
			return false
		}
		vm.arraySet(arr, start+i, s[b+int(ins.A)])

	case bytecode.IndexGetN:
		ref := s[b+int(ins.B)]
		arr, start, n, ok := vm.containerElems(ref)
		if !ok {
			vm.runtimeError(f, "index of nil container")
			return false
		}
		i := int(i64(s[b+int(ins.C)]))
		if i < 0 || i >= n {
			vm.runtimeError(f, "index out of range")
			return false
		}
		w := int(ins.Flags)
		vm.arrayGetN(arr, start+i, w, s[b+int(ins.A):b+int(ins.A)+w])

	case bytecode.IndexSetN:
		ref := s[b+int(ins.B)]
		arr, start, n, ok := vm.containerElems(ref)
		if !ok {
			vm.runtimeError(f, "index of nil container")
			return false
		}
		i := int(i64(s[b+int(ins.C)]))
		if i < 0 || i >= n {
			vm.runtimeError(f, "index out of range")
			return false
		}
		w := int(ins.Flags)
		vm.arraySetN(arr, start+i, w, s[b+int(ins.A):b+int(ins.A)+w])

	case bytecode.SliceOf:
		ref := s[b+int(ins.B)]
		if ref == 0 {
			vm.runtimeError(f, "slice of nil container")
			return false
		}
		lo := int(i64(s[b+int(ins.C)]))
		hi := int(i64(s[b+int(ins.C)+1]))
		ns := vm.sliceOf(f, ref, lo, hi)
		if ns == 0 {
			return false
		}
		s[b+int(ins.A)] = ns

	case bytecode.Len:
		ref := s[b+int(ins.B)]
		switch bytecode.ValueKind(ins.Flags) {
		case bytecode.KindString:
			s[b+int(ins.A)] = u64(int64(vm.strLenOf(ref)))
		case bytecode.KindSlice:
			s[b+int(ins.A)] = u64(int64(vm.sliceLen(ref)))
		case bytecode.KindArray:
			s[b+int(ins.A)] = u64(int64(vm.arrayLen(ref)))
		case bytecode.KindMap:
			s[b+int(ins.A)] = u64(int64(vm.mapLen(ref)))
		case bytecode.KindChannel:
			s[b+int(ins.A)] = u64(int64(vm.chanLen(ref)))
		default:
			throw("len: bad container kind")
		}

	case bytecode.Cap:
		ref := s[b+int(ins.B)]
		if ref == 0 {
			s[b+int(ins.A)] = 0
		} else {
			_, _, _, c := vm.sliceParts(ref)
			s[b+int(ins.A)] = u64(int64(c))
		}

	case bytecode.Copy:
		s[b+int(ins.A)] = u64(int64(vm.sliceCopy(s[b+int(ins.B)], s[b+int(ins.C)])))

	case bytecode.StackGet:
		n := int(ins.Flags)
		if n == 0 {
			n = 1
		}
		i := int(i64(s[b+int(ins.C)]))
		src := b + int(ins.B) + i*n
		copy(s[b+int(ins.A):b+int(ins.A)+n], s[src:src+n])

	case bytecode.StackSet:
		n := int(ins.Flags)
		if n == 0 {
			n = 1
		}
		i := int(i64(s[b+int(ins.C)]))
		dst := b + int(ins.B) + i*n
		copy(s[dst:dst+n], s[b+int(ins.A):b+int(ins.A)+n])

	// Strings.
	case bytecode.StrConcat:
		s[b+int(ins.A)] = vm.strConcat(s[b+int(ins.B)], s[b+int(ins.C)])

	case bytecode.StrIndex:
		ref := s[b+int(ins.B)]
		i := int(i64(s[b+int(ins.C)]))
		if i < 0 || i >= vm.strLenOf(ref) {
			vm.runtimeError(f, "index out of range")
			return false
		}
		s[b+int(ins.A)] = uint64(vm.strBytes(ref)[i])

	case bytecode.StrSlice:
		ref := s[b+int(ins.B)]
		lo := int(i64(s[b+int(ins.C)]))
		hi := int(i64(s[b+int(ins.C)+1]))
		n := vm.strLenOf(ref)
		if lo < 0 || hi < lo || hi > n {
			vm.runtimeError(f, "slice bounds out of range")
			return false
		}
		if ref == 0 {
			s[b+int(ins.A)] = 0
		} else {
			o := vm.heap.obj(ref)
			s[b+int(ins.A)] = vm.newStringSlice(o.slots[strArray], int(o.slots[strStart])+lo, hi-lo)
		}

	// Maps.
	case bytecode.MapNew:
		s[b+int(ins.A)] = vm.newMap(bytecode.ValueKind(ins.Flags), bytecode.ValueKind(ins.B))

	case bytecode.MapGet:
		ref := s[b+int(ins.B)]
		commaOk := ins.Flags&bytecode.FlagCommaOk != 0
		w := int(ins.Flags &^ bytecode.FlagCommaOk)
		if w == 0 {
			w = 1
		}
		var val []uint64
		found := false
		if ref != 0 {
			val, found = vm.mapGet(ref, s[b+int(ins.C)])
		}
		for i := 0; i < w; i++ {
			if found {
				s[b+int(ins.A)+i] = val[i]
			} else {
				s[b+int(ins.A)+i] = 0
			}
		}
		if commaOk {
			s[b+int(ins.A)+w] = b2s(found)
		}

	case bytecode.MapSet:
		ref := s[b+int(ins.B)]
		if ref == 0 {
			vm.runtimeError(f, "assignment to entry in nil map")
			return false
		}
		w := int(ins.Flags)
		if w == 0 {
			w = 1
		}
		vm.mapSet(ref, s[b+int(ins.C)], s[b+int(ins.A):b+int(ins.A)+w])

	case bytecode.MapDel:
		if ref := s[b+int(ins.B)]; ref != 0 {
			vm.mapDelete(ref, s[b+int(ins.C)])
		}

	// Interfaces.
	case bytecode.IfaceAssign:
		kind := bytecode.ValueKind(ins.Flags)
		if kind == bytecode.KindInterface {
			s[b+int(ins.A)], s[b+int(ins.A)+1] = ifaceConvert(s[b+int(ins.B)], s[b+int(ins.B)+1], uint32(ins.C))
		} else {
			s[b+int(ins.A)], s[b+int(ins.A)+1] = vm.ifaceAssign(kind, s[b+int(ins.B)], uint32(ins.C))
		}

	case bytecode.IfaceAssert:
		kind := bytecode.ValueKind(ins.Flags &^ bytecode.FlagCommaOk)
		commaOk := ins.Flags&bytecode.FlagCommaOk != 0
		r0, r1, ok := vm.ifaceAssert(s[b+int(ins.B)], s[b+int(ins.B)+1], kind, uint32(ins.C))
		w := 1
		if kind == bytecode.KindInterface {
			w = 2
		}
		if !ok && !commaOk {
			vm.assertError(f, s[b+int(ins.B)], kind, uint32(ins.C))
			return false
		}
		if ok {
			s[b+int(ins.A)] = r0
			if w == 2 {
				s[b+int(ins.A)+1] = r1
			}
		} else {
			for i := 0; i < w; i++ {
				s[b+int(ins.A)+i] = 0
			}
		}
		if commaOk {
			s[b+int(ins.A)+w] = b2s(ok)
		}

	case bytecode.IfaceIsNil:
		s[b+int(ins.A)] = b2s(ifaceIsNil(s[b+int(ins.B)]))

	// Closures.
	case bytecode.ClosureNew:
		n := int(ins.Flags)
		s[b+int(ins.A)] = vm.newClosure(uint32(ins.B), s[b+int(ins.C):b+int(ins.C)+n])

	case bytecode.ClosureGet:
		ref := s[b+int(ins.B)]
		if ref == 0 {
			vm.runtimeError(f, "nil closure dereference")
			return false
		}
		s[b+int(ins.A)] = vm.closureCap(ref, int(ins.C))

	// Channels (creation only; send/recv/close block and live in the
	// dispatch loop).
	case bytecode.ChanNew:
		capacity := int(i64(s[b+int(ins.B)]))
		if capacity < 0 {
			vm.runtimeError(f, "makechan: negative buffer size")
			return false
		}
		s[b+int(ins.A)] = vm.newChan(bytecode.ValueKind(ins.Flags), capacity)

	// Iterators.
	case bytecode.IterBegin:
		vm.iterBegin(f, fr, ins)

	case bytecode.IterNext:
		vm.iterNext(f, fr.bp+int(ins.A))

	case bytecode.IterEnd:
		f.iterStack = f.iterStack[:len(f.iterStack)-1]

	// Conversions.
	case bytecode.CvtIF:
		s[b+int(ins.A)] = fbits(float64(i64(s[b+int(ins.B)])))
	case bytecode.CvtFI:
		s[b+int(ins.A)] = u64(int64(f64(s[b+int(ins.B)])))
	case bytecode.CvtUF:
		s[b+int(ins.A)] = fbits(float64(s[b+int(ins.B)]))
	case bytecode.CvtFU:
		s[b+int(ins.A)] = uint64(f64(s[b+int(ins.B)]))
	case bytecode.SextI8:
		s[b+int(ins.A)] = u64(int64(int8(s[b+int(ins.B)])))
	case bytecode.SextI16:
		s[b+int(ins.A)] = u64(int64(int16(s[b+int(ins.B)])))
	case bytecode.SextI32:
		s[b+int(ins.A)] = u64(int64(int32(s[b+int(ins.B)])))
	case bytecode.TruncU8:
		s[b+int(ins.A)] = uint64(uint8(s[b+int(ins.B)]))
	case bytecode.TruncU16:
		s[b+int(ins.A)] = uint64(uint16(s[b+int(ins.B)]))
	case bytecode.TruncU32:
		s[b+int(ins.A)] = uint64(uint32(s[b+int(ins.B)]))
	case bytecode.CvtF32F64:
		s[b+int(ins.A)] = fbits(float64(math.Float32frombits(uint32(s[b+int(ins.B)]))))
	case bytecode.CvtF64F32:
		s[b+int(ins.A)] = uint64(math.Float32bits(float32(f64(s[b+int(ins.B)]))))

	case bytecode.StrToBytes:
		str := vm.strBytes(s[b+int(ins.B)])
		sl := vm.newSlice(bytecode.KindUint8, 0, len(str), len(str))
		arr, _, _, _ := vm.sliceParts(sl)
		copy(vm.heap.obj(arr).data, str)
		s[b+int(ins.A)] = sl

	case bytecode.BytesToStr:
		ref := s[b+int(ins.B)]
		var content []byte
		if ref != 0 {
			arr, start, n, _ := vm.sliceParts(ref)
			o := vm.heap.obj(arr)
			content = o.data[start : start+n]
		}
		s[b+int(ins.A)] = vm.newString(string(content))

	default:
		throw("exec1: unexpected opcode " + ins.Op.String())
	}
	return true
}

// containerElems resolves an array-or-slice ref to its backing array,
// element offset and length.
func (vm *VM) containerElems(ref GcRef) (arr GcRef, start, n int, ok bool) {
	if ref == 0 {
		return 0, 0, 0, false
	}
	o := vm.heap.obj(ref)
	if o.hdr.meta.Kind() == bytecode.KindArray {
		return ref, 0, int(o.slots[arrLen]), true
	}
	return o.slots[slcArray], int(o.slots[slcStart]), int(o.slots[slcLen]), true
}

// loadConst materializes one constant pool entry. String constants
// are interned per index and pinned as roots.
func (vm *VM) loadConst(f *fiber, fr *frame, dst, idx int) {
	c := &vm.mod.Consts[idx]
	switch c.Kind {
	case bytecode.KindNil:
		f.stack[fr.bp+dst] = 0
	case bytecode.KindString:
		if vm.constRefs[idx] == 0 {
			vm.constRefs[idx] = vm.newString(c.S)
		}
		f.stack[fr.bp+dst] = vm.constRefs[idx]
	case bytecode.KindFloat32, bytecode.KindFloat64:
		f.stack[fr.bp+dst] = fbits(c.F)
	default:
		f.stack[fr.bp+dst] = u64(c.I)
	}
}

// iterBegin pushes one iterator entry.
func (vm *VM) iterBegin(f *fiber, fr *frame, ins bytecode.Instr) {
	kind := ins.Flags & 0x0f
	it := iterEntry{kind: kind, elemSlots: int(ins.Flags >> 4)}
	if it.elemSlots == 0 {
		it.elemSlots = 1
	}
	s := f.stack
	switch kind {
	case bytecode.IterIntRange:
		it.cursor = i64(s[fr.bp+int(ins.B)])
		it.end = i64(s[fr.bp+int(ins.C)])
	case bytecode.IterStackArray:
		it.base = fr.bp + int(ins.B)
		it.end = i64(s[fr.bp+int(ins.C)])
	default:
		it.ref = s[fr.bp+int(ins.B)]
	}
	f.iterStack = append(f.iterStack, it)
}
