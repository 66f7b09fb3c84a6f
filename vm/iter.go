// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Range-loop iterators.
//
// Iterator state lives on the fiber, not the heap: a range loop is
// compile-time expanded into IterBegin / IterNext / IterEnd plus the
// ordinary jump ops, so no per-iteration object is allocated. The map
// cursor is an entry index into the order-preserving map; the string
// cursor advances by UTF-8 rune width.

package vm

import "github.com/oxfeeefeee/volang/bytecode"

type iterEntry struct {
	kind      uint8
	ref       GcRef // container, for heap-backed kinds
	base      int   // absolute stack base for stack arrays
	end       int64 // limit for int ranges, length for stack arrays
	cursor    int64
	elemSlots int
}

// iterNext advances the top iterator, writing key, value and ok into
// the three destination slots. Multi-slot values are delivered by a
// following IndexGetN; the iterator itself yields single-slot values.
func (vm *VM) iterNext(f *fiber, dst int) {
	it := &f.iterStack[len(f.iterStack)-1]
	s := f.stack
	switch it.kind {
	case bytecode.IterIntRange:
		if it.cursor >= it.end {
			s[dst+2] = 0
			return
		}
		s[dst] = u64(it.cursor)
		s[dst+1] = u64(it.cursor)
		s[dst+2] = 1
		it.cursor++

	case bytecode.IterSlice:
		n := int64(vm.sliceLen(it.ref))
		if it.cursor >= n {
			s[dst+2] = 0
			return
		}
		arr, start, _, _ := vm.sliceParts(it.ref)
		s[dst] = u64(it.cursor)
		s[dst+1] = vm.arrayGet(arr, start+int(it.cursor))
		s[dst+2] = 1
		it.cursor++

	case bytecode.IterArray:
		n := int64(vm.arrayLen(it.ref))
		if it.cursor >= n {
			s[dst+2] = 0
			return
		}
		s[dst] = u64(it.cursor)
		s[dst+1] = vm.arrayGet(it.ref, int(it.cursor))
		s[dst+2] = 1
		it.cursor++

	case bytecode.IterStackArray:
		if it.cursor >= it.end {
			s[dst+2] = 0
			return
		}
		s[dst] = u64(it.cursor)
		s[dst+1] = s[it.base+int(it.cursor)*it.elemSlots]
		s[dst+2] = 1
		it.cursor++

	case bytecode.IterString:
		if int(it.cursor) >= vm.strLenOf(it.ref) {
			s[dst+2] = 0
			return
		}
		r, w := vm.decodeRune(it.ref, int(it.cursor))
		s[dst] = u64(it.cursor)
		s[dst+1] = u64(int64(r))
		s[dst+2] = 1
		it.cursor += int64(w)

	case bytecode.IterMap:
		key, val, next, ok := vm.mapIterNext(it.ref, int(it.cursor))
		if !ok {
			s[dst+2] = 0
			return
		}
		// Interface-valued maps deliver the first value slot here;
		// the loop body re-fetches the pair with MapGet.
		it.cursor = int64(next)
		s[dst] = key
		s[dst+1] = val[0]
		s[dst+2] = 1

	default:
		throw("iter: bad iterator kind")
	}
}
