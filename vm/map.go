// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Maps.
//
// A Vo map preserves insertion order: entries live in an append-only
// array (deleted entries become tombstones), and a Go map indexes
// canonical key representations to entry positions. Iteration walks
// the entry array by index, which keeps cursors stable across
// deletes. Keys are single-slot comparable values; string keys are
// canonicalized by content so content-equal strings collide.

package vm

import "github.com/oxfeeefeee/volang/bytecode"

type voMap struct {
	keyKind  bytecode.ValueKind
	valKind  bytecode.ValueKind
	valSlots int
	entries  []mapEntry
	index    map[mapKey]int
	count    int
}

type mapKey struct {
	b uint64
	s string // content, for string keys
}

type mapEntry struct {
	key  uint64 // the key's slot value (a ref for string keys)
	val  [2]uint64
	dead bool
}

func (vm *VM) newMap(keyKind, valKind bytecode.ValueKind) GcRef {
	valSlots := 1
	if valKind == bytecode.KindInterface {
		valSlots = 2
	}
	ref := vm.alloc(bytecode.KindMap, 0, 0)
	vm.heap.obj(ref).ext = &voMap{
		keyKind:  keyKind,
		valKind:  valKind,
		valSlots: valSlots,
		index:    make(map[mapKey]int),
	}
	return ref
}

func (vm *VM) mapOf(ref GcRef) *voMap { return vm.heap.obj(ref).ext.(*voMap) }

func (vm *VM) mapKeyOf(m *voMap, key uint64) mapKey {
	if m.keyKind == bytecode.KindString {
		return mapKey{s: vm.goString(key)}
	}
	return mapKey{b: key}
}

func (vm *VM) mapGet(ref GcRef, key uint64) ([]uint64, bool) {
	m := vm.mapOf(ref)
	i, ok := m.index[vm.mapKeyOf(m, key)]
	if !ok {
		return nil, false
	}
	e := &m.entries[i]
	return e.val[:m.valSlots], true
}

func (vm *VM) mapSet(ref GcRef, key uint64, val []uint64) {
	m := vm.mapOf(ref)
	k := vm.mapKeyOf(m, key)
	if i, ok := m.index[k]; ok {
		e := &m.entries[i]
		copy(e.val[:], val)
		vm.bulkBarrier(ref)
		return
	}
	var e mapEntry
	e.key = key
	copy(e.val[:], val)
	m.index[k] = len(m.entries)
	m.entries = append(m.entries, e)
	m.count++
	vm.bulkBarrier(ref)
}

func (vm *VM) mapDelete(ref GcRef, key uint64) {
	m := vm.mapOf(ref)
	k := vm.mapKeyOf(m, key)
	if i, ok := m.index[k]; ok {
		m.entries[i].dead = true
		delete(m.index, k)
		m.count--
	}
}

func (vm *VM) mapLen(ref GcRef) int {
	if ref == 0 {
		return 0
	}
	return vm.mapOf(ref).count
}

// mapIterNext advances an iteration cursor past tombstones. It
// returns the entry's key and value and the new cursor, or ok=false
// when the map is exhausted. Exported through the symbol table as the
// map range-loop helper.
func (vm *VM) mapIterNext(ref GcRef, cursor int) (key uint64, val []uint64, next int, ok bool) {
	m := vm.mapOf(ref)
	for ; cursor < len(m.entries); cursor++ {
		e := &m.entries[cursor]
		if !e.dead {
			return e.key, e.val[:m.valSlots], cursor + 1, true
		}
	}
	return 0, nil, cursor, false
}
