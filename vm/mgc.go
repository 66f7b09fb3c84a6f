// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Garbage collector (GC).
//
// The collector is a precise, incremental, non-moving tri-color
// mark-sweep over the object table. The mutator is the interpreter or
// JIT code; it calls into the collector only at safepoints (allocation
// counts and call boundaries), so no phase ever races a mutator.
//
// A cycle walks the states
//
//	gcPause -> gcPropagate -> gcAtomic -> gcSweep -> gcPause
//
// Pause: idle until live bytes grow past the trigger. The transition
// scans all roots gray and enters Propagate.
// Propagate: each step blackens up to stepmul gray objects. The write
// barrier keeps the no-black-to-white invariant while the mutator runs
// between steps.
// Atomic: roots are rescanned and the gray stack drained with no
// mutator interleaving, then the whites flip.
// Sweep: each step frees a bounded batch of old-white objects; black
// survivors are reset to the new white.
//
// Two whites are needed because allocation continues during sweep:
// objects born after the flip carry the new white and must not be
// freed by the sweep of the old one.
//
// The next cycle triggers when the live set has grown by pause
// percent (VOGC, default 200) over the live bytes at the end of the
// previous sweep; stepmul (VOGCSTEPMUL, default 200) scales the work
// per step.

package vm

import (
	"fmt"
	"os"
)

const (
	gcPauseState = iota
	gcPropagate
	gcAtomic
	gcSweep
)

const (
	colorWhite0 = 0
	colorWhite1 = 1
	colorGray   = 2
	colorBlack  = 3
)

const (
	defaultGCPause   = 200
	defaultGCStepMul = 200

	// heapminimum keeps tiny heaps from collecting on every step.
	heapMinimum = 64 << 10

	// Allocations between forced safepoint steps.
	allocStepThreshold = 64
)

type gcState struct {
	phase        int
	currentWhite uint8
	gray         []GcRef

	enabled bool
	pause   int // percent growth before the next cycle
	stepmul int // objects processed per step unit

	threshold uint64 // live bytes that trigger the next cycle
	sweepPos  int    // next table index to sweep
	allocs    int    // allocations since the last forced step
	pauseCnt  int    // explicit pause depth (extern calls)
	cycles    uint64
}

func (g *gcState) init() {
	g.phase = gcPauseState
	g.currentWhite = colorWhite0
	g.enabled = true
	g.pause = defaultGCPause
	g.stepmul = defaultGCStepMul
	g.threshold = heapMinimum
}

func (g *gcState) otherWhite() uint8 { return g.currentWhite ^ 1 }

func isWhite(m uint8) bool { return m == colorWhite0 || m == colorWhite1 }

// PauseGC suppresses collection; every extern call brackets itself
// with PauseGC/ResumeGC so opaque native work never observes a step.
func (vm *VM) PauseGC()  { vm.heap.gc.pauseCnt++ }
func (vm *VM) ResumeGC() {
	g := &vm.heap.gc
	if g.pauseCnt == 0 {
		throw("gc: unbalanced ResumeGC")
	}
	g.pauseCnt--
}

// gcStep runs one increment of collector work. It is the only entry
// point the mutator uses.
func (vm *VM) gcStep() {
	g := &vm.heap.gc
	if !g.enabled || g.pauseCnt > 0 {
		return
	}
	switch g.phase {
	case gcPauseState:
		if vm.heap.live >= g.threshold {
			vm.gcBeginCycle()
		}
	case gcPropagate:
		vm.gcPropagateStep(g.stepmul)
	case gcSweep:
		vm.gcSweepStep(g.stepmul * 4)
	}
}

// Collect runs the current cycle (if any) to completion and then one
// full cycle, synchronously.
func (vm *VM) Collect() {
	g := &vm.heap.gc
	if g.pauseCnt > 0 {
		return
	}
	if g.phase != gcPauseState {
		vm.gcFinishCycle()
	}
	vm.gcBeginCycle()
	vm.gcFinishCycle()
}

func (vm *VM) gcFinishCycle() {
	g := &vm.heap.gc
	for g.phase != gcPauseState {
		switch g.phase {
		case gcPropagate:
			vm.gcPropagateStep(1 << 30)
		case gcSweep:
			vm.gcSweepStep(1 << 30)
		}
	}
}

func (vm *VM) gcBeginCycle() {
	g := &vm.heap.gc
	g.phase = gcPropagate
	g.gray = g.gray[:0]
	vm.scanRoots()
}

func (vm *VM) gcPropagateStep(budget int) {
	g := &vm.heap.gc
	for budget > 0 && len(g.gray) > 0 {
		n := len(g.gray) - 1
		ref := g.gray[n]
		g.gray = g.gray[:n]
		vm.scanObject(ref)
		budget--
	}
	if len(g.gray) == 0 {
		vm.gcAtomicPhase()
	}
}

// gcAtomicPhase rescans roots and drains the remaining gray work with
// no mutator in between, then flips the white and starts the sweep.
// Stack slots have no barrier, so the rescan is what makes marking
// precise for values that only live in registers.
func (vm *VM) gcAtomicPhase() {
	g := &vm.heap.gc
	g.phase = gcAtomic
	vm.scanRoots()
	for len(g.gray) > 0 {
		n := len(g.gray) - 1
		ref := g.gray[n]
		g.gray = g.gray[:n]
		vm.scanObject(ref)
	}
	g.currentWhite = g.otherWhite()
	g.sweepPos = 0
	g.phase = gcSweep
}

func (vm *VM) gcSweepStep(budget int) {
	h := vm.heap
	g := &h.gc
	dead := g.otherWhite()
	for budget > 0 && g.sweepPos < len(h.objects) {
		o := h.objects[g.sweepPos]
		if o != nil {
			if o.hdr.mark == dead {
				h.live -= o.size
				h.count--
				h.objects[g.sweepPos] = nil
				h.free = append(h.free, uint32(g.sweepPos))
			} else {
				// Survivor: back to (new) white for the next cycle.
				o.hdr.mark = g.currentWhite
			}
		}
		g.sweepPos++
		budget--
	}
	if g.sweepPos >= len(h.objects) {
		g.phase = gcPauseState
		g.cycles++
		g.threshold = h.live + h.live*uint64(g.pause)/100
		if g.threshold < heapMinimum {
			g.threshold = heapMinimum
		}
		if vm.cfg.debug.gctrace > 0 {
			fmt.Fprintf(os.Stderr, "gc %d: %d live bytes, %d objects, next at %d\n",
				g.cycles, h.live, h.count, g.threshold)
		}
	}
}
