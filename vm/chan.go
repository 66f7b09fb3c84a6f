// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Channels.
//
// Channel state is a ring of buffered values plus send/recv waiter
// queues. The scheduler is cooperative and single-threaded, so no
// lock guards the state; a blocked fiber parks itself on a queue and
// the fiber completing the operation delivers the value directly into
// the peer's stack and requeues it. A send happens-before the paired
// receive completes.
//
// Blocked selects do not park on a single queue: the fiber registers
// as a poller on every involved channel, and any state change wakes
// it to re-execute its Select instruction.

package vm

import "github.com/oxfeeefeee/volang/bytecode"

type voChan struct {
	elemKind  bytecode.ValueKind
	elemSlots int
	cap       int
	buf       [][]uint64
	closed    bool
	sendq     []*chanWaiter
	recvq     []*chanWaiter
	pollers   []*fiber
}

type chanWaiter struct {
	f     *fiber
	val   []uint64 // captured value for a parked sender
	dst   int      // absolute stack index for a parked receiver
	okDst int      // absolute index of the comma-ok slot, or -1
}

func (vm *VM) newChan(elemKind bytecode.ValueKind, capacity int) GcRef {
	elemSlots := 1
	if elemKind == bytecode.KindInterface {
		elemSlots = 2
	}
	ref := vm.alloc(bytecode.KindChannel, 0, 0)
	vm.heap.obj(ref).ext = &voChan{
		elemKind:  elemKind,
		elemSlots: elemSlots,
		cap:       capacity,
	}
	return ref
}

func (vm *VM) chanOf(ref GcRef) *voChan { return vm.heap.obj(ref).ext.(*voChan) }

func (c *voChan) recvReady() bool { return len(c.buf) > 0 || len(c.sendq) > 0 || c.closed }
func (c *voChan) sendReady() bool { return c.closed || len(c.buf) < c.cap || len(c.recvq) > 0 }

// wakePollers requeues every select-blocked fiber watching c.
func (vm *VM) wakePollers(c *voChan) {
	for _, f := range c.pollers {
		vm.unpoll(f)
		vm.ready(f)
	}
	c.pollers = c.pollers[:0]
}

// unpoll removes f from the poller list of every channel it watches.
func (vm *VM) unpoll(f *fiber) {
	for _, ch := range f.polling {
		for i, p := range ch.pollers {
			if p == f {
				ch.pollers = append(ch.pollers[:i], ch.pollers[i+1:]...)
				break
			}
		}
	}
	f.polling = f.polling[:0]
}

// chanSend sends the value at val. It returns true if the fiber
// parked; the caller must then leave the dispatch loop.
func (vm *VM) chanSend(f *fiber, ref GcRef, val []uint64) bool {
	c := vm.chanOf(ref)
	if c.closed {
		vm.runtimeError(f, "send on closed channel")
		return false
	}
	if len(c.recvq) > 0 {
		w := c.recvq[0]
		c.recvq = c.recvq[1:]
		copy(w.f.stack[w.dst:], val)
		if w.okDst >= 0 {
			w.f.stack[w.okDst] = 1
		}
		vm.ready(w.f)
		return false
	}
	if len(c.buf) < c.cap {
		v := make([]uint64, len(val))
		copy(v, val)
		c.buf = append(c.buf, v)
		vm.wakePollers(c)
		return false
	}
	v := make([]uint64, len(val))
	copy(v, val)
	c.sendq = append(c.sendq, &chanWaiter{f: f, val: v})
	vm.park(f, "chan send")
	vm.wakePollers(c)
	return true
}

// chanRecv receives into the absolute stack window dst. okDst < 0
// means no comma-ok. Returns true if the fiber parked.
func (vm *VM) chanRecv(f *fiber, ref GcRef, dst, okDst int) bool {
	c := vm.chanOf(ref)
	if len(c.buf) > 0 {
		v := c.buf[0]
		c.buf = c.buf[1:]
		copy(f.stack[dst:], v)
		if okDst >= 0 {
			f.stack[okDst] = 1
		}
		// A parked sender's value moves into the freed buffer slot.
		if len(c.sendq) > 0 {
			w := c.sendq[0]
			c.sendq = c.sendq[1:]
			c.buf = append(c.buf, w.val)
			w.val = nil
			vm.ready(w.f)
		}
		vm.wakePollers(c)
		return false
	}
	if len(c.sendq) > 0 {
		w := c.sendq[0]
		c.sendq = c.sendq[1:]
		copy(f.stack[dst:], w.val)
		w.val = nil
		if okDst >= 0 {
			f.stack[okDst] = 1
		}
		vm.ready(w.f)
		return false
	}
	if c.closed {
		for i := 0; i < c.elemSlots; i++ {
			f.stack[dst+i] = 0
		}
		if okDst >= 0 {
			f.stack[okDst] = 0
		}
		return false
	}
	c.recvq = append(c.recvq, &chanWaiter{f: f, dst: dst, okDst: okDst})
	vm.park(f, "chan receive")
	vm.wakePollers(c)
	return true
}

func (vm *VM) chanClose(f *fiber, ref GcRef) {
	c := vm.chanOf(ref)
	if c.closed {
		vm.runtimeError(f, "close of closed channel")
		return
	}
	c.closed = true
	for _, w := range c.recvq {
		for i := 0; i < c.elemSlots; i++ {
			w.f.stack[w.dst+i] = 0
		}
		if w.okDst >= 0 {
			w.f.stack[w.okDst] = 0
		}
		vm.ready(w.f)
	}
	c.recvq = nil
	for _, w := range c.sendq {
		w.f.resumeErr = "send on closed channel"
		vm.ready(w.f)
	}
	c.sendq = nil
	vm.wakePollers(c)
}

func (vm *VM) chanLen(ref GcRef) int {
	if ref == 0 {
		return 0
	}
	return len(vm.chanOf(ref).buf)
}
