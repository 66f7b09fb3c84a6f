// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The external ABI.
//
// Native functions are registered process-wide by name before program
// start and bound to a module's extern table at load time. A call
// passes an ExternCallContext with typed slot accessors over the
// argument window; the same window receives the returns. Every call
// is bracketed with PauseGC/ResumeGC so opaque native work neither
// observes a collection nor starves the mutator of safepoints.
//
// Extension libraries hand the registry a versioned entry table; an
// ABI version mismatch refuses the whole table.

package vm

import (
	"fmt"
	"sort"
	"sync"
)

// ExternABIVersion gates extension tables.
const ExternABIVersion = 1

type ExternFunc func(ctx *ExternCallContext) ExternResult

type ExternCode uint8

const (
	ExternOk ExternCode = iota
	ExternErrInvalid
	ExternErrIO
	ExternErrOS
	ExternErrNotFound
)

var externCodeNames = [...]string{"ok", "invalid argument", "i/o error", "os error", "not found"}

func (c ExternCode) String() string {
	if int(c) < len(externCodeNames) {
		return externCodeNames[c]
	}
	return "error"
}

// ExternResult reports an extern call's outcome: Ok with a written
// return count, or a structured error the VM boxes into a Vo error.
type ExternResult struct {
	Code ExternCode
	N    int
	Msg  string
}

func ExternReturn(n int) ExternResult { return ExternResult{N: n} }

func ExternError(code ExternCode, format string, args ...any) ExternResult {
	return ExternResult{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// The process-wide registry.
var externRegistry = struct {
	mu    sync.Mutex
	funcs map[string]ExternFunc
}{funcs: make(map[string]ExternFunc)}

// RegisterExtern binds a native function name. Later registrations of
// the same name win, which is what extension overrides want.
func RegisterExtern(name string, fn ExternFunc) {
	externRegistry.mu.Lock()
	externRegistry.funcs[name] = fn
	externRegistry.mu.Unlock()
}

func lookupExtern(name string) (ExternFunc, bool) {
	externRegistry.mu.Lock()
	fn, ok := externRegistry.funcs[name]
	externRegistry.mu.Unlock()
	return fn, ok
}

// RegisteredExterns returns the registered names, sorted.
func RegisteredExterns() []string {
	externRegistry.mu.Lock()
	names := make([]string, 0, len(externRegistry.funcs))
	for name := range externRegistry.funcs {
		names = append(names, name)
	}
	externRegistry.mu.Unlock()
	sort.Strings(names)
	return names
}

// ExtensionTable is what a native extension exports.
type ExtensionTable struct {
	ABIVersion int
	Entries    []ExtensionEntry
}

type ExtensionEntry struct {
	Name string
	Fn   ExternFunc
}

// LoadExtension registers a whole extension table after the version
// gate.
func LoadExtension(t ExtensionTable) error {
	if t.ABIVersion != ExternABIVersion {
		return fmt.Errorf("vo: extension ABI version %d, runtime has %d", t.ABIVersion, ExternABIVersion)
	}
	for _, e := range t.Entries {
		RegisterExtern(e.Name, e.Fn)
	}
	return nil
}

// ExternCallContext carries one call's state.
type ExternCallContext struct {
	vm   *VM
	f    *fiber
	base int // absolute argument/return window base
	argc int
	retc int
}

func (c *ExternCallContext) ArgCount() int { return c.argc }

func (c *ExternCallContext) ArgI64(i int) int64   { return i64(c.f.stack[c.base+i]) }
func (c *ExternCallContext) ArgF64(i int) float64 { return f64(c.f.stack[c.base+i]) }
func (c *ExternCallContext) ArgBool(i int) bool   { return c.f.stack[c.base+i] != 0 }
func (c *ExternCallContext) ArgRef(i int) GcRef   { return c.f.stack[c.base+i] }

func (c *ExternCallContext) ArgStr(i int) string {
	return c.vm.goString(c.f.stack[c.base+i])
}

// ArgAny reads an interface pair starting at slot i.
func (c *ExternCallContext) ArgAny(i int) (uint64, uint64) {
	return c.f.stack[c.base+i], c.f.stack[c.base+i+1]
}

func (c *ExternCallContext) RetI64(i int, v int64)   { c.f.stack[c.base+i] = u64(v) }
func (c *ExternCallContext) RetF64(i int, v float64) { c.f.stack[c.base+i] = fbits(v) }
func (c *ExternCallContext) RetBool(i int, v bool)   { c.f.stack[c.base+i] = b2s(v) }
func (c *ExternCallContext) RetRef(i int, v GcRef)   { c.f.stack[c.base+i] = v }

func (c *ExternCallContext) RetStr(i int, s string) {
	c.f.stack[c.base+i] = c.vm.newString(s)
}

func (c *ExternCallContext) RetAny(i int, s0, s1 uint64) {
	c.f.stack[c.base+i] = s0
	c.f.stack[c.base+i+1] = s1
}

// GC exposes the collector handle (pause bracketing is already done
// by the dispatcher; this is for allocation and explicit collection).
func (c *ExternCallContext) GC() *VM { return c.vm }

// CallClosure lets native code invoke a Vo closure. The extern's GC
// pause is lifted for the duration so the callee runs normally.
func (c *ExternCallContext) CallClosure(clo GcRef, args []uint64, rets []uint64) error {
	if clo == 0 {
		return fmt.Errorf("vo: call of nil closure")
	}
	c.vm.ResumeGC()
	defer c.vm.PauseGC()

	scratch := c.base + c.argc
	if c.retc > c.argc {
		scratch = c.base + c.retc
	}
	ok := c.vm.callFromJit(c.f, c.vm.closureFunc(clo), args, scratch, len(rets), clo)
	if !ok {
		return fmt.Errorf("vo: panic in closure called from native code")
	}
	copy(rets, c.f.stack[scratch:scratch+len(rets)])
	return nil
}

// callExtern dispatches one CallExtern instruction. argBase is
// frame-relative.
func (vm *VM) callExtern(f *fiber, fr *frame, id, argBase, argc, retc int) {
	if id >= len(vm.externs) || vm.externs[id] == nil {
		vm.runtimeError(f, "call of unbound extern")
		return
	}
	ctx := &ExternCallContext{
		vm:   vm,
		f:    f,
		base: fr.bp + argBase,
		argc: argc,
		retc: retc,
	}
	vm.PauseGC()
	res := vm.externs[id](ctx)
	vm.ResumeGC()

	if res.Code != ExternOk {
		vm.writeExternError(f, ctx, res)
	}
}

// writeExternError is the single helper wrapping a native error into
// a Vo error interface value, placed in the last two return slots.
func (vm *VM) writeExternError(f *fiber, ctx *ExternCallContext, res ExternResult) {
	if ctx.retc < 2 {
		// No room for an error pair: escalate to a runtime panic.
		vm.runtimeError(f, res.Code.String()+": "+res.Msg)
		return
	}
	msg := vm.newString(res.Code.String() + ": " + res.Msg)
	at := ctx.base + ctx.retc - 2
	f.stack[at], f.stack[at+1] = vm.packError(msg)
	for i := 0; i < ctx.retc-2; i++ {
		f.stack[ctx.base+i] = 0
	}
}
