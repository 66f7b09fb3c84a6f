// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package std registers the native half of the Vo standard library.
// Everything here goes through the extern ABI; the Vo-source half of
// the library calls these by name. Importing the package for effect
// is enough:
//
//	import _ "github.com/oxfeeefeee/volang/std"
package std

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/oxfeeefeee/volang/vm"
)

// Stdout is swappable for tests.
var Stdout io.Writer = os.Stdout

func init() {
	vm.RegisterExtern("print", doPrint(false))
	vm.RegisterExtern("println", doPrint(true))
	vm.RegisterExtern("itoa", func(ctx *vm.ExternCallContext) vm.ExternResult {
		ctx.RetStr(0, strconv.FormatInt(ctx.ArgI64(0), 10))
		return vm.ExternReturn(1)
	})
	vm.RegisterExtern("atoi", func(ctx *vm.ExternCallContext) vm.ExternResult {
		n, err := strconv.ParseInt(ctx.ArgStr(0), 10, 64)
		if err != nil {
			return vm.ExternError(vm.ExternErrInvalid, "atoi: parsing %q", ctx.ArgStr(0))
		}
		ctx.RetI64(0, n)
		return vm.ExternReturn(1)
	})
	vm.RegisterExtern("math.sqrt", func(ctx *vm.ExternCallContext) vm.ExternResult {
		ctx.RetF64(0, math.Sqrt(ctx.ArgF64(0)))
		return vm.ExternReturn(1)
	})
	vm.RegisterExtern("time.now", func(ctx *vm.ExternCallContext) vm.ExternResult {
		ctx.RetI64(0, time.Now().UnixNano())
		return vm.ExternReturn(1)
	})
	vm.RegisterExtern("os.getenv", func(ctx *vm.ExternCallContext) vm.ExternResult {
		ctx.RetStr(0, os.Getenv(ctx.ArgStr(0)))
		return vm.ExternReturn(1)
	})
}

// doPrint writes each argument as a string; the code generator boxes
// non-string operands through itoa and friends before the call.
func doPrint(newline bool) vm.ExternFunc {
	return func(ctx *vm.ExternCallContext) vm.ExternResult {
		for i := 0; i < ctx.ArgCount(); i++ {
			if i > 0 {
				fmt.Fprint(Stdout, " ")
			}
			fmt.Fprint(Stdout, ctx.ArgStr(i))
		}
		if newline {
			fmt.Fprintln(Stdout)
		}
		return vm.ExternReturn(0)
	}
}
