// Copyright 2025 The Vo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Diagnostics and environment tuning.
//
// Diagnostics are single tagged lines, [VO:KIND:loc: msg]; the core
// only ever emits PANIC (the surrounding toolchain layers own PARSE,
// CHECK, CODEGEN and IO). The sink is replaceable for tests and
// embedders.
//
// Environment variables, read once at New and overridable through
// Config: VOGC (pause percent, or "off"), VOGCSTEPMUL, VOJIT (call
// threshold, or "off"), VODEBUG (comma-separated key=value pairs;
// gctrace=1 logs a line per completed cycle).

package vm

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DiagnosticFunc receives tagged diagnostic lines.
type DiagnosticFunc func(kind, loc, msg string)

func (vm *VM) SetDiagnostic(fn DiagnosticFunc) { vm.diag = fn }

func (vm *VM) diagnostic(kind, loc, msg string) {
	if vm.diag != nil {
		vm.diag(kind, loc, msg)
		return
	}
	if loc == "" {
		loc = "?"
	}
	fmt.Fprintf(os.Stderr, "[VO:%s:%s: %s]\n", kind, loc, msg)
}

// debugFlags holds the parsed VODEBUG keys.
type debugFlags struct {
	gctrace int
}

func parseDebugFlags(s string) debugFlags {
	var d debugFlags
	for _, kv := range strings.Split(s, ",") {
		name, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		n, _ := strconv.Atoi(val)
		if name == "gctrace" {
			d.gctrace = n
		}
	}
	return d
}

// readEnvConfig fills the zero fields of cfg from the environment.
func readEnvConfig(cfg *Config) {
	if cfg.GCPause == 0 {
		switch p := os.Getenv("VOGC"); {
		case p == "off":
			cfg.GCOff = true
		case p != "":
			if n, err := strconv.Atoi(p); err == nil && n >= 0 {
				cfg.GCPause = n
			}
		}
		if cfg.GCPause == 0 {
			cfg.GCPause = defaultGCPause
		}
	}
	if cfg.GCStepMul == 0 {
		if n, err := strconv.Atoi(os.Getenv("VOGCSTEPMUL")); err == nil && n > 0 {
			cfg.GCStepMul = n
		} else {
			cfg.GCStepMul = defaultGCStepMul
		}
	}
	if cfg.JitCallThreshold == 0 {
		switch p := os.Getenv("VOJIT"); {
		case p == "off":
			cfg.JitCallThreshold = 1 << 30
			cfg.JitLoopThreshold = 1 << 30
		case p != "":
			if n, err := strconv.Atoi(p); err == nil && n > 0 {
				cfg.JitCallThreshold = n
			}
		}
		if cfg.JitCallThreshold == 0 {
			cfg.JitCallThreshold = defaultJitCallThreshold
		}
	}
	if cfg.JitLoopThreshold == 0 {
		cfg.JitLoopThreshold = defaultJitLoopThreshold
	}
	if cfg.StackSlots == 0 {
		cfg.StackSlots = defaultStackSlots
	}
	cfg.debug = parseDebugFlags(os.Getenv("VODEBUG"))
}
