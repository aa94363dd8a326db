package pagetable

import (
	"vireo/internal/console"
	"vireo/internal/cpu"
	"vireo/internal/decl"
)

// Trace controls whether every leaf installed by EnsureEntry/RawMap is
// echoed to the console at Trace level, via the --trace_pagetable cmdline
// option (spec.md §4.C: unknown/undeclared options are ignored, declared
// ones dispatch here like any other).
var Trace bool

func init() {
	decl.RegisterCmdLine("trace_pagetable", func(argument string) {
		Trace = argument == "1" || argument == "on" || argument == "true"
	})
}

// Bit positions for the flags traceLeaf reports, independent of the actual
// PTE layout in pagetable.go (entPresent etc.) so the trace word is never
// derived from the same constants writeLeaf itself mutates.
const (
	traceBitPresent = 1 << iota
	traceBitWrite
	traceBitUser
	traceBitPWT
	traceBitPCD
	traceBitPS
	traceBitGlobal
	traceBitNX
)

// traceFlags packs the same flag set writeLeaf installs into one byte, by
// hand, the way writeLeaf itself assembles entPresent/entWrite/... — no
// reflection on this path, matching the teacher's own avoidance of runtime
// reflection anywhere pre-heap.
func traceFlags(m PageMapping, idx cpu.PATIndex) uint64 {
	flags := uint64(traceBitPresent)
	if m.Access.Write {
		flags |= traceBitWrite
	}
	if m.Access.User {
		flags |= traceBitUser
	}
	if idx.PWT() {
		flags |= traceBitPWT
	}
	if idx.PCD() {
		flags |= traceBitPCD
	}
	if m.Size != Size4KiB {
		flags |= traceBitPS
	}
	if m.Global {
		flags |= traceBitGlobal
	}
	if m.Access.NoExecute {
		flags |= traceBitNX
	}
	return flags
}

// traceLeaf emits a Trace-level line describing m once writeLeaf has
// installed it, reconstructing the flag word independently of writeLeaf so
// the trace output is never derived from the same code path it is meant to
// double-check.
func traceLeaf(m PageMapping) {
	if !Trace {
		return
	}
	flags := traceFlags(m, cpu.IndexFor(m.MemType))
	console.Write(console.Trace, "pagetable: leaf v="+hex(m.VAddr)+" p="+hex(m.PAddr)+" flags="+hex(flags))
}

func hex(v uint64) string {
	const digits = "0123456789abcdef"
	var buf [18]byte
	buf[0], buf[1] = '0', 'x'
	for i := 0; i < 16; i++ {
		buf[17-i] = digits[v&0xF]
		v >>= 4
	}
	return string(buf[:])
}
