//go:build amd64

// Package cpu probes CPUID, gates optional features behind zero-size
// capability tokens (spec.md §4.D, §9), and programs the PAT MSR (§4.E).
// The low-level primitives CPUID and RDMSR/WRMSR require are not
// expressible in portable Go; the teacher's own pattern for this
// (kernel.go: go:linkname to hand-written lib.s routines such as
// mmio_write/mmio_read/dsb) is reused verbatim here for cpuid/rdmsr/wrmsr,
// backed by asm_amd64.s.
package cpu

import _ "unsafe" // for go:linkname

// cpuid executes the CPUID instruction for the given leaf/subleaf and
// returns eax, ebx, ecx, edx.
//
//go:linkname cpuid vireo/internal/cpu.cpuid
//go:noescape
func cpuid(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// rdmsr reads a model-specific register.
//
//go:linkname rdmsr vireo/internal/cpu.rdmsr
//go:noescape
func rdmsr(msr uint32) uint64

// wrmsr writes a model-specific register.
//
//go:linkname wrmsr vireo/internal/cpu.wrmsr
//go:noescape
func wrmsr(msr uint32, value uint64)

// Inb and Outb are the x86 port-I/O primitives, exported for the rare
// caller outside this package that needs them directly (the panic path's
// 8042 keyboard-controller reboot, which has no MMIO equivalent on this
// architecture the way the teacher's board-level resets do).
//
//go:linkname Inb vireo/internal/cpu.Inb
//go:noescape
func Inb(port uint16) uint8

//go:linkname Outb vireo/internal/cpu.Outb
//go:noescape
func Outb(port uint16, value uint8)
