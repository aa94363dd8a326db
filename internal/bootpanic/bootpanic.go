// Package bootpanic implements the boot core's single failure path
// (spec.md §7): emit one structured diagnostic line, then attempt an
// 8042-keyboard-controller reboot. Every fatal condition elsewhere in the
// boot sequence — unknown bootloader, missing required CPU feature, a full
// ledger, a buddy that cannot satisfy a power-of-two request — funnels
// through Fault so there is exactly one place that decides what a panic
// looks like and what happens after it. Grounded directly on the source's
// panic.rs (the keyboard-controller reset sequence, read to drain the
// input buffer then toggle the reset pin via port 0x64) and its
// rust_begin_panic's one-line "print then reboot" shape.
package bootpanic

import (
	"vireo/internal/console"
	"vireo/internal/cpu"
)

// Fault is the structured failure report every fatal condition constructs
// before handing off to Fire (spec.md §7: "each failure is reported once
// with a structured message containing the triggering value").
type Fault struct {
	Module  string // e.g. "cpu", "heap", "memregion"
	Message string
	Value   string // the triggering value, already formatted by the caller
}

func (f Fault) String() string {
	if f.Value == "" {
		return f.Module + ": " + f.Message
	}
	return f.Module + ": " + f.Message + ": " + f.Value
}

// keyboardControllerPort is the 8042 PS/2 controller's command/status port
// (panic.rs's PortIO::new(0x64)).
const keyboardControllerPort = 0x64

const (
	statusOutputFull = 1 << 1
	cmdPulseResetLow = 0xFE
)

// Fire is the boot core's only panic entry point: emit f at Panic level
// through the active console, then attempt to reboot via the 8042
// controller. It never returns — if the controller reset fails to take
// effect, it halts in place (panic.rs: "Reboot by 8042 seems to have
// failed", then an infinite loop).
func Fire(f Fault) {
	console.Write(console.Panic, f.String())
	reboot()
}

// reboot drains the keyboard controller's output buffer, then pulses the
// reset line by writing 0xFE to the command port — the standard BIOS-era
// "warm reset via keyboard controller" trick panic.rs relies on in the
// absence of any ACPI or power-management path this early in boot.
func reboot() {
	for cpu.Inb(keyboardControllerPort)&statusOutputFull != 0 {
	}
	cpu.Outb(keyboardControllerPort, cmdPulseResetLow)
	console.Write(console.Error, "bootpanic: reboot by 8042 seems to have failed")
	for {
	}
}
