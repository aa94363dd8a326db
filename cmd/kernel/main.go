// Command kernel is the boot core's entry point, wiring every component in
// SPEC_FULL.md's fixed eleven-step order (spec.md §5). It plays the role
// the teacher's kernel.go plays for mazarin: KernelMain runs the boot
// sequence and takes the bootloader's handoff values as arguments. This
// repository contains no assembly entry stub that calls KernelMain; main
// calls it with the v1 signature and a zero information-block address.
package main

import (
	_ "unsafe" // for go:linkname

	"vireo/internal/activation"
	"vireo/internal/addrspace"
	"vireo/internal/bootinfo"
	"vireo/internal/bootpanic"
	"vireo/internal/bootseq"
	"vireo/internal/cmdline"
	"vireo/internal/console"
	"vireo/internal/cpu"
	"vireo/internal/heap"
	"vireo/internal/memregion"
	"vireo/internal/stack"
)

// kernelImageStart and kernelImageEnd bound the loaded kernel image in
// virtual memory. The linker script backing this build defines them, the
// same role boot/mod.rs's extern kernel_image_start/kernel_image_end play
// for the source, reused here via go:linkname instead of cgo extern
// statics.
//
//go:linkname kernelImageStart kernel_image_start
var kernelImageStart uintptr

//go:linkname kernelImageEnd kernel_image_end
var kernelImageEnd uintptr

// writeCR3 loads the MMU root register, implemented in asm_amd64.s
// alongside the cpu package's own primitives.
//
//go:linkname writeCR3 main.writeCR3
//go:nosplit
func writeCR3(value uint64)

// KernelMain takes the bootloader's handoff values as arguments: the
// signature the loader leaves in EAX and the physical address of its
// information block it leaves in EBX (spec.md §6). It never returns.
func KernelMain(signature uint32, infoPhys uint64) {
	seq := bootseq.New()
	window := addrspace.KernelWindow{}

	// 1. Bootloader signature checked.
	if !bootinfo.Detect(signature) {
		bootpanic.Fire(bootpanic.Fault{Module: "bootinfo", Message: "unrecognised bootloader signature", Value: hex32(signature)})
	}
	parser, ok := bootinfo.New(infoPhys, window)
	if !ok {
		bootpanic.Fire(bootpanic.Fault{Module: "bootinfo", Message: "handoff block not reachable via initial window", Value: hex64(infoPhys)})
	}
	seq.Enter(bootseq.SignatureChecked)

	// 2. Command line parsed (handlers run).
	rawCmdLine, hasCmdLine := parser.CommandLine()
	if hasCmdLine {
		cmdline.Process(rawCmdLine)
	}
	seq.Enter(bootseq.CmdLineParsed)

	// 3. Image and phys-boot regions appended to the ledger.
	ledger := &memregion.Ledger{}
	imageVirt := memregion.Range{Start: uint64(kernelImageStart), End: uint64(kernelImageEnd)}
	imagePhys, ok := window.VToP(imageVirt)
	if !ok {
		bootpanic.Fire(bootpanic.Fault{Module: "memregion", Message: "kernel image not resolvable via initial window"})
	}
	if !ledger.AddUsed(imagePhys) {
		bootpanic.Fire(bootpanic.Fault{Module: "memregion", Message: "ledger full recording kernel image"})
	}
	bootPhys := memregion.Range{Start: addrspace.KernelPAddrLoad, End: imagePhys.Start}
	if !bootPhys.Empty() {
		if !ledger.AddBoot(bootPhys) {
			bootpanic.Fire(bootpanic.Fault{Module: "memregion", Message: "ledger full recording phys-boot region"})
		}
	}
	seq.Enter(bootseq.RegionsRecorded)

	// 4. Available physical regions added: reachable ones feed the buddy
	// directly, unreachable ones become High ledger entries.
	buddy := heap.NewBuddy()
	parser.MemoryRegions(func(r bootinfo.Region) {
		if !r.Available() {
			return
		}
		phys := memregion.Range{Start: r.Base, End: r.Base + r.Length}
		if v, ok := window.PToV(phys); ok {
			buddy.Add(uintptr(v.Start), uintptr(v.Len()))
			return
		}
		if !ledger.AddHigh(phys) {
			// Overflow of the High ledger is a diagnostic warning only
			// (spec.md §7): the region is dropped, not fatal.
			console.Write(console.Error, "memregion: high ledger full, dropping region at "+hex64(phys.Start))
		}
	})
	seq.Enter(bootseq.PhysicalRegionsAdded)

	// 5. Buddy attached to the allocator proxy.
	heap.Global().Attach(buddy)
	heap.ApplyDebugFreeFlag(buddy)
	seq.Enter(bootseq.BuddyAttached)

	// 6. Command line's canonical string allocated and stored, now that the
	// heap exists to own a copy independent of the bootloader's info block.
	cmdline.Set(rawCmdLine)
	seq.Enter(bootseq.CmdLineCanonicalStored)

	// 7. CPU features checked, PAT programmed, global pages enabled.
	features, err := cpu.Check()
	if err != nil {
		bootpanic.Fire(bootpanic.Fault{Module: "cpu", Message: "required feature missing", Value: err.Error()})
	}
	cpu.ProgramPAT(features.MSR(), features.PAT())
	gbPages, ok := cpu.HasGigabytePages()
	if !ok {
		// This port's page-table builder only ever constructs 1 GiB leaves
		// for the kernel and image windows (spec.md §4.J); without the
		// feature there is no fallback construction path.
		bootpanic.Fire(bootpanic.Fault{Module: "cpu", Message: "required feature missing", Value: "1 GiB pages"})
	}
	globalPages, ok := cpu.HasGlobalPages()
	if !ok {
		bootpanic.Fire(bootpanic.Fault{Module: "cpu", Message: "required feature missing", Value: "global pages"})
	}
	seq.Enter(bootseq.CPUFeaturesChecked)

	// 8. New kernel address space built.
	frames := activation.HeapFrameAllocator(heap.Global())
	as, err := activation.Build(window, frames, gbPages, globalPages)
	if err != nil {
		bootpanic.Fire(bootpanic.Fault{Module: "activation", Message: "kernel address space build failed", Value: err.Error()})
	}
	seq.Enter(bootseq.AddressSpaceBuilt)

	// 9. Activator switches the MMU; High regions are drained into the heap.
	activation.Activate(as, ledger, buddy, writeCR3)
	seq.Enter(bootseq.Activated)

	// 10. New kernel stack reserved and filled; execution transfers to it.
	relocated, err := stack.New(stack.NewMapper(as, frames), stack.NewReserver(as))
	if err != nil {
		bootpanic.Fire(bootpanic.Fault{Module: "stack", Message: "stack relocation failed", Value: err.Error()})
	}
	seq.Enter(bootseq.StackRelocated)

	stack.RunOnStack(relocated, seq, postBootEntry)
}

// postBootEntry is where a real kernel would hand off to the rest of the
// system; this port has nothing past the memory and address-space bring-up
// it covers, so it just announces completion and idles. Per spec.md §5
// step 11, returning from here is itself a fatal condition.
func postBootEntry(seq *bootseq.Sequencer) {
	seq.Enter(bootseq.PostBootEntered)
	console.Write(console.Info, "vireo: boot sequence complete")
	for {
	}
}

func hex32(v uint32) string { return hex64(uint64(v)) }

func hex64(v uint64) string {
	const digits = "0123456789abcdef"
	var buf [18]byte
	buf[0], buf[1] = '0', 'x'
	for i := 0; i < 16; i++ {
		buf[17-i] = digits[v&0xF]
		v >>= 4
	}
	return string(buf[:])
}

// main satisfies the toolchain's executable build mode, like the teacher's
// dummy main() in kernel.go. It calls KernelMain with bootinfo.Signature
// and an information-block address of 0, then spins.
func main() {
	KernelMain(bootinfo.Signature, 0)
	for {
	}
}
