// Package activation builds the final kernel address space and switches
// the MMU to it (spec.md §4.K, the "Address-space activator"). It is kept
// separate from internal/addrspace (which only defines the Translation
// contract and the initial KernelWindow) and internal/pagetable (which only
// knows how to build and walk tables) so that pagetable can depend on
// addrspace's Translation type without a cycle back through the type that
// actually performs activation — the same layering the source keeps
// between vspace/window.rs (the trait), vspace/paging.rs (the builder) and
// vspace/vspace.rs (make_kernel_address_space, the activator).
package activation

import (
	"vireo/internal/addrspace"
	"vireo/internal/console"
	"vireo/internal/cpu"
	"vireo/internal/heap"
	"vireo/internal/memregion"
	"vireo/internal/pagetable"
)

const gib = 1 << 30

// dynamicMapping is one page donated into the kernel window's dynamic
// range (spec.md §4.J: "a dynamic range") after activation, as High/Boot
// regions are drained into the heap (spec.md §4.K). Recorded so the final
// AddressSpace can answer PToV for any physical page actually backed by a
// mapping, as spec.md §4.A requires post-activation.
type dynamicMapping struct {
	vaddr, paddr, size uint64
}

// DynamicBase is the start of the virtual range reserved for mappings
// established after boot (device mappings, pages backing memory donated
// from above 4 GiB) - immediately past the 1 GiB image window, matching
// the source's comment that the image window's "second gb is for any
// device mappings" (original_source/src/vspace/mod.rs doc comment).
const DynamicBase = addrspace.KernelImageBase + gib

// DynamicSize is the size of the dynamic range.
const DynamicSize = gib

// AddressSpace is the final kernel translation, owning the permanent root
// page table (spec.md §3). It satisfies addrspace.Translation.
type AddressSpace struct {
	builder  *pagetable.Builder
	dynamic  []dynamicMapping
	nextFree uint64
}

var _ addrspace.Translation = (*AddressSpace)(nil)

func lowRange() memregion.Range {
	return memregion.Range{Start: addrspace.KernelBase, End: addrspace.KernelBase + 4*gib}
}

func imageRange() memregion.Range {
	return memregion.Range{Start: addrspace.KernelImageBase, End: addrspace.KernelImageBase + gib}
}

func within(outer, inner memregion.Range) bool {
	return inner.Start >= outer.Start && inner.End <= outer.End && !inner.Empty()
}

// IsValid reports whether v lies in the permanent kernel window, the image
// window, or a range this address space has actually mapped dynamically.
func (a *AddressSpace) IsValid(v memregion.Range) bool {
	if within(lowRange(), v) || within(imageRange(), v) {
		return true
	}
	for _, d := range a.dynamic {
		if within(memregion.Range{Start: d.vaddr, End: d.vaddr + d.size}, v) {
			return true
		}
	}
	return false
}

// VToP resolves a virtual range to physical. The kernel and image windows
// use the same fixed linear formula the initial KernelWindow uses (the
// final table is built to implement exactly that mapping, spec.md §4.J);
// the dynamic range is resolved against actually-installed mappings.
func (a *AddressSpace) VToP(v memregion.Range) (memregion.Range, bool) {
	switch {
	case within(lowRange(), v):
		return memregion.Range{
			Start: v.Start - addrspace.KernelBase + addrspace.KernelPhysBase,
			End:   v.End - addrspace.KernelBase + addrspace.KernelPhysBase,
		}, true
	case within(imageRange(), v):
		return memregion.Range{
			Start: v.Start - addrspace.KernelImageBase + addrspace.KernelPhysBase,
			End:   v.End - addrspace.KernelImageBase + addrspace.KernelPhysBase,
		}, true
	}
	for _, d := range a.dynamic {
		dr := memregion.Range{Start: d.vaddr, End: d.vaddr + d.size}
		if within(dr, v) {
			off := v.Start - d.vaddr
			return memregion.Range{Start: d.paddr + off, End: d.paddr + off + v.Len()}, true
		}
	}
	return memregion.Range{}, false
}

// PToV resolves a physical range to virtual. Unlike the initial
// KernelWindow (which can only reverse the image sub-window, per spec.md
// §9's open question), the final address space can resolve any physical
// page it has actually mapped: the low window is now reversible too, since
// it has one authoritative virtual alias once the dynamic range exists
// separately.
func (a *AddressSpace) PToV(p memregion.Range) (memregion.Range, bool) {
	lowPhys := memregion.Range{Start: addrspace.KernelPhysBase, End: addrspace.KernelPhysBase + 4*gib}
	if within(lowPhys, p) {
		return memregion.Range{
			Start: p.Start - addrspace.KernelPhysBase + addrspace.KernelBase,
			End:   p.End - addrspace.KernelPhysBase + addrspace.KernelBase,
		}, true
	}
	for _, d := range a.dynamic {
		dr := memregion.Range{Start: d.paddr, End: d.paddr + d.size}
		if within(dr, p) {
			off := p.Start - d.paddr
			return memregion.Range{Start: d.vaddr + off, End: d.vaddr + off + p.Len()}, true
		}
	}
	return memregion.Range{}, false
}

// Build constructs the permanent page tables: a 4 GiB identity-ish kernel
// window spread across the 4 default 1 GiB slots, mapping to the low 4 GiB
// of physical memory, and a 1 GiB image window mapping the kernel binary
// (spec.md §4.J "Kernel window construction"). It requires the 1 GiB page
// capability, which this port mandates per spec.md §4.J.
func Build(initial addrspace.Translation, frames pagetable.FrameAllocator, gbPages cpu.GigabytePages, pge cpu.GlobalPages) (*AddressSpace, error) {
	b, err := pagetable.NewBuilder(initial, frames)
	if err != nil {
		return nil, err
	}

	for slot := uint64(0); slot < 4; slot++ {
		vaddr := addrspace.KernelBase + slot*gib
		paddr := slot * gib
		mb, ok := pagetable.NewPage1GiB(vaddr, paddr, cpu.MemWriteBack, initial, gbPages)
		if !ok {
			return nil, errUnresolvable{vaddr: vaddr, paddr: paddr}
		}
		mb = mb.Kernel(pge).Write().NoExecute(cpu.NoExecute{})
		b.EnsureEntry(mb.Finish())
	}

	imgMB, ok := pagetable.NewPage1GiB(addrspace.KernelImageBase, 0, cpu.MemWriteBack, initial, gbPages)
	if !ok {
		return nil, errUnresolvable{vaddr: addrspace.KernelImageBase, paddr: 0}
	}
	imgMB = imgMB.Kernel(pge).Write().Executable()
	b.EnsureEntry(imgMB.Finish())

	return &AddressSpace{builder: b, nextFree: DynamicBase}, nil
}

// RootPhys resolves the physical address of the root page table, for the
// MMU root register write.
func (a *AddressSpace) RootPhys() (uint64, bool) { return a.builder.RootPhys() }

// MapDynamic installs a single 2 MiB mapping in the dynamic range for a
// physical frame donated after activation (spec.md §4.K: "walk the
// ledger's High entries and donate each to the heap, now that it is
// reachable") and records it so PToV/IsValid/VToP see it afterward.
// Donated ranges are mapped 2 MiB at a time regardless of their own
// alignment; callers (the activator's drain step) are responsible for
// iterating a donated range in 2 MiB chunks.
func (a *AddressSpace) MapDynamic(paddr uint64) (vaddr uint64, err error) {
	if a.nextFree-DynamicBase+pagetable.Size2MiB.Bytes() > DynamicSize {
		return 0, errDynamicRangeExhausted{}
	}
	vaddr = a.nextFree
	// Deliberately bypasses pagetable.NewPage's resolvability gate: that
	// gate exists to stop a caller from mapping a physical page nothing
	// can reach yet, but establishing first-time reachability for
	// previously-unreachable (High) physical memory is exactly this
	// method's job (spec.md §4.K: "now that it is reachable").
	mb := pagetable.MappingBuilder{}.WithPage(vaddr, paddr, pagetable.Size2MiB, cpu.MemWriteBack)
	mb = mb.KernelNonGlobal().Write().NoExecute(cpu.NoExecute{})
	a.builder.EnsureEntry(mb.Finish())
	a.dynamic = append(a.dynamic, dynamicMapping{vaddr: vaddr, paddr: paddr, size: pagetable.Size2MiB.Bytes()})
	a.nextFree += pagetable.Size2MiB.Bytes()
	return vaddr, nil
}

// Reserve bumps the dynamic-range cursor forward by size, aligned to
// align, without mapping anything — used by the stack relocator (spec.md
// §4.L) to carve out its 4 MiB guarded region before deciding which half
// to actually back with memory.
func (a *AddressSpace) Reserve(size, align uint64) (uint64, error) {
	base := (a.nextFree + align - 1) &^ (align - 1)
	if base-DynamicBase+size > DynamicSize {
		return 0, errDynamicRangeExhausted{}
	}
	a.nextFree = base + size
	return base, nil
}

// Fill backs [addr, addr+size) with fresh 4 KiB frames drawn from frames,
// satisfying stack.Mapper. Used only for memory inside a range this
// AddressSpace has already Reserve'd (the stack's usable half); it does
// not itself reserve the range.
func (a *AddressSpace) Fill(addr, size uint64, frames pagetable.FrameAllocator) error {
	const page = 4096
	for off := uint64(0); off < size; off += page {
		frameVirt, err := frames()
		if err != nil {
			return err
		}
		framePhys, ok := a.builder.Translation().VToP(memregion.Range{Start: uint64(frameVirt), End: uint64(frameVirt) + page})
		if !ok {
			return errUnresolvable{vaddr: uint64(frameVirt)}
		}
		mb := pagetable.MappingBuilder{}.WithPage(addr+off, framePhys.Start, pagetable.Size4KiB, cpu.MemWriteBack)
		mb = mb.KernelNonGlobal().Write().NoExecute(cpu.NoExecute{})
		a.builder.EnsureEntry(mb.Finish())
	}
	return nil
}

// Activate switches the MMU root register to as's root table tagged with
// KernelPCID, invalidating all stale translations (spec.md §4.K, §6), then
// donates the region ledger's High and Boot entries into the given buddy
// heap now that they are reachable through as (boot order step 9, spec.md
// §5). The caller's initial translation must be dropped after this
// returns; it is no longer the active one.
func Activate(as *AddressSpace, ledger *memregion.Ledger, buddy *heap.Buddy, writeRoot func(physRootAndPCID uint64)) {
	root, ok := as.RootPhys()
	if !ok {
		panic("activation: root table is not resolvable via its own translation")
	}
	writeRoot((root &^ 0xFFF) | (addrspace.KernelPCID & 0xFFF))

	drain := func(r memregion.Range) {
		base := r.Start &^ (pagetable.Size2MiB.Bytes() - 1)
		for p := base; p < r.End; p += pagetable.Size2MiB.Bytes() {
			chunk := memregion.Range{Start: p, End: p + pagetable.Size2MiB.Bytes()}
			// Only the part of the chunk that lies inside r is donated.
			lo, hi := chunk.Start, chunk.End
			if lo < r.Start {
				lo = r.Start
			}
			if hi > r.End {
				hi = r.End
			}
			if v, ok := as.PToV(chunk); ok {
				// Already reachable through the permanent low window's
				// linear alias (spec.md §4.A): donate it there directly
				// instead of spending the 1 GiB dynamic range - shared with
				// the step-10 stack reservation - on memory the kernel
				// window already covers.
				buddy.Add(uintptr(v.Start+(lo-p)), uintptr(hi-lo))
				continue
			}
			vaddr, err := as.MapDynamic(p)
			if err != nil {
				// Dynamic range exhausted: remaining high memory cannot be
				// mapped in this boot core and is dropped, matching
				// spec.md §7's "diagnostic warning only" treatment of
				// ledger/high-memory overflow conditions.
				console.Write(console.Error, "activation: dynamic range exhausted, dropping region at "+hex64(p))
				return
			}
			buddy.Add(uintptr(vaddr+(lo-p)), uintptr(hi-lo))
		}
	}
	ledger.Each(memregion.High, drain)
	ledger.Each(memregion.Boot, drain)
}

type errUnresolvable struct{ vaddr, paddr uint64 }

func (e errUnresolvable) Error() string {
	return "activation: page not resolvable via active translation"
}

type errDynamicRangeExhausted struct{}

func (errDynamicRangeExhausted) Error() string { return "activation: dynamic range exhausted" }

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

const framePageSize = 4096

// StealFrameAllocator returns a pagetable.FrameAllocator backed directly by
// the region ledger's steal path (SPEC_FULL.md supplemented feature 3),
// for building page tables before the buddy allocator exists to serve
// them. Each frame is carved from the front of the first large-enough
// ledger record of kind from, which shrinks in place; a stolen frame is
// therefore no longer covered by any ledger record and is not donated to
// the heap by Activate.
func StealFrameAllocator(ledger *memregion.Ledger, from memregion.Kind) pagetable.FrameAllocator {
	return func() (uintptr, error) {
		base, err := ledger.StealAligned(from, framePageSize, framePageSize)
		if err != nil {
			return 0, err
		}
		return uintptr(base), nil
	}
}

// HeapFrameAllocator returns a pagetable.FrameAllocator backed by the
// global allocator proxy, for building page tables once the heap exists.
func HeapFrameAllocator(proxy *heap.Proxy) pagetable.FrameAllocator {
	return func() (uintptr, error) {
		return proxy.Alloc(framePageSize, framePageSize), nil
	}
}
