// Package addrspace implements the translation abstraction (spec.md §4.A)
// and the initial kernel window; the address-space activator (§4.K) and the
// final AddressSpace live in internal/activation.
// Grounded on the source's vspace/mod.rs + boot/vspace.rs (the KERNEL_BASE
// / KERNEL_IMAGE_BASE constants and the Window trait) and on the teacher's
// own style of keeping hardware-facing state as package-level singletons
// during boot (kernel.go's fbinfo, heapSegmentListHead).
package addrspace

import "vireo/internal/memregion"

const (
	// KernelBase is the start of the initial 4 GiB identity-ish window
	// (spec.md §3).
	KernelBase uint64 = 0xFFFFFF8000000000
	// KernelImageBase is the start of the 1 GiB image window.
	KernelImageBase uint64 = 0xFFFFFFFF80000000
	// KernelPhysBase is the physical address KernelBase maps to.
	KernelPhysBase uint64 = 0
	// KernelPAddrLoad is where the kernel image is physically loaded.
	KernelPAddrLoad uint64 = 1 << 20 // 1 MiB
	// KernelPCID tags every translation this kernel ever installs.
	KernelPCID uint64 = 1

	gib = 1 << 30
)

// Translation abstracts a (partial, directed) virtual<->physical mapping
// (spec.md §4.A). Implementations must be stable: repeated chained
// conversions while the same Translation is alive produce identical
// results.
type Translation interface {
	IsValid(v memregion.Range) bool
	VToP(v memregion.Range) (memregion.Range, bool)
	PToV(p memregion.Range) (memregion.Range, bool)
}

// KernelWindow is the initial translation active from the moment the
// bootloader hands off control until Activate installs the final address
// space. Its two valid virtual ranges are [KernelBase, KernelBase+4GiB) and
// [KernelImageBase, KernelImageBase+1GiB), both mapping linearly to
// physical by subtracting their base and adding KernelPhysBase (spec.md
// §4.A).
type KernelWindow struct{}

var _ Translation = KernelWindow{}

func (KernelWindow) lowRange() memregion.Range {
	return memregion.Range{Start: KernelBase, End: KernelBase + 4*gib}
}

func (KernelWindow) imageRange() memregion.Range {
	return memregion.Range{Start: KernelImageBase, End: KernelImageBase + gib}
}

func within(outer, inner memregion.Range) bool {
	return inner.Start >= outer.Start && inner.End <= outer.End && !inner.Empty()
}

// IsValid reports whether v lies entirely within the low window or entirely
// within the image window; spec.md invariant 2 requires a range straddling
// the boundary between the two to be invalid even though both individually
// validate, since the physical images they'd resolve to are disjoint.
func (k KernelWindow) IsValid(v memregion.Range) bool {
	return within(k.lowRange(), v) || within(k.imageRange(), v)
}

// VToP resolves a contiguous virtual range to physical, or (zero, false) if
// any part of it is invalid (spec.md §4.A).
func (k KernelWindow) VToP(v memregion.Range) (memregion.Range, bool) {
	switch {
	case within(k.lowRange(), v):
		return memregion.Range{
			Start: v.Start - KernelBase + KernelPhysBase,
			End:   v.End - KernelBase + KernelPhysBase,
		}, true
	case within(k.imageRange(), v):
		return memregion.Range{
			Start: v.Start - KernelImageBase + KernelPhysBase,
			End:   v.End - KernelImageBase + KernelPhysBase,
		}, true
	default:
		return memregion.Range{}, false
	}
}

// PToV resolves a physical range back to virtual. Per spec.md §4.A and the
// explicit open-question design note in §9, only the image sub-window's
// back-projection is reversible: the low 4 GiB window is one-way only, so
// a physical address reachable through both virtual aliases (the low
// gigabyte, which both windows cover since they share KernelPhysBase)
// disambiguates to the image alias. Implementers preferring the low-window
// reverse must document the deviation; this core takes the specified
// behavior.
func (k KernelWindow) PToV(p memregion.Range) (memregion.Range, bool) {
	imagePhys := memregion.Range{Start: KernelPhysBase, End: KernelPhysBase + gib}
	if within(imagePhys, p) {
		return memregion.Range{
			Start: p.Start - KernelPhysBase + KernelImageBase,
			End:   p.End - KernelPhysBase + KernelImageBase,
		}, true
	}
	return memregion.Range{}, false
}
