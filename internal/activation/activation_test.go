package activation

import (
	"testing"
	"unsafe"

	"vireo/internal/addrspace"
	"vireo/internal/cpu"
	"vireo/internal/heap"
	"vireo/internal/memregion"
	"vireo/internal/pagetable"
)

// identityTranslation is good enough to exercise Build's plumbing: every
// table frame it hands out resolves back to itself, so the walk stays
// internally consistent even though the addresses involved aren't real
// physical memory.
type identityTranslation struct{}

func (identityTranslation) IsValid(memregion.Range) bool { return true }
func (identityTranslation) VToP(v memregion.Range) (memregion.Range, bool) { return v, true }
func (identityTranslation) PToV(p memregion.Range) (memregion.Range, bool) { return p, true }

func fakeFrames(t *testing.T) pagetable.FrameAllocator {
	t.Helper()
	const frames = 64
	buf := make([]byte, (frames+1)*4096)
	base := (uintptr(unsafe.Pointer(&buf[0])) + 4095) &^ 4095
	next := 0
	return func() (uintptr, error) {
		if next >= frames {
			t.Fatal("fakeFrames exhausted")
		}
		addr := base + uintptr(next*4096)
		next++
		return addr, nil
	}
}

func buildTestSpace(t *testing.T) *AddressSpace {
	t.Helper()
	as, err := Build(identityTranslation{}, fakeFrames(t), cpu.GigabytePages{}, cpu.GlobalPages{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return as
}

func TestBuildProducesValidLowAndImageWindows(t *testing.T) {
	as := buildTestSpace(t)
	if !as.IsValid(memregion.Range{Start: addrspace.KernelBase, End: addrspace.KernelBase + 0x1000}) {
		t.Error("low window not valid after Build")
	}
	if !as.IsValid(memregion.Range{Start: addrspace.KernelImageBase, End: addrspace.KernelImageBase + 0x1000}) {
		t.Error("image window not valid after Build")
	}
}

func TestAddressSpaceVToPLowWindow(t *testing.T) {
	as := buildTestSpace(t)
	v := memregion.Range{Start: addrspace.KernelBase + 0x5000, End: addrspace.KernelBase + 0x6000}
	p, ok := as.VToP(v)
	if !ok || p.Start != 0x5000 {
		t.Fatalf("VToP = (%+v, %v), want start 0x5000", p, ok)
	}
}

func TestAddressSpacePToVLowWindowIsReversible(t *testing.T) {
	as := buildTestSpace(t)
	p := memregion.Range{Start: 0x7000, End: 0x8000}
	v, ok := as.PToV(p)
	if !ok {
		t.Fatal("PToV failed for the low window, which the final address space must reverse")
	}
	if v.Start != addrspace.KernelBase+0x7000 {
		t.Fatalf("PToV = %+v, want start %#x", v, addrspace.KernelBase+0x7000)
	}
}

func TestMapDynamicRecordsMappingAndAdvancesCursor(t *testing.T) {
	as := buildTestSpace(t)
	const paddr = 0x300000000 // arbitrary high physical frame

	vaddr, err := as.MapDynamic(paddr)
	if err != nil {
		t.Fatalf("MapDynamic: %v", err)
	}
	if vaddr != DynamicBase {
		t.Fatalf("first MapDynamic vaddr = %#x, want %#x", vaddr, DynamicBase)
	}

	p, ok := as.VToP(memregion.Range{Start: vaddr, End: vaddr + 0x1000})
	if !ok || p.Start != paddr {
		t.Fatalf("VToP of the new dynamic mapping = (%+v, %v), want start %#x", p, ok, paddr)
	}
	v, ok := as.PToV(memregion.Range{Start: paddr, End: paddr + 0x1000})
	if !ok || v.Start != vaddr {
		t.Fatalf("PToV of the new dynamic mapping = (%+v, %v), want start %#x", v, ok, vaddr)
	}

	vaddr2, err := as.MapDynamic(paddr + pagetable.Size2MiB.Bytes())
	if err != nil {
		t.Fatalf("second MapDynamic: %v", err)
	}
	if vaddr2 != vaddr+pagetable.Size2MiB.Bytes() {
		t.Fatalf("second MapDynamic vaddr = %#x, want %#x", vaddr2, vaddr+pagetable.Size2MiB.Bytes())
	}
}

func TestMapDynamicExhaustion(t *testing.T) {
	as := buildTestSpace(t)
	as.nextFree = DynamicBase + (DynamicSize - pagetable.Size2MiB.Bytes())

	if _, err := as.MapDynamic(0x1000); err != nil {
		t.Fatalf("final slot should still succeed: %v", err)
	}
	if _, err := as.MapDynamic(0x2000); err == nil {
		t.Fatal("expected an error once the dynamic range is exhausted")
	}
}

func TestReserveAdvancesCursorAligned(t *testing.T) {
	as := buildTestSpace(t)
	as.nextFree = DynamicBase + 1 // deliberately misaligned

	base, err := as.Reserve(0x1000, 0x1000)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if base%0x1000 != 0 {
		t.Fatalf("Reserve returned unaligned base %#x", base)
	}
	if base < DynamicBase {
		t.Fatalf("Reserve base %#x precedes DynamicBase %#x", base, DynamicBase)
	}
}

func TestReserveExhaustion(t *testing.T) {
	as := buildTestSpace(t)
	if _, err := as.Reserve(DynamicSize+1, 0x1000); err == nil {
		t.Fatal("expected an error reserving more than the whole dynamic range")
	}
}

func TestActivateDrainsLowWindowMemoryWithoutSpendingDynamicRange(t *testing.T) {
	as := buildTestSpace(t)
	ledger := &memregion.Ledger{}
	// Entirely inside the low 4 GiB window's physical backing (KernelPhysBase
	// == 0): must reach the buddy through the low window's linear alias, not
	// by spending MapDynamic's 1 GiB budget, per spec.md §8 Scenario S1.
	const phys = 0x10000000
	if !ledger.AddHigh(memregion.Range{Start: phys, End: phys + 4*pagetable.Size2MiB.Bytes()}) {
		t.Fatal("AddHigh failed")
	}

	buddy := heap.NewBuddy()
	nextFreeBefore := as.nextFree
	Activate(as, ledger, buddy, func(uint64) {})

	if as.nextFree != nextFreeBefore {
		t.Fatalf("nextFree moved from %#x to %#x: low-window-reachable memory should not consume the dynamic range", nextFreeBefore, as.nextFree)
	}

	got := buddy.Alloc(21) // 2^21 == Size2MiB
	if got == 0 {
		t.Fatal("buddy did not receive the drained low-window memory")
	}
	wantVirt := addrspace.KernelBase + phys
	if uint64(got) < wantVirt || uint64(got) >= wantVirt+4*pagetable.Size2MiB.Bytes() {
		t.Fatalf("buddy allocation = %#x, want it inside the low window's alias starting at %#x", got, wantVirt)
	}
}

func TestFillBacksEveryPage(t *testing.T) {
	as := buildTestSpace(t)
	base, err := as.Reserve(3*4096, 4096)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := as.Fill(base, 3*4096, fakeFrames(t)); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	// Fill maps through the builder directly rather than recording dynamic
	// entries, so IsValid on the image/low windows is unaffected; what
	// matters here is simply that Fill did not error across all 3 pages.
}
