package bootinfo

import (
	"testing"
	"unsafe"

	"vireo/internal/memregion"
)

// offsetTranslation maps a small, uint32-sized "physical" address space
// (the multiboot v1 block's own pointer fields are all uint32, per spec) onto
// a real Go-owned backing buffer at base, so tests can use small offsets for
// CmdLine/MmapAddr without truncating an actual 64-bit heap pointer into a
// 32-bit field.
type offsetTranslation struct{ base uintptr }

func (offsetTranslation) IsValid(memregion.Range) bool { return true }

func (t offsetTranslation) VToP(v memregion.Range) (memregion.Range, bool) {
	return memregion.Range{Start: uint64(v.Start) - uint64(t.base), End: uint64(v.End) - uint64(t.base)}, true
}

func (t offsetTranslation) PToV(p memregion.Range) (memregion.Range, bool) {
	return memregion.Range{Start: p.Start + uint64(t.base), End: p.End + uint64(t.base)}, true
}

func TestDetect(t *testing.T) {
	if !Detect(Signature) {
		t.Fatal("Detect(Signature) = false")
	}
	if Detect(HeaderMagic) {
		t.Fatal("Detect must not accept the header magic as a handoff signature")
	}
	if Detect(0) {
		t.Fatal("Detect(0) = true")
	}
}

func TestNewHeaderChecksum(t *testing.T) {
	h := NewHeader()
	var sum uint32 = h.Magic + h.Flags + h.Checksum
	if sum != 0 {
		t.Fatalf("magic+flags+checksum = %#x, want 0", sum)
	}
}

// buildInfoBlock lays out a synthetic multiboot-v1 info block, command
// line, and memory map inside one real Go-owned buffer, offset 0, and
// returns the offsetTranslation that resolves its small uint32 "physical"
// offsets back to real addresses in that buffer.
func buildInfoBlock(t *testing.T, cmdline string, regions []Region) offsetTranslation {
	t.Helper()
	buf := make([]byte, 4096)
	t.Cleanup(func() { _ = buf[len(buf)-1] })
	base := uintptr(unsafe.Pointer(&buf[0]))
	tr := offsetTranslation{base: base}

	const cmdlineOff = 512
	const mmapOff = 1024

	copy(buf[cmdlineOff:], cmdline)
	buf[cmdlineOff+len(cmdline)] = 0

	entries := make([]mmapEntry, len(regions))
	stride := unsafe.Sizeof(mmapEntry{})
	for i, r := range regions {
		entries[i] = mmapEntry{
			Size:     uint32(stride) - 4,
			BaseAddr: r.Base,
			Length:   r.Length,
			Type:     uint32(r.Type),
		}
	}
	for i, e := range entries {
		*(*mmapEntry)(unsafe.Pointer(base + uintptr(mmapOff) + uintptr(i)*stride)) = e
	}

	blk := (*info)(unsafe.Pointer(base))
	*blk = info{
		Flags:      flagCmdLine | flagMmap | flagMem,
		MemLower:   639,
		MemUpper:   130048,
		CmdLine:    cmdlineOff,
		MmapAddr:   mmapOff,
		MmapLength: uint32(uintptr(len(entries)) * stride),
	}
	return tr
}

func TestParserCommandLine(t *testing.T) {
	tr := buildInfoBlock(t, "console=ttyS0 trace_pagetable=1", nil)
	p, ok := New(0, tr)
	if !ok {
		t.Fatal("New failed to resolve a reachable info block")
	}
	got, ok := p.CommandLine()
	if !ok {
		t.Fatal("CommandLine() reported absent despite flagCmdLine being set")
	}
	if got != "console=ttyS0 trace_pagetable=1" {
		t.Fatalf("CommandLine() = %q", got)
	}
}

func TestParserMemoryRegions(t *testing.T) {
	want := []Region{
		{Base: 0, Length: 0x9FC00, Type: RegionAvailable},
		{Base: 0x100000, Length: 0x7EF0000, Type: RegionAvailable},
		{Base: 0xFFFC0000, Length: 0x40000, Type: RegionReserved},
	}
	tr := buildInfoBlock(t, "", want)
	p, ok := New(0, tr)
	if !ok {
		t.Fatal("New failed")
	}

	var got []Region
	if ok := p.MemoryRegions(func(r Region) { got = append(got, r) }); !ok {
		t.Fatal("MemoryRegions returned false despite flagMmap being set")
	}
	if len(got) != len(want) {
		t.Fatalf("got %d regions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("region %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if !got[0].Available() || got[2].Available() {
		t.Fatal("Available() classified a region incorrectly")
	}
}

func TestParserMemLowerUpper(t *testing.T) {
	tr := buildInfoBlock(t, "", nil)
	p, ok := New(0, tr)
	if !ok {
		t.Fatal("New failed")
	}
	lo, ok := p.MemLower()
	if !ok || lo != 639 {
		t.Fatalf("MemLower() = (%d, %v), want (639, true)", lo, ok)
	}
	hi, ok := p.MemUpper()
	if !ok || hi != 130048 {
		t.Fatalf("MemUpper() = (%d, %v), want (130048, true)", hi, ok)
	}
}

func TestNewFailsWhenBlockUnreachable(t *testing.T) {
	unreachable := unreachableTranslation{}
	if _, ok := New(0x1000, unreachable); ok {
		t.Fatal("New succeeded against a translation that can resolve nothing")
	}
}

type unreachableTranslation struct{}

func (unreachableTranslation) IsValid(memregion.Range) bool                { return false }
func (unreachableTranslation) VToP(memregion.Range) (memregion.Range, bool) { return memregion.Range{}, false }
func (unreachableTranslation) PToV(memregion.Range) (memregion.Range, bool) { return memregion.Range{}, false }
