// Package bootinfo implements the bootloader parser (spec.md §4.F):
// recognise the bootloader-v1 handoff signature, decode the information
// block it points at, and expose the two things the rest of boot actually
// needs from it — the command line and the memory map — without handing
// out the raw struct. Grounded on the source's boot/multiboot/v1.rs (the
// signature and header-checksum constants) and on u-root's pkg/multiboot
// (github.com/u-root/u-root) for the wire layout of the handoff block
// itself, which the source only ever emits and never parses back.
package bootinfo

import (
	"unsafe"

	"vireo/internal/addrspace"
	"vireo/internal/memregion"
)

// Signature is the value the bootloader leaves in the first integer
// argument (conventionally EAX) to identify itself as multiboot v1
// (spec.md §4.F, §6). It differs from the v1 boot header's own magic
// (boot/multiboot/v1.rs's MAGIC, 0x1BADB002) only in the top hex digit
// (0x2 instead of 0x1) — the header identifies the
// kernel image to the loader; this is what the loader hands back.
const Signature uint32 = 0x2BADB002

// HeaderMagic is the v1 boot header magic placed in the .multiboot section
// (spec.md §6, boot/multiboot/v1.rs).
const HeaderMagic uint32 = 0x1BADB002

// Header is the fixed-layout v1 boot header placed in a linker section to
// identify the kernel image to the bootloader (spec.md §6), mirroring
// boot/multiboot/v1.rs's Header. This package defines the layout and
// NewHeader only; nothing in this repository places a Header in a
// .multiboot section.
type Header struct {
	Magic        uint32
	Flags        uint32
	Checksum     uint32
	HeaderAddr   uint32
	LoadAddr     uint32
	LoadEndAddr  uint32
	BSSEndAddr   uint32
	EntryAddr    uint32
	ModeType     uint32
	Width        uint32
	Height       uint32
	Depth        uint32
}

// NewHeader returns the v1 header as the source's Header::new() builds it:
// flags and the layout fields zeroed (no video mode request), checksum
// computed so magic+flags+checksum wraps to zero (spec.md §6).
func NewHeader() Header {
	return Header{
		Magic:    HeaderMagic,
		Checksum: 0xFFFFFFFF - HeaderMagic + 1,
	}
}

// info mirrors the multiboot v1 information block's relevant prefix
// exactly (https://www.gnu.org/software/grub/manual/multiboot/multiboot.html#Boot-information-format).
// Only the fields this port consumes are named; everything past MmapAddr
// in the real block is ignored.
type info struct {
	Flags          uint32
	MemLower       uint32
	MemUpper       uint32
	BootDevice     uint32
	CmdLine        uint32
	ModsCount      uint32
	ModsAddr       uint32
	_              [4]uint32 // syms (a.out or ELF section-header table form)
	MmapLength     uint32
	MmapAddr       uint32
}

const (
	flagMem      = 1 << 0
	flagCmdLine  = 1 << 2
	flagMmap     = 1 << 6
)

// mmapEntry mirrors one multiboot v1 memory-map record. Size is the byte
// count of the fields *following* Size itself, per spec — used only to
// step to the next record, since it is not guaranteed to equal
// sizeof(mmapEntry)-4 on every loader.
type mmapEntry struct {
	Size     uint32
	BaseAddr uint64
	Length   uint64
	Type     uint32
}

// RegionType classifies one memory-map entry (spec.md §4.F, §6).
type RegionType uint32

const (
	RegionAvailable RegionType = 1
	RegionReserved  RegionType = 2
	RegionACPI      RegionType = 3
	RegionNVS       RegionType = 4
	RegionBadRAM    RegionType = 5
)

// Region is one decoded memory-map entry.
type Region struct {
	Base   uint64
	Length uint64
	Type   RegionType
}

// Available reports whether the region is admissible as free memory
// (spec.md §4.F: "Only regions with type = Available are admissible").
func (r Region) Available() bool { return r.Type == RegionAvailable }

// Parser decodes a bootloader-v1 handoff block, resolving its internal
// physical pointers through translation (spec.md §4.F: "Physical pointers
// inside the handoff block are resolved via the currently active
// translation").
type Parser struct {
	translation addrspace.Translation
	block       *info
}

// Detect reports whether signature identifies a multiboot v1 handoff
// (spec.md §4.F: "Recognises a specific bootloader-v1 signature").
func Detect(signature uint32) bool { return signature == Signature }

// New decodes the information block at infoPhys through translation. It
// returns ok=false iff the block itself is not reachable via translation
// right now — not a panic, since the caller may choose to retry once more
// memory is mapped, though in practice the loader always places this block
// somewhere the initial kernel window already covers.
func New(infoPhys uint64, translation addrspace.Translation) (*Parser, bool) {
	v, ok := translation.PToV(memregion.Range{Start: infoPhys, End: infoPhys + uint64(unsafe.Sizeof(info{}))})
	if !ok {
		return nil, false
	}
	return &Parser{translation: translation, block: (*info)(unsafe.Pointer(uintptr(v.Start)))}, true
}

// CommandLine returns the bootloader-supplied command line, iff the block
// declares one and its backing bytes are reachable via translation
// (spec.md §4.F: "command_line() -> optional bytes").
func (p *Parser) CommandLine() (string, bool) {
	if p.block.Flags&flagCmdLine == 0 {
		return "", false
	}
	return p.readCString(uint64(p.block.CmdLine))
}

// readCString resolves a physical, NUL-terminated byte string through the
// parser's translation. Bounded at 4096 bytes since a command line has no
// declared length and a corrupt block must not walk off into unmapped
// memory forever.
func (p *Parser) readCString(phys uint64) (string, bool) {
	const maxLen = 4096
	v, ok := p.translation.PToV(memregion.Range{Start: phys, End: phys + maxLen})
	if !ok {
		return "", false
	}
	base := (*[maxLen]byte)(unsafe.Pointer(uintptr(v.Start)))
	for i := 0; i < maxLen; i++ {
		if base[i] == 0 {
			return string(base[:i]), true
		}
	}
	return "", false
}

// MemoryRegions calls fn once per memory-map entry, in the order the
// bootloader listed them, iff the block declares a memory map and it is
// reachable via translation (spec.md §4.F: "memory_regions() -> optional
// iterator<{base, length, type}>"). Returns false iff no memory map is
// present or reachable, in which case fn is never called.
func (p *Parser) MemoryRegions(fn func(Region)) bool {
	if p.block.Flags&flagMmap == 0 {
		return false
	}
	v, ok := p.translation.PToV(memregion.Range{Start: uint64(p.block.MmapAddr), End: uint64(p.block.MmapAddr) + uint64(p.block.MmapLength)})
	if !ok {
		return false
	}
	base := uintptr(v.Start)
	end := base + uintptr(p.block.MmapLength)
	for base < end {
		e := (*mmapEntry)(unsafe.Pointer(base))
		fn(Region{Base: e.BaseAddr, Length: e.Length, Type: RegionType(e.Type)})
		// Size counts the bytes following the Size field itself, so the
		// next record starts 4 bytes (the Size field's own width) later.
		base += uintptr(e.Size) + 4
	}
	return true
}

// MemLower and MemUpper report the lower/upper memory boundaries in
// kilobytes the bootloader measured, iff the block declares them
// (multiboot v1's legacy fallback for loaders that omit a full map).
func (p *Parser) MemLower() (uint32, bool) {
	if p.block.Flags&flagMem == 0 {
		return 0, false
	}
	return p.block.MemLower, true
}

func (p *Parser) MemUpper() (uint32, bool) {
	if p.block.Flags&flagMem == 0 {
		return 0, false
	}
	return p.block.MemUpper, true
}
