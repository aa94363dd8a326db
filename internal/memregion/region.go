// Package memregion implements the region ledger (spec.md §4.G): a small,
// bounded, append-only record of memory already spoken for (Used, Boot) and
// memory that is free but not yet reachable (High). Grounded on the
// source's boot::state + heap::steal shape (original_source/src/state.rs,
// src/heap/steal.rs): a fixed-capacity array of ranges, walked by category
// at heap-enable time.
package memregion

import "fmt"

// Kind tags a RegionRecord.
type Kind int

const (
	Used Kind = iota
	Boot
	High
)

func (k Kind) String() string {
	switch k {
	case Used:
		return "used"
	case Boot:
		return "boot"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Range is a half-open [Start, End) byte range, virtual or physical
// depending on context (spec.md §3).
type Range struct {
	Start, End uint64
}

// Len returns End-Start, or 0 if the range is malformed.
func (r Range) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r Range) Empty() bool { return r.End <= r.Start }

func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

// RegionRecord is one ledger entry.
type RegionRecord struct {
	Kind  Kind
	Range Range
}

// Capacity is the ledger's fixed slot count (spec.md §3: "≥ 8 slots"). Eight
// covers the documented usage: image, phys-boot, command-line, plus up to
// five bootloader-declared regions before overflow.
const Capacity = 8

// Ledger is the bounded, append-only region record. The zero value is an
// empty ledger ready to use.
type Ledger struct {
	records [Capacity]RegionRecord
	n       int
}

// Fault is returned by StealAligned when the ledger cannot satisfy a
// pre-heap allocation, and is the panic value AddUsed raises when a Used
// range overlaps an existing Used range. The add operations report overflow
// via a bool because the spec treats ledger overflow as a panic the
// *caller* raises (spec.md §7), not one this package raises itself.
type Fault struct {
	Op      string
	Message string
}

func (f *Fault) Error() string { return fmt.Sprintf("memregion: %s: %s", f.Op, f.Message) }

func (l *Ledger) add(kind Kind, r Range) bool {
	if l.n == Capacity {
		return false
	}
	if kind == Used {
		for i := 0; i < l.n; i++ {
			if l.records[i].Kind == Used && l.records[i].Range.Overlaps(r) {
				panic(&Fault{Op: "add_used", Message: "overlaps existing Used region"})
			}
		}
	}
	l.records[l.n] = RegionRecord{Kind: kind, Range: r}
	l.n++
	return true
}

// AddUsed records owned memory already committed (image, boot data) as
// already-allocated. Returns false if the ledger is full; per spec.md §4.G
// and §7 the caller is responsible for panicking on a false return.
func (l *Ledger) AddUsed(r Range) bool { return l.add(Used, r) }

// AddBoot records memory in use only during boot, reclaimable later.
func (l *Ledger) AddBoot(r Range) bool { return l.add(Boot, r) }

// AddHigh records usable physical memory not reachable via the currently
// active translation.
func (l *Ledger) AddHigh(r Range) bool { return l.add(High, r) }

// Each calls fn for every record of the given kind, in insertion order.
func (l *Ledger) Each(kind Kind, fn func(Range)) {
	for i := 0; i < l.n; i++ {
		if l.records[i].Kind == kind {
			fn(l.records[i].Range)
		}
	}
}

// Len returns the number of records of a given kind.
func (l *Ledger) Len(kind Kind) int {
	n := 0
	for i := 0; i < l.n; i++ {
		if l.records[i].Kind == kind {
			n++
		}
	}
	return n
}

// Count returns the total number of records across all kinds.
func (l *Ledger) Count() int { return l.n }

// StealAligned carves an aligned block of the requested size directly out
// of a donated High/Boot range, for the handful of pre-heap allocations the
// page-table builder needs before the buddy allocator is attached (spec's
// "steal" allocator, original_source/src/heap/steal.rs, see SPEC_FULL.md
// supplemented feature 3). It consumes bytes from the front of the first
// record of kind that is large enough, shrinking that record in place.
func (l *Ledger) StealAligned(kind Kind, size, align uint64) (uint64, error) {
	for i := 0; i < l.n; i++ {
		if l.records[i].Kind != kind {
			continue
		}
		start := (l.records[i].Range.Start + align - 1) &^ (align - 1)
		if start+size > l.records[i].Range.End {
			continue
		}
		base := start
		l.records[i].Range.Start = start + size
		return base, nil
	}
	return 0, &Fault{Op: "steal", Message: "no region large enough"}
}
