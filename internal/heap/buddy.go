// Package heap implements the buddy physical allocator (spec.md §4.H) and
// the global allocator proxy (§4.I). Grounded on the source's
// heap/buddy.rs together with the teacher's own free-list shape in
// heap.go (a singly/doubly linked list of in-place headers written
// directly into the free block, kmalloc/kfree walking it with go:nosplit
// functions) — vireo keeps that "metadata lives in the free block itself"
// idiom but replaces the teacher's best-fit segment list with the spec's
// power-of-two size-class free lists, per §4.H and §9's as_node/as_block
// primitive.
package heap

import (
	"unsafe"
)

// MinOrder and MaxOrder bound the buddy's size classes: 2^7=128B up to
// 2^30=1GiB (spec.md §3).
const (
	MinOrder = 7
	MaxOrder = 30
)

// node is the in-place free-block header, written into the first bytes of
// a free block exactly as spec.md §9 describes: "store (base, order) in
// the first cache line of the free block". It is only ever valid while the
// block it sits in is free; allocating or coalescing it away invalidates
// the header without any explicit destructor, matching the buddy node
// lifecycle in spec.md §3.
type node struct {
	base  uintptr
	order uint8
	next  *node
}

// asNode reinterprets a free block's first bytes as a *node and records
// base in it. Callers must only do this for blocks they know are free and
// at least 2^MinOrder bytes (spec.md §9: size_of(Node) <= 2^MinOrder,
// align_of(Node) <= 2^MinOrder).
func asNode(base uintptr) *node {
	n := (*node)(unsafe.Pointer(base))
	n.base = base
	return n
}

func (n *node) asBlock() uintptr { return n.base }

// Buddy is the power-of-two free-list allocator. The zero value is an empty
// allocator ready to use (a nil list is an empty list); NewBuddy is the
// normal constructor.
type Buddy struct {
	free       [MaxOrder + 1]*node
	debugFree  bool
	wastage    uint64
	allocCount uint64
	freeCount  uint64
}

// NewBuddy constructs an empty buddy allocator.
func NewBuddy() *Buddy {
	return &Buddy{}
}

// SetDebugFree toggles the heap_debug_free=<bool> consistency check
// described in spec.md §4.C/§4.H: on every free, walk all free lists and
// assert no overlap with the freed region.
func (b *Buddy) SetDebugFree(on bool) { b.debugFree = on }

// Wastage reports bytes discarded by Add because they fell below
// 2^MinOrder alignment, for diagnostic logging (spec.md §4.H).
func (b *Buddy) Wastage() uint64 { return b.wastage }

func orderSize(order uint) uintptr { return uintptr(1) << order }

// insertSorted inserts n into list order at the position keeping the list
// sorted by ascending base address (spec.md §3: "Ordering key: ascending
// base address, to permit coalesce by sibling lookup").
func (b *Buddy) insertSorted(order uint, n *node) {
	n.order = uint8(order)
	head := b.free[order]
	if head == nil || n.base < head.base {
		n.next = head
		b.free[order] = n
		return
	}
	cur := head
	for cur.next != nil && cur.next.base < n.base {
		cur = cur.next
	}
	n.next = cur.next
	cur.next = n
}

func (b *Buddy) popFront(order uint) *node {
	n := b.free[order]
	if n == nil {
		return nil
	}
	b.free[order] = n.next
	n.next = nil
	return n
}

// remove deletes the node with the given base from list order, if present,
// and returns it.
func (b *Buddy) remove(order uint, base uintptr) *node {
	var prev *node
	cur := b.free[order]
	for cur != nil {
		if cur.base == base {
			if prev == nil {
				b.free[order] = cur.next
			} else {
				prev.next = cur.next
			}
			cur.next = nil
			return cur
		}
		prev, cur = cur, cur.next
	}
	return nil
}

// Alloc returns a block of exactly 2^order bytes, or 0 if none is
// available (spec.md §4.H allocation algorithm: pop front, else split a
// block one order up, recursing to MaxOrder).
func (b *Buddy) Alloc(order uint) uintptr {
	if order > MaxOrder {
		return 0
	}
	if n := b.popFront(order); n != nil {
		b.allocCount++
		return n.base
	}
	if order == MaxOrder {
		return 0
	}
	parent := b.Alloc(order + 1)
	if parent == 0 {
		return 0
	}
	sibling := parent + orderSize(order)
	b.insertSorted(order, asNode(sibling))
	b.allocCount++
	return parent
}

// Free returns a block of 2^order bytes starting at base to the allocator,
// coalescing with its buddy when possible (spec.md §4.H free algorithm).
// base must be non-zero and 2^order aligned: the spec explicitly rejects
// the degenerate "base % len == 0 vs len % len == 0" confusion noted in
// §9's open question by asserting alignment against the order's size, not
// against the block's own length.
func (b *Buddy) Free(base uintptr, order uint) {
	if base == 0 {
		panic("heap: Free: base must be non-zero")
	}
	if base%orderSize(order) != 0 {
		panic("heap: Free: base misaligned for order")
	}
	if b.debugFree {
		b.assertNoOverlap(base, orderSize(order))
	}
	b.freeCount++
	for order < MaxOrder {
		buddyBase := base ^ orderSize(order)
		sib := b.remove(order, buddyBase)
		if sib == nil {
			break
		}
		if buddyBase < base {
			base = buddyBase
		}
		order++
	}
	b.insertSorted(order, asNode(base))
}

// assertNoOverlap walks every free list and panics if [base, base+size)
// overlaps any existing free node — the heap_debug_free=on consistency
// check from spec.md §4.H.
func (b *Buddy) assertNoOverlap(base uintptr, size uintptr) {
	end := base + size
	for order := uint(MinOrder); order <= MaxOrder; order++ {
		for n := b.free[order]; n != nil; n = n.next {
			nEnd := n.base + orderSize(order)
			if base < nEnd && n.base < end {
				panic("heap: debug free: freed region overlaps existing free block")
			}
		}
	}
}

// Add donates a raw physical/virtual range to the allocator (spec.md §4.H
// "Add"): misaligned low bytes are discarded as wastage, then the largest
// aligned power-of-two block that fits is greedily peeled off and freed,
// repeating until the remainder is below 2^MinOrder.
func (b *Buddy) Add(base, length uintptr) {
	alignedBase := (base + orderSize(MinOrder) - 1) &^ (orderSize(MinOrder) - 1)
	if alignedBase > base {
		skip := alignedBase - base
		if skip >= length {
			b.wastage += uint64(length)
			return
		}
		b.wastage += uint64(skip)
		length -= skip
		base = alignedBase
	}

	for length >= orderSize(MinOrder) {
		order := largestOrderFor(base, length)
		b.Free(base, order)
		sz := orderSize(order)
		base += sz
		length -= sz
	}
	b.wastage += uint64(length)
}

// largestOrderFor returns the largest order in [MinOrder, MaxOrder] such
// that 2^order divides base (alignment) and 2^order <= length (spec.md
// §4.H: "bounded above by MAX_ORDER and by the lowest set bit of base").
func largestOrderFor(base, length uintptr) uint {
	order := uint(MaxOrder)
	for order > MinOrder && orderSize(order) > length {
		order--
	}
	for order > MinOrder && base%orderSize(order) != 0 {
		order--
	}
	return order
}

// listLength reports the number of free nodes in a given order, for tests.
func (b *Buddy) listLength(order uint) int {
	n := 0
	for c := b.free[order]; c != nil; c = c.next {
		n++
	}
	return n
}

// listBases returns the bases of the given order's free list in list order,
// for tests verifying the sorted-by-base invariant (spec.md §3).
func (b *Buddy) listBases(order uint) []uintptr {
	var out []uintptr
	for c := b.free[order]; c != nil; c = c.next {
		out = append(out, c.base)
	}
	return out
}
