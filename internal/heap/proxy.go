package heap

import "vireo/internal/decl"

// allocFn/freeFn are the proxy's two function pointers (spec.md §4.I).
type allocFn func(size, align uintptr) uintptr
type freeFn func(ptr, size, align uintptr)

// Proxy is the process-wide indirection that traps until the buddy
// allocator is wired in (boot order step 5, spec.md §5). Single-threaded
// rewiring is safe because exactly one flow of control exists at this
// phase (spec.md §5 concurrency model).
type Proxy struct {
	alloc allocFn
	free  freeFn
	buddy *Buddy
}

// global is the one process-wide proxy instance, matching the "process-wide
// state" pattern spec.md §9 calls out explicitly for this phase.
var global = &Proxy{alloc: panicAlloc, free: panicFree}

// Global returns the process-wide allocator proxy.
func Global() *Proxy { return global }

func panicAlloc(uintptr, uintptr) uintptr {
	panic("heap: allocation attempted before the buddy allocator is attached")
}

func panicFree(uintptr, uintptr, uintptr) {
	panic("heap: free attempted before the buddy allocator is attached")
}

// Attach rewires the proxy to the given buddy allocator (spec.md §4.I,
// boot order step 5). Must run exactly once.
func (p *Proxy) Attach(b *Buddy) {
	p.buddy = b
	p.alloc = b.allocRounded
	p.free = unimplementedFree
}

// unimplementedFree matches spec.md §4.I: "both rewritten... to route to
// buddy.alloc and a currently-unimplemented free" — freeing through the
// proxy is not wired up; memory goes back to the buddy only through
// Buddy.Free with a known order (or Buddy.Add for donated ranges, which is
// how the address-space activator hands memory over).
func unimplementedFree(uintptr, uintptr, uintptr) {
	panic("heap: proxy free is not implemented; use Buddy.Free with a known order")
}

// orderForSize rounds max(align, size) up to the next power of two and
// returns its order, clamped to [MinOrder, MaxOrder] (spec.md §4.I).
func orderForSize(size, align uintptr) (uint, bool) {
	need := size
	if align > need {
		need = align
	}
	if need == 0 {
		need = 1
	}
	order := uint(MinOrder)
	for orderSize(order) < need {
		order++
		if order > MaxOrder {
			return 0, false
		}
	}
	return order, true
}

func (b *Buddy) allocRounded(size, align uintptr) uintptr {
	order, ok := orderForSize(size, align)
	if !ok {
		panic("heap: allocation size has no representable power-of-two order")
	}
	p := b.Alloc(order)
	if p == 0 {
		panic("heap: buddy allocator out of memory")
	}
	return p
}

// Alloc services a size/align request through whichever backend is
// currently wired (panic stub or buddy).
func (p *Proxy) Alloc(size, align uintptr) uintptr { return p.alloc(size, align) }

// Free services a free request through whichever backend is currently
// wired.
func (p *Proxy) Free(ptr, size, align uintptr) { p.free(ptr, size, align) }

func init() {
	decl.RegisterCmdLine("heap_debug_free", func(argument string) {
		debugFreeRequested = optionIsTrueLocal(argument)
	})
}

// debugFreeRequested records the --heap_debug_free=<bool> flag (spec.md
// §4.C). Handlers must not allocate, so this is a plain package-level bool,
// applied to the real Buddy once it exists via ApplyDebugFreeFlag.
var debugFreeRequested bool

// ApplyDebugFreeFlag wires the cmdline flag recorded during early boot into
// the buddy allocator once it exists (boot order: cmdline parsed at step 2,
// buddy attached at step 5, spec.md §5).
func ApplyDebugFreeFlag(b *Buddy) {
	b.SetDebugFree(debugFreeRequested)
}

// optionIsTrueLocal mirrors cmdline.OptionIsTrue without importing the
// cmdline package, avoiding an import cycle between heap (which cmdline's
// options may eventually affect) and cmdline itself; both packages depend
// only on decl, never on each other.
func optionIsTrueLocal(value string) bool {
	switch value {
	case "1", "on", "ON", "true", "TRUE", "enabled", "ENABLED":
		return true
	default:
		return false
	}
}
