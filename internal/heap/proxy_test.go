package heap

import (
	"testing"
	"unsafe"
)

func TestOrderForSize(t *testing.T) {
	tests := []struct {
		size, align uintptr
		wantOrder   uint
		wantOK      bool
	}{
		{1, 1, MinOrder, true},
		{orderSize(MinOrder), 1, MinOrder, true},
		{orderSize(MinOrder) + 1, 1, MinOrder + 1, true},
		{1, orderSize(MinOrder + 2), MinOrder + 2, true},
		{orderSize(MaxOrder) + 1, 1, 0, false},
	}
	for _, tt := range tests {
		order, ok := orderForSize(tt.size, tt.align)
		if ok != tt.wantOK {
			t.Errorf("orderForSize(%d,%d) ok = %v, want %v", tt.size, tt.align, ok, tt.wantOK)
			continue
		}
		if ok && order != tt.wantOrder {
			t.Errorf("orderForSize(%d,%d) = %d, want %d", tt.size, tt.align, order, tt.wantOrder)
		}
	}
}

func TestProxyPanicsBeforeAttach(t *testing.T) {
	p := &Proxy{alloc: panicAlloc, free: panicFree}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic allocating before Attach")
		}
	}()
	p.Alloc(8, 8)
}

func TestProxyAttachRoutesToBuddy(t *testing.T) {
	b := NewBuddy()
	buf := make([]byte, 1<<16)
	base := (uintptr(unsafe.Pointer(&buf[0])) + orderSize(MinOrder) - 1) &^ (orderSize(MinOrder) - 1)
	b.Add(base, 1<<15)

	p := &Proxy{alloc: panicAlloc, free: panicFree}
	p.Attach(b)

	got := p.Alloc(8, 8)
	if got == 0 {
		t.Fatal("Alloc through an attached proxy returned 0")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic freeing through the still-unimplemented proxy free path")
		}
	}()
	p.Free(got, 8, 8)
}

func TestApplyDebugFreeFlagReflectsCmdlineFlag(t *testing.T) {
	debugFreeRequested = true
	b := NewBuddy()
	ApplyDebugFreeFlag(b)
	if !b.debugFree {
		t.Fatal("ApplyDebugFreeFlag did not propagate a true flag onto the buddy")
	}
	debugFreeRequested = false
}
