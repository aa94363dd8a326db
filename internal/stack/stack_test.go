package stack

import (
	"errors"
	"testing"
)

type fakeMapper struct {
	filledAddr, filledSize uint64
	err                    error
}

func (m *fakeMapper) Fill(addr, size uint64) error {
	m.filledAddr, m.filledSize = addr, size
	return m.err
}

func TestNewReservesAndFillsUpperHalf(t *testing.T) {
	const reservedBase = 0x40000000
	reserve := func(size, al uint64) (uint64, error) {
		if size != totalSize {
			t.Fatalf("reserve size = %#x, want %#x", size, totalSize)
		}
		if al != align {
			t.Fatalf("reserve align = %#x, want %#x", al, align)
		}
		return reservedBase, nil
	}
	m := &fakeMapper{}

	k, err := New(m, reserve)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if k.Base != reservedBase {
		t.Fatalf("Base = %#x, want %#x", k.Base, reservedBase)
	}
	if m.filledAddr != reservedBase+guardSize {
		t.Fatalf("Fill called with addr %#x, want %#x", m.filledAddr, reservedBase+guardSize)
	}
	if m.filledSize != usableSize {
		t.Fatalf("Fill called with size %#x, want %#x", m.filledSize, usableSize)
	}
}

func TestNewPropagatesReserveError(t *testing.T) {
	wantErr := errors.New("dynamic range exhausted")
	reserve := func(uint64, uint64) (uint64, error) { return 0, wantErr }
	if _, err := New(&fakeMapper{}, reserve); !errors.Is(err, wantErr) {
		t.Fatalf("New error = %v, want %v", err, wantErr)
	}
}

func TestNewPropagatesFillError(t *testing.T) {
	wantErr := errors.New("no frames left")
	reserve := func(uint64, uint64) (uint64, error) { return 0x1000, nil }
	m := &fakeMapper{err: wantErr}
	if _, err := New(m, reserve); !errors.Is(err, wantErr) {
		t.Fatalf("New error = %v, want %v", err, wantErr)
	}
}

func TestTopAndGuardRange(t *testing.T) {
	k := KernelStack{Base: 0x1000, GuardSize: guardSize, TopOffset: totalSize}
	if got := k.Top(); got != 0x1000+totalSize {
		t.Fatalf("Top() = %#x, want %#x", got, 0x1000+totalSize)
	}
	start, end := k.GuardRange()
	if start != 0x1000 || end != 0x1000+guardSize {
		t.Fatalf("GuardRange() = (%#x, %#x)", start, end)
	}
}
