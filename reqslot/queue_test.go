package reqslot

import "testing"

func TestBorrowReturnCycles(t *testing.T) {
	p := New[int](4)
	h1, ok := p.Borrow(11)
	if !ok || h1 == 0 {
		t.Fatalf("Borrow failed: h=%d ok=%v", h1, ok)
	}
	h2, ok := p.Borrow(22)
	if !ok || h2 == 0 || h2 == h1 {
		t.Fatalf("Borrow returned bad handle: h1=%d h2=%d", h1, h2)
	}
	if got := p.Get(h1); got != 11 {
		t.Fatalf("Get(h1) = %d, want 11", got)
	}
	if p.Active() != 2 {
		t.Fatalf("Active() = %d, want 2", p.Active())
	}
	p.Return(h1)
	if p.Active() != 1 {
		t.Fatalf("Active() after Return = %d, want 1", p.Active())
	}
	h3, ok := p.Borrow(33)
	if !ok || h3 != h1 {
		t.Fatalf("Borrow after Return = %d, want reused handle %d", h3, h1)
	}
}

func TestPoolExhaustion(t *testing.T) {
	p := New[int](2)
	if _, ok := p.Borrow(1); !ok {
		t.Fatal("expected Borrow to succeed")
	}
	if _, ok := p.Borrow(2); !ok {
		t.Fatal("expected Borrow to succeed")
	}
	if _, ok := p.Borrow(3); ok {
		t.Fatal("expected Borrow to fail once pool exhausted")
	}
}

func TestEmptyAfterAllReturned(t *testing.T) {
	p := New[int](8)
	handles := make([]Handle, 0, 8)
	for i := 0; i < 8; i++ {
		h, ok := p.Borrow(i)
		if !ok {
			t.Fatalf("Borrow failed at i=%d", i)
		}
		handles = append(handles, h)
	}
	if p.Active() != 8 {
		t.Fatalf("Active() = %d, want 8", p.Active())
	}
	for _, h := range handles {
		p.Return(h)
	}
	if !p.Empty() {
		t.Fatalf("Empty() = false after all returned")
	}
}

func TestFullCapacity64(t *testing.T) {
	p := New[int](64)
	for i := 0; i < 64; i++ {
		if _, ok := p.Borrow(i); !ok {
			t.Fatalf("Borrow failed at i=%d", i)
		}
	}
	if _, ok := p.Borrow(999); ok {
		t.Fatal("expected exhaustion at capacity 64")
	}
}
