package provider

import "testing"

func TestGetBufferRecyclesAfterFinish(t *testing.T) {
	p := NewPooled(2, 16, 64)

	b1 := p.GetBuffer()
	b2 := p.GetBuffer()
	if len(b1) != 16 || len(b2) != 16 {
		t.Fatalf("unexpected buffer lengths: %d %d", len(b1), len(b2))
	}

	p.Finish()

	b3 := p.GetBuffer()
	if len(b3) != 16 {
		t.Fatalf("unexpected buffer length after Finish: %d", len(b3))
	}
}

func TestReceivedInvokesCallback(t *testing.T) {
	p := NewPooled(1, 8, 32)
	var gotOffset, gotLength, gotSource int
	var gotPtr bool
	p.SetReceived(func(buf []uint32, offset, length int, sourceRank int, isPointerStream bool) {
		gotOffset, gotLength, gotSource, gotPtr = offset, length, sourceRank, isPointerStream
	})

	p.Received(p.ClearBuffers(), 3, 5, 2, true)

	if gotOffset != 3 || gotLength != 5 || gotSource != 2 || !gotPtr {
		t.Fatalf("unexpected callback args: %d %d %d %v", gotOffset, gotLength, gotSource, gotPtr)
	}
}

func TestMaxSizeAndBufferLength(t *testing.T) {
	p := NewPooled(1, 16, 100)
	if p.BufferLength() != 16 {
		t.Fatalf("BufferLength() = %d, want 16", p.BufferLength())
	}
	if p.MaxSize() != 400 {
		t.Fatalf("MaxSize() = %d, want 400", p.MaxSize())
	}
	if p.ElementSize() != 4 {
		t.Fatalf("ElementSize() = %d, want 4", p.ElementSize())
	}
}
