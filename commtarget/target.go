// Package commtarget implements the per-destination producer-side queues:
// a word-stream append (Put) that reserves space with an atomic
// fetch-and-add under a short per-target lock and copies outside it, and a
// mutex-guarded pointer append (PutPtr), plus the buffer/pointer-data types
// they operate on.
//
// Put's atomic fetch-and-add-then-swap discipline is adapted from the
// teacher's ring32 SPSC ring: there, a single producer advances a tail
// counter with Load/Store acquire-release pairs and retries on a full ring.
// Here, many producers race on one growable buffer, so the overflow-detecting
// thread performs the swap instead of a dedicated consumer, but the
// underlying acquire/release discipline — reserve first, copy, then publish
// by advancing a second counter — is the same shape.
package commtarget

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/latticeflow/ssspcomm/provider"
)

// PointerData is a deferred edge-range descriptor: ptr indexes the shared
// edge array, header carries the source vertex id (low 63 bits) and the
// heavy-phase flag (bit 63), dist is the source's current distance, and
// length is the number of edges in the range [ptr, ptr+length).
type PointerData struct {
	Ptr    int64
	Header int64
	Dist   float32
	Length int32
}

// IsHeavy reports whether this block's header carries the heavy-phase flag.
func (p PointerData) IsHeavy() bool {
	return uint64(p.Header)&(uint64(1)<<63) != 0
}

// Buffer is a word-stream buffer on loan from a provider.BufferProvider:
// Words is the backing slice (sized provider.BufferLength()), Length is how
// many words have been committed so far.
type Buffer struct {
	Words  []uint32
	Length int32
}

// Target is one destination rank's producer-side state: the queue of
// completed word-stream buffers awaiting exchange, the still-to-be-expanded
// pointer queue, and the buffer currently accepting Put appends.
type Target struct {
	provider provider.BufferProvider

	mu        sync.Mutex // guards sendData and ptrQueue
	sendData  []Buffer
	ptrQueue  []PointerData

	current      *Buffer
	reservedSize atomic.Int64
	filledSize   atomic.Int64
}

// NewTarget creates a Target that acquires its word-stream buffers from p.
func NewTarget(p provider.BufferProvider) *Target {
	return &Target{provider: p}
}

// ensureBuffer acquires a fresh buffer from the provider if one is not
// already current. Callers must hold t.mu.
func (t *Target) ensureBuffer() {
	if t.current == nil {
		words := t.provider.GetBuffer()
		t.current = &Buffer{Words: words}
		t.filledSize.Store(0)
		t.reservedSize.Store(0)
	}
}

// flushLocked records how many words the current buffer holds, pushes it to
// sendData if non-empty, and clears it. Callers must hold t.mu.
func (t *Target) flushLocked() {
	if t.current != nil {
		t.current.Length = int32(t.filledSize.Load())
		if t.current.Length > 0 {
			t.sendData = append(t.sendData, *t.current)
		}
	}
	t.current = nil
}

// Flush pushes any in-progress buffer into the send queue. Called by the
// driver at the start of round 0.
func (t *Target) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
}

// Put appends length words starting at src[0:length] to the target's
// current word-stream buffer, atomically with respect to concurrent Put
// callers. length must be > 0.
func (t *Target) Put(src []uint32, length int32) {
	if length <= 0 {
		panic("commtarget: Put requires length > 0")
	}

	for {
		t.mu.Lock()
		t.ensureBuffer()
		bufSize := int32(len(t.current.Words))
		offset := int32(t.reservedSize.Add(int64(length)) - int64(length))
		buf := t.current
		t.mu.Unlock()

		if offset+length <= bufSize {
			copy(buf.Words[offset:offset+length], src[:length])
			t.filledSize.Add(int64(length))
			return
		}

		// Overflow: the thread whose offset crossed the limit performs the
		// swap. Other threads spin until the swap completes and retry.
		if offset < bufSize {
			for t.filledSize.Load() != int64(offset) {
				runtime.Gosched()
			}
			t.mu.Lock()
			t.current.Length = offset
			t.flushLocked()
			t.ensureBuffer()
			t.filledSize.Store(0)
			t.reservedSize.Store(int64(length))
			newBuf := t.current
			t.mu.Unlock()

			copy(newBuf.Words[0:length], src[:length])
			t.filledSize.Add(int64(length))
			return
		}

		for t.reservedSize.Load() > int64(bufSize) {
			runtime.Gosched()
		}
	}
}

// PutPtr enqueues a deferred pointer descriptor under the target's mutex,
// preserving insertion order.
func (t *Target) PutPtr(ptr int64, length int32, header int64, dist float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ptrQueue = append(t.ptrQueue, PointerData{Ptr: ptr, Header: header, Dist: dist, Length: length})
}

// DrainBuffers returns and clears the queue of completed word-stream
// buffers, flushing any in-progress buffer first.
func (t *Target) DrainBuffers() []Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
	out := t.sendData
	t.sendData = nil
	return out
}

// DrainPointers returns and clears the pointer queue.
func (t *Target) DrainPointers() []PointerData {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.ptrQueue
	t.ptrQueue = nil
	return out
}

// PeekPointers returns a snapshot of the pointer queue without draining it
// — used by size estimation, which runs before the collection phase decides
// how much of the queue a round can actually carry.
func (t *Target) PeekPointers() []PointerData {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PointerData, len(t.ptrQueue))
	copy(out, t.ptrQueue)
	return out
}

// PeekBuffers returns a snapshot of the completed buffer queue without
// draining it, flushing any in-progress buffer first so its length is
// included — used by size estimation, which runs before the round decides
// how much of the queue to actually send.
func (t *Target) PeekBuffers() []Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
	out := make([]Buffer, len(t.sendData))
	copy(out, t.sendData)
	return out
}

// TakePointers removes and returns the first n entries of the pointer
// queue, leaving the rest for a later round.
func (t *Target) TakePointers(n int) []PointerData {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n >= len(t.ptrQueue) {
		out := t.ptrQueue
		t.ptrQueue = nil
		return out
	}
	out := t.ptrQueue[:n]
	t.ptrQueue = t.ptrQueue[n:]
	return out
}

// PointerQueueLen reports the current pointer queue length.
func (t *Target) PointerQueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ptrQueue)
}

// BufferQueueLen reports the number of completed buffers awaiting send,
// not counting the in-progress current buffer.
func (t *Target) BufferQueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sendData)
}
