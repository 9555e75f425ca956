// Package provider defines the buffer-provider capability the driver
// consumes, plus Pooled, a reference implementation.
//
// The real buffer pool is a host concern (spec Non-goals): Pooled exists so
// the driver, tests and cmd/ssspcoredemo have something to run against
// in-process. Its single backing arena of fixed-size send-buffer slots is
// adapted from the teacher's compactqueue128/PooledQuantumQueue arena
// style — an externally-managed pool addressed by index rather than
// pointer — simplified to a bump allocator since every buffer is fully
// recycled each round via Finish, so no free list is ever needed.
package provider

import "sync"

// DataType tags the wire element type carried by a buffer.
type DataType int

const (
	// DataTypeUint32 marks a buffer of 32-bit words (the only wire type the
	// communication core currently produces).
	DataTypeUint32 DataType = iota
)

// BufferProvider is the capability the driver needs from the host: buffer
// acquisition, a receive buffer, a staging ("second") buffer, and the
// per-round Received/Finish upcalls.
type BufferProvider interface {
	// GetBuffer returns a send buffer of BufferLength() words. Calls are
	// serialized by the provider itself (the original's thread_sync_
	// mutex), since it is the only lock shared across all destinations.
	GetBuffer() []uint32

	// ClearBuffers returns the zeroed receive buffer for this round.
	ClearBuffers() []uint32

	// SecondBuffer returns the staging buffer used to assemble the
	// per-round send slab before AlltoallV.
	SecondBuffer() []uint32

	// MaxSize returns the provider's capacity in bytes.
	MaxSize() int64

	// BufferLength returns the number of words in one GetBuffer() slot.
	BufferLength() int

	// ElementSize returns the wire element size in bytes.
	ElementSize() int

	// DataType returns the wire type tag.
	DataType() DataType

	// Received delivers one delivered sub-stream for sourceRank: buf[offset:offset+length]
	// is the sub-stream's words. isPointerStream distinguishes the
	// pointer-origin payload from the buffer-origin payload within a
	// destination's slab.
	Received(buf []uint32, offset, length int, sourceRank int, isPointerStream bool)

	// Finish signals round completion.
	Finish()
}

// Pooled is a reference BufferProvider whose send buffers (GetBuffer) are
// slots of a single arena; the second/staging buffer (SecondBuffer) and the
// receive buffer are separate slices of their own. It is sized for a fixed
// number of concurrently outstanding send buffers, matching the bounded
// number of Target instances a Manager ever holds open at once.
type Pooled struct {
	mu sync.Mutex // the process-wide get_buffer serialization lock

	bufferLen int
	elemSize  int
	maxSize   int64

	arena    []uint32
	slotUsed []bool

	second []uint32
	recv   []uint32

	received func(buf []uint32, offset, length int, sourceRank int, isPointerStream bool)
}

// NewPooled creates a Pooled provider with room for slots concurrently
// outstanding send buffers of bufferLen words each, a second buffer and a
// receive buffer each sized recvCap words.
func NewPooled(slots, bufferLen, recvCap int) *Pooled {
	return &Pooled{
		bufferLen: bufferLen,
		elemSize:  4,
		maxSize:   int64(recvCap) * 4,
		arena:     make([]uint32, slots*bufferLen),
		slotUsed:  make([]bool, slots),
		second:    make([]uint32, recvCap),
		recv:      make([]uint32, recvCap),
	}
}

// SetReceived installs the upcall invoked by Received. Tests and
// cmd/ssspcoredemo use this to observe delivered sub-streams without
// defining a whole new BufferProvider.
func (p *Pooled) SetReceived(fn func(buf []uint32, offset, length int, sourceRank int, isPointerStream bool)) {
	p.received = fn
}

func (p *Pooled) GetBuffer() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, used := range p.slotUsed {
		if !used {
			p.slotUsed[i] = true
			start := i * p.bufferLen
			buf := p.arena[start : start+p.bufferLen]
			for j := range buf {
				buf[j] = 0
			}
			return buf
		}
	}
	// No free slot: grow the arena by one slot rather than fail, since
	// Pooled is a reference/test implementation, not the production pool
	// spec.md explicitly places out of scope.
	p.arena = append(p.arena, make([]uint32, p.bufferLen)...)
	p.slotUsed = append(p.slotUsed, true)
	start := (len(p.slotUsed) - 1) * p.bufferLen
	return p.arena[start : start+p.bufferLen]
}

func (p *Pooled) ClearBuffers() []uint32 {
	for i := range p.recv {
		p.recv[i] = 0
	}
	return p.recv
}

func (p *Pooled) SecondBuffer() []uint32 {
	return p.second
}

func (p *Pooled) MaxSize() int64 {
	return p.maxSize
}

func (p *Pooled) BufferLength() int {
	return p.bufferLen
}

func (p *Pooled) ElementSize() int {
	return p.elemSize
}

func (p *Pooled) DataType() DataType {
	return DataTypeUint32
}

func (p *Pooled) Received(buf []uint32, offset, length int, sourceRank int, isPointerStream bool) {
	if p.received != nil {
		p.received(buf, offset, length, sourceRank, isPointerStream)
	}
}

func (p *Pooled) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slotUsed {
		p.slotUsed[i] = false
	}
}
