// Package scatter implements the per-round scatter context: per-destination
// counts and prefix-sum offsets, the rank-shifted destination iteration
// order mandated by spec.md §9, and the AlltoallV wrapper the driver calls
// once per round.
package scatter

import (
	"fmt"

	"github.com/latticeflow/ssspcomm/mpinet"
)

// Destinations returns the rank-shifted iteration order (c+rank)%size for
// c in [0, size) — every rank walks destinations starting from itself so
// no single destination is hammered first by every sender simultaneously.
func Destinations(rank, size int) []int {
	out := make([]int, size)
	for c := 0; c < size; c++ {
		out[c] = (c + rank) % size
	}
	return out
}

// Context holds one round's per-destination send counts and the offsets
// derived from them via Sum, plus the matching receive-side counts and
// offsets learned from ExchangeCounts.
type Context struct {
	size int

	sendCounts  []int
	sendOffsets []int
	sendTotal   int

	recvCounts  []int
	recvOffsets []int
	recvTotal   int
}

// NewContext creates a Context for a communicator of the given size.
func NewContext(size int) *Context {
	return &Context{
		size:       size,
		sendCounts: make([]int, size),
	}
}

// SetCount records destination dest's send count for this round.
func (c *Context) SetCount(dest, n int) {
	c.sendCounts[dest] = n
}

// Count returns destination dest's recorded send count.
func (c *Context) Count(dest int) int {
	return c.sendCounts[dest]
}

// Sum computes prefix-sum offsets from the recorded send counts and
// returns the total. Must be called after all SetCount calls for the
// round and before AlltoallV.
func (c *Context) Sum() int {
	c.sendOffsets = make([]int, c.size)
	total := 0
	for i, n := range c.sendCounts {
		c.sendOffsets[i] = total
		total += n
	}
	c.sendTotal = total
	return total
}

// SendOffset returns destination dest's offset into the staging buffer,
// valid after Sum.
func (c *Context) SendOffset(dest int) int {
	return c.sendOffsets[dest]
}

// SendTotal returns the total word count across all destinations, valid
// after Sum.
func (c *Context) SendTotal() int {
	return c.sendTotal
}

// ExchangeCounts learns every rank's receive count from comm: rank i's
// sendCounts[j] (this rank's count for destination j) becomes rank j's
// recvCounts[i]. This is the small count-only exchange that must precede
// the real data AlltoallV so each rank knows how much it is about to
// receive from every source.
func (c *Context) ExchangeCounts(comm mpinet.Comm) error {
	size := c.size
	send := make([]uint32, size)
	for i, n := range c.sendCounts {
		send[i] = uint32(n)
	}
	ones := make([]int, size)
	offsets := make([]int, size)
	for i := range ones {
		ones[i] = 1
		offsets[i] = i
	}
	recv := make([]uint32, size)
	if err := comm.AlltoallV(send, ones, offsets, recv, ones, offsets); err != nil {
		return fmt.Errorf("scatter: exchange counts: %w", err)
	}

	c.recvCounts = make([]int, size)
	c.recvOffsets = make([]int, size)
	total := 0
	for i, v := range recv {
		c.recvCounts[i] = int(v)
		c.recvOffsets[i] = total
		total += int(v)
	}
	c.recvTotal = total
	return nil
}

// RecvCount returns source src's receive count, valid after
// ExchangeCounts.
func (c *Context) RecvCount(src int) int {
	return c.recvCounts[src]
}

// RecvOffset returns source src's offset into the receive buffer, valid
// after ExchangeCounts.
func (c *Context) RecvOffset(src int) int {
	return c.recvOffsets[src]
}

// RecvTotal returns the total words to be received this round, valid
// after ExchangeCounts.
func (c *Context) RecvTotal() int {
	return c.recvTotal
}

// ReduceCount shrinks destination dest's send count after compaction has
// discovered the true, possibly smaller, payload size. The offset computed
// by Sum is left untouched — the unused tail of dest's originally reserved
// window simply isn't sent. newCount must not exceed the count already on
// record; violating that would mean compaction grew the payload, which can
// only happen if the estimate passed to Sum was wrong.
func (c *Context) ReduceCount(dest, newCount int) {
	if newCount > c.sendCounts[dest] {
		panic("scatter: ReduceCount must not increase a destination's count")
	}
	c.sendTotal -= c.sendCounts[dest] - newCount
	c.sendCounts[dest] = newCount
}

// AlltoallV exchanges send (sized SendTotal(), laid out per SendOffset)
// into recv (sized at least RecvTotal(), laid out per RecvOffset) using
// the counts and offsets computed by Sum and ExchangeCounts. recvCap is
// the provider's receive-buffer capacity in words; if RecvTotal() exceeds
// it the exchange is aborted before any data moves.
func (c *Context) AlltoallV(comm mpinet.Comm, send, recv []uint32, recvCap int) error {
	if c.recvTotal > recvCap {
		return fmt.Errorf("scatter: receive total %d exceeds provider capacity %d", c.recvTotal, recvCap)
	}
	return comm.AlltoallV(send, c.sendCounts, c.sendOffsets, recv, c.recvCounts, c.recvOffsets)
}
