// Package filter implements the merge-and-filter pipeline that turns a
// destination's queued PointerData blocks and word-stream buffers into one
// compacted output slab: size estimation, phase-aware edge filtering,
// min-weight deduplication against a per-destination positions scratch, and
// sentinel compaction.
package filter

import (
	"github.com/latticeflow/ssspcomm/commtarget"
	"github.com/latticeflow/ssspcomm/localidx"
	"github.com/latticeflow/ssspcomm/sssp"
)

// NodeSendCountType selects the estimator used by EstimatePointerLength.
type NodeSendCountType int

const (
	// CountOverestimate counts every queued edge regardless of the phase
	// filter — cheap, always safe, may over-allocate.
	CountOverestimate NodeSendCountType = 0
	// CountTightBucketAware applies the same filter predicate the
	// collector uses, except in the heavy phase for non-heavy blocks,
	// where it deliberately overestimates too (see EstimatePointerLength's
	// doc comment).
	CountTightBucketAware NodeSendCountType = 1
)

// Scratch is the per-destination positions map used to deduplicate
// candidate (vertex, distance) pairs while keeping the minimum weight. It is
// backed either by a fixed array indexed by local vertex id (fast, one slot
// per vertex in the partition) or by a localidx.Hash (bounded memory when
// the partition is large and only a few vertices are touched per
// destination per round).
type Scratch struct {
	arr  []int32
	hmap *localidx.Hash
}

// NewArrayScratch creates an array-backed Scratch sized for numLocalVerts
// vertices, all entries initialized to the empty sentinel −1.
func NewArrayScratch(numLocalVerts int) *Scratch {
	arr := make([]int32, numLocalVerts)
	for i := range arr {
		arr[i] = -1
	}
	return &Scratch{arr: arr}
}

// NewHashmapScratch creates a hashmap-backed Scratch sized for the expected
// number of distinct vertices touched per destination per round.
func NewHashmapScratch(capacityHint int) *Scratch {
	return &Scratch{hmap: localidx.New(capacityHint)}
}

// Get returns the recorded stream position for vertex, if any.
func (s *Scratch) Get(vertex uint32) (int32, bool) {
	if s.arr != nil {
		p := s.arr[vertex]
		if p < 0 {
			return 0, false
		}
		return p, true
	}
	return s.hmap.Get(vertex)
}

// Set records position as vertex's current stream position, overwriting any
// prior entry.
func (s *Scratch) Set(vertex uint32, position int32) {
	if s.arr != nil {
		s.arr[vertex] = position
		return
	}
	s.hmap.Put(vertex, position)
}

// ResetVertex clears vertex's entry back to empty. A no-op on the
// hashmap-backed variant, whose entries are cleared wholesale by Finish —
// remove_sentinels calls this once per surviving pair so the array variant
// never pays for a full-partition scan.
func (s *Scratch) ResetVertex(vertex uint32) {
	if s.arr != nil {
		s.arr[vertex] = -1
	}
}

// Finish clears any remaining state at the end of a destination. The array
// variant relies on remove_sentinels having already reset every entry it
// touched; the hashmap variant clears wholesale here since individual
// deletion isn't worth the complexity for a structure this small.
func (s *Scratch) Finish() {
	if s.hmap != nil {
		s.hmap.Reset()
	}
}

// EstimateBufferLength sums the queued word-stream buffers' committed
// lengths — the buffer-origin contribution to a destination's round size,
// before any dedup or filtering (collect_targets_buffer's dedup pass only
// ever shrinks the stream in place, so the pre-copy length is also the
// exact upper bound on post-copy words before compaction).
func EstimateBufferLength(target *commtarget.Target) int {
	total := 0
	for _, b := range target.PeekBuffers() {
		total += int(b.Length)
	}
	return total
}

// EstimatePointerLength estimates the pointer-origin contribution: three
// header words per block plus two words per surviving edge.
//
// Under CountOverestimate every queued edge counts, independent of phase.
// Under CountTightBucketAware the estimator applies sssp.FilterEdge to get a
// tight count — except in the heavy phase for a block that is not itself
// heavy, where it also counts every edge unconditionally. CollectTargetsPtr
// does filter those edges (keeping only distNew >= BucketUpper), so for such
// blocks the estimate can exceed what the collector emits; it is never
// smaller.
func EstimatePointerLength(ptrs []commtarget.PointerData, state *sssp.SsspState, graph *sssp.Graph2DCSR, countType NodeSendCountType) int {
	total := 0
	for _, p := range ptrs {
		total += 3
		isHeavy := p.IsHeavy()
		heavyPhaseNonHeavyBlock := !state.IsBellmanFord && !state.IsLightPhase && !isHeavy

		for e := int32(0); e < p.Length; e++ {
			if countType == CountOverestimate || heavyPhaseNonHeavyBlock {
				total += 2
				continue
			}
			pos := p.Ptr + int64(e)
			v := graph.TargetLocal(pos)
			w := graph.EdgeWeight(pos)
			if sssp.FilterEdge(state, v, p.Dist, w, isHeavy) {
				total += 2
			}
		}
	}
	return total
}

// CollectTargetsPtr expands ptrs' deferred edge ranges into out, applying
// the phase filter and min-weight dedup against scratch. It returns out
// grown by the emitted words.
//
// Each block is written as three header words (high word carrying the
// source vertex with sssp.HeaderHighFlag set, low word, then a length
// placeholder) followed by its surviving (target, weight_bits) pairs; the
// length placeholder is back-patched once the block is known. scratch is
// not reset here — remove_sentinels_ptr owns that.
func CollectTargetsPtr(ptrs []commtarget.PointerData, state *sssp.SsspState, graph *sssp.Graph2DCSR, scratch *Scratch, out []uint32) []uint32 {
	for _, p := range ptrs {
		isHeavy := p.IsHeavy()
		headerHi := uint32(uint64(p.Header)>>32) | sssp.HeaderHighFlag
		headerLo := uint32(uint64(p.Header))
		out = append(out, headerHi, headerLo, 0)
		lenIdx := len(out) - 1

		blockWords := int32(0)
		for e := int32(0); e < p.Length; e++ {
			pos := p.Ptr + int64(e)
			v := graph.TargetLocal(pos)
			w := graph.EdgeWeight(pos)
			if !sssp.FilterEdge(state, v, p.Dist, w, isHeavy) {
				continue
			}
			distNew := p.Dist + w
			wb := sssp.WeightBits(distNew)

			if twinPos, ok := scratch.Get(v); !ok {
				scratch.Set(v, int32(len(out)))
				out = append(out, v, wb)
				blockWords += 2
			} else if sssp.WeightOf(out[twinPos+1]) > distNew {
				out[twinPos+1] = sssp.SentinelWeightBits
				scratch.Set(v, int32(len(out)))
				out = append(out, v, wb)
				blockWords += 2
			}
		}
		out[lenIdx] = uint32(blockWords)
	}
	return out
}

// CollectTargetsBuffer copies bufs' committed words into out contiguously,
// then — unless skipDedup is set, matching is_presolving_mode's
// SKIP_FILTERING behavior — runs one linear min-weight dedup pass over the
// copied region, leaving embedded source-header pairs (flagged by
// sssp.HeaderHighFlag on their first word) untouched.
func CollectTargetsBuffer(bufs []commtarget.Buffer, scratch *Scratch, skipDedup bool, out []uint32) []uint32 {
	start := len(out)
	for _, b := range bufs {
		out = append(out, b.Words[:b.Length]...)
	}
	if skipDedup {
		return out
	}

	for i := start; i < len(out); i += 2 {
		if out[i]&sssp.HeaderHighFlag != 0 {
			continue
		}
		v := out[i]
		wb := out[i+1]
		distNew := sssp.WeightOf(wb)

		if twinPos, ok := scratch.Get(v); !ok {
			scratch.Set(v, int32(i))
		} else if int32(i) != twinPos {
			if sssp.WeightOf(out[twinPos+1]) > distNew {
				out[twinPos+1] = sssp.SentinelWeightBits
				scratch.Set(v, int32(i))
			} else {
				out[i+1] = sssp.SentinelWeightBits
			}
		}
	}
	return out
}

// RemoveSentinelsPtr compacts the pointer-origin prefix stream[0:length] in
// place, dropping every pair whose weight word is the sentinel and eliding
// any block whose surviving length reaches zero. For every surviving pair
// it resets that vertex's scratch entry, since the entry's old position is
// about to move. It returns the compacted length.
func RemoveSentinelsPtr(length int32, stream []uint32, scratch *Scratch) int32 {
	var r, w int32
	for r < length {
		headerHi, headerLo := stream[r], stream[r+1]
		blockLen := int32(stream[r+2])
		pairStart := r + 3
		destPairs := w + 3

		kept := int32(0)
		for j := int32(0); j < blockLen; j += 2 {
			v := stream[pairStart+j]
			wb := stream[pairStart+j+1]
			if sssp.IsSentinel(wb) {
				continue
			}
			stream[destPairs+kept] = v
			stream[destPairs+kept+1] = wb
			kept += 2
			scratch.ResetVertex(v)
		}

		if kept > 0 {
			stream[w], stream[w+1], stream[w+2] = headerHi, headerLo, uint32(kept)
			w = destPairs + kept
		}
		r = pairStart + blockLen
	}
	return w
}

// RemoveSentinelsBuffer compacts the buffer-origin segment
// stream[readStart:readStart+length] in place, writing the result starting
// at writeStart (which abuts whatever the pointer-origin compaction left
// behind). Embedded source-header pairs are preserved unless no payload
// survives between them and the next header (or end-of-stream), in which
// case the header itself is dropped along with any sentinel-marked pair —
// a header is only ever worth keeping if it has something to introduce.
// It returns the absolute end offset of the compacted region.
func RemoveSentinelsBuffer(readStart, writeStart, length int32, stream []uint32, scratch *Scratch) int32 {
	r, w := readStart, writeStart
	end := readStart + length
	for r < end {
		if stream[r]&sssp.HeaderHighFlag != 0 {
			// the header just written has no surviving payload before
			// this one — it introduced nothing, so reclaim its slot.
			if w != writeStart && stream[w-2]&sssp.HeaderHighFlag != 0 {
				w -= 2
			}
			stream[w], stream[w+1] = stream[r], stream[r+1]
			w += 2
			r += 2
			continue
		}

		v := stream[r]
		wb := stream[r+1]
		if !sssp.IsSentinel(wb) {
			stream[w], stream[w+1] = v, wb
			w += 2
			scratch.ResetVertex(v)
		}
		r += 2
	}
	if w != writeStart && stream[w-2]&sssp.HeaderHighFlag != 0 {
		w -= 2
	}
	return w
}
