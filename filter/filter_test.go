package filter

import (
	"testing"

	"github.com/latticeflow/ssspcomm/commtarget"
	"github.com/latticeflow/ssspcomm/sssp"
)

func lightGraph() *sssp.Graph2DCSR {
	return &sssp.Graph2DCSR{
		EdgeArray:       []uint32{10, 20, 30, 10},
		EdgeWeightArray: []float32{1.0, 5.0, 0.5, 2.0},
		LocalBits:       16,
		RBits:           8,
		NumLocalVerts:   64,
	}
}

func TestEstimatePointerLengthOverestimateCountsEveryEdge(t *testing.T) {
	state := &sssp.SsspState{IsLightPhase: true, BucketUpper: 100}
	ptrs := []commtarget.PointerData{{Ptr: 0, Length: 4, Dist: 0}}
	got := EstimatePointerLength(ptrs, state, lightGraph(), CountOverestimate)
	if got != 3+4*2 {
		t.Fatalf("got %d, want %d", got, 3+4*2)
	}
}

func TestEstimatePointerLengthTightMatchesFilterPredicate(t *testing.T) {
	state := &sssp.SsspState{IsLightPhase: true, BucketUpper: 2.0}
	ptrs := []commtarget.PointerData{{Ptr: 0, Length: 4, Dist: 0}}
	// weights 1.0, 5.0, 0.5, 2.0 → survivors are < 2.0: edges 0 (1.0) and 2 (0.5)
	got := EstimatePointerLength(ptrs, state, lightGraph(), CountTightBucketAware)
	want := 3 + 2*2
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestEstimatePointerLengthHeavyPhaseNonHeavyBlockOverestimates(t *testing.T) {
	state := &sssp.SsspState{BucketUpper: 100} // heavy phase: neither BF nor light; no edge reaches the bound
	ptrs := []commtarget.PointerData{{Ptr: 0, Length: 4, Dist: 0}} // header bit unset → not heavy
	got := EstimatePointerLength(ptrs, state, lightGraph(), CountTightBucketAware)
	if got != 3+4*2 {
		t.Fatalf("got %d, want %d (heavy-phase non-heavy block must not shrink below raw length)", got, 3+4*2)
	}
}

func TestCollectTargetsPtrEmitsSurvivorsWithHeader(t *testing.T) {
	state := &sssp.SsspState{IsLightPhase: true, BucketUpper: 10.0}
	ptrs := []commtarget.PointerData{{Ptr: 0, Header: 0x77, Length: 2, Dist: 0}}
	scratch := NewArrayScratch(64)

	out := CollectTargetsPtr(ptrs, state, lightGraph(), scratch, nil)
	if len(out) != 3+2*2 {
		t.Fatalf("len(out) = %d, want %d", len(out), 3+2*2)
	}
	if out[0]&sssp.HeaderHighFlag == 0 {
		t.Fatal("header_hi missing high flag")
	}
	if out[2] != 4 {
		t.Fatalf("length placeholder = %d, want 4", out[2])
	}
}

func TestCollectTargetsPtrDedupKeepsMinWeight(t *testing.T) {
	// Two blocks both targeting vertex 10 at different positions; the edge
	// array is arranged so the second block's candidate distance is smaller.
	graph := &sssp.Graph2DCSR{
		EdgeArray:       []uint32{10, 10},
		EdgeWeightArray: []float32{5.0, 1.0},
		LocalBits:       16,
		RBits:           8,
	}
	state := &sssp.SsspState{IsLightPhase: true, BucketUpper: 100.0}
	ptrs := []commtarget.PointerData{
		{Ptr: 0, Header: 1, Length: 1, Dist: 0},
		{Ptr: 1, Header: 2, Length: 1, Dist: 0},
	}
	scratch := NewArrayScratch(64)
	out := CollectTargetsPtr(ptrs, state, graph, scratch, nil)

	// First block: header(3) + pair(2) = 5 words, survivor at out[3:5].
	// Second block sees vertex 10 already in scratch, compares 1.0 < 5.0,
	// marks out[4] sentinel, appends a fresh pair.
	if !sssp.IsSentinel(out[4]) {
		t.Fatalf("expected first block's weight word to be sentineled, got %v", sssp.WeightOf(out[4]))
	}
	lastPairWeight := sssp.WeightOf(out[len(out)-1])
	if lastPairWeight != 1.0 {
		t.Fatalf("final survivor weight = %v, want 1.0", lastPairWeight)
	}
}

func TestCollectTargetsPtrDedupRejectsWorseCandidate(t *testing.T) {
	graph := &sssp.Graph2DCSR{
		EdgeArray:       []uint32{10, 10},
		EdgeWeightArray: []float32{1.0, 5.0},
		LocalBits:       16,
		RBits:           8,
	}
	state := &sssp.SsspState{IsLightPhase: true, BucketUpper: 100.0}
	ptrs := []commtarget.PointerData{
		{Ptr: 0, Header: 1, Length: 1, Dist: 0},
		{Ptr: 1, Header: 2, Length: 1, Dist: 0},
	}
	scratch := NewArrayScratch(64)
	out := CollectTargetsPtr(ptrs, state, graph, scratch, nil)

	if sssp.IsSentinel(out[4]) {
		t.Fatal("first (better) candidate must not be sentineled by a worse one")
	}
	// Second block contributed a header with zero surviving words.
	secondHeaderLenIdx := 5 + 2 // header(3) + pair(2) then second block's length word
	if out[secondHeaderLenIdx] != 0 {
		t.Fatalf("second block length = %d, want 0", out[secondHeaderLenIdx])
	}
}

func TestCollectTargetsBufferCopiesAndDedupsLinearly(t *testing.T) {
	scratch := NewArrayScratch(64)
	bufs := []commtarget.Buffer{
		{Words: []uint32{10, sssp.WeightBits(5.0), 20, sssp.WeightBits(1.0)}, Length: 4},
		{Words: []uint32{10, sssp.WeightBits(1.0)}, Length: 2},
	}
	out := CollectTargetsBuffer(bufs, scratch, false, nil)
	if len(out) != 6 {
		t.Fatalf("len(out) = %d, want 6", len(out))
	}
	if !sssp.IsSentinel(out[1]) {
		t.Fatal("expected first vertex-10 entry sentineled by the smaller later one")
	}
	if sssp.IsSentinel(out[3]) {
		t.Fatal("vertex 20's entry must survive untouched")
	}
	if sssp.IsSentinel(out[5]) {
		t.Fatal("the winning vertex-10 entry must not be sentineled")
	}
}

func TestCollectTargetsBufferSkipsHeaderPairs(t *testing.T) {
	scratch := NewArrayScratch(64)
	bufs := []commtarget.Buffer{
		{Words: []uint32{sssp.HeaderHighFlag | 7, 0, 30, sssp.WeightBits(2.0)}, Length: 4},
	}
	out := CollectTargetsBuffer(bufs, scratch, false, nil)
	if out[0]&sssp.HeaderHighFlag == 0 {
		t.Fatal("embedded header pair must be preserved untouched")
	}
	if sssp.IsSentinel(out[3]) {
		t.Fatal("the only real pair must survive with no dedup competitor")
	}
}

func TestCollectTargetsBufferSkipDedupLeavesDuplicates(t *testing.T) {
	scratch := NewArrayScratch(64)
	bufs := []commtarget.Buffer{
		{Words: []uint32{10, sssp.WeightBits(5.0), 10, sssp.WeightBits(1.0)}, Length: 4},
	}
	out := CollectTargetsBuffer(bufs, scratch, true, nil)
	if sssp.IsSentinel(out[1]) || sssp.IsSentinel(out[3]) {
		t.Fatal("skipDedup must leave both entries untouched")
	}
}

func TestRemoveSentinelsPtrCompactsAndElidesEmptyBlocks(t *testing.T) {
	scratch := NewArrayScratch(64)
	// Block 1: header + one sentinel pair (elided entirely).
	// Block 2: header + one surviving pair.
	stream := []uint32{
		sssp.HeaderHighFlag | 1, 0, 2, 10, sssp.SentinelWeightBits,
		sssp.HeaderHighFlag | 2, 0, 2, 20, sssp.WeightBits(3.0),
	}
	newLen := RemoveSentinelsPtr(int32(len(stream)), stream, scratch)
	if newLen != 5 {
		t.Fatalf("newLen = %d, want 5", newLen)
	}
	if stream[3] != 20 || sssp.WeightOf(stream[4]) != 3.0 {
		t.Fatalf("surviving block not compacted to front: %v", stream[:5])
	}
	if p, ok := scratch.Get(20); ok {
		t.Fatalf("vertex 20's scratch entry should be reset, got %d", p)
	}
}

func TestRemoveSentinelsBufferDropsTrailingEmptyHeader(t *testing.T) {
	scratch := NewArrayScratch(64)
	stream := []uint32{
		30, sssp.WeightBits(1.0),
		sssp.HeaderHighFlag | 9, 0, // header with nothing following it
	}
	newEnd := RemoveSentinelsBuffer(0, 0, int32(len(stream)), stream, scratch)
	if newEnd != 2 {
		t.Fatalf("newEnd = %d, want 2 (trailing header dropped)", newEnd)
	}
}

func TestRemoveSentinelsBufferDropsHeaderWithNoPayloadBeforeNextHeader(t *testing.T) {
	scratch := NewArrayScratch(64)
	stream := []uint32{
		sssp.HeaderHighFlag | 1, 0, // header1: its only pair gets sentineled below
		20, sssp.SentinelWeightBits,
		sssp.HeaderHighFlag | 2, 0, // header2: immediately follows header1's empty run
		40, sssp.WeightBits(3.0),
	}
	newEnd := RemoveSentinelsBuffer(0, 0, int32(len(stream)), stream, scratch)
	if newEnd != 4 {
		t.Fatalf("newEnd = %d, want 4 (header1 dropped, header2 + surviving pair kept)", newEnd)
	}
	if stream[0] != sssp.HeaderHighFlag|2 {
		t.Fatalf("stream[0] = %x, want header2 (header1 should have been overwritten)", stream[0])
	}
	if stream[2] != 40 || sssp.WeightOf(stream[3]) != 3.0 {
		t.Fatalf("surviving pair = (%d, %v), want (40, 3.0)", stream[2], sssp.WeightOf(stream[3]))
	}
}

func TestRemoveSentinelsBufferDropsSentinelPairs(t *testing.T) {
	scratch := NewArrayScratch(64)
	stream := []uint32{
		30, sssp.SentinelWeightBits,
		40, sssp.WeightBits(2.0),
	}
	newEnd := RemoveSentinelsBuffer(0, 0, int32(len(stream)), stream, scratch)
	if newEnd != 2 {
		t.Fatalf("newEnd = %d, want 2", newEnd)
	}
	if stream[0] != 40 {
		t.Fatalf("stream[0] = %d, want 40", stream[0])
	}
}

func TestCollectThenRemoveSentinelsLeavesScratchFullyReset(t *testing.T) {
	// Several blocks touching several distinct vertices, some with a
	// later, better-weight duplicate. After the full collect+compact
	// pipeline every touched vertex's scratch slot must be back to
	// empty, independent of how many rounds already ran before it —
	// the property a recoverable multi-round driver depends on to
	// reuse one Scratch across rounds without cross-round leakage.
	graph := &sssp.Graph2DCSR{
		EdgeArray:       []uint32{10, 11, 12, 10},
		EdgeWeightArray: []float32{5.0, 2.0, 1.0, 1.0},
		LocalBits:       16,
		RBits:           8,
	}
	state := &sssp.SsspState{IsLightPhase: true, BucketUpper: 100.0}
	ptrs := []commtarget.PointerData{
		{Ptr: 0, Header: 1, Length: 3, Dist: 0},
		{Ptr: 3, Header: 2, Length: 1, Dist: 0},
	}
	scratch := NewArrayScratch(64)
	out := CollectTargetsPtr(ptrs, state, graph, scratch, nil)
	newLen := RemoveSentinelsPtr(int32(len(out)), out, scratch)
	_ = newLen

	for _, v := range []uint32{10, 11, 12} {
		if p, ok := scratch.Get(v); ok {
			t.Fatalf("vertex %d still has a scratch entry (position %d) after compaction", v, p)
		}
	}
}

func TestScratchHashmapFinishClearsWholesale(t *testing.T) {
	s := NewHashmapScratch(8)
	s.Set(5, 100)
	s.Finish()
	if _, ok := s.Get(5); ok {
		t.Fatal("expected hashmap scratch cleared after Finish")
	}
}
