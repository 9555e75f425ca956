package alltoall

import (
	"fmt"
	"sync/atomic"

	"github.com/latticeflow/ssspcomm/filter"
	"github.com/latticeflow/ssspcomm/scatter"
	"github.com/latticeflow/ssspcomm/ssspmetrics"
)

// RunBuffer drives a single-shot exchange of whatever word-stream data is
// currently queued, with no multi-round logic and no pointer expansion —
// the simplification spec.md §4.5 describes for phases that never populate
// the pointer queue. Every delivered sub-stream arrives with is_ptr=false.
func (m *Manager) RunBuffer() error {
	size := m.comm.Size()
	order := scatter.Destinations(m.comm.Rank(), size)
	sc := scatter.NewContext(size)
	for _, t := range m.targets {
		t.Flush()
	}

	m.forEachDestChunk(order, func(ws *workerState, dest int) {
		sc.SetCount(dest, filter.EstimateBufferLength(m.targets[dest]))
	})

	sendTotal := sc.Sum()
	if sendTotal > m.capacityWords() {
		ssspmetrics.RecordCapacityExceeded()
		return fmt.Errorf("%w: wants %d words, capacity %d", ErrCapacityExceeded, sendTotal, m.capacityWords())
	}

	var actualTotal int64
	sendBuf := m.provider.SecondBuffer()
	m.forEachDestChunk(order, func(ws *workerState, dest int) {
		count := sc.Count(dest)
		if count == 0 {
			return
		}
		offset := sc.SendOffset(dest)
		slab := slabBody(sendBuf, offset, count)
		out := filter.CollectTargetsBuffer(m.targets[dest].DrainBuffers(), ws.scratch, m.state.IsPresolvingMode, slab[:0])
		newLen := filter.RemoveSentinelsBuffer(0, 0, int32(len(out)), slab, ws.scratch)
		ws.scratch.Finish()
		// send_lengths[i] is written here by the compaction pass after
		// already being written by the count pass above; the assertion
		// that matters is that compaction only ever shrinks it.
		sc.ReduceCount(dest, int(newLen))
		atomic.AddInt64(&actualTotal, int64(newLen))
	})

	if err := sc.ExchangeCounts(m.comm); err != nil {
		return err
	}
	recvBuf := m.provider.ClearBuffers()
	if err := sc.AlltoallV(m.comm, sendBuf, recvBuf, m.capacityWords()); err != nil {
		return err
	}

	for src := 0; src < size; src++ {
		n := sc.RecvCount(src)
		if n == 0 {
			continue
		}
		m.provider.Received(recvBuf, sc.RecvOffset(src), n, src, false)
		ssspmetrics.RecordReceived(n)
	}
	m.provider.Finish()

	ssspmetrics.RecordSentinelsDropped(sendTotal - int(actualTotal))
	ssspmetrics.RecordRound("run_buffer", int(actualTotal))
	return nil
}
