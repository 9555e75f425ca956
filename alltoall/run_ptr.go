package alltoall

import (
	"fmt"
	"sync/atomic"

	"github.com/latticeflow/ssspcomm/filter"
	"github.com/latticeflow/ssspcomm/scatter"
	"github.com/latticeflow/ssspcomm/ssspmetrics"
)

// RunPtr drives a pointer-only multi-round exchange for phases with no
// queued buffer data, bounding each worker chunk's total output to
// maxSizePerThread words and reserving at least MinimumPointerSpace words
// for any destination with queued data. It returns ErrCapacityExceeded if a
// single destination's data alone exceeds the per-thread budget while the
// chunk holds nothing else yet — there is no partial progress to fall back
// to in that case.
func (m *Manager) RunPtr(countType filter.NodeSendCountType, maxSizePerThread int) error {
	for loop := 0; ; loop++ {
		if loop > 0 && !m.shouldContinue() {
			return nil
		}
		if err := m.runRoundPtr(loop, countType, maxSizePerThread); err != nil {
			m.signal.Abort()
			m.logError(loop, "alltoall.run_ptr", err)
			return err
		}
	}
}

func (m *Manager) runRoundPtr(loop int, countType filter.NodeSendCountType, maxSizePerThread int) error {
	size := m.comm.Size()
	order := scatter.Destinations(m.comm.Rank(), size)
	sc := scatter.NewContext(size)
	plans := make([]destPlan, size)

	maxPerNode := m.maxSizePerNode()
	var budgetErr error
	m.forEachDestChunk(order, func(ws *workerState, dest int) {
		if budgetErr != nil {
			sc.SetCount(dest, 0)
			return
		}
		target := m.targets[dest]
		ptrs := target.PeekPointers()
		ptrLen := filter.EstimatePointerLength(ptrs, m.state, m.graph, countType)
		if ptrLen == 0 {
			sc.SetCount(dest, 0)
			return
		}

		reserved := ptrLen
		if reserved < MinimumPointerSpace {
			reserved = MinimumPointerSpace
		}

		if reserved > maxSizePerThread && ws.heldWords == 0 {
			budgetErr = fmt.Errorf("%w: destination %d needs %d words, exceeds per-thread budget %d with nothing else held",
				ErrCapacityExceeded, dest, reserved, maxSizePerThread)
			sc.SetCount(dest, 0)
			return
		}
		if ws.heldWords > 0 && (ws.heldWords+reserved > maxSizePerThread || reserved > maxPerNode) {
			sc.SetCount(dest, 0)
			return
		}

		ws.heldWords += reserved
		plans[dest] = destPlan{ptrs: ptrs, includePtr: true}
		sc.SetCount(dest, reserved)
	})
	if budgetErr != nil {
		return budgetErr
	}

	sendTotal := sc.Sum()
	if sendTotal > m.capacityWords() {
		ssspmetrics.RecordCapacityExceeded()
		return fmt.Errorf("%w: round %d wants %d words, capacity %d", ErrCapacityExceeded, loop, sendTotal, m.capacityWords())
	}

	var actualTotal int64
	sendBuf := m.provider.SecondBuffer()
	m.forEachDestChunk(order, func(ws *workerState, dest int) {
		p := plans[dest]
		count := sc.Count(dest)
		if !p.includePtr || count == 0 {
			return
		}

		offset := sc.SendOffset(dest)
		slab := slabBody(sendBuf, offset, count)
		taken := m.targets[dest].TakePointers(len(p.ptrs))
		out := filter.CollectTargetsPtr(taken, m.state, m.graph, ws.scratch, slab[:0])
		newLen := filter.RemoveSentinelsPtr(int32(len(out)), slab, ws.scratch)
		ws.scratch.Finish()
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
		m.provider.Received(recvBuf, sc.RecvOffset(src), n, src, true)
		ssspmetrics.RecordReceived(n)
	}
	m.provider.Finish()

	ssspmetrics.RecordSentinelsDropped(sendTotal - int(actualTotal))
	ssspmetrics.RecordRound("run_ptr", int(actualTotal))
	return nil
}
