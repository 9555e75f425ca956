package alltoall

import (
	"fmt"
	"sync/atomic"

	"github.com/latticeflow/ssspcomm/filter"
	"github.com/latticeflow/ssspcomm/scatter"
	"github.com/latticeflow/ssspcomm/ssspmetrics"
)

// RunWithBoth drives the combined pointer-and-buffer multi-round exchange
// described by spec.md §4.4: round 0 always carries the queued word-stream
// buffers, and carries a destination's pointer data only if it fits that
// destination's per-round budget; later rounds resubmit pointer data that
// was deferred, expanding it against whatever SSSP state holds by then. It returns once every pointer queue, on every rank, is empty.
func (m *Manager) RunWithBoth(countType filter.NodeSendCountType) error {
	for loop := 0; ; loop++ {
		if loop > 0 && !m.shouldContinue() {
			return nil
		}
		if err := m.runRoundWithBoth(loop, countType); err != nil {
			m.signal.Abort()
			m.logError(loop, "alltoall.run_with_both", err)
			return err
		}
	}
}

func (m *Manager) runRoundWithBoth(loop int, countType filter.NodeSendCountType) error {
	size := m.comm.Size()
	rank := m.comm.Rank()

	if loop == 0 {
		for _, t := range m.targets {
			t.Flush()
		}
	}

	order := scatter.Destinations(rank, size)
	sc := scatter.NewContext(size)
	plans := make([]destPlan, size)

	maxPerNode := m.maxSizePerNode()
	m.forEachDestChunk(order, func(ws *workerState, dest int) {
		target := m.targets[dest]
		bufLen := filter.EstimateBufferLength(target)
		ptrs := target.PeekPointers()
		ptrLen := filter.EstimatePointerLength(ptrs, m.state, m.graph, countType)

		if bufLen == 0 && ptrLen == 0 {
			sc.SetCount(dest, 0)
			return
		}

		total := 1 + bufLen // leading pointer-origin-length word
		includePtr := true
		if total+ptrLen > maxPerNode && (ws.includedPtr || loop == 0) {
			includePtr = false
		}
		if includePtr {
			total += ptrLen
			if ptrLen > 0 {
				ws.includedPtr = true
			}
		} else if bufLen == 0 {
			total = 0
		}

		plans[dest] = destPlan{ptrs: ptrs, includeBuffer: bufLen > 0, includePtr: includePtr}
		sc.SetCount(dest, total)
	})

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
		if count == 0 {
			if p.includePtr {
				m.targets[dest].TakePointers(len(p.ptrs))
			}
			return
		}

		offset := sc.SendOffset(dest)
		slab := slabBody(sendBuf, offset, count)
		body := slab[1:1:len(slab)]

		var lengthPtr int32
		if p.includePtr {
			taken := m.targets[dest].TakePointers(len(p.ptrs))
			body = filter.CollectTargetsPtr(taken, m.state, m.graph, ws.scratch, body)
			lengthPtr = int32(len(body))
		}
		if p.includeBuffer {
			body = filter.CollectTargetsBuffer(m.targets[dest].DrainBuffers(), ws.scratch, m.state.IsPresolvingMode, body)
		}

		bufferLen := int32(len(body)) - lengthPtr
		newLenPtr := filter.RemoveSentinelsPtr(lengthPtr, slab[1:], ws.scratch)
		newEnd := filter.RemoveSentinelsBuffer(1+lengthPtr, 1+newLenPtr, bufferLen, slab, ws.scratch)
		slab[0] = uint32(newLenPtr)
		ws.scratch.Finish()

		sc.ReduceCount(dest, int(newEnd))
		atomic.AddInt64(&actualTotal, int64(newEnd))
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
		off := sc.RecvOffset(src)
		lengthPtr := int(recvBuf[off])
		if lengthPtr > 0 {
			m.provider.Received(recvBuf, off+1, lengthPtr, src, true)
		}
		remainderLen := n - 1 - lengthPtr
		if remainderLen > 0 {
			m.provider.Received(recvBuf, off+1+lengthPtr, remainderLen, src, false)
		}
		ssspmetrics.RecordReceived(n)
	}
	m.provider.Finish()

	ssspmetrics.RecordSentinelsDropped(sendTotal - int(actualTotal))
	ssspmetrics.RecordRound("run_with_both", int(actualTotal))
	return nil
}
