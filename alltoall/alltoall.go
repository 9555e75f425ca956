// Package alltoall implements the asynchronous all-to-all driver: the
// bounded-memory multi-round exchange that sizes each destination's traffic,
// expands and filters pointer/buffer data into a staging slab, compacts it,
// and runs the exchange until every rank's queues drain.
package alltoall

import (
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/latticeflow/ssspcomm/commtarget"
	"github.com/latticeflow/ssspcomm/filter"
	"github.com/latticeflow/ssspcomm/mpinet"
	"github.com/latticeflow/ssspcomm/provider"
	"github.com/latticeflow/ssspcomm/roundsignal"
	"github.com/latticeflow/ssspcomm/sssp"
	"github.com/latticeflow/ssspcomm/sssplog"
)

// ErrCapacityExceeded is returned when a round's traffic — or a single
// destination's pointer-origin data under a fixed per-thread budget —
// cannot fit the provider's capacity with no partial progress possible.
// The driver treats this as fatal: it does not retry or shed data silently.
var ErrCapacityExceeded = errors.New("alltoall: capacity exceeded")

// MinimumPointerSpace is the smallest reservation RunPtr makes for a
// destination with any queued pointer data, even when the tight estimate
// comes in lower — mirrors leaving slack for the compaction pass's header
// overhead.
const MinimumPointerSpace = 40

// Manager owns one CommTarget per destination rank and drives the
// multi-round exchange over them. It is not safe for concurrent Run* calls;
// the surrounding SSSP engine is expected to serialize rounds the way
// spec.md's single communication thread does.
type Manager struct {
	comm     mpinet.Comm
	graph    *sssp.Graph2DCSR
	state    *sssp.SsspState
	provider provider.BufferProvider

	targets []*commtarget.Target
	pool    *ants.Pool
	signal  roundsignal.Signal
	log     *sssplog.Logger

	useHashmap       bool
	hashCapacityHint int
}

// SetLogger attaches a logger the driver will route capacity-abort
// diagnostics through. A nil logger (the default) disables logging.
func (m *Manager) SetLogger(log *sssplog.Logger) {
	m.log = log
}

// logError routes err through m.log, if one has been attached, with no-op
// fallback — the driver's own error return is always the source of truth.
func (m *Manager) logError(round int, prefix string, err error) {
	if m.log == nil {
		return
	}
	m.log.WithRound(round).DropError(prefix, err)
}

// NewManager creates a Manager with one Target per rank in comm, backed by
// prov, expanding pointer data with up to workers goroutines in parallel.
// useHashmap selects the USE_PROPER_HASHMAP scratch variant (localidx.Hash)
// over the default fixed array sized to the graph's local partition.
func NewManager(comm mpinet.Comm, graph *sssp.Graph2DCSR, state *sssp.SsspState, prov provider.BufferProvider, workers int, useHashmap bool) (*Manager, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("alltoall: create worker pool: %w", err)
	}

	targets := make([]*commtarget.Target, comm.Size())
	for i := range targets {
		targets[i] = commtarget.NewTarget(prov)
	}

	return &Manager{
		comm:             comm,
		graph:            graph,
		state:            state,
		provider:         prov,
		targets:          targets,
		pool:             pool,
		useHashmap:       useHashmap,
		hashCapacityHint: 64,
	}, nil
}

// Close releases the worker pool. Callers should defer it once the Manager
// is no longer driving rounds.
func (m *Manager) Close() {
	m.pool.Release()
}

// Target returns the producer-facing CommTarget for the given destination
// rank — callers call Put/PutPtr on it between rounds.
func (m *Manager) Target(rank int) *commtarget.Target {
	return m.targets[rank]
}

func (m *Manager) newScratch() *filter.Scratch {
	if m.useHashmap {
		return filter.NewHashmapScratch(m.hashCapacityHint)
	}
	return filter.NewArrayScratch(m.graph.NumLocalVerts)
}

func (m *Manager) maxSizePerNode() int {
	return int(m.provider.MaxSize()) / (m.provider.ElementSize() * m.comm.Size())
}

func (m *Manager) capacityWords() int {
	return int(m.provider.MaxSize()) / m.provider.ElementSize()
}

// refreshHasData recomputes this rank's local contribution to the round
// termination decision and stores it on m.signal, the per-Manager
// descendant of the teacher's process-wide hot/stop flag pair.
func (m *Manager) refreshHasData() bool {
	has := false
	for _, t := range m.targets {
		if t.PointerQueueLen() > 0 {
			has = true
			break
		}
	}
	m.signal.SetHasData(has)
	return has
}

// shouldContinue is the outer-loop termination check every Run* driver
// shares: OR-reduce this rank's latest HasData contribution across the
// communicator, short-circuiting immediately if a prior round already
// called m.signal.Abort().
func (m *Manager) shouldContinue() bool {
	if m.signal.Aborted() {
		return false
	}
	return m.comm.AllreduceOr(m.refreshHasData())
}

// workerState is the per-goroutine-chunk scratch that spec.md partitions
// per OMP thread: a private dedup scratch and a running tally of how much
// pointer data this chunk has already committed to send this round, used
// by the inclusion-budget decisions.
type workerState struct {
	scratch      *filter.Scratch
	includedPtr  bool
	heldWords    int
}

// forEachDestChunk splits order into as many contiguous chunks as the pool
// has capacity for and runs fn over each chunk on one pooled goroutine,
// giving every chunk its own workerState — the goroutine-scoped analogue of
// one OMP thread sequentially visiting several destinations with a private
// scratch slice.
func (m *Manager) forEachDestChunk(order []int, fn func(ws *workerState, dest int)) {
	workers := m.pool.Cap()
	if workers < 1 {
		workers = 1
	}
	n := len(order)
	if n == 0 {
		return
	}
	chunkSize := (n + workers - 1) / workers
	if chunkSize < 1 {
		chunkSize = 1
	}

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		seg := order[start:end]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			ws := &workerState{scratch: m.newScratch()}
			for _, dest := range seg {
				fn(ws, dest)
			}
		}
		if err := m.pool.Submit(task); err != nil {
			// Pool exhausted or closed: fall back to running inline so no
			// destination is silently skipped.
			task()
		}
	}
	wg.Wait()
}

type destPlan struct {
	ptrs          []commtarget.PointerData
	includeBuffer bool
	includePtr    bool
}

// slabBody returns the capacity-clamped sub-slice of buf reserved for one
// destination, so append-based collection inside a pooled goroutine can
// never spill into a neighboring destination's region.
func slabBody(buf []uint32, offset, count int) []uint32 {
	return buf[offset : offset+count : offset+count]
}
