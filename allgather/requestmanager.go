// Package allgather implements the pipelined ring and 2-D torus all-gather
// paths spec.md §4.6/§4.7 describe for collecting per-rank variable-length
// segments onto every rank — the counterpart to alltoall's point-to-point
// exchange, used where every rank needs every other rank's contribution
// rather than just its own destination's share.
package allgather

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/latticeflow/ssspcomm/mpinet"
	"github.com/latticeflow/ssspcomm/reqslot"
)

// ErrRequestPoolFull is returned when a handler tries to post more
// non-blocking requests than the fixed request-slot pool has room for.
var ErrRequestPoolFull = errors.New("allgather: request pool full")

// MaxOutstandingRequests bounds how many non-blocking requests any single
// RequestManager will track at once, mirroring the fixed MAX_REQUESTS
// request-slot pool the original driver's MpiRequestManager sizes itself to.
const MaxOutstandingRequests = 8

// RequestManager is the Go rendering of MpiRequestManager: a fixed-size pool
// of request slots bounded by a semaphore, so a handler can never have more
// than MaxOutstandingRequests non-blocking operations in flight regardless
// of how many steps it pipelines ahead.
type RequestManager struct {
	pool *reqslot.Pool[*mpinet.Request]
	sem  *semaphore.Weighted
}

// NewRequestManager creates a manager whose pool can hold up to maxOutstanding
// requests at once.
func NewRequestManager(maxOutstanding int) *RequestManager {
	if maxOutstanding <= 0 || maxOutstanding > reqslot.MaxSlots {
		maxOutstanding = MaxOutstandingRequests
	}
	return &RequestManager{
		pool: reqslot.New[*mpinet.Request](maxOutstanding),
		sem:  semaphore.NewWeighted(int64(maxOutstanding)),
	}
}

// Submit registers req with the pool, blocking until a slot is free. It only
// returns ErrRequestPoolFull if Borrow itself fails after the semaphore has
// already admitted the caller — it should not happen in practice, since the
// semaphore's weight matches the pool's capacity, but a handler bug that
// leaks a slot without Release would eventually surface here instead of
// deadlocking silently.
func (rm *RequestManager) Submit(req *mpinet.Request) (reqslot.Handle, error) {
	if err := rm.sem.Acquire(context.Background(), 1); err != nil {
		return 0, err
	}
	h, ok := rm.pool.Borrow(req)
	if !ok {
		rm.sem.Release(1)
		return 0, ErrRequestPoolFull
	}
	return h, nil
}

// Release returns h's slot to the pool.
func (rm *RequestManager) Release(h reqslot.Handle) {
	rm.pool.Return(h)
	rm.sem.Release(1)
}
