package allgather

import (
	"fmt"

	"github.com/latticeflow/ssspcomm/mpinet"
	"github.com/latticeflow/ssspcomm/reqslot"
)

// AllgatherRing is the fallback path used when the rank count doesn't
// factor into a usable 2-D grid: a bidirectional ring where, at each step,
// every rank splits the segment it is currently forwarding in half and
// sends one half left while sending the other half right, simultaneously
// receiving the matching halves from its right and left neighbors. After
// size-1 steps every rank holds every origin's segment.
//
// recv must already hold the caller's own segment at offsets[rank] before
// this is called — AllgatherV2D does that copy for its callers.
func AllgatherRing(comm mpinet.Comm, counts, offsets []int, recv []uint32) error {
	size := comm.Size()
	members := make([]int, size)
	for i := range members {
		members[i] = i
	}
	return ringAllgatherSubset(comm, members, 0, counts, offsets, recv)
}

// ringAllgatherSubset runs the same bidirectional ring all-gather as
// AllgatherRing but over an arbitrary ordered subset of global ranks, with
// counts/offsets indexed by POSITION in members rather than by global rank
// — used by the 2-D path to ring-gather within one row or one column of
// the grid. tagBase keeps each call's Isend/Irecv tags from colliding with
// a concurrently running phase over a different axis; each step consumes
// two tags (one per direction), so a caller running several of these
// subsets back to back must space its tagBase values by at least
// 2*(len(members)-1).
//
// This is the direct rendering of the original AllgatherHandler: each step
// tracks four running indices (l_sendidx/l_recvidx moving one way,
// r_sendidx/r_recvidx moving the other), posts two Irecv and two Isend
// against half-segments in opposite directions, and only advances once all
// four complete — the handler's complete_count reaching 4, not 2, since
// the exchange moves data both ways at once instead of around a single
// direction.
func ringAllgatherSubset(comm mpinet.Comm, members []int, tagBase int, counts, offsets []int, recv []uint32) error {
	n := len(members)
	if n <= 1 {
		return nil
	}

	myRank := comm.Rank()
	myIdx := -1
	for i, r := range members {
		if r == myRank {
			myIdx = i
			break
		}
	}
	if myIdx < 0 {
		return fmt.Errorf("allgather: rank %d is not a member of its own gather group", myRank)
	}

	right := members[(myIdx+1)%n]
	left := members[(myIdx-1+n)%n]

	rm := NewRequestManager(MaxOutstandingRequests)

	lSendIdx := myIdx
	lRecvIdx := (myIdx + 1) % n
	rSendIdx := myIdx
	rRecvIdx := (myIdx - 1 + n) % n

	for step := 0; step < n-1; step++ {
		tagL := tagBase + 2*step
		tagR := tagBase + 2*step + 1

		lSendCnt := counts[lSendIdx] / 2
		lSendOff := offsets[lSendIdx]
		lRecvCnt := counts[lRecvIdx] / 2
		lRecvOff := offsets[lRecvIdx]

		rSendCnt := counts[rSendIdx] - counts[rSendIdx]/2
		rSendOff := offsets[rSendIdx] + counts[rSendIdx]/2
		rRecvCnt := counts[rRecvIdx] - counts[rRecvIdx]/2
		rRecvOff := offsets[rRecvIdx] + counts[rRecvIdx]/2

		lRecvReq := comm.Irecv(right, tagL, recv[lRecvOff:lRecvOff+lRecvCnt])
		rRecvReq := comm.Irecv(left, tagR, recv[rRecvOff:rRecvOff+rRecvCnt])
		lSendReq := comm.Isend(left, tagL, recv[lSendOff:lSendOff+lSendCnt])
		rSendReq := comm.Isend(right, tagR, recv[rSendOff:rSendOff+rSendCnt])

		pending := []*mpinet.Request{lRecvReq, rRecvReq, lSendReq, rSendReq}
		pendingHandles := make([]reqslot.Handle, len(pending))
		for i, req := range pending {
			h, err := rm.Submit(req)
			if err != nil {
				return err
			}
			pendingHandles[i] = h
		}

		for len(pending) > 0 {
			idx, err := comm.Waitany(pending)
			if err != nil {
				return err
			}
			rm.Release(pendingHandles[idx])
			pending = append(pending[:idx], pending[idx+1:]...)
			pendingHandles = append(pendingHandles[:idx], pendingHandles[idx+1:]...)
		}

		lSendIdx = (lSendIdx + 1) % n
		lRecvIdx = (lRecvIdx + 1) % n
		rSendIdx = (rSendIdx - 1 + n) % n
		rRecvIdx = (rRecvIdx - 1 + n) % n
	}
	return nil
}
