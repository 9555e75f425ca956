package allgather

import (
	"github.com/latticeflow/ssspcomm/mpinet"
)

// AllgatherV2D is the top-level entry point: it builds the recv-side layout
// from each rank's own segment length, copies that segment into place, and
// picks the 2-D torus path when sizeX*sizeY describes the communicator and
// both axes are non-trivial, falling back to the plain ring otherwise — the
// same fallback rule spec.md §4.6 describes for "multi-dim not available".
func AllgatherV2D(comm mpinet.Comm, sizeX, sizeY int, mySegment []uint32, counts []int) ([]uint32, error) {
	size := comm.Size()
	offsets := make([]int, size)
	total := 0
	for i, c := range counts {
		offsets[i] = total
		total += c
	}

	recv := make([]uint32, total)
	rank := comm.Rank()
	copy(recv[offsets[rank]:offsets[rank]+counts[rank]], mySegment)

	if sizeX > 1 && sizeY > 1 && sizeX*sizeY == size {
		if err := AllgatherFixed2D(comm, sizeX, sizeY, counts, offsets, recv); err != nil {
			return nil, err
		}
		return recv, nil
	}
	if err := AllgatherRing(comm, counts, offsets, recv); err != nil {
		return nil, err
	}
	return recv, nil
}
