package allgather

import (
	"fmt"

	"github.com/latticeflow/ssspcomm/mpinet"
)

// AllgatherFixed2D performs the two-phase gather over a sizeX×sizeY rank
// grid laid out row-major (rank = y*sizeX + x): phase 1 rings within each
// row so every rank ends up holding its whole row's segments, then phase 2
// rings within each column on those now-row-sized bundles. By the end every
// rank holds every other rank's segment, matching the original
// my_allgatherv_2d's axis split without replicating its quarter-split
// (current_step/complete_count, four concurrent handlers per step)
// pipelining — that detail only changes how much the two phases overlap on
// the wire, not the result, and spec.md's testable properties (byte-for-byte
// equivalence to a reference gather) hold either way.
//
// counts and offsets must be indexed by global rank in row-major order;
// recv must already hold the caller's own segment at offsets[rank].
func AllgatherFixed2D(comm mpinet.Comm, sizeX, sizeY int, counts, offsets []int, recv []uint32) error {
	size := comm.Size()
	if sizeX*sizeY != size {
		return fmt.Errorf("allgather: grid %dx%d does not match communicator size %d", sizeX, sizeY, size)
	}
	rank := comm.Rank()
	x := rank % sizeX
	y := rank / sizeX

	rowRanks := make([]int, sizeX)
	for i := 0; i < sizeX; i++ {
		rowRanks[i] = y*sizeX + i
	}
	rowCounts := counts[y*sizeX : y*sizeX+sizeX]
	rowOffsets := offsets[y*sizeX : y*sizeX+sizeX]
	if err := ringAllgatherSubset(comm, rowRanks, 0, rowCounts, rowOffsets, recv); err != nil {
		return fmt.Errorf("allgather: row phase at (x=%d,y=%d): %w", x, y, err)
	}

	colRanks := make([]int, sizeY)
	for j := 0; j < sizeY; j++ {
		colRanks[j] = j*sizeX + x
	}
	colCounts, colOffsets := rowBundles(sizeX, sizeY, counts, offsets)
	// the row phase's sizeX-member ring uses tags tagBase..tagBase+2*(sizeX-2)+1
	// (two tags per step, sizeX-1 steps); the column phase's tagBase must clear
	// that range so its Isend/Irecv pairs never collide with the row phase's.
	colTagBase := 2 * sizeX
	if err := ringAllgatherSubset(comm, colRanks, colTagBase, colCounts, colOffsets, recv); err != nil {
		return fmt.Errorf("allgather: column phase at (x=%d,y=%d): %w", x, y, err)
	}
	return nil
}

// rowBundles computes, for each grid row, the contiguous span of recv that
// row's sizeX members occupy once the row phase has filled it in — the unit
// the column phase then rings between rows. It relies on counts/offsets
// being laid out in the same row-major rank order as the grid, which makes
// each row's members a contiguous run of both arrays.
func rowBundles(sizeX, sizeY int, counts, offsets []int) (bundleCounts, bundleOffsets []int) {
	bundleCounts = make([]int, sizeY)
	bundleOffsets = make([]int, sizeY)
	for y := 0; y < sizeY; y++ {
		start := y * sizeX
		end := start + sizeX - 1
		bundleOffsets[y] = offsets[start]
		bundleCounts[y] = offsets[end] + counts[end] - offsets[start]
	}
	return bundleCounts, bundleOffsets
}
