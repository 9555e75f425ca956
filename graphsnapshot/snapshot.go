// Package graphsnapshot loads a serialized 2-D CSR graph partition from
// JSON — the format a host algorithm would use to hand this rank's edge
// block to the communication core outside of a live MPI bootstrap (tests,
// the demo command, or replaying a captured partition).
//
// Decoding uses sonnet, the same drop-in encoding/json replacement the
// teacher reaches for on its hot JSON-RPC response path, here applied to a
// colder, one-shot load rather than a per-block response. Each snapshot
// carries a sha3-256 fingerprint of its edge data, the same hash the
// teacher uses to derive its 40-char addresses, here used to catch a
// partition file truncated or edited between Save and Load.
package graphsnapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/crypto/sha3"

	"github.com/latticeflow/ssspcomm/sssp"
)

// Snapshot is the on-disk shape of one rank's graph partition.
type Snapshot struct {
	EdgeArray       []uint32  `json:"edge_array"`
	EdgeWeightArray []float32 `json:"edge_weight_array"`
	LocalBits       uint      `json:"local_bits"`
	RBits           uint      `json:"r_bits"`
	NumLocalVerts   int       `json:"num_local_verts"`
	Checksum        string    `json:"checksum"`
}

// checksum fingerprints the edge array and weight array with sha3-256,
// independent of the struct's JSON field ordering.
func checksum(edgeArray []uint32, edgeWeightArray []float32) string {
	var buf bytes.Buffer
	for _, v := range edgeArray {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	for _, v := range edgeWeightArray {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	sum := sha3.Sum256(buf.Bytes())
	return fmt.Sprintf("%x", sum)
}

// Load reads and decodes a Snapshot from path and returns it as a
// Graph2DCSR view ready for alltoall.NewManager.
func Load(path string) (*sssp.Graph2DCSR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graphsnapshot: read %s: %w", path, err)
	}

	var snap Snapshot
	if err := sonnet.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("graphsnapshot: decode %s: %w", path, err)
	}
	if len(snap.EdgeArray) != len(snap.EdgeWeightArray) {
		return nil, fmt.Errorf("graphsnapshot: %s: edge_array has %d entries, edge_weight_array has %d",
			path, len(snap.EdgeArray), len(snap.EdgeWeightArray))
	}
	if want := checksum(snap.EdgeArray, snap.EdgeWeightArray); snap.Checksum != want {
		return nil, fmt.Errorf("graphsnapshot: %s: checksum mismatch, got %s want %s",
			path, snap.Checksum, want)
	}

	return &sssp.Graph2DCSR{
		EdgeArray:       snap.EdgeArray,
		EdgeWeightArray: snap.EdgeWeightArray,
		LocalBits:       snap.LocalBits,
		RBits:           snap.RBits,
		NumLocalVerts:   snap.NumLocalVerts,
	}, nil
}

// Save encodes graph as a Snapshot and writes it to path — the inverse of
// Load, used to capture a partition for later replay.
func Save(path string, graph *sssp.Graph2DCSR) error {
	snap := Snapshot{
		EdgeArray:       graph.EdgeArray,
		EdgeWeightArray: graph.EdgeWeightArray,
		LocalBits:       graph.LocalBits,
		RBits:           graph.RBits,
		NumLocalVerts:   graph.NumLocalVerts,
		Checksum:        checksum(graph.EdgeArray, graph.EdgeWeightArray),
	}
	data, err := sonnet.Marshal(snap)
	if err != nil {
		return fmt.Errorf("graphsnapshot: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("graphsnapshot: write %s: %w", path, err)
	}
	return nil
}
