package graphsnapshot

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/latticeflow/ssspcomm/sssp"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	graph := &sssp.Graph2DCSR{
		EdgeArray:       []uint32{1, 2, 3, 4},
		EdgeWeightArray: []float32{1.5, 2.5, 3.5, 4.5},
		LocalBits:       16,
		RBits:           8,
		NumLocalVerts:   64,
	}

	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := Save(path, graph); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, graph) {
		t.Fatalf("got %+v, want %+v", got, graph)
	}
}

func TestLoadRejectsMismatchedLengths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	bad := `{"edge_array":[1,2,3],"edge_weight_array":[1.0],"local_bits":16,"r_bits":8,"num_local_verts":10}`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for mismatched edge_array/edge_weight_array lengths")
	}
}

func TestLoadRejectsChecksumMismatch(t *testing.T) {
	graph := &sssp.Graph2DCSR{
		EdgeArray:       []uint32{1, 2, 3},
		EdgeWeightArray: []float32{1.5, 2.5, 3.5},
		LocalBits:       16,
		RBits:           8,
		NumLocalVerts:   32,
	}
	path := filepath.Join(t.TempDir(), "tampered.json")
	if err := Save(path, graph); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := []byte(string(data)[:len(data)-2] + `9"}`)
	if err := os.WriteFile(path, tampered, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected a checksum mismatch error")
	}
}
