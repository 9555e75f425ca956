package scatter

import (
	"sync"
	"testing"

	"github.com/latticeflow/ssspcomm/mpinet"
)

func TestDestinationsIsRankShifted(t *testing.T) {
	got := Destinations(2, 4)
	want := []int{2, 3, 0, 1}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("Destinations(2,4)[%d] = %d, want %d", i, got[i], v)
		}
	}
}

func TestSumComputesPrefixOffsets(t *testing.T) {
	c := NewContext(3)
	c.SetCount(0, 5)
	c.SetCount(1, 0)
	c.SetCount(2, 3)

	total := c.Sum()
	if total != 8 {
		t.Fatalf("Sum() = %d, want 8", total)
	}
	if c.SendOffset(0) != 0 || c.SendOffset(1) != 5 || c.SendOffset(2) != 5 {
		t.Fatalf("offsets = %d %d %d", c.SendOffset(0), c.SendOffset(1), c.SendOffset(2))
	}
}

func TestExchangeCountsAndAlltoallV(t *testing.T) {
	group := mpinet.NewLocalGroup(2)

	ctx0 := NewContext(2)
	ctx0.SetCount(0, 0)
	ctx0.SetCount(1, 2)
	ctx0.Sum()

	ctx1 := NewContext(2)
	ctx1.SetCount(0, 3)
	ctx1.SetCount(1, 0)
	ctx1.Sum()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := ctx0.ExchangeCounts(group[0]); err != nil {
			t.Errorf("rank 0 ExchangeCounts: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := ctx1.ExchangeCounts(group[1]); err != nil {
			t.Errorf("rank 1 ExchangeCounts: %v", err)
		}
	}()
	wg.Wait()

	if ctx0.RecvCount(1) != 3 {
		t.Fatalf("rank 0 RecvCount(1) = %d, want 3", ctx0.RecvCount(1))
	}
	if ctx1.RecvCount(0) != 2 {
		t.Fatalf("rank 1 RecvCount(0) = %d, want 2", ctx1.RecvCount(0))
	}

	send0 := []uint32{9, 8}
	recv0 := make([]uint32, ctx0.RecvTotal())
	send1 := []uint32{7, 6, 5}
	recv1 := make([]uint32, ctx1.RecvTotal())

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := ctx0.AlltoallV(group[0], send0, recv0, 64); err != nil {
			t.Errorf("rank 0 AlltoallV: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := ctx1.AlltoallV(group[1], send1, recv1, 64); err != nil {
			t.Errorf("rank 1 AlltoallV: %v", err)
		}
	}()
	wg.Wait()

	if len(recv1) != 2 || recv1[0] != 9 || recv1[1] != 8 {
		t.Fatalf("recv1 = %v, want [9 8]", recv1)
	}
	if len(recv0) != 3 || recv0[0] != 7 || recv0[1] != 6 || recv0[2] != 5 {
		t.Fatalf("recv0 = %v, want [7 6 5]", recv0)
	}
}

func TestAlltoallVRejectsOverCapacity(t *testing.T) {
	c := NewContext(1)
	c.recvTotal = 100
	err := c.AlltoallV(nil, nil, nil, 10)
	if err == nil {
		t.Fatal("expected capacity error")
	}
}
