package ssspmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRoundIncrementsCounters(t *testing.T) {
	before := testutil.ToFloat64(wordsSentTotal)
	RecordRound("run_with_both", 42)
	after := testutil.ToFloat64(wordsSentTotal)
	if after-before != 42 {
		t.Fatalf("wordsSentTotal grew by %v, want 42", after-before)
	}
}

func TestRecordSentinelsDroppedIgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(sentinelsDroppedTotal)
	RecordSentinelsDropped(0)
	RecordSentinelsDropped(-3)
	after := testutil.ToFloat64(sentinelsDroppedTotal)
	if after != before {
		t.Fatalf("sentinelsDroppedTotal changed on non-positive input: %v -> %v", before, after)
	}
	RecordSentinelsDropped(5)
	if got := testutil.ToFloat64(sentinelsDroppedTotal); got != before+5 {
		t.Fatalf("sentinelsDroppedTotal = %v, want %v", got, before+5)
	}
}

func TestRecordCapacityExceededIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(capacityExceededTotal)
	RecordCapacityExceeded()
	after := testutil.ToFloat64(capacityExceededTotal)
	if after-before != 1 {
		t.Fatalf("capacityExceededTotal grew by %v, want 1", after-before)
	}
}
