// Package roundsignal carries the driver's round-level "has data" / "abort"
// coordination flags.
//
// The teacher's control package kept a single pair of process-wide hot/stop
// atomic flags signaling WebSocket activity and shutdown to pinned consumer
// threads. The all-to-all driver needs the same two-flag shape but scoped
// per Manager instance (a process may, in tests, host more than one
// Manager) and generalized from a single rank's local flag to the input of
// a global OR-reduce across ranks.
package roundsignal

import "sync/atomic"

// Signal holds one rank's contribution to a round's termination decision.
// HasData is OR-reduced across ranks via mpinet.Comm.AllreduceOr to decide
// whether the driver loop continues; Abort short-circuits the loop on a
// fatal local condition.
type Signal struct {
	hasData atomic.Bool
	abort   atomic.Bool
}

// SetHasData records whether this rank scheduled any traffic this round.
func (s *Signal) SetHasData(v bool) {
	s.hasData.Store(v)
}

// HasData reports this rank's local contribution.
func (s *Signal) HasData() bool {
	return s.hasData.Load()
}

// Abort marks the round as fatally aborted; once set it never clears.
func (s *Signal) Abort() {
	s.abort.Store(true)
}

// Aborted reports whether Abort has been called.
func (s *Signal) Aborted() bool {
	return s.abort.Load()
}

// Reset clears the HasData flag for the next round; an Abort stays set.
func (s *Signal) Reset() {
	s.hasData.Store(false)
}
