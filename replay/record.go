package replay

import "tetris-lite/arena"

// Record captures a tape from a live arena, including the current digests
// and verdict as the expectation.
func Record(matchID string, a *arena.Arena) Tape {
	exp := &Expectation{
		Digests: make(map[string]uint64),
		Result:  a.Result(),
	}
	for _, s := range a.Snapshots() {
		exp.Digests[s.Board] = s.Digest
	}
	return Tape{
		TapeVersion: TapeVersion,
		MatchID:     matchID,
		Config:      a.Config(),
		Roster:      a.Roster(),
		Ticks:       a.Tick(),
		Entries:     a.Tape(),
		Expected:    exp,
	}
}
