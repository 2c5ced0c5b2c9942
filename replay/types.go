package replay

import (
	"tetris-lite/arena"
	"tetris-lite/tetris"
)

const TapeVersion = 1

// Tape is everything needed to re-simulate a match bit for bit.
type Tape struct {
	TapeVersion int               `json:"tape_version"`
	MatchID     string            `json:"match_id"`
	Config      arena.Config      `json:"config"`
	Roster      []string          `json:"roster"`
	Ticks       uint64            `json:"ticks"`
	Entries     []arena.TapeEntry `json:"entries"`
	Expected    *Expectation      `json:"expected,omitempty"`
}

// Expectation is the recorded end state the replay is checked against.
type Expectation struct {
	Digests map[string]uint64 `json:"digests"`
	Result  arena.Result      `json:"result"`
}

type Result struct {
	Ticks     uint64            `json:"ticks"`
	Boards    []tetris.Snapshot `json:"boards"`
	Standings []arena.Standing  `json:"standings"`
	Outcome   arena.Result      `json:"outcome"`
	Trace     []TraceEntry      `json:"trace,omitempty"`
}

// TraceEntry records a board digest each time it changes, for lining a
// replay up against live frames.
type TraceEntry struct {
	Tick   uint64 `json:"tick"`
	Board  string `json:"board"`
	Digest uint64 `json:"digest"`
}
