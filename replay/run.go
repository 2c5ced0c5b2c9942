package replay

import (
	"fmt"

	"tetris-lite/arena"
	"tetris-lite/tetris"
)

type Options struct {
	// Trace collects a digest entry whenever a board changes.
	Trace bool
}

// Run re-simulates tape from scratch. Control entries for tick T are applied
// before step T, intents for T are fed to step T, in recorded order.
func Run(tape Tape, opts Options) (*Result, error) {
	if tape.TapeVersion != TapeVersion {
		return nil, headerError("unsupported_version", "tape version %d, want %d", tape.TapeVersion, TapeVersion)
	}
	known := make(map[string]bool, len(tape.Roster))
	for _, id := range tape.Roster {
		known[id] = true
	}
	a, err := arena.New(tape.Config, tape.Roster)
	if err != nil {
		return nil, headerError("engine_init_failed", "%v", err)
	}
	if err := checkEntries(tape, known); err != nil {
		return nil, err
	}

	res := &Result{}
	last := make(map[string]uint64)
	next := 0
	for tick := uint64(0); tick < tape.Ticks; tick++ {
		inputs := make(map[string][]tetris.Intent)
		for next < len(tape.Entries) && tape.Entries[next].Tick == tick {
			e := tape.Entries[next]
			var cerr error
			switch e.Kind {
			case arena.EntryIntent:
				inputs[e.Board] = append(inputs[e.Board], e.Intent)
			case arena.EntryFreeze:
				cerr = a.Freeze(e.Board, e.Grace)
			case arena.EntryResume:
				cerr = a.Resume(e.Board)
			case arena.EntryForfeit:
				cerr = a.Forfeit(e.Board)
			}
			if cerr != nil {
				return nil, &ReplayError{Step: next, Tick: tick, Reason: "control_failed", Message: cerr.Error()}
			}
			next++
		}
		if _, err := a.Step(inputs); err != nil {
			return nil, &ReplayError{Step: next - 1, Tick: tick, Reason: "step_failed", Message: err.Error()}
		}
		if opts.Trace {
			for _, s := range a.Snapshots() {
				if d, ok := last[s.Board]; ok && d == s.Digest {
					continue
				}
				last[s.Board] = s.Digest
				res.Trace = append(res.Trace, TraceEntry{Tick: tick, Board: s.Board, Digest: s.Digest})
			}
		}
	}
	// Control entries recorded after the final step, such as a disconnect
	// between the last tick and the end of the match.
	for ; next < len(tape.Entries); next++ {
		e := tape.Entries[next]
		if e.Kind == arena.EntryIntent {
			return nil, &ReplayError{Step: next, Tick: e.Tick, Reason: "entry_after_end", Message: "intent recorded after the last simulated tick"}
		}
		switch e.Kind {
		case arena.EntryFreeze:
			_ = a.Freeze(e.Board, e.Grace)
		case arena.EntryResume:
			_ = a.Resume(e.Board)
		case arena.EntryForfeit:
			_ = a.Forfeit(e.Board)
		}
	}

	res.Ticks = a.Tick()
	res.Boards = a.Snapshots()
	res.Standings = a.Standings()
	res.Outcome = a.Result()
	if tape.Expected != nil {
		if err := verify(tape, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func checkEntries(tape Tape, known map[string]bool) error {
	var prev uint64
	for i, e := range tape.Entries {
		if e.Tick < prev {
			return &ReplayError{Step: i, Tick: e.Tick, Reason: "entry_out_of_order", Message: fmt.Sprintf("tick %d after %d", e.Tick, prev)}
		}
		prev = e.Tick
		if !known[e.Board] {
			return &ReplayError{Step: i, Tick: e.Tick, Reason: "unknown_board", Message: fmt.Sprintf("board %q is not in the roster", e.Board)}
		}
		switch e.Kind {
		case arena.EntryIntent:
			if !e.Intent.Valid() {
				return &ReplayError{Step: i, Tick: e.Tick, Reason: "bad_intent", Message: e.Intent.String()}
			}
		case arena.EntryFreeze, arena.EntryResume, arena.EntryForfeit:
		default:
			return &ReplayError{Step: i, Tick: e.Tick, Reason: "bad_entry_kind", Message: string(e.Kind)}
		}
	}
	return nil
}

func verify(tape Tape, res *Result) error {
	for _, s := range res.Boards {
		want, ok := tape.Expected.Digests[s.Board]
		if !ok {
			continue
		}
		if want != s.Digest {
			return &ReplayError{
				Step:    len(tape.Entries) - 1,
				Tick:    res.Ticks,
				Reason:  "digest_mismatch",
				Message: fmt.Sprintf("board %s digest %016x, recorded %016x", s.Board, s.Digest, want),
			}
		}
	}
	if res.Outcome != tape.Expected.Result {
		return &ReplayError{
			Step:    len(tape.Entries) - 1,
			Tick:    res.Ticks,
			Reason:  "outcome_mismatch",
			Message: fmt.Sprintf("outcome %+v, recorded %+v", res.Outcome, tape.Expected.Result),
		}
	}
	return nil
}
