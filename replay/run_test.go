package replay

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"tetris-lite/arena"
	"tetris-lite/attack"
	"tetris-lite/tetris"
)

func liveMatch(t *testing.T, seed int64, ticks int) *arena.Arena {
	t.Helper()
	cfg := arena.Config{
		Rules:          tetris.DefaultRules(),
		Attack:         attack.DefaultConfig(),
		Seed:           seed,
		SharedSequence: true,
	}
	a, err := arena.New(cfg, []string{"a", "b", "c"})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < ticks && !a.Result().Done; i++ {
		inputs := make(map[string][]tetris.Intent)
		for _, id := range a.Roster() {
			if rng.Intn(4) == 0 {
				inputs[id] = append(inputs[id], tetris.Intent(1+rng.Intn(7)))
			}
		}
		if i == 50 {
			require.NoError(t, a.Freeze("b", 30))
		}
		if i == 70 {
			require.NoError(t, a.Resume("b"))
		}
		if i == 200 {
			require.NoError(t, a.Freeze("c", 5))
		}
		_, err := a.Step(inputs)
		require.NoError(t, err)
	}
	return a
}

func TestRunReproducesLiveMatch(t *testing.T) {
	a := liveMatch(t, 2024, 3000)
	tape := Record("m1", a)

	res, err := Run(tape, Options{})
	require.NoError(t, err)
	require.Equal(t, a.Snapshots(), res.Boards)
	require.Equal(t, a.Result(), res.Outcome)
	require.Equal(t, a.Standings(), res.Standings)
	require.Equal(t, a.Tick(), res.Ticks)
}

func TestRunIsDeterministic(t *testing.T) {
	tape := Record("m1", liveMatch(t, 7, 800))
	first, err := Run(tape, Options{Trace: true})
	require.NoError(t, err)
	second, err := Run(tape, Options{Trace: true})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.NotEmpty(t, first.Trace)
}

func TestTapeSurvivesJSON(t *testing.T) {
	tape := Record("m1", liveMatch(t, 99, 600))
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, tape))
	decoded, err := Decode(&buf)
	require.NoError(t, err)

	_, err = Run(decoded, Options{})
	require.NoError(t, err)
}

func TestRunDetectsTamperedTape(t *testing.T) {
	tape := Record("m1", liveMatch(t, 5, 600))
	for i, e := range tape.Entries {
		if e.Kind == arena.EntryIntent && e.Tick > 0 && e.Intent != tetris.IntentHardDrop {
			tape.Entries[i].Intent = tetris.IntentHardDrop
			break
		}
	}
	_, err := Run(tape, Options{})
	var rerr *ReplayError
	require.True(t, errors.As(err, &rerr))
	require.Contains(t, []string{"digest_mismatch", "outcome_mismatch"}, rerr.Reason)
}

func TestRunRejectsBadTapes(t *testing.T) {
	base := Record("m1", liveMatch(t, 5, 100))

	cases := []struct {
		name   string
		mutate func(*Tape)
		reason string
	}{
		{"version", func(tp *Tape) { tp.TapeVersion = 9 }, "unsupported_version"},
		{"roster", func(tp *Tape) { tp.Roster = nil }, "engine_init_failed"},
		{"order", func(tp *Tape) {
			tp.Entries = append(tp.Entries, arena.TapeEntry{Tick: 0, Board: "a", Kind: arena.EntryIntent, Intent: tetris.IntentHold})
		}, "entry_out_of_order"},
		{"board", func(tp *Tape) {
			tp.Entries = append([]arena.TapeEntry{{Tick: 0, Board: "zz", Kind: arena.EntryIntent, Intent: tetris.IntentHold}}, tp.Entries...)
		}, "unknown_board"},
		{"intent", func(tp *Tape) {
			tp.Entries = append([]arena.TapeEntry{{Tick: 0, Board: "a", Kind: arena.EntryIntent}}, tp.Entries...)
		}, "bad_intent"},
		{"kind", func(tp *Tape) {
			tp.Entries = append([]arena.TapeEntry{{Tick: 0, Board: "a", Kind: "teleport"}}, tp.Entries...)
		}, "bad_entry_kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tape := base
			tape.Entries = append([]arena.TapeEntry(nil), base.Entries...)
			tc.mutate(&tape)
			_, err := Run(tape, Options{})
			var rerr *ReplayError
			require.True(t, errors.As(err, &rerr), "got %v", err)
			require.Equal(t, tc.reason, rerr.Reason)
		})
	}
}
