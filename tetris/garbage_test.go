package tetris

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"tetris-lite/piece"
)

func TestGarbageWaitsForSpawnBoundary(t *testing.T) {
	b := newTestBoard(t, nil, piece.O, piece.O)
	_, err := b.Step(0, nil)
	require.NoError(t, err)

	require.NoError(t, b.QueueGarbage(GarbageInstruction{Source: "p2", Target: "p1", Rows: 2, Holes: []int{3}}))
	require.Equal(t, 2, b.PendingRows())
	stepBoard(t, b)
	require.Equal(t, 0, b.StackHeight(), "nothing materialises mid-piece")

	stepBoard(t, b, IntentHardDrop)
	require.Equal(t, 0, b.PendingRows())
	for _, y := range []int{18, 19} {
		for x := 0; x < 10; x++ {
			want := CellGarbage
			if x == 3 {
				want = CellEmpty
			}
			require.Equal(t, want, b.CellAt(x, y), "(%d,%d)", x, y)
		}
	}
	// The locked O was lifted by two rows.
	require.Equal(t, Cell(piece.O), b.CellAt(4, 17))
	require.Equal(t, Cell(piece.O), b.CellAt(5, 16))
	require.Equal(t, 4, b.StackHeight())
}

func TestGarbageOverflowTopsOut(t *testing.T) {
	b := newTestBoard(t, func(r *Rules) { r.Height = 8 }, piece.O, piece.O)
	_, err := b.Step(0, nil)
	require.NoError(t, err)

	require.NoError(t, b.QueueGarbage(GarbageInstruction{Rows: 7, Holes: []int{0}}))
	stepBoard(t, b, IntentHardDrop)
	require.True(t, b.ToppedOut())
	require.Equal(t, TopOutGarbageOverflow, b.TopOutReason())
	require.Equal(t, 2, b.StackHeight(), "overflowing garbage is not written")
}

func TestGarbageOverflowCapDiscardsRemainder(t *testing.T) {
	b := newTestBoard(t, func(r *Rules) {
		r.Height = 8
		r.Overflow = OverflowCap
	}, piece.O, piece.O)
	_, err := b.Step(0, nil)
	require.NoError(t, err)

	require.NoError(t, b.QueueGarbage(GarbageInstruction{Rows: 3, Holes: []int{0}}))
	require.NoError(t, b.QueueGarbage(GarbageInstruction{Rows: 9, Holes: []int{0}}))
	stepBoard(t, b, IntentHardDrop)

	require.Equal(t, 8, b.StackHeight())
	require.Equal(t, 0, b.PendingRows())
	require.True(t, b.ToppedOut())
	require.Equal(t, TopOutBlockedSpawn, b.TopOutReason())
}

func TestCancelGarbageOldestFirst(t *testing.T) {
	b := newTestBoard(t, nil)
	require.NoError(t, b.QueueGarbage(GarbageInstruction{Source: "a", Rows: 3}))
	require.NoError(t, b.QueueGarbage(GarbageInstruction{Source: "b", Rows: 2}))

	require.Equal(t, 0, b.CancelGarbage(4))
	pending := b.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, "b", pending[0].Source)
	require.Equal(t, 1, pending[0].Rows)

	require.Equal(t, 4, b.CancelGarbage(5))
	require.Empty(t, b.Pending())
}

func TestQueueGarbageValidation(t *testing.T) {
	b := newTestBoard(t, nil)
	require.True(t, errors.Is(b.QueueGarbage(GarbageInstruction{Rows: 0}), ErrBadGarbage))
	require.True(t, errors.Is(b.QueueGarbage(GarbageInstruction{Rows: 1, Holes: []int{10}}), ErrBadGarbage))

	b.ForceTopOut(TopOutForfeit)
	require.ErrorIs(t, b.QueueGarbage(GarbageInstruction{Rows: 1}), ErrToppedOut)
}

func TestGarbageWithoutHolesUsesBoardRNG(t *testing.T) {
	holeOf := func(seed int64) int {
		rules := DefaultRules()
		rules.Sequence = []piece.Shape{piece.O, piece.O}
		b, err := NewBoard("x", rules, seed)
		require.NoError(t, err)
		_, err = b.Step(0, nil)
		require.NoError(t, err)
		require.NoError(t, b.QueueGarbage(GarbageInstruction{Rows: 1}))
		stepBoard(t, b, IntentMoveLeft, IntentMoveLeft, IntentMoveLeft, IntentMoveLeft, IntentHardDrop)
		holes := 0
		at := -1
		for x := 0; x < 10; x++ {
			if b.CellAt(x, 19) == CellEmpty {
				holes++
				at = x
			}
		}
		require.Equal(t, 1, holes)
		return at
	}
	require.Equal(t, holeOf(11), holeOf(11))
}
