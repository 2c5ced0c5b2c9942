package piece

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextPieceEachBagIsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var state BagState
	for bag := 0; bag < 50; bag++ {
		seen := make(map[Shape]int)
		for i := 0; i < len(All); i++ {
			var s Shape
			s, state = NextPiece(state, rng)
			require.True(t, s.Valid())
			seen[s]++
		}
		require.Len(t, seen, len(All), "bag %d", bag)
		for s, n := range seen {
			require.Equal(t, 1, n, "bag %d dealt %s twice", bag, s)
		}
		require.Empty(t, state.Remaining)
	}
}

func TestNextPieceDoesNotMutateInput(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, state := NextPiece(BagState{}, rng)
	before := append([]Shape(nil), state.Remaining...)
	_, _ = NextPiece(state, rng)
	require.Equal(t, before, state.Remaining)
}

func TestBagGapBetweenRepeatsIsBounded(t *testing.T) {
	b := NewBag(7)
	last := make(map[Shape]int)
	for i := 0; i < 7000; i++ {
		s := b.Next()
		if prev, ok := last[s]; ok {
			require.LessOrEqual(t, i-prev-1, 12, "gap for %s at draw %d", s, i)
		}
		last[s] = i
	}
}

func TestBagSameSeedSameSequence(t *testing.T) {
	a, b := NewBag(99), NewBag(99)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Next(), b.Next())
	}
}

func TestSequenceBagFallsBackToShuffle(t *testing.T) {
	b := NewSequenceBag(3, []Shape{I, I, ShapeNone, O})
	require.Equal(t, I, b.Next())
	require.Equal(t, I, b.Next())
	require.Equal(t, O, b.Next())

	// The shuffled tail matches an untouched bag with the same seed.
	ref := NewBag(3)
	for i := 0; i < 14; i++ {
		require.Equal(t, ref.Next(), b.Next())
	}
	require.EqualValues(t, 17, b.Dealt())
}

func TestBagFill(t *testing.T) {
	b := NewBag(5)
	q := b.Fill(nil, 5)
	require.Len(t, q, 5)
	q = b.Fill(q[1:], 5)
	require.Len(t, q, 5)

	all := append([]Shape(nil), q...)
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for _, s := range all {
		require.True(t, s.Valid())
	}
}
