package tetris

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffApplyReproducesSnapshot(t *testing.T) {
	b, err := NewBoard("p1", DefaultRules(), 5)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(9))

	_, err = b.Step(0, nil)
	require.NoError(t, err)
	prev := b.Snapshot()
	for tick := uint64(1); tick < 1500 && !b.ToppedOut(); tick++ {
		var in []Intent
		if rng.Intn(3) == 0 {
			in = append(in, Intent(1+rng.Intn(7)))
		}
		_, err := b.Step(tick, in)
		require.NoError(t, err)
		next := b.Snapshot()

		d, err := Diff(prev, next)
		require.NoError(t, err)
		got, err := prev.ApplyDelta(d)
		require.NoError(t, err)
		require.Equal(t, next, got, "tick %d", tick)
		prev = next
	}
}

func TestApplyDeltaRejectsBadDigest(t *testing.T) {
	b := newTestBoard(t, nil)
	_, err := b.Step(0, nil)
	require.NoError(t, err)
	prev := b.Snapshot()
	stepBoard(t, b, IntentHardDrop)

	d, err := Diff(prev, b.Snapshot())
	require.NoError(t, err)
	require.NotEmpty(t, d.Rows)
	d.Score++
	_, err = prev.ApplyDelta(d)
	require.True(t, errors.Is(err, ErrDigestMismatch))
}

func TestDigestIgnoresTick(t *testing.T) {
	b := newTestBoard(t, nil)
	_, err := b.Step(0, nil)
	require.NoError(t, err)
	b.Freeze()
	d1 := b.Digest()
	stepBoard(t, b)
	require.Equal(t, d1, b.Digest())
	b.Unfreeze()
	require.NotEqual(t, d1, b.Digest())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	b := newTestBoard(t, nil)
	_, err := b.Step(0, nil)
	require.NoError(t, err)
	s := b.Snapshot()
	s.Grid[0] = CellGarbage
	s.Preview[0] = 0
	require.Equal(t, CellEmpty, b.CellAt(0, 0))
	require.NotEqual(t, s.Preview[0], b.Preview()[0])
}

func TestDiffRejectsGeometryChange(t *testing.T) {
	a := Snapshot{Width: 10, Height: 20}
	c := Snapshot{Width: 8, Height: 20}
	_, err := Diff(a, c)
	require.ErrorIs(t, err, ErrGeometry)
}

func TestRender(t *testing.T) {
	b := newTestBoard(t, func(r *Rules) { r.Height = 4; r.Width = 4 })
	_, err := b.Step(0, nil)
	require.NoError(t, err)
	out := b.Snapshot().Render()
	require.Len(t, out, 4*5)
	require.Contains(t, out, "@")
}
