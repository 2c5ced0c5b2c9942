package piece

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCellsFitInsideBox(t *testing.T) {
	for _, s := range All {
		n := s.BoxSize()
		for rot := Spawn; rot <= Left; rot++ {
			cells := Cells(s, rot)
			seen := make(map[Point]bool)
			for _, p := range cells {
				require.True(t, p.X >= 0 && p.X < n && p.Y >= 0 && p.Y < n, "%s/%s %v", s, rot, p)
				require.False(t, seen[p], "%s/%s duplicate %v", s, rot, p)
				seen[p] = true
			}
		}
	}
}

func TestFourRotationsReturnToSpawn(t *testing.T) {
	for _, s := range All {
		rot := Spawn
		for i := 0; i < 4; i++ {
			rot = rot.CW()
		}
		require.Equal(t, Cells(s, Spawn), Cells(s, rot))
		require.Equal(t, Spawn, Spawn.CW().CCW())
	}
}

func TestTRightStatePointsRight(t *testing.T) {
	require.Equal(t, [4]Point{{1, 0}, {1, 1}, {2, 1}, {1, 2}}, Cells(T, Right))
}

func TestIVerticalStates(t *testing.T) {
	require.Equal(t, [4]Point{{2, 0}, {2, 1}, {2, 2}, {2, 3}}, Cells(I, Right))
	require.Equal(t, [4]Point{{1, 0}, {1, 1}, {1, 2}, {1, 3}}, Cells(I, Left))
}

func TestOIsRotationInvariant(t *testing.T) {
	for rot := Spawn; rot <= Left; rot++ {
		require.Equal(t, Cells(O, Spawn), Cells(O, rot))
	}
}

func TestKicksScreenCoordinates(t *testing.T) {
	k := Kicks(T, Spawn, Right)
	require.Len(t, k, 5)
	require.Equal(t, Point{0, 0}, k[0])
	// SRS (-1,+1) is one column left and one row up.
	require.Equal(t, Point{-1, -1}, k[2])
	require.Equal(t, Point{0, 2}, k[3])

	ik := Kicks(I, Spawn, Right)
	require.Equal(t, Point{1, -2}, ik[4])

	require.Equal(t, []Point{{0, 0}}, Kicks(O, Spawn, Right))
	require.Equal(t, []Point{{0, 0}}, Kicks(T, Spawn, Reverse))
}

func TestParseShape(t *testing.T) {
	for _, s := range All {
		got, err := ParseShape(s.String())
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
	_, err := ParseShape("X")
	require.Error(t, err)
}
