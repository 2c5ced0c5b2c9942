package piece

// The SRS reference tables are published with Y growing upward. They are kept
// in that form here and flipped on lookup.
type kickKey struct {
	from, to Rotation
}

var jlstzKicks = map[kickKey][5]Point{
	{Spawn, Right}:   {{0, 0}, {-1, 0}, {-1, 1}, {0, -2}, {-1, -2}},
	{Right, Spawn}:   {{0, 0}, {1, 0}, {1, -1}, {0, 2}, {1, 2}},
	{Right, Reverse}: {{0, 0}, {1, 0}, {1, -1}, {0, 2}, {1, 2}},
	{Reverse, Right}: {{0, 0}, {-1, 0}, {-1, 1}, {0, -2}, {-1, -2}},
	{Reverse, Left}:  {{0, 0}, {1, 0}, {1, 1}, {0, -2}, {1, -2}},
	{Left, Reverse}:  {{0, 0}, {-1, 0}, {-1, -1}, {0, 2}, {-1, 2}},
	{Left, Spawn}:    {{0, 0}, {-1, 0}, {-1, -1}, {0, 2}, {-1, 2}},
	{Spawn, Left}:    {{0, 0}, {1, 0}, {1, 1}, {0, -2}, {1, -2}},
}

var iKicks = map[kickKey][5]Point{
	{Spawn, Right}:   {{0, 0}, {-2, 0}, {1, 0}, {-2, -1}, {1, 2}},
	{Right, Spawn}:   {{0, 0}, {2, 0}, {-1, 0}, {2, 1}, {-1, -2}},
	{Right, Reverse}: {{0, 0}, {-1, 0}, {2, 0}, {-1, 2}, {2, -1}},
	{Reverse, Right}: {{0, 0}, {1, 0}, {-2, 0}, {1, -2}, {-2, 1}},
	{Reverse, Left}:  {{0, 0}, {2, 0}, {-1, 0}, {2, 1}, {-1, -2}},
	{Left, Reverse}:  {{0, 0}, {-2, 0}, {1, 0}, {-2, -1}, {1, 2}},
	{Left, Spawn}:    {{0, 0}, {1, 0}, {-2, 0}, {1, -2}, {-2, 1}},
	{Spawn, Left}:    {{0, 0}, {-1, 0}, {2, 0}, {-1, 2}, {2, -1}},
}

// Kicks returns the ordered translation offsets to try when rotating shape
// from one state to an adjacent one. The first offset is always (0,0). O and
// non-adjacent transitions only get (0,0).
func Kicks(shape Shape, from, to Rotation) []Point {
	from, to = from&3, to&3
	var table map[kickKey][5]Point
	switch shape {
	case I:
		table = iKicks
	case J, L, S, T, Z:
		table = jlstzKicks
	default:
		return []Point{{0, 0}}
	}
	tests, ok := table[kickKey{from, to}]
	if !ok {
		return []Point{{0, 0}}
	}
	out := make([]Point, len(tests))
	for i, p := range tests {
		out[i] = Point{X: p.X, Y: -p.Y}
	}
	return out
}
