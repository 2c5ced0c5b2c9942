package piece

import "fmt"

// Shape identifies one of the seven tetrominoes. The numeric value doubles as
// the colour id written into locked board cells, so zero is reserved for empty.
type Shape byte

const (
	ShapeNone Shape = iota
	I
	O
	T
	S
	Z
	J
	L
)

// All lists the closed shape set in canonical order. Bags are shuffled from it.
var All = [7]Shape{I, O, T, S, Z, J, L}

func (s Shape) Valid() bool { return s >= I && s <= L }

func (s Shape) String() string {
	switch s {
	case I:
		return "I"
	case O:
		return "O"
	case T:
		return "T"
	case S:
		return "S"
	case Z:
		return "Z"
	case J:
		return "J"
	case L:
		return "L"
	case ShapeNone:
		return "-"
	}
	return fmt.Sprintf("Shape(%d)", byte(s))
}

// ParseShape maps a single-letter name back to its shape.
func ParseShape(name string) (Shape, error) {
	for _, s := range All {
		if s.String() == name {
			return s, nil
		}
	}
	return ShapeNone, fmt.Errorf("piece: unknown shape %q", name)
}

// BoxSize is the edge of the square bounding box the shape rotates inside.
func (s Shape) BoxSize() int {
	switch s {
	case I:
		return 4
	case O:
		return 2
	case ShapeNone:
		return 0
	}
	return 3
}
