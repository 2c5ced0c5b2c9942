package piece

// Rotation is one of the four SRS orientation states.
type Rotation byte

const (
	Spawn Rotation = iota
	Right
	Reverse
	Left
)

func (r Rotation) CW() Rotation  { return (r + 1) & 3 }
func (r Rotation) CCW() Rotation { return (r + 3) & 3 }

func (r Rotation) String() string {
	switch r & 3 {
	case Spawn:
		return "0"
	case Right:
		return "R"
	case Reverse:
		return "2"
	}
	return "L"
}

// Point is a cell offset inside a shape's bounding box, or a kick offset.
// X grows to the right and Y grows downward.
type Point struct {
	X, Y int
}

var spawnCells = map[Shape][4]Point{
	I: {{0, 1}, {1, 1}, {2, 1}, {3, 1}},
	O: {{0, 0}, {1, 0}, {0, 1}, {1, 1}},
	T: {{1, 0}, {0, 1}, {1, 1}, {2, 1}},
	S: {{1, 0}, {2, 0}, {0, 1}, {1, 1}},
	Z: {{0, 0}, {1, 0}, {1, 1}, {2, 1}},
	J: {{0, 0}, {0, 1}, {1, 1}, {2, 1}},
	L: {{2, 0}, {0, 1}, {1, 1}, {2, 1}},
}

// cellTable is indexed [shape][rotation].
var cellTable [L + 1][4][4]Point

func init() {
	for shape, cells := range spawnCells {
		n := shape.BoxSize()
		cur := cells
		for rot := Spawn; rot <= Left; rot++ {
			cellTable[shape][rot] = sortCells(cur)
			var next [4]Point
			for i, p := range cur {
				next[i] = Point{X: n - 1 - p.Y, Y: p.X}
			}
			cur = next
		}
	}
}

func sortCells(cells [4]Point) [4]Point {
	for i := 1; i < len(cells); i++ {
		for j := i; j > 0; j-- {
			a, b := cells[j-1], cells[j]
			if a.Y < b.Y || (a.Y == b.Y && a.X <= b.X) {
				break
			}
			cells[j-1], cells[j] = b, a
		}
	}
	return cells
}

// Cells returns the four occupied offsets of shape in rotation rot, ordered
// top-to-bottom then left-to-right. An invalid shape yields the zero array.
func Cells(shape Shape, rot Rotation) [4]Point {
	if !shape.Valid() {
		return [4]Point{}
	}
	return cellTable[shape][rot&3]
}
