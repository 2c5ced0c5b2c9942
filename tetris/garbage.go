package tetris

import "fmt"

// QueueGarbage appends an attack to the pending queue. Nothing touches the
// grid until the next Spawning boundary.
func (b *Board) QueueGarbage(g GarbageInstruction) error {
	if b.phase == PhaseToppedOut {
		return ErrToppedOut
	}
	if g.Rows <= 0 {
		return fmt.Errorf("%w: %d rows", ErrBadGarbage, g.Rows)
	}
	for _, h := range g.Holes {
		if h < 0 || h >= b.rules.Width {
			return fmt.Errorf("%w: hole column %d outside 0..%d", ErrBadGarbage, h, b.rules.Width-1)
		}
	}
	g.Holes = append([]int(nil), g.Holes...)
	b.pending = append(b.pending, g)
	return nil
}

// CancelGarbage removes up to rows pending rows, oldest first, and returns
// the rows left over.
func (b *Board) CancelGarbage(rows int) int {
	for rows > 0 && len(b.pending) > 0 {
		head := &b.pending[0]
		if head.Rows > rows {
			head.Rows -= rows
			return 0
		}
		rows -= head.Rows
		b.pending = b.pending[1:]
	}
	return rows
}

func (b *Board) PendingRows() int {
	n := 0
	for _, g := range b.pending {
		n += g.Rows
	}
	return n
}

func (b *Board) Pending() []GarbageInstruction {
	out := make([]GarbageInstruction, len(b.pending))
	copy(out, b.pending)
	return out
}

// headroom counts the fully empty rows above the stack.
func (b *Board) headroom() int {
	for y, row := range b.grid {
		for _, c := range row {
			if c != CellEmpty {
				return y
			}
		}
	}
	return len(b.grid)
}

func (b *Board) materialize() {
	pending := b.pending
	b.pending = nil
	for _, g := range pending {
		rows := g.Rows
		if room := b.headroom(); rows > room {
			if b.rules.Overflow == OverflowTopOut {
				b.topOutNow(TopOutGarbageOverflow)
				return
			}
			rows = room
		}
		if rows == 0 {
			continue
		}
		holes := g.Holes
		if len(holes) == 0 {
			holes = []int{b.holes.Intn(b.rules.Width)}
		}
		grid := make([][]Cell, 0, len(b.grid))
		grid = append(grid, b.grid[rows:]...)
		for i := 0; i < rows; i++ {
			row := make([]Cell, b.rules.Width)
			for x := range row {
				row[x] = CellGarbage
			}
			for _, h := range holes {
				row[h] = CellEmpty
			}
			grid = append(grid, row)
		}
		b.grid = grid
	}
}
