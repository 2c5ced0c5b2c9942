package tetris

import (
	"fmt"
	"math/rand"

	"tetris-lite/piece"
)

const holeSeedSalt int64 = 0x5bd1e995

// Board is one player's authoritative playfield. It is not safe for
// concurrent use; a match drives all of its boards from one goroutine.
type Board struct {
	id    string
	rules Rules
	bag   *piece.Bag
	holes *rand.Rand

	grid  [][]Cell // [y][x], y=0 is the top row
	phase Phase
	tick  uint64

	active    ActivePiece
	hasActive bool
	hold      piece.Shape
	holdUsed  bool
	preview   []piece.Shape

	score      int64
	level      int
	lines      int
	combo      int
	backToBack int
	pieces     int

	lastAllClear bool
	lastRotate   bool
	lastKick     int

	gravity     int
	lockTimer   int
	lockResets  int
	lockPending bool
	lowest      int // lowest row the active piece has rested on

	pending []GarbageInstruction
	frozen  bool
	topOut  string
}

// NewBoard validates rules and returns an empty board in PhaseSpawning. The
// first piece appears on the first Settle.
func NewBoard(id string, rules Rules, seed int64) (*Board, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	b := &Board{
		id:    id,
		rules: rules,
		bag:   piece.NewSequenceBag(seed, rules.Sequence),
		holes: rand.New(rand.NewSource(seed ^ holeSeedSalt)),
		grid:  make([][]Cell, rules.Height),
		phase: PhaseSpawning,
		level: rules.StartLevel,
	}
	for y := range b.grid {
		b.grid[y] = make([]Cell, rules.Width)
	}
	b.preview = b.bag.Fill(nil, rules.PreviewDepth)
	return b, nil
}

func (b *Board) ID() string           { return b.id }
func (b *Board) Rules() Rules         { return b.rules }
func (b *Board) Phase() Phase         { return b.phase }
func (b *Board) Tick() uint64         { return b.tick }
func (b *Board) Score() int64         { return b.score }
func (b *Board) Level() int           { return b.level }
func (b *Board) Lines() int           { return b.lines }
func (b *Board) Combo() int           { return b.combo }
func (b *Board) BackToBack() int      { return b.backToBack }
func (b *Board) Pieces() int          { return b.pieces }
func (b *Board) Frozen() bool         { return b.frozen }
func (b *Board) ToppedOut() bool      { return b.phase == PhaseToppedOut }
func (b *Board) TopOutReason() string { return b.topOut }
func (b *Board) Hold() piece.Shape    { return b.hold }

// Active returns the falling piece, if any.
func (b *Board) Active() (ActivePiece, bool) { return b.active, b.hasActive }

func (b *Board) Preview() []piece.Shape {
	out := make([]piece.Shape, len(b.preview))
	copy(out, b.preview)
	return out
}

func (b *Board) CellAt(x, y int) Cell {
	if !b.inBounds(x, y) {
		return CellEmpty
	}
	return b.grid[y][x]
}

// StackHeight is the number of rows from the floor up to and including the
// highest occupied row.
func (b *Board) StackHeight() int {
	for y, row := range b.grid {
		for _, c := range row {
			if c != CellEmpty {
				return b.rules.Height - y
			}
		}
	}
	return 0
}

// Apply validates and applies a single intent. A rejected intent returns
// false and leaves the board unchanged.
func (b *Board) Apply(in Intent) bool {
	if b.frozen || !b.hasActive || b.lockPending {
		return false
	}
	if b.phase != PhaseFalling && b.phase != PhaseLocking {
		return false
	}
	switch in {
	case IntentMoveLeft:
		return b.shift(-1)
	case IntentMoveRight:
		return b.shift(1)
	case IntentRotateCW:
		return b.rotate(b.active.Rot.CW())
	case IntentRotateCCW:
		return b.rotate(b.active.Rot.CCW())
	case IntentSoftDrop:
		return b.softDrop()
	case IntentHardDrop:
		b.hardDrop()
		return true
	case IntentHold:
		return b.holdPiece()
	}
	return false
}

// Advance runs the first half of a simulation step: queued intents oldest
// first, then gravity and lock timers, then lock, line clear and scoring. It
// returns a LockEvent when the active piece locked during this step.
func (b *Board) Advance(tick uint64, intents []Intent) (*LockEvent, error) {
	b.tick = tick
	if b.frozen || !b.hasActive || b.phase == PhaseToppedOut {
		return nil, nil
	}
	for _, in := range intents {
		if b.lockPending || !b.hasActive {
			break
		}
		b.Apply(in)
	}
	if !b.hasActive {
		// hold into a blocked spawn
		return nil, nil
	}
	if !b.lockPending {
		b.fall()
	}
	if !b.lockPending {
		return nil, nil
	}
	return b.lock()
}

// Settle runs the second half of a step. At the Spawning boundary pending
// garbage is materialised and the next piece spawns. A blocked spawn tops
// the board out.
func (b *Board) Settle(tick uint64) {
	b.tick = tick
	if b.phase != PhaseSpawning || b.frozen {
		return
	}
	if len(b.pending) > 0 {
		b.materialize()
		if b.phase == PhaseToppedOut {
			return
		}
	}
	b.spawn(b.nextShape())
}

// Step runs Advance and Settle back to back. Used when a board is simulated
// on its own.
func (b *Board) Step(tick uint64, intents []Intent) (*LockEvent, error) {
	ev, err := b.Advance(tick, intents)
	if err != nil {
		return nil, err
	}
	b.Settle(tick)
	return ev, b.CheckInvariants()
}

// Freeze suspends the board. Intents are dropped and timers stop until
// Unfreeze.
func (b *Board) Freeze()   { b.frozen = true }
func (b *Board) Unfreeze() { b.frozen = false }

// ForceTopOut ends the board without a collision, for forfeits.
func (b *Board) ForceTopOut(reason string) {
	if b.phase == PhaseToppedOut {
		return
	}
	b.topOutNow(reason)
}

func (b *Board) topOutNow(reason string) {
	b.phase = PhaseToppedOut
	b.topOut = reason
	b.hasActive = false
	b.active = ActivePiece{}
	b.lockPending = false
}

func (b *Board) nextShape() piece.Shape {
	if b.rules.PreviewDepth == 0 {
		return b.bag.Next()
	}
	s := b.preview[0]
	b.preview = b.bag.Fill(b.preview[1:], b.rules.PreviewDepth)
	return s
}

func (b *Board) spawn(shape piece.Shape) bool {
	p := ActivePiece{
		Shape: shape,
		Rot:   piece.Spawn,
		X:     (b.rules.Width - shape.BoxSize()) / 2,
	}
	b.active = p
	b.hasActive = true
	b.gravity = 0
	b.lockTimer = 0
	b.lockResets = 0
	b.lockPending = false
	b.lowest = -1
	b.lastRotate = false
	b.lastKick = 0
	if b.collides(p) {
		b.topOutNow(TopOutBlockedSpawn)
		return false
	}
	b.phase = PhaseFalling
	return true
}

func (b *Board) inBounds(x, y int) bool {
	return x >= 0 && x < b.rules.Width && y >= 0 && y < b.rules.Height
}

func (b *Board) collides(p ActivePiece) bool {
	for _, c := range p.Cells() {
		if !b.inBounds(c.X, c.Y) || b.grid[c.Y][c.X] != CellEmpty {
			return true
		}
	}
	return false
}

func (b *Board) fits(dx, dy int) bool {
	next := b.active
	next.X += dx
	next.Y += dy
	return !b.collides(next)
}

func (b *Board) shift(dx int) bool {
	if !b.fits(dx, 0) {
		return false
	}
	b.active.X += dx
	b.lastRotate = false
	b.resetLock()
	return true
}

func (b *Board) rotate(to piece.Rotation) bool {
	if b.active.Shape == piece.O {
		return false
	}
	for i, k := range piece.Kicks(b.active.Shape, b.active.Rot, to) {
		next := b.active
		next.Rot = to
		next.X += k.X
		next.Y += k.Y
		if b.collides(next) {
			continue
		}
		b.active = next
		b.lastRotate = true
		b.lastKick = i
		b.resetLock()
		return true
	}
	return false
}

// resetLock restarts the lock timer after a successful move while grounded,
// at most MaxLockResets times per piece.
func (b *Board) resetLock() {
	if b.phase != PhaseLocking {
		return
	}
	if b.lockResets < b.rules.MaxLockResets {
		b.lockResets++
		b.lockTimer = b.rules.LockDelayTicks
	}
}

func (b *Board) softDrop() bool {
	if !b.fits(0, 1) {
		return false
	}
	b.active.Y++
	b.lastRotate = false
	b.gravity = 0
	b.score += b.rules.Score.SoftDropPerCell
	return true
}

func (b *Board) hardDrop() {
	dropped := 0
	for b.fits(0, 1) {
		b.active.Y++
		dropped++
	}
	if dropped > 0 {
		b.lastRotate = false
	}
	b.score += int64(dropped) * b.rules.Score.HardDropPerCell
	b.lockPending = true
}

func (b *Board) holdPiece() bool {
	if !b.rules.HoldEnabled || b.holdUsed {
		return false
	}
	next := b.hold
	if next == piece.ShapeNone {
		next = b.nextShape()
	}
	b.hold = b.active.Shape
	b.holdUsed = true
	b.spawn(next)
	return true
}

func (b *Board) fall() {
	grounded := !b.fits(0, 1)
	switch b.phase {
	case PhaseFalling:
		if grounded {
			b.enterLocking()
			return
		}
		b.gravity++
		if b.gravity < b.rules.gravityInterval(b.level) {
			return
		}
		b.gravity = 0
		b.active.Y++
		b.lastRotate = false
		if !b.fits(0, 1) {
			b.enterLocking()
		}
	case PhaseLocking:
		if !grounded {
			b.phase = PhaseFalling
			b.gravity = 0
			return
		}
		b.lockTimer--
		if b.lockTimer <= 0 {
			b.lockPending = true
		}
	}
}

// enterLocking grounds the piece. Reaching a new lowest row restores the
// full delay and reset budget; touching down again at or above it spends a
// reset, and with none left the piece locks at once.
func (b *Board) enterLocking() {
	b.phase = PhaseLocking
	bottom := b.active.bottom()
	switch {
	case bottom > b.lowest:
		b.lowest = bottom
		b.lockResets = 0
		b.lockTimer = b.rules.LockDelayTicks
	case b.lockResets < b.rules.MaxLockResets:
		b.lockResets++
		b.lockTimer = b.rules.LockDelayTicks
	default:
		b.lockTimer = 0
	}
	if b.lockTimer <= 0 {
		b.lockPending = true
	}
}

func (b *Board) lock() (*LockEvent, error) {
	tspin, mini := b.detectTSpin()
	cells := b.active.Cells()
	for _, c := range cells {
		if !b.inBounds(c.X, c.Y) || b.grid[c.Y][c.X] != CellEmpty {
			return nil, b.invariant("locking %s overlaps stack at (%d,%d)", b.active.Shape, c.X, c.Y)
		}
	}
	shape := b.active.Shape
	for _, c := range cells {
		b.grid[c.Y][c.X] = Cell(shape)
	}
	b.hasActive = false
	b.active = ActivePiece{}
	b.lockPending = false
	b.holdUsed = false
	b.pieces++

	b.phase = PhaseClearing
	rows := b.clearRows()
	ev := b.resolveClear(shape, rows, tspin, mini)
	b.phase = PhaseSpawning
	return ev, nil
}

// clearRows removes every full row and returns their indices, top first.
func (b *Board) clearRows() []int {
	var cleared []int
	kept := make([][]Cell, 0, len(b.grid))
	for y, row := range b.grid {
		if rowFull(row) {
			cleared = append(cleared, y)
			continue
		}
		kept = append(kept, row)
	}
	if len(cleared) == 0 {
		return nil
	}
	grid := make([][]Cell, 0, len(b.grid))
	for range cleared {
		grid = append(grid, make([]Cell, b.rules.Width))
	}
	b.grid = append(grid, kept...)
	return cleared
}

func rowFull(row []Cell) bool {
	for _, c := range row {
		if c == CellEmpty {
			return false
		}
	}
	return true
}

func (b *Board) empty() bool {
	for _, row := range b.grid {
		for _, c := range row {
			if c != CellEmpty {
				return false
			}
		}
	}
	return true
}

// blocked treats walls and floor as filled; the space above the top row is
// open.
func (b *Board) blocked(x, y int) bool {
	if x < 0 || x >= b.rules.Width || y >= b.rules.Height {
		return true
	}
	if y < 0 {
		return false
	}
	return b.grid[y][x] != CellEmpty
}

var tCorners = [4]piece.Point{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}

// front corner pair per rotation, indexes into tCorners
var tFront = [4][2]int{
	piece.Spawn:   {0, 1},
	piece.Right:   {1, 2},
	piece.Reverse: {2, 3},
	piece.Left:    {3, 0},
}

// detectTSpin applies the three-corner rule. A T-spin whose two front
// corners are not both filled is a mini, unless the last kick test was used.
func (b *Board) detectTSpin() (tspin, mini bool) {
	if b.active.Shape != piece.T || !b.lastRotate {
		return false, false
	}
	cx, cy := b.active.X+1, b.active.Y+1
	var filled [4]bool
	count := 0
	for i, c := range tCorners {
		if b.blocked(cx+c.X, cy+c.Y) {
			filled[i] = true
			count++
		}
	}
	if count < 3 {
		return false, false
	}
	front := tFront[b.active.Rot&3]
	if !(filled[front[0]] && filled[front[1]]) && b.lastKick != 4 {
		return true, true
	}
	return true, false
}

// CheckInvariants verifies grid dimensions, cell values and that the active
// piece sits inside the board without overlapping the stack.
func (b *Board) CheckInvariants() error {
	if len(b.grid) != b.rules.Height {
		return b.invariant("grid has %d rows, want %d", len(b.grid), b.rules.Height)
	}
	for y, row := range b.grid {
		if len(row) != b.rules.Width {
			return b.invariant("row %d has %d cells, want %d", y, len(row), b.rules.Width)
		}
		for x, c := range row {
			if c > CellGarbage {
				return b.invariant("cell (%d,%d) holds unknown value %d", x, y, c)
			}
		}
	}
	live := b.phase == PhaseFalling || b.phase == PhaseLocking
	if live != b.hasActive {
		return b.invariant("phase %s with active piece=%v", b.phase, b.hasActive)
	}
	if b.hasActive && b.collides(b.active) {
		return b.invariant("active %s at (%d,%d) collides", b.active.Shape, b.active.X, b.active.Y)
	}
	return nil
}

func (b *Board) invariant(format string, args ...any) error {
	return &InvariantError{Board: b.id, Tick: b.tick, Detail: fmt.Sprintf(format, args...)}
}
