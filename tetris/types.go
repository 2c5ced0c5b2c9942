package tetris

import (
	"fmt"

	"tetris-lite/piece"
)

// Cell is one grid square. Zero is empty; 1..7 carry the colour of the shape
// that locked there; CellGarbage marks rows pushed in by opponents.
type Cell byte

const (
	CellEmpty   Cell = 0
	CellGarbage Cell = 8
)

// Phase is the board lifecycle state.
type Phase byte

const (
	PhaseSpawning  Phase = 0
	PhaseFalling   Phase = 1
	PhaseLocking   Phase = 2
	PhaseClearing  Phase = 3
	PhaseToppedOut Phase = 4
)

var PhaseDictionary = map[Phase]string{
	PhaseSpawning:  "spawning",
	PhaseFalling:   "falling",
	PhaseLocking:   "locking",
	PhaseClearing:  "clearing",
	PhaseToppedOut: "topped_out",
}

func (p Phase) String() string {
	if s, ok := PhaseDictionary[p]; ok {
		return s
	}
	return fmt.Sprintf("phase(%d)", byte(p))
}

// Intent is a discrete player command. The numeric values are part of the
// wire protocol.
type Intent byte

const (
	IntentNone      Intent = 0
	IntentMoveLeft  Intent = 1
	IntentMoveRight Intent = 2
	IntentRotateCW  Intent = 3
	IntentRotateCCW Intent = 4
	IntentSoftDrop  Intent = 5
	IntentHardDrop  Intent = 6
	IntentHold      Intent = 7
)

var IntentDictionary = map[Intent]string{
	IntentMoveLeft:  "move_left",
	IntentMoveRight: "move_right",
	IntentRotateCW:  "rotate_cw",
	IntentRotateCCW: "rotate_ccw",
	IntentSoftDrop:  "soft_drop",
	IntentHardDrop:  "hard_drop",
	IntentHold:      "hold",
}

func (i Intent) Valid() bool { return i >= IntentMoveLeft && i <= IntentHold }

func (i Intent) String() string {
	if s, ok := IntentDictionary[i]; ok {
		return s
	}
	return fmt.Sprintf("intent(%d)", byte(i))
}

func ParseIntent(s string) (Intent, error) {
	for k, v := range IntentDictionary {
		if v == s {
			return k, nil
		}
	}
	return IntentNone, fmt.Errorf("tetris: unknown intent %q", s)
}

// ActivePiece is the falling piece. X/Y locate the top-left corner of the
// shape's bounding box; Y grows downward.
type ActivePiece struct {
	Shape piece.Shape    `json:"shape"`
	Rot   piece.Rotation `json:"rot"`
	X     int            `json:"x"`
	Y     int            `json:"y"`
}

func (a ActivePiece) Cells() [4]piece.Point {
	cells := piece.Cells(a.Shape, a.Rot)
	for i := range cells {
		cells[i].X += a.X
		cells[i].Y += a.Y
	}
	return cells
}

// bottom is the row of the piece's lowest cell.
func (a ActivePiece) bottom() int {
	cells := a.Cells()
	return cells[len(cells)-1].Y
}

// LockEvent describes what happened when a piece locked. Lines may be zero.
type LockEvent struct {
	Board      string      `json:"board"`
	Tick       uint64      `json:"tick"`
	Shape      piece.Shape `json:"shape"`
	Lines      int         `json:"lines"`
	Rows       []int       `json:"rows,omitempty"`
	TSpin      bool        `json:"tspin,omitempty"`
	Mini       bool        `json:"mini,omitempty"`
	AllClear   bool        `json:"all_clear,omitempty"`
	Difficult  bool        `json:"difficult,omitempty"`
	Combo      int         `json:"combo"`
	BackToBack int         `json:"back_to_back"`
	Points     int64       `json:"points"`
}

// GarbageInstruction is an attack queued on a target board. Rows are pushed
// in from the bottom with an empty cell at each hole column.
type GarbageInstruction struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Rows   int    `json:"rows"`
	Holes  []int  `json:"holes,omitempty"`
	Tick   uint64 `json:"tick"`
}

// Top-out reasons.
const (
	TopOutBlockedSpawn    = "blocked_spawn"
	TopOutGarbageOverflow = "garbage_overflow"
	TopOutForfeit         = "forfeit"
)
