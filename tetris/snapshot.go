package tetris

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"tetris-lite/piece"
)

var (
	ErrDigestMismatch = errors.New("digest mismatch")
	ErrGeometry       = errors.New("snapshot geometry mismatch")
)

// Snapshot is a deep copy of everything a client needs to render one board.
// Grid is row-major, Width cells per row.
type Snapshot struct {
	Board  string `json:"board"`
	Tick   uint64 `json:"tick"`
	Phase  Phase  `json:"phase"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Grid   []Cell `json:"grid"`

	Active   ActivePiece   `json:"active"`
	Hold     piece.Shape   `json:"hold"`
	HoldUsed bool          `json:"hold_used"`
	Preview  []piece.Shape `json:"preview"`

	Score      int64 `json:"score"`
	Level      int   `json:"level"`
	Lines      int   `json:"lines"`
	Combo      int   `json:"combo"`
	BackToBack int   `json:"back_to_back"`
	Pieces     int   `json:"pieces"`

	PendingRows  int    `json:"pending_rows"`
	Frozen       bool   `json:"frozen"`
	TopOutReason string `json:"top_out_reason,omitempty"`

	Digest uint64 `json:"digest"`
}

func (b *Board) Snapshot() Snapshot {
	s := Snapshot{
		Board:        b.id,
		Tick:         b.tick,
		Phase:        b.phase,
		Width:        b.rules.Width,
		Height:       b.rules.Height,
		Grid:         make([]Cell, 0, b.rules.Width*b.rules.Height),
		Hold:         b.hold,
		HoldUsed:     b.holdUsed,
		Preview:      b.Preview(),
		Score:        b.score,
		Level:        b.level,
		Lines:        b.lines,
		Combo:        b.combo,
		BackToBack:   b.backToBack,
		Pieces:       b.pieces,
		PendingRows:  b.PendingRows(),
		Frozen:       b.frozen,
		TopOutReason: b.topOut,
	}
	if b.hasActive {
		s.Active = b.active
	}
	for _, row := range b.grid {
		s.Grid = append(s.Grid, row...)
	}
	s.Digest = s.ComputeDigest()
	return s
}

// Digest is the checksum of the board's current state.
func (b *Board) Digest() uint64 { return b.Snapshot().Digest }

func (s Snapshot) Row(y int) []Cell {
	return s.Grid[y*s.Width : (y+1)*s.Width]
}

func (s Snapshot) Cell(x, y int) Cell {
	if x < 0 || x >= s.Width || y < 0 || y >= s.Height {
		return CellEmpty
	}
	return s.Grid[y*s.Width+x]
}

// ComputeDigest hashes the state fields with BLAKE2b and keeps the first 8
// bytes. Board id and tick are excluded, so an idle board keeps its digest.
func (s Snapshot) ComputeDigest() uint64 {
	buf := make([]byte, 0, 96+len(s.Grid)+len(s.Preview)+len(s.TopOutReason))
	buf = binary.BigEndian.AppendUint32(buf, uint32(s.Width))
	buf = binary.BigEndian.AppendUint32(buf, uint32(s.Height))
	buf = append(buf, byte(s.Phase))
	for _, c := range s.Grid {
		buf = append(buf, byte(c))
	}
	buf = append(buf, byte(s.Active.Shape), byte(s.Active.Rot))
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(s.Active.X)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(s.Active.Y)))
	buf = append(buf, byte(s.Hold), boolByte(s.HoldUsed), byte(len(s.Preview)))
	for _, p := range s.Preview {
		buf = append(buf, byte(p))
	}
	for _, v := range []int64{s.Score, int64(s.Level), int64(s.Lines), int64(s.Combo), int64(s.BackToBack), int64(s.Pieces), int64(s.PendingRows)} {
		buf = binary.BigEndian.AppendUint64(buf, uint64(v))
	}
	buf = append(buf, boolByte(s.Frozen))
	buf = append(buf, s.TopOutReason...)
	sum := blake2b.Sum256(buf)
	return binary.BigEndian.Uint64(sum[:8])
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// RowPatch replaces one grid row.
type RowPatch struct {
	Y     int    `json:"y"`
	Cells []Cell `json:"cells"`
}

// Delta carries the rows that changed plus every scalar field. Applying it to
// the snapshot it was diffed against reproduces the newer snapshot exactly.
type Delta struct {
	Tick  uint64     `json:"tick"`
	Phase Phase      `json:"phase"`
	Rows  []RowPatch `json:"rows,omitempty"`

	Active   ActivePiece   `json:"active"`
	Hold     piece.Shape   `json:"hold"`
	HoldUsed bool          `json:"hold_used"`
	Preview  []piece.Shape `json:"preview"`

	Score      int64 `json:"score"`
	Level      int   `json:"level"`
	Lines      int   `json:"lines"`
	Combo      int   `json:"combo"`
	BackToBack int   `json:"back_to_back"`
	Pieces     int   `json:"pieces"`

	PendingRows  int    `json:"pending_rows"`
	Frozen       bool   `json:"frozen"`
	TopOutReason string `json:"top_out_reason,omitempty"`

	Digest uint64 `json:"digest"`
}

func Diff(prev, next Snapshot) (Delta, error) {
	if prev.Width != next.Width || prev.Height != next.Height {
		return Delta{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrGeometry, prev.Width, prev.Height, next.Width, next.Height)
	}
	d := Delta{
		Tick:         next.Tick,
		Phase:        next.Phase,
		Active:       next.Active,
		Hold:         next.Hold,
		HoldUsed:     next.HoldUsed,
		Preview:      append([]piece.Shape(nil), next.Preview...),
		Score:        next.Score,
		Level:        next.Level,
		Lines:        next.Lines,
		Combo:        next.Combo,
		BackToBack:   next.BackToBack,
		Pieces:       next.Pieces,
		PendingRows:  next.PendingRows,
		Frozen:       next.Frozen,
		TopOutReason: next.TopOutReason,
		Digest:       next.Digest,
	}
	for y := 0; y < next.Height; y++ {
		a, b := prev.Row(y), next.Row(y)
		if rowsEqual(a, b) {
			continue
		}
		d.Rows = append(d.Rows, RowPatch{Y: y, Cells: append([]Cell(nil), b...)})
	}
	return d, nil
}

func rowsEqual(a, b []Cell) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ApplyDelta returns a new snapshot with d applied and checks the result
// against d.Digest.
func (s Snapshot) ApplyDelta(d Delta) (Snapshot, error) {
	out := s
	out.Grid = append([]Cell(nil), s.Grid...)
	for _, r := range d.Rows {
		if r.Y < 0 || r.Y >= s.Height || len(r.Cells) != s.Width {
			return s, fmt.Errorf("%w: row patch y=%d len=%d", ErrGeometry, r.Y, len(r.Cells))
		}
		copy(out.Grid[r.Y*s.Width:], r.Cells)
	}
	out.Tick = d.Tick
	out.Phase = d.Phase
	out.Active = d.Active
	out.Hold = d.Hold
	out.HoldUsed = d.HoldUsed
	out.Preview = append([]piece.Shape(nil), d.Preview...)
	out.Score = d.Score
	out.Level = d.Level
	out.Lines = d.Lines
	out.Combo = d.Combo
	out.BackToBack = d.BackToBack
	out.Pieces = d.Pieces
	out.PendingRows = d.PendingRows
	out.Frozen = d.Frozen
	out.TopOutReason = d.TopOutReason
	out.Digest = out.ComputeDigest()
	if out.Digest != d.Digest {
		return s, fmt.Errorf("%w: got %016x want %016x", ErrDigestMismatch, out.Digest, d.Digest)
	}
	return out, nil
}

// Render draws the snapshot as text, one line per row. Used by the replay
// tool and test failure output.
func (s Snapshot) Render() string {
	active := make(map[piece.Point]bool, 4)
	if s.Active.Shape.Valid() {
		for _, c := range s.Active.Cells() {
			active[c] = true
		}
	}
	out := make([]byte, 0, (s.Width+1)*s.Height)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			switch c := s.Cell(x, y); {
			case active[piece.Point{X: x, Y: y}]:
				out = append(out, '@')
			case c == CellEmpty:
				out = append(out, '.')
			case c == CellGarbage:
				out = append(out, '#')
			default:
				out = append(out, piece.Shape(c).String()[0])
			}
		}
		out = append(out, '\n')
	}
	return string(out)
}
