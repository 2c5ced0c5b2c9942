// Package arena advances every board of one match by exactly one simulation
// step per tick. It owns the boards, the attack translator and the intent
// tape, and has no clock or network of its own.
package arena

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"tetris-lite/attack"
	"tetris-lite/tetris"
)

var (
	ErrFinished     = errors.New("arena: match already decided")
	ErrUnknownBoard = errors.New("arena: unknown board")
	ErrRoster       = errors.New("arena: invalid roster")
)

type Config struct {
	Rules  tetris.Rules  `json:"rules"`
	Attack attack.Config `json:"attack"`
	Seed   int64         `json:"seed"`
	// Every board draws the same piece sequence.
	SharedSequence bool `json:"shared_sequence"`
}

type EntryKind string

const (
	EntryIntent  EntryKind = "intent"
	EntryFreeze  EntryKind = "freeze"
	EntryResume  EntryKind = "resume"
	EntryForfeit EntryKind = "forfeit"
)

// TapeEntry is one recorded input. Control entries carry the tick they take
// effect before; intent entries the tick they were applied in.
type TapeEntry struct {
	Tick   uint64        `json:"tick"`
	Board  string        `json:"board"`
	Kind   EntryKind     `json:"kind"`
	Intent tetris.Intent `json:"intent,omitempty"`
	Grace  uint64        `json:"grace,omitempty"`
}

// Report summarises one step.
type Report struct {
	Tick      uint64                      `json:"tick"`
	Locks     []tetris.LockEvent          `json:"locks,omitempty"`
	Attacks   []tetris.GarbageInstruction `json:"attacks,omitempty"`
	ToppedOut []string                    `json:"topped_out,omitempty"`
	Forfeited []string                    `json:"forfeited,omitempty"`
	Result
}

// Result is the end-of-match verdict. Winner is empty on a draw and in a
// solo match.
type Result struct {
	Done   bool   `json:"done"`
	Winner string `json:"winner,omitempty"`
	Draw   bool   `json:"draw,omitempty"`
}

type Arena struct {
	cfg        Config
	roster     []string
	boards     map[string]*tetris.Board
	translator *attack.Translator

	tick      uint64
	deadlines map[string]uint64
	outAt     map[string]uint64
	tape      []TapeEntry
	result    Result
}

// New builds one board per roster entry. Board seeds and the translator seed
// are drawn from cfg.Seed in roster order.
func New(cfg Config, roster []string) (*Arena, error) {
	if len(roster) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrRoster)
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	master := rand.New(rand.NewSource(cfg.Seed))
	shared := master.Int63()

	a := &Arena{
		cfg:       cfg,
		roster:    append([]string(nil), roster...),
		boards:    make(map[string]*tetris.Board, len(roster)),
		deadlines: make(map[string]uint64),
		outAt:     make(map[string]uint64),
	}
	for _, id := range roster {
		if _, dup := a.boards[id]; dup || id == "" {
			return nil, fmt.Errorf("%w: bad or duplicate id %q", ErrRoster, id)
		}
		seed := shared
		if !cfg.SharedSequence {
			seed = master.Int63()
		}
		b, err := tetris.NewBoard(id, cfg.Rules, seed)
		if err != nil {
			return nil, err
		}
		a.boards[id] = b
	}
	tr, err := attack.New(cfg.Attack, cfg.Rules.Width, master.Int63())
	if err != nil {
		return nil, err
	}
	a.translator = tr
	return a, nil
}

func (a *Arena) Config() Config   { return a.cfg }
func (a *Arena) Tick() uint64     { return a.tick }
func (a *Arena) Result() Result   { return a.result }
func (a *Arena) Roster() []string { return append([]string(nil), a.roster...) }

func (a *Arena) Tape() []TapeEntry {
	return append([]TapeEntry(nil), a.tape...)
}

func (a *Arena) Alive() []string {
	var out []string
	for _, id := range a.roster {
		if !a.boards[id].ToppedOut() {
			out = append(out, id)
		}
	}
	return out
}

func (a *Arena) Snapshot(id string) (tetris.Snapshot, bool) {
	b, ok := a.boards[id]
	if !ok {
		return tetris.Snapshot{}, false
	}
	return b.Snapshot(), true
}

// Snapshots returns every board in roster order.
func (a *Arena) Snapshots() []tetris.Snapshot {
	out := make([]tetris.Snapshot, 0, len(a.roster))
	for _, id := range a.roster {
		out = append(out, a.boards[id].Snapshot())
	}
	return out
}

// Step runs one tick: intents per board oldest first, lock and clear
// resolution, attack translation in roster order, garbage and spawn, grace
// expiry, then end detection.
func (a *Arena) Step(inputs map[string][]tetris.Intent) (Report, error) {
	if a.result.Done {
		return Report{}, ErrFinished
	}
	tick := a.tick
	rep := Report{Tick: tick}

	for _, id := range a.roster {
		intents := inputs[id]
		for _, in := range intents {
			a.tape = append(a.tape, TapeEntry{Tick: tick, Board: id, Kind: EntryIntent, Intent: in})
		}
		ev, err := a.boards[id].Advance(tick, intents)
		if err != nil {
			return rep, err
		}
		if ev != nil {
			rep.Locks = append(rep.Locks, *ev)
		}
	}

	for _, ev := range rep.Locks {
		rows := a.translator.Rows(ev)
		if rows > 0 && a.cfg.Attack.CancelPending {
			rows = a.boards[ev.Board].CancelGarbage(rows)
		}
		for _, g := range a.translator.Distribute(ev.Board, rows, a.opponents(ev.Board), tick) {
			if err := a.boards[g.Target].QueueGarbage(g); err != nil {
				return rep, fmt.Errorf("queue garbage %s -> %s: %w", g.Source, g.Target, err)
			}
			rep.Attacks = append(rep.Attacks, g)
		}
	}

	for _, id := range a.roster {
		b := a.boards[id]
		b.Settle(tick)
		if err := b.CheckInvariants(); err != nil {
			return rep, err
		}
	}

	for _, id := range a.roster {
		if deadline, ok := a.deadlines[id]; ok && tick >= deadline {
			delete(a.deadlines, id)
			a.boards[id].ForceTopOut(tetris.TopOutForfeit)
			rep.Forfeited = append(rep.Forfeited, id)
		}
	}

	for _, id := range a.roster {
		if _, seen := a.outAt[id]; seen || !a.boards[id].ToppedOut() {
			continue
		}
		a.outAt[id] = tick
		rep.ToppedOut = append(rep.ToppedOut, id)
	}

	alive := a.Alive()
	switch {
	case len(a.roster) == 1 && len(alive) == 0:
		a.result = Result{Done: true}
	case len(a.roster) > 1 && len(alive) == 1:
		a.result = Result{Done: true, Winner: alive[0]}
	case len(a.roster) > 1 && len(alive) == 0:
		a.result = Result{Done: true, Draw: true}
	}
	rep.Result = a.result
	a.tick++
	return rep, nil
}

func (a *Arena) opponents(source string) []attack.Opponent {
	var out []attack.Opponent
	for _, id := range a.roster {
		b := a.boards[id]
		if id == source || b.ToppedOut() {
			continue
		}
		out = append(out, attack.Opponent{ID: id, StackHeight: b.StackHeight()})
	}
	return out
}

func (a *Arena) board(id string) (*tetris.Board, error) {
	b, ok := a.boards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBoard, id)
	}
	return b, nil
}

// Freeze suspends a board until Resume or until grace ticks have passed, at
// which point the board is forfeited inside Step.
func (a *Arena) Freeze(id string, grace uint64) error {
	b, err := a.board(id)
	if err != nil {
		return err
	}
	if b.ToppedOut() || a.result.Done {
		return nil
	}
	b.Freeze()
	a.deadlines[id] = a.tick + grace
	a.tape = append(a.tape, TapeEntry{Tick: a.tick, Board: id, Kind: EntryFreeze, Grace: grace})
	return nil
}

// Deadline reports the tick at which a frozen board will be forfeited.
func (a *Arena) Deadline(id string) (uint64, bool) {
	d, ok := a.deadlines[id]
	return d, ok
}

func (a *Arena) Resume(id string) error {
	b, err := a.board(id)
	if err != nil {
		return err
	}
	if !b.Frozen() || b.ToppedOut() || a.result.Done {
		return nil
	}
	b.Unfreeze()
	delete(a.deadlines, id)
	a.tape = append(a.tape, TapeEntry{Tick: a.tick, Board: id, Kind: EntryResume})
	return nil
}

// Forfeit tops a board out immediately. End detection runs on the next Step.
func (a *Arena) Forfeit(id string) error {
	b, err := a.board(id)
	if err != nil {
		return err
	}
	if b.ToppedOut() || a.result.Done {
		return nil
	}
	delete(a.deadlines, id)
	b.ForceTopOut(tetris.TopOutForfeit)
	a.tape = append(a.tape, TapeEntry{Tick: a.tick, Board: id, Kind: EntryForfeit})
	return nil
}

// Standing is one board's final placement. Boards still alive share first
// place; boards that topped out in the same tick share a place.
type Standing struct {
	Board        string `json:"board"`
	Place        int    `json:"place"`
	Score        int64  `json:"score"`
	Lines        int    `json:"lines"`
	Level        int    `json:"level"`
	Pieces       int    `json:"pieces"`
	TopOutReason string `json:"top_out_reason,omitempty"`
	TopOutTick   uint64 `json:"top_out_tick,omitempty"`
}

func (a *Arena) Standings() []Standing {
	out := make([]Standing, 0, len(a.roster))
	for _, id := range a.roster {
		b := a.boards[id]
		s := Standing{
			Board:        id,
			Score:        b.Score(),
			Lines:        b.Lines(),
			Level:        b.Level(),
			Pieces:       b.Pieces(),
			TopOutReason: b.TopOutReason(),
		}
		if at, ok := a.outAt[id]; ok {
			s.TopOutTick = at
		}
		out = append(out, s)
	}
	rank := func(s Standing) (bool, uint64) {
		_, out := a.outAt[s.Board]
		return out, s.TopOutTick
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, ti := rank(out[i])
		oj, tj := rank(out[j])
		if oi != oj {
			return !oi
		}
		return ti > tj
	})
	for i := range out {
		if i == 0 {
			out[i].Place = 1
			continue
		}
		oi, ti := rank(out[i])
		op, tp := rank(out[i-1])
		if oi == op && ti == tp {
			out[i].Place = out[i-1].Place
		} else {
			out[i].Place = i + 1
		}
	}
	return out
}
