// Package attack turns line clears into garbage instructions for opponents.
package attack

import (
	"fmt"
	"math/rand"
	"sort"

	"tetris-lite/tetris"
)

// Policy selects which opponent receives an attack.
type Policy string

const (
	PolicyRandom       Policy = "random"
	PolicyRoundRobin   Policy = "round_robin"
	PolicyLowestHealth Policy = "lowest_health"
	PolicyAll          Policy = "all"
)

type Config struct {
	// Rows sent per lines cleared, indexed 0..4.
	Lines []int `json:"lines"`
	// Replacement tables for T-spins, indexed by lines cleared.
	TSpinLines []int `json:"tspin_lines"`
	MiniLines  []int `json:"mini_lines"`
	// Extra rows for the second and later difficult clears in a chain.
	BackToBackBonus int `json:"back_to_back_bonus"`
	AllClearBonus   int `json:"all_clear_bonus"`
	// Extra rows indexed by combo-1; the last entry repeats.
	Combo []int `json:"combo"`

	Holes         int    `json:"holes"`
	Policy        Policy `json:"policy"`
	CancelPending bool   `json:"cancel_pending"`
}

func DefaultConfig() Config {
	return Config{
		Lines:           []int{0, 0, 1, 2, 4},
		TSpinLines:      []int{0, 2, 4, 6},
		MiniLines:       []int{0, 0, 1},
		BackToBackBonus: 1,
		AllClearBonus:   10,
		Combo:           []int{0, 1, 1, 2, 2, 3, 3, 4, 4, 4, 5},
		Holes:           1,
		Policy:          PolicyRandom,
		CancelPending:   true,
	}
}

func (c Config) Validate(width int) error {
	if len(c.Lines) != 5 {
		return fmt.Errorf("attack: Lines needs 5 entries, got %d", len(c.Lines))
	}
	for name, table := range map[string][]int{"lines": c.Lines, "tspin_lines": c.TSpinLines, "mini_lines": c.MiniLines, "combo": c.Combo} {
		for i, v := range table {
			if v < 0 {
				return fmt.Errorf("attack: %s[%d] must be >= 0", name, i)
			}
		}
	}
	if c.BackToBackBonus < 0 || c.AllClearBonus < 0 {
		return fmt.Errorf("attack: bonuses must be >= 0")
	}
	if c.Holes < 1 || c.Holes >= width {
		return fmt.Errorf("attack: Holes must be in 1..%d, got %d", width-1, c.Holes)
	}
	switch c.Policy {
	case PolicyRandom, PolicyRoundRobin, PolicyLowestHealth, PolicyAll:
	default:
		return fmt.Errorf("attack: unknown policy %q", c.Policy)
	}
	return nil
}

// Opponent is a live target candidate as seen at the moment of the clear.
type Opponent struct {
	ID          string
	StackHeight int
}

// Translator is match scoped. Its RNG drives random targeting and hole
// columns, so two translators built from the same seed and fed the same
// events produce identical instructions.
type Translator struct {
	cfg    Config
	width  int
	rng    *rand.Rand
	cursor map[string]int
}

func New(cfg Config, width int, seed int64) (*Translator, error) {
	if err := cfg.Validate(width); err != nil {
		return nil, err
	}
	return &Translator{
		cfg:    cfg,
		width:  width,
		rng:    rand.New(rand.NewSource(seed)),
		cursor: make(map[string]int),
	}, nil
}

func (t *Translator) Config() Config { return t.cfg }

func lookup(table []int, i int) int {
	if len(table) == 0 || i < 0 {
		return 0
	}
	if i >= len(table) {
		i = len(table) - 1
	}
	return table[i]
}

// Rows is the attack strength of a lock before cancellation.
func (t *Translator) Rows(ev tetris.LockEvent) int {
	if ev.Lines == 0 {
		return 0
	}
	rows := lookup(t.cfg.Lines, ev.Lines)
	switch {
	case ev.TSpin && ev.Mini:
		rows = lookup(t.cfg.MiniLines, ev.Lines)
	case ev.TSpin:
		rows = lookup(t.cfg.TSpinLines, ev.Lines)
	}
	if ev.Difficult && ev.BackToBack > 1 {
		rows += t.cfg.BackToBackBonus
	}
	if ev.Combo > 0 {
		rows += lookup(t.cfg.Combo, ev.Combo-1)
	}
	if ev.AllClear {
		rows += t.cfg.AllClearBonus
	}
	return rows
}

// OnLinesCleared translates a lock on source into instructions. opponents
// must be in roster order and exclude the source and topped-out boards.
func (t *Translator) OnLinesCleared(source string, ev tetris.LockEvent, opponents []Opponent) []tetris.GarbageInstruction {
	return t.Distribute(source, t.Rows(ev), opponents, ev.Tick)
}

// Distribute sends rows that survived cancellation to the chosen targets.
func (t *Translator) Distribute(source string, rows int, opponents []Opponent, tick uint64) []tetris.GarbageInstruction {
	if rows <= 0 || len(opponents) == 0 {
		return nil
	}
	var targets []Opponent
	switch t.cfg.Policy {
	case PolicyRandom:
		targets = []Opponent{opponents[t.rng.Intn(len(opponents))]}
	case PolicyRoundRobin:
		i := t.cursor[source] % len(opponents)
		t.cursor[source]++
		targets = []Opponent{opponents[i]}
	case PolicyLowestHealth:
		best := opponents[0]
		for _, o := range opponents[1:] {
			if o.StackHeight > best.StackHeight {
				best = o
			}
		}
		targets = []Opponent{best}
	case PolicyAll:
		targets = opponents
	}
	out := make([]tetris.GarbageInstruction, 0, len(targets))
	for _, o := range targets {
		out = append(out, tetris.GarbageInstruction{
			Source: source,
			Target: o.ID,
			Rows:   rows,
			Holes:  t.holes(),
			Tick:   tick,
		})
	}
	return out
}

func (t *Translator) holes() []int {
	cols := t.rng.Perm(t.width)[:t.cfg.Holes]
	sort.Ints(cols)
	return cols
}
