package tetris

import (
	"fmt"

	"tetris-lite/piece"
)

// OverflowPolicy decides what happens when materialised garbage does not fit
// above the stack.
type OverflowPolicy string

const (
	OverflowTopOut OverflowPolicy = "top_out"
	OverflowCap    OverflowPolicy = "cap"
)

// ScoreTable keys used by the engine.
const (
	ClearSingle          = "single"
	ClearDouble          = "double"
	ClearTriple          = "triple"
	ClearTetris          = "tetris"
	ClearTSpinZero       = "tspin_zero"
	ClearTSpinSingle     = "tspin_single"
	ClearTSpinDouble     = "tspin_double"
	ClearTSpinTriple     = "tspin_triple"
	ClearTSpinMiniZero   = "tspin_mini_zero"
	ClearTSpinMiniSingle = "tspin_mini_single"
	ClearTSpinMiniDouble = "tspin_mini_double"
)

type ScoreTable struct {
	Clears            map[string]int64 `json:"clears"`
	AllClear          map[int]int64    `json:"all_clear"`
	BackToBackPercent int64            `json:"back_to_back_percent"`
	ComboBonus        int64            `json:"combo_bonus"`
	ScaleByLevel      bool             `json:"scale_by_level"`
	SoftDropPerCell   int64            `json:"soft_drop_per_cell"`
	HardDropPerCell   int64            `json:"hard_drop_per_cell"`
}

// StreakRules control when combo and back-to-back counters reset.
type StreakRules struct {
	ResetComboOnEmptyLock      bool `json:"reset_combo_on_empty_lock"`
	ResetBackToBackOnEmptyLock bool `json:"reset_back_to_back_on_empty_lock"`
	// A zero-line lock right after an all-clear keeps both streaks.
	AllClearKeepsStreak bool `json:"all_clear_keeps_streak"`
}

type Rules struct {
	Width        int  `json:"width"`
	Height       int  `json:"height"`
	PreviewDepth int  `json:"preview_depth"`
	HoldEnabled  bool `json:"hold_enabled"`

	// Ticks between gravity steps, indexed by level-1. Past the end the last
	// entry applies.
	GravityTicks   []int `json:"gravity_ticks"`
	LockDelayTicks int   `json:"lock_delay_ticks"`
	MaxLockResets  int   `json:"max_lock_resets"`

	StartLevel    int `json:"start_level"`
	LinesPerLevel int `json:"lines_per_level"`

	Score    ScoreTable     `json:"score"`
	Streak   StreakRules    `json:"streak"`
	Overflow OverflowPolicy `json:"overflow"`

	// Optional fixed opening sequence. Used by tests and puzzles.
	Sequence []piece.Shape `json:"sequence,omitempty"`
}

func DefaultRules() Rules {
	return Rules{
		Width:        10,
		Height:       20,
		PreviewDepth: 5,
		HoldEnabled:  true,
		GravityTicks: []int{48, 43, 38, 33, 28, 23, 18, 13, 8, 6, 5, 5, 5, 4, 4, 4, 3, 3, 3, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 1},

		LockDelayTicks: 30,
		MaxLockResets:  15,
		StartLevel:     1,
		LinesPerLevel:  10,
		Score: ScoreTable{
			Clears: map[string]int64{
				ClearSingle:          100,
				ClearDouble:          300,
				ClearTriple:          500,
				ClearTetris:          800,
				ClearTSpinZero:       400,
				ClearTSpinSingle:     800,
				ClearTSpinDouble:     1200,
				ClearTSpinTriple:     1600,
				ClearTSpinMiniZero:   100,
				ClearTSpinMiniSingle: 200,
				ClearTSpinMiniDouble: 400,
			},
			AllClear:          map[int]int64{1: 800, 2: 1200, 3: 1800, 4: 2000},
			BackToBackPercent: 150,
			ComboBonus:        50,
			ScaleByLevel:      true,
		},
		Streak: StreakRules{
			ResetComboOnEmptyLock:      true,
			ResetBackToBackOnEmptyLock: false,
			AllClearKeepsStreak:        true,
		},
		Overflow: OverflowTopOut,
	}
}

func (r Rules) Validate() error {
	if r.Width < 4 || r.Height < 4 {
		return fmt.Errorf("board must be at least 4x4, got %dx%d", r.Width, r.Height)
	}
	if r.PreviewDepth < 0 {
		return fmt.Errorf("PreviewDepth must be >= 0")
	}
	if len(r.GravityTicks) == 0 {
		return fmt.Errorf("GravityTicks must not be empty")
	}
	for i, g := range r.GravityTicks {
		if g <= 0 {
			return fmt.Errorf("GravityTicks[%d] must be > 0", i)
		}
		if i > 0 && g > r.GravityTicks[i-1] {
			return fmt.Errorf("GravityTicks must be non-increasing: [%d]=%d > [%d]=%d", i, g, i-1, r.GravityTicks[i-1])
		}
	}
	if r.LockDelayTicks < 0 || r.MaxLockResets < 0 {
		return fmt.Errorf("lock delay and resets must be >= 0")
	}
	if r.StartLevel < 1 {
		return fmt.Errorf("StartLevel must be >= 1")
	}
	if r.LinesPerLevel < 0 {
		return fmt.Errorf("LinesPerLevel must be >= 0")
	}
	if r.Score.BackToBackPercent < 0 || r.Score.ComboBonus < 0 {
		return fmt.Errorf("score bonuses must be >= 0")
	}
	if r.Score.SoftDropPerCell < 0 || r.Score.HardDropPerCell < 0 {
		return fmt.Errorf("drop points must be >= 0")
	}
	switch r.Overflow {
	case OverflowTopOut, OverflowCap:
	default:
		return fmt.Errorf("unknown overflow policy %q", r.Overflow)
	}
	for i, s := range r.Sequence {
		if !s.Valid() {
			return fmt.Errorf("Sequence[%d] is not a valid shape", i)
		}
	}
	return nil
}

func (r Rules) gravityInterval(level int) int {
	idx := level - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.GravityTicks) {
		idx = len(r.GravityTicks) - 1
	}
	return r.GravityTicks[idx]
}
