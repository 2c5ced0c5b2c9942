package tetris

import (
	"fmt"
	"sort"
	"strings"
)

// Difficulty names a preset that scales gravity speed, lock delay and
// scoring of a rule set.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// DifficultyPreset holds percentages applied to a base rule set. Speed above
// 100 shortens the gravity intervals; LockDelay and Score scale their values
// directly. Integer percentages keep derived rules identical on every
// platform.
type DifficultyPreset struct {
	SpeedPercent     int `json:"speed_percent"`
	LockDelayPercent int `json:"lock_delay_percent"`
	ScorePercent     int `json:"score_percent"`
}

var difficultyPresets = map[Difficulty]DifficultyPreset{
	DifficultyEasy:   {SpeedPercent: 80, LockDelayPercent: 120, ScorePercent: 50},
	DifficultyNormal: {SpeedPercent: 100, LockDelayPercent: 100, ScorePercent: 100},
	DifficultyHard:   {SpeedPercent: 120, LockDelayPercent: 80, ScorePercent: 150},
	DifficultyExpert: {SpeedPercent: 150, LockDelayPercent: 60, ScorePercent: 200},
}

func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := difficultyPresets[d]; !ok {
		return "", fmt.Errorf("tetris: unknown difficulty %q (supported: %s)", s, strings.Join(Difficulties(), ", "))
	}
	return d, nil
}

// Difficulties lists the preset names in sorted order.
func Difficulties() []string {
	out := make([]string, 0, len(difficultyPresets))
	for d := range difficultyPresets {
		out = append(out, string(d))
	}
	sort.Strings(out)
	return out
}

func (d Difficulty) Preset() (DifficultyPreset, bool) {
	p, ok := difficultyPresets[d]
	return p, ok
}

func (p DifficultyPreset) Validate() error {
	for name, v := range map[string]int{"speed": p.SpeedPercent, "lock delay": p.LockDelayPercent, "score": p.ScorePercent} {
		if v < 10 || v > 300 {
			return fmt.Errorf("tetris: %s percent must be within 10..300, got %d", name, v)
		}
	}
	return nil
}

// WithDifficulty returns a copy of r with the named preset applied.
func (r Rules) WithDifficulty(d Difficulty) (Rules, error) {
	p, ok := d.Preset()
	if !ok {
		return Rules{}, fmt.Errorf("tetris: unknown difficulty %q", d)
	}
	return r.Scaled(p)
}

// Scaled returns a copy of r with p applied. Gravity intervals never drop
// below one tick, so the level curve stays non-increasing.
func (r Rules) Scaled(p DifficultyPreset) (Rules, error) {
	if err := p.Validate(); err != nil {
		return Rules{}, err
	}
	out := r
	out.GravityTicks = make([]int, len(r.GravityTicks))
	for i, g := range r.GravityTicks {
		out.GravityTicks[i] = max(1, percentOf(g, 10000/p.SpeedPercent))
	}
	out.LockDelayTicks = percentOf(r.LockDelayTicks, p.LockDelayPercent)

	out.Score.Clears = make(map[string]int64, len(r.Score.Clears))
	for k, v := range r.Score.Clears {
		out.Score.Clears[k] = percentOf64(v, p.ScorePercent)
	}
	out.Score.AllClear = make(map[int]int64, len(r.Score.AllClear))
	for k, v := range r.Score.AllClear {
		out.Score.AllClear[k] = percentOf64(v, p.ScorePercent)
	}
	out.Score.ComboBonus = percentOf64(r.Score.ComboBonus, p.ScorePercent)
	out.Score.SoftDropPerCell = percentOf64(r.Score.SoftDropPerCell, p.ScorePercent)
	out.Score.HardDropPerCell = percentOf64(r.Score.HardDropPerCell, p.ScorePercent)
	if r.Sequence != nil {
		out.Sequence = append(r.Sequence[:0:0], r.Sequence...)
	}
	return out, nil
}

// percentOf rounds v*pct/100 half up.
func percentOf(v, pct int) int { return (v*pct + 50) / 100 }

func percentOf64(v int64, pct int) int64 { return (v*int64(pct) + 50) / 100 }
