package tetris

import "tetris-lite/piece"

func clearKind(lines int, tspin, mini bool) string {
	switch {
	case tspin && mini:
		switch lines {
		case 0:
			return ClearTSpinMiniZero
		case 1:
			return ClearTSpinMiniSingle
		default:
			return ClearTSpinMiniDouble
		}
	case tspin:
		switch lines {
		case 0:
			return ClearTSpinZero
		case 1:
			return ClearTSpinSingle
		case 2:
			return ClearTSpinDouble
		default:
			return ClearTSpinTriple
		}
	}
	switch lines {
	case 1:
		return ClearSingle
	case 2:
		return ClearDouble
	case 3:
		return ClearTriple
	case 4:
		return ClearTetris
	}
	return ""
}

// resolveClear awards points for a lock and advances the streak counters.
// Bonuses use the counters as they stood before this lock.
func (b *Board) resolveClear(shape piece.Shape, rows []int, tspin, mini bool) *LockEvent {
	st := b.rules.Score
	lines := len(rows)
	allClear := lines > 0 && b.empty()
	difficult := lines > 0 && (lines >= 4 || tspin)

	points := st.Clears[clearKind(lines, tspin, mini)]
	if difficult && b.backToBack > 0 && st.BackToBackPercent > 0 {
		points = points * st.BackToBackPercent / 100
	}
	if lines > 0 && b.combo > 0 {
		points += int64(b.combo) * st.ComboBonus
	}
	if allClear {
		points += st.AllClear[lines]
	}
	if st.ScaleByLevel {
		points *= int64(b.level)
	}
	b.score += points

	if lines > 0 {
		b.combo++
		if difficult {
			b.backToBack++
		} else {
			b.backToBack = 0
		}
		b.lines += lines
		if b.rules.LinesPerLevel > 0 {
			b.level = b.rules.StartLevel + b.lines/b.rules.LinesPerLevel
		}
	} else if !(b.rules.Streak.AllClearKeepsStreak && b.lastAllClear) {
		if b.rules.Streak.ResetComboOnEmptyLock {
			b.combo = 0
		}
		if b.rules.Streak.ResetBackToBackOnEmptyLock {
			b.backToBack = 0
		}
	}
	b.lastAllClear = allClear

	return &LockEvent{
		Board:      b.id,
		Tick:       b.tick,
		Shape:      shape,
		Lines:      lines,
		Rows:       rows,
		TSpin:      tspin,
		Mini:       mini,
		AllClear:   allClear,
		Difficult:  difficult,
		Combo:      b.combo,
		BackToBack: b.backToBack,
		Points:     points,
	}
}
