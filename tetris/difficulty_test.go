package tetris

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDifficultyPresetsScaleRules(t *testing.T) {
	base := DefaultRules()

	hard, err := base.WithDifficulty(DifficultyHard)
	require.NoError(t, err)
	require.NoError(t, hard.Validate())
	assert.Equal(t, 40, hard.GravityTicks[0])
	assert.Equal(t, 24, hard.LockDelayTicks)
	assert.Equal(t, int64(150), hard.Score.Clears[ClearSingle])
	assert.Equal(t, int64(3000), hard.Score.AllClear[4])
	assert.Equal(t, int64(75), hard.Score.ComboBonus)

	easy, err := base.WithDifficulty(DifficultyEasy)
	require.NoError(t, err)
	assert.Equal(t, 60, easy.GravityTicks[0])
	assert.Equal(t, 36, easy.LockDelayTicks)
	assert.Equal(t, int64(50), easy.Score.Clears[ClearSingle])

	normal, err := base.WithDifficulty(DifficultyNormal)
	require.NoError(t, err)
	assert.Equal(t, base, normal)

	// the base rules are untouched
	assert.Equal(t, 48, base.GravityTicks[0])
	assert.Equal(t, int64(100), base.Score.Clears[ClearSingle])
}

func TestExpertKeepsGravityCurveValid(t *testing.T) {
	expert, err := DefaultRules().WithDifficulty(DifficultyExpert)
	require.NoError(t, err)
	require.NoError(t, expert.Validate())
	last := expert.GravityTicks[len(expert.GravityTicks)-1]
	assert.Equal(t, 1, last)
}

func TestParseDifficulty(t *testing.T) {
	d, err := ParseDifficulty(" Hard ")
	require.NoError(t, err)
	assert.Equal(t, DifficultyHard, d)

	_, err = ParseDifficulty("nightmare")
	assert.Error(t, err)
	assert.Equal(t, []string{"easy", "expert", "hard", "normal"}, Difficulties())

	_, err = DefaultRules().Scaled(DifficultyPreset{SpeedPercent: 5, LockDelayPercent: 100, ScorePercent: 100})
	assert.Error(t, err)
}
