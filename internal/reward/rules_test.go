package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		xp    int
		level int
	}{
		{xp: -50, level: 0},
		{xp: 0, level: 0},
		{xp: 99, level: 0},
		{xp: 100, level: 1},
		{xp: 999, level: 9},
		{xp: 1000, level: 10},
		{xp: 2550, level: 25},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.level, Level(tt.xp), "xp %d", tt.xp)
	}
}

func TestTokenMilestones(t *testing.T) {
	tests := []struct {
		name       string
		level      int
		maxTokens  int
		milestones []int
		next       int
	}{
		{name: "no_level", level: 0, maxTokens: 0, milestones: []int{}, next: 10},
		{name: "just_below_first", level: 9, maxTokens: 0, milestones: []int{}, next: 10},
		{name: "first_milestone", level: 10, maxTokens: 1, milestones: []int{10}, next: 20},
		{name: "between_milestones", level: 25, maxTokens: 2, milestones: []int{10, 20}, next: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.maxTokens, MaxTokens(tt.level))
			assert.Equal(t, tt.milestones, MilestonesUpTo(tt.level))
			assert.Equal(t, tt.next, NextTokenLevel(tt.level))
		})
	}
}

func TestXPToNextToken(t *testing.T) {
	assert.Equal(t, 1000, XPToNextToken(0))
	assert.Equal(t, 50, XPToNextToken(950))
	assert.Equal(t, 1000, XPToNextToken(1000))
	assert.Equal(t, 450, XPToNextToken(2550))
}

func TestMissingMilestones(t *testing.T) {
	minted := map[int]bool{10: true, 30: true}
	assert.Equal(t, []int{20, 40}, MissingMilestones(45, minted))
	assert.Nil(t, MissingMilestones(9, nil))
	assert.Nil(t, MissingMilestones(30, map[int]bool{10: true, 20: true, 30: true}))
}
