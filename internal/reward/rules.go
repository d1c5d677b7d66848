package reward

// XPPerLevel and LevelsPerToken define the token economy: one token for
// every ten levels, a level for every hundred XP.
const (
	XPPerLevel     = 100
	LevelsPerToken = 10
)

func Level(xp int) int {
	if xp <= 0 {
		return 0
	}
	return xp / XPPerLevel
}

// MaxTokens is how many tokens a user at level has earned in total.
func MaxTokens(level int) int {
	if level <= 0 {
		return 0
	}
	return level / LevelsPerToken
}

// MilestonesUpTo lists the token-earning levels reached at level, ascending.
func MilestonesUpTo(level int) []int {
	out := make([]int, 0, MaxTokens(level))
	for l := LevelsPerToken; l <= level; l += LevelsPerToken {
		out = append(out, l)
	}
	return out
}

// NextTokenLevel is the first milestone strictly above level.
func NextTokenLevel(level int) int {
	next := level + 1
	return ((next + LevelsPerToken - 1) / LevelsPerToken) * LevelsPerToken
}

func XPToNextToken(xp int) int {
	return max(0, NextTokenLevel(Level(xp))*XPPerLevel-xp)
}

// MissingMilestones returns the milestones up to level with no minted token.
func MissingMilestones(level int, minted map[int]bool) []int {
	var out []int
	for _, l := range MilestonesUpTo(level) {
		if !minted[l] {
			out = append(out, l)
		}
	}
	return out
}
