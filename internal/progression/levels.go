// Package progression runs the XP ledger, mastery levels and achievement
// unlocking.
package progression

// Level is one mastery tier. A member reaches it at MinXP experience points,
// or at MinPoints task points on the legacy point-based path.
type Level struct {
	Name      string `json:"name"`
	Rank      int    `json:"rank"`
	MinXP     int    `json:"min_xp"`
	MinPoints int    `json:"min_points"`
}

const (
	Novice    = "novice"
	Solver    = "solver"
	Expert    = "expert"
	Master    = "master"
	Visionary = "visionary"
)

// Levels is ordered by ascending threshold.
var Levels = []Level{
	{Name: Novice, Rank: 0, MinXP: 0, MinPoints: 0},
	{Name: Solver, Rank: 1, MinXP: 500, MinPoints: 100},
	{Name: Expert, Rank: 2, MinXP: 1500, MinPoints: 300},
	{Name: Master, Rank: 3, MinXP: 4000, MinPoints: 600},
	{Name: Visionary, Rank: 4, MinXP: 10000, MinPoints: 1000},
}

// LevelForXP returns the highest level whose XP threshold xp meets.
func LevelForXP(xp int) string {
	name := Novice
	for _, l := range Levels {
		if xp >= l.MinXP {
			name = l.Name
		}
	}
	return name
}

// LevelForPoints is the legacy derivation from accumulated task points. It
// can disagree with LevelForXP; both are stored.
func LevelForPoints(points int) string {
	name := Novice
	for _, l := range Levels {
		if points >= l.MinPoints {
			name = l.Name
		}
	}
	return name
}

// Rank returns the ordinal of a level name. Unknown names rank as novice.
func Rank(level string) int {
	for _, l := range Levels {
		if l.Name == level {
			return l.Rank
		}
	}
	return 0
}

// ValidLevel reports whether name is one of the five tiers.
func ValidLevel(name string) bool {
	for _, l := range Levels {
		if l.Name == name {
			return true
		}
	}
	return false
}

// NextLevel returns the tier after the one xp currently reaches and the XP
// still missing. ok is false at the top tier.
func NextLevel(xp int) (next Level, missing int, ok bool) {
	for _, l := range Levels {
		if xp < l.MinXP {
			return l, l.MinXP - xp, true
		}
	}
	return Level{}, 0, false
}
