package services

import (
	"reward-progression-system/models"
)

// LevelTransition reports what the level engine decided for one event.
type LevelTransition struct {
	LeveledUp bool   `json:"leveled_up"`
	OldLevel  int    `json:"old_level"`
	NewLevel  int    `json:"new_level"`
	LevelName string `json:"level_name,omitempty"`
}

// LevelEngine derives the correct level for a profile snapshot from the
// configured thresholds. Stateless; safe to share.
type LevelEngine struct{}

func NewLevelEngine() *LevelEngine {
	return &LevelEngine{}
}

// Evaluate picks the highest level whose exp and evaluation requirements are
// both satisfied by the post-commit snapshot. A large reward can cross
// several thresholds at once; downgrades are never reported through this
// path.
func (e *LevelEngine) Evaluate(oldLevel int, prof *models.UserProfile, table models.LevelTable) LevelTransition {
	tr := LevelTransition{OldLevel: oldLevel, NewLevel: oldLevel}
	if prof == nil || len(table) == 0 {
		return tr
	}

	evals := prof.TotalEvalCount()
	for _, row := range table {
		if prof.TotalExp >= row.RequiredExp && evals >= row.RequiredEvals {
			if row.Level > tr.NewLevel {
				tr.NewLevel = row.Level
				tr.LevelName = row.Name
			}
		}
	}

	tr.LeveledUp = tr.NewLevel > tr.OldLevel
	if !tr.LeveledUp {
		tr.NewLevel = oldLevel
		tr.LevelName = ""
	}
	return tr
}

// NameFor returns the configured display name of a level, if any.
func (e *LevelEngine) NameFor(level int, table models.LevelTable) string {
	for _, row := range table {
		if row.Level == level {
			return row.Name
		}
	}
	return ""
}
