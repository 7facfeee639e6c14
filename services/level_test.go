package services

import (
	"testing"

	"reward-progression-system/models"
)

func TestLevelEngine_Evaluate(t *testing.T) {
	table := models.LevelTable{
		{Level: 1, Name: "Novice", RequiredExp: 0, RequiredEvals: 0},
		{Level: 2, Name: "Apprentice", RequiredExp: 50, RequiredEvals: 3},
		{Level: 3, Name: "Expert", RequiredExp: 200, RequiredEvals: 10},
	}

	tests := []struct {
		name      string
		oldLevel  int
		totalExp  int64
		evalCount int64
		wantUp    bool
		wantLevel int
	}{
		{"below first threshold", 1, 40, 2, false, 1},
		{"exp and evals satisfied", 1, 70, 3, true, 2},
		{"exp satisfied but evals missing", 1, 70, 2, false, 1},
		{"evals satisfied but exp missing", 1, 49, 5, false, 1},
		{"multi-level jump in one event", 1, 500, 12, true, 3},
		{"already at derived level", 2, 70, 3, false, 2},
		{"exp drop never downgrades", 3, 10, 0, false, 3},
		{"exact threshold counts", 1, 50, 3, true, 2},
	}

	engine := NewLevelEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prof := &models.UserProfile{
				Level:         tt.oldLevel,
				TotalExp:      tt.totalExp,
				UserEvalCount: tt.evalCount,
			}
			tr := engine.Evaluate(tt.oldLevel, prof, table)
			if tr.LeveledUp != tt.wantUp {
				t.Errorf("LeveledUp = %v, want %v", tr.LeveledUp, tt.wantUp)
			}
			if tr.NewLevel != tt.wantLevel {
				t.Errorf("NewLevel = %d, want %d", tr.NewLevel, tt.wantLevel)
			}
			if tr.OldLevel != tt.oldLevel {
				t.Errorf("OldLevel = %d, want %d", tr.OldLevel, tt.oldLevel)
			}
		})
	}
}

func TestLevelEngine_EvaluateCombinesEvalCounters(t *testing.T) {
	table := models.LevelTable{
		{Level: 1, RequiredExp: 0, RequiredEvals: 0},
		{Level: 2, RequiredExp: 50, RequiredEvals: 6},
	}
	prof := &models.UserProfile{
		Level:             1,
		TotalExp:          100,
		UserEvalCount:     2,
		MerchantEvalCount: 2,
		TextEvalCount:     2,
	}
	tr := NewLevelEngine().Evaluate(1, prof, table)
	if !tr.LeveledUp || tr.NewLevel != 2 {
		t.Errorf("expected 1 → 2 with summed eval counters, got %+v", tr)
	}
}

func TestLevelEngine_EvaluateEmptyTable(t *testing.T) {
	prof := &models.UserProfile{Level: 1, TotalExp: 1000}
	tr := NewLevelEngine().Evaluate(1, prof, nil)
	if tr.LeveledUp {
		t.Error("empty level table must never produce a transition")
	}
}
