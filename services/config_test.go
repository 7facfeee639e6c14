package services

import (
	"testing"

	"reward-progression-system/models"
)

func TestConfigGlobalFallback(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db, models.GlobalGroupID,
		models.RewardTable{models.ActionOrder: {Exp: 5, Points: 5}},
		models.LevelTable{{Level: 1, Name: "新人"}},
	)

	// Group 42 has no row of its own; it resolves through the global one.
	got := cfg.Get(42)
	if got.GroupID != models.GlobalGroupID {
		t.Errorf("Get(42).GroupID = %d, want global", got.GroupID)
	}
	if _, ok := got.RewardTable[models.ActionOrder]; !ok {
		t.Error("fallback config missing order rule")
	}
}

func TestConfigGroupOverridesGlobal(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db, models.GlobalGroupID,
		models.RewardTable{models.ActionOrder: {Exp: 5, Points: 5}},
		models.DefaultLevelTable,
	)
	if _, err := cfg.Apply(42, GroupConfigUpdate{
		RewardTable: &models.RewardTable{models.ActionOrder: {Exp: 50, Points: 50}},
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := cfg.RewardTable(42)[models.ActionOrder].Exp; got != 50 {
		t.Errorf("group 42 order exp = %d, want 50", got)
	}
	if got := cfg.RewardTable(models.GlobalGroupID)[models.ActionOrder].Exp; got != 5 {
		t.Errorf("global order exp = %d, want 5", got)
	}
}

func TestConfigMissingEverythingUsesBuiltins(t *testing.T) {
	db := newTestDB(t)
	cfg := NewConfigProvider(db)

	got := cfg.Get(42)
	if len(got.LevelTable) == 0 || len(got.RewardTable) == 0 {
		t.Fatal("builtin default config is empty")
	}
}

func TestEnsureGlobalDefaultsIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	cfg := NewConfigProvider(db)

	for i := 0; i < 2; i++ {
		if err := cfg.EnsureGlobalDefaults(); err != nil {
			t.Fatalf("EnsureGlobalDefaults #%d: %v", i+1, err)
		}
	}
	if n := countRows(t, db, &models.GroupConfig{}, "group_id = ?", models.GlobalGroupID); n != 1 {
		t.Errorf("global config rows = %d, want 1", n)
	}
}

func TestConfigApplyInvalidatesCache(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db, 42,
		models.RewardTable{models.ActionOrder: {Exp: 5, Points: 5}},
		models.DefaultLevelTable,
	)

	// Prime the cache.
	if got := cfg.RewardTable(42)[models.ActionOrder].Exp; got != 5 {
		t.Fatalf("initial order exp = %d, want 5", got)
	}

	if _, err := cfg.Apply(42, GroupConfigUpdate{
		RewardTable: &models.RewardTable{models.ActionOrder: {Exp: 99, Points: 5}},
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := cfg.RewardTable(42)[models.ActionOrder].Exp; got != 99 {
		t.Errorf("order exp after update = %d, want 99 (stale cache)", got)
	}
}

func TestConfigGlobalInvalidationClearsFallbackUsers(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db, models.GlobalGroupID,
		models.RewardTable{models.ActionOrder: {Exp: 5, Points: 5}},
		models.DefaultLevelTable,
	)

	// Group 42 falls back to global and the result gets cached.
	if got := cfg.RewardTable(42)[models.ActionOrder].Exp; got != 5 {
		t.Fatalf("initial fallback exp = %d, want 5", got)
	}

	if _, err := cfg.Apply(models.GlobalGroupID, GroupConfigUpdate{
		RewardTable: &models.RewardTable{models.ActionOrder: {Exp: 77, Points: 5}},
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := cfg.RewardTable(42)[models.ActionOrder].Exp; got != 77 {
		t.Errorf("fallback exp after global update = %d, want 77", got)
	}
}

func TestConfigApplyRejectsBadLevelTable(t *testing.T) {
	db := newTestDB(t)
	cfg := NewConfigProvider(db)

	tests := []struct {
		name  string
		table models.LevelTable
	}{
		{"descending exp", models.LevelTable{
			{Level: 1, RequiredExp: 100},
			{Level: 2, RequiredExp: 50},
		}},
		{"level below one", models.LevelTable{
			{Level: 0, RequiredExp: 0},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := cfg.Apply(42, GroupConfigUpdate{LevelTable: &tt.table}); err == nil {
				t.Error("Apply accepted invalid level table")
			}
		})
	}
}

func TestCreateBadgeValidatesCondition(t *testing.T) {
	db := newTestDB(t)
	cfg := NewConfigProvider(db)

	err := cfg.CreateBadge(&models.BadgeDefinition{
		Code:      "weird",
		Name:      "Weird",
		Condition: models.UnlockCondition{Type: "lunar_phase"},
	})
	if err == nil {
		t.Fatal("CreateBadge accepted unknown condition type")
	}

	def := models.BadgeDefinition{
		Code:      "first-order",
		Name:      "First Order",
		Condition: models.UnlockCondition{Type: models.ConditionStatBased, Field: "order_count", Target: 1},
	}
	if err := cfg.CreateBadge(&def); err != nil {
		t.Fatalf("CreateBadge: %v", err)
	}
	if def.ID == "" || def.Status != models.BadgeStatusActive {
		t.Errorf("created badge defaults: id=%q status=%q", def.ID, def.Status)
	}
}

func TestReplaceMilestones(t *testing.T) {
	db := newTestDB(t)
	cfg := NewConfigProvider(db)

	if err := cfg.ReplaceMilestones(42, []models.Milestone{
		{Name: "old", RequiredPoints: 10, RewardType: models.MilestoneRewardPoints, RewardAmount: 1},
	}); err != nil {
		t.Fatalf("first ReplaceMilestones: %v", err)
	}
	if err := cfg.ReplaceMilestones(42, []models.Milestone{
		{Name: "new_a", RequiredPoints: 20, RewardType: models.MilestoneRewardPoints, RewardAmount: 2},
		{Name: "new_b", RequiredPoints: 30, RewardType: models.MilestoneRewardExp, RewardAmount: 3},
	}); err != nil {
		t.Fatalf("second ReplaceMilestones: %v", err)
	}

	list, err := cfg.Milestones(42)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "new_a" || list[1].Name != "new_b" {
		t.Errorf("milestones after replace = %+v", list)
	}

	// Validation failures leave the stored list untouched.
	if err := cfg.ReplaceMilestones(42, []models.Milestone{
		{Name: "bad", RequiredPoints: 0, RewardType: models.MilestoneRewardPoints},
	}); err == nil {
		t.Error("ReplaceMilestones accepted non-positive required_points")
	}
	if err := cfg.ReplaceMilestones(42, []models.Milestone{
		{Name: "bad", RequiredPoints: 10, RewardType: "confetti"},
	}); err == nil {
		t.Error("ReplaceMilestones accepted unknown reward type")
	}
	if n := countRows(t, db, &models.Milestone{}, "group_id = ?", int64(42)); n != 2 {
		t.Errorf("milestone rows = %d, want 2", n)
	}
}
