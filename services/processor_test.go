package services

import (
	"testing"

	"reward-progression-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type notifierCall struct {
	GroupID int64
	Kind    string
	Payload map[string]string
	Targets []int64
}

type stubNotifier struct {
	calls []notifierCall
}

func (n *stubNotifier) Enqueue(groupID int64, kind string, payload map[string]string, targets []int64) bool {
	n.calls = append(n.calls, notifierCall{GroupID: groupID, Kind: kind, Payload: payload, Targets: targets})
	return true
}

func (n *stubNotifier) kinds() []string {
	out := make([]string, 0, len(n.calls))
	for _, c := range n.calls {
		out = append(out, c.Kind)
	}
	return out
}

func newTestProcessor(t *testing.T, db *gorm.DB, group models.GroupConfig) (*RewardProcessor, *stubNotifier) {
	t.Helper()
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if err := db.Create(&group).Error; err != nil {
		t.Fatalf("seed group config: %v", err)
	}
	cfg := NewConfigProvider(db)
	ledger := NewLedgerStore(db, cfg)
	notifier := &stubNotifier{}
	proc := NewRewardProcessor(
		ledger, cfg, NewLevelEngine(),
		NewBadgeRuleEngine(db),
		NewMilestoneEngine(db, ledger, NewBadgeRuleEngine(db)),
		notifier,
	)
	return proc, notifier
}

func TestProcessRewardAndLevelUp(t *testing.T) {
	db := newTestDB(t)
	proc, notifier := newTestProcessor(t, db, models.GroupConfig{
		GroupID: 5,
		RewardTable: models.RewardTable{
			models.ActionUserEval:     {Exp: 30, Points: 25, Description: "用户评价"},
			models.ActionLevelUpBonus: {Exp: 0, Points: 10, Description: "升级奖励"},
		},
		LevelTable: models.LevelTable{
			{Level: 1, Name: "新人", RequiredExp: 0, RequiredEvals: 0},
			{Level: 2, Name: "学徒", RequiredExp: 50, RequiredEvals: 3},
		},
		BroadcastTargets: models.Int64List{-100123},
		BroadcastEnabled: true,
	})

	// Existing user sitting just under the level 2 thresholds.
	if _, _, err := proc.Process(RewardEvent{UserID: 7, GroupID: 5, ActionType: models.ActionUserEval, SourceEventID: "evt-0"}); err != nil {
		t.Fatalf("provisioning event: %v", err)
	}
	if err := db.Model(&models.UserProfile{}).Where("user_id = ?", int64(7)).
		Updates(map[string]interface{}{"total_exp": 40, "user_eval_count": 2}).Error; err != nil {
		t.Fatalf("stage profile: %v", err)
	}
	notifier.calls = nil

	prof, applied, err := proc.Process(RewardEvent{UserID: 7, GroupID: 5, ActionType: models.ActionUserEval, SourceEventID: "evt-1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !applied {
		t.Fatal("applied = false, want true")
	}
	if prof.TotalExp != 70 {
		t.Errorf("TotalExp = %d, want 70", prof.TotalExp)
	}
	if prof.Level != 2 {
		t.Errorf("Level = %d, want 2", prof.Level)
	}

	// The level-up bonus runs as its own ledger write with a derived event id.
	var bonus models.LedgerEntry
	if err := db.Where("user_id = ? AND action_type = ?", int64(7), models.ActionLevelUpBonus).First(&bonus).Error; err != nil {
		t.Fatalf("level-up bonus entry: %v", err)
	}
	if bonus.RelatedEventID != "evt-1:level_2" {
		t.Errorf("bonus RelatedEventID = %q, want evt-1:level_2", bonus.RelatedEventID)
	}
	if bonus.PointsChange != 10 {
		t.Errorf("bonus PointsChange = %d, want 10", bonus.PointsChange)
	}

	found := false
	for _, c := range notifier.calls {
		if c.Kind == models.TemplateLevelUp {
			found = true
			if c.Payload["new_level"] != "2" || c.Payload["level_name"] != "学徒" {
				t.Errorf("level_up payload = %v", c.Payload)
			}
			if len(c.Targets) != 1 || c.Targets[0] != -100123 {
				t.Errorf("level_up targets = %v", c.Targets)
			}
		}
	}
	if !found {
		t.Errorf("no level_up notification, kinds = %v", notifier.kinds())
	}
}

func TestProcessLevelBonusDoesNotCascade(t *testing.T) {
	db := newTestDB(t)
	proc, _ := newTestProcessor(t, db, models.GroupConfig{
		GroupID: 5,
		RewardTable: models.RewardTable{
			models.ActionUserEval:     {Exp: 50, Points: 0},
			models.ActionLevelUpBonus: {Exp: 100, Points: 0},
		},
		LevelTable: models.LevelTable{
			{Level: 1, RequiredExp: 0},
			{Level: 2, RequiredExp: 50},
			{Level: 3, RequiredExp: 120},
		},
	})

	prof, applied, err := proc.Process(RewardEvent{UserID: 9, GroupID: 5, ActionType: models.ActionUserEval, SourceEventID: "evt-1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !applied {
		t.Fatal("applied = false, want true")
	}

	// 50 exp from the event lifts level 1 → 2; the 100-exp bonus pushes
	// total exp past the level 3 threshold but must not trigger a second
	// level check inside the same event.
	if prof.TotalExp != 150 {
		t.Errorf("TotalExp = %d, want 150", prof.TotalExp)
	}
	if prof.Level != 2 {
		t.Errorf("Level = %d, want 2 (bonus must not cascade)", prof.Level)
	}

	// The next event picks the pending level up normally.
	prof, _, err = proc.Process(RewardEvent{UserID: 9, GroupID: 5, ActionType: models.ActionUserEval, SourceEventID: "evt-2"})
	if err != nil {
		t.Fatal(err)
	}
	if prof.Level != 3 {
		t.Errorf("Level after next event = %d, want 3", prof.Level)
	}
}

func TestProcessUnknownActionIsNoOp(t *testing.T) {
	db := newTestDB(t)
	proc, notifier := newTestProcessor(t, db, models.GroupConfig{
		GroupID:          5,
		RewardTable:      models.RewardTable{models.ActionOrder: {Exp: 5, Points: 5}},
		LevelTable:       models.LevelTable{{Level: 1}},
		BroadcastTargets: models.Int64List{-100123},
		BroadcastEnabled: true,
	})

	prof, applied, err := proc.Process(RewardEvent{UserID: 11, GroupID: 5, ActionType: "mystery_action", SourceEventID: "evt-1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if applied {
		t.Error("applied = true for unknown action")
	}
	if prof != nil {
		t.Errorf("profile = %+v, want nil (no provisioning for unknown action)", prof)
	}
	if len(notifier.calls) != 0 {
		t.Errorf("notifications sent for unknown action: %v", notifier.kinds())
	}
	if n := countRows(t, db, &models.LedgerEntry{}, "user_id = ?", int64(11)); n != 0 {
		t.Errorf("ledger entries = %d, want 0", n)
	}
}

func TestProcessDuplicateEventIsNoOp(t *testing.T) {
	db := newTestDB(t)
	proc, _ := newTestProcessor(t, db, models.GroupConfig{
		GroupID:     5,
		RewardTable: models.RewardTable{models.ActionOrder: {Exp: 5, Points: 5}},
		LevelTable:  models.LevelTable{{Level: 1}},
	})

	if _, applied, err := proc.Process(RewardEvent{UserID: 13, GroupID: 5, ActionType: models.ActionOrder, SourceEventID: "order-77"}); err != nil || !applied {
		t.Fatalf("first event: applied=%v err=%v", applied, err)
	}
	prof, applied, err := proc.Process(RewardEvent{UserID: 13, GroupID: 5, ActionType: models.ActionOrder, SourceEventID: "order-77"})
	if err != nil {
		t.Fatalf("duplicate event: %v", err)
	}
	if applied {
		t.Error("duplicate event reported as applied")
	}
	if prof.TotalExp != 5 || prof.AvailablePoints != 5 {
		t.Errorf("balances after duplicate = exp %d / points %d, want 5 / 5", prof.TotalExp, prof.AvailablePoints)
	}
	if n := countRows(t, db, &models.LedgerEntry{}, "user_id = ? AND related_event_id = ?", int64(13), "order-77"); n != 1 {
		t.Errorf("ledger entries for order-77 = %d, want 1", n)
	}
}

func TestProcessBadgeAndMilestoneFlow(t *testing.T) {
	db := newTestDB(t)
	proc, notifier := newTestProcessor(t, db, models.GroupConfig{
		GroupID:          5,
		RewardTable:      models.RewardTable{models.ActionOrder: {Exp: 10, Points: 100}},
		LevelTable:       models.LevelTable{{Level: 1}},
		BroadcastTargets: models.Int64List{-100123},
		BroadcastEnabled: true,
	})
	seedBadge(t, db, "first-order", models.GlobalGroupID, models.UnlockCondition{
		Type: models.ConditionStatBased, Field: "order_count", Target: 1,
	})
	seedMilestone(t, db, models.Milestone{
		GroupID:        models.GlobalGroupID,
		Name:           "milestone_100",
		RequiredPoints: 100,
		RewardType:     models.MilestoneRewardPoints,
		RewardAmount:   20,
	})

	prof, applied, err := proc.Process(RewardEvent{UserID: 21, GroupID: 5, ActionType: models.ActionOrder, SourceEventID: "order-1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !applied {
		t.Fatal("applied = false, want true")
	}

	// Milestone bonus lands in the returned snapshot.
	if prof.AvailablePoints != 120 {
		t.Errorf("AvailablePoints = %d, want 120 (100 reward + 20 milestone)", prof.AvailablePoints)
	}
	if n := countRows(t, db, &models.UserBadge{}, "user_id = ?", int64(21)); n != 1 {
		t.Errorf("user badges = %d, want 1", n)
	}

	kinds := map[string]bool{}
	for _, k := range notifier.kinds() {
		kinds[k] = true
	}
	if !kinds[models.TemplateBadgeUnlock] || !kinds[models.TemplateMilestone] {
		t.Errorf("notification kinds = %v, want badge_unlock and milestone", notifier.kinds())
	}
}

func TestProcessBroadcastDisabled(t *testing.T) {
	db := newTestDB(t)
	proc, notifier := newTestProcessor(t, db, models.GroupConfig{
		GroupID:     5,
		RewardTable: models.RewardTable{models.ActionOrder: {Exp: 100, Points: 0}},
		LevelTable: models.LevelTable{
			{Level: 1},
			{Level: 2, RequiredExp: 50},
		},
		BroadcastTargets: models.Int64List{-100123},
		BroadcastEnabled: false,
	})

	prof, _, err := proc.Process(RewardEvent{UserID: 31, GroupID: 5, ActionType: models.ActionOrder, SourceEventID: "evt-1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if prof.Level != 2 {
		t.Errorf("Level = %d, want 2", prof.Level)
	}
	if len(notifier.calls) != 0 {
		t.Errorf("notifications sent with broadcast disabled: %v", notifier.kinds())
	}
}
