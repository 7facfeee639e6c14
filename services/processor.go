package services

import (
	"fmt"
	"log"
	"strconv"

	"reward-progression-system/models"
)

// EventNotifier is the out-of-band notification sink. The broadcast
// dispatcher implements it; its failures never reach the reward caller.
type EventNotifier interface {
	Enqueue(groupID int64, kind string, payload map[string]string, targets []int64) bool
}

// RewardEvent is what the booking/evaluation subsystem emits when a business
// event completes.
type RewardEvent struct {
	UserID        int64  `json:"user_id"`
	GroupID       int64  `json:"group_id,omitempty"`
	ActionType    string `json:"action_type"`
	SourceEventID string `json:"source_event_id,omitempty"`
}

// RewardProcessor sequences the engines per incoming event: ledger write,
// then level, badge and milestone checks against the post-commit snapshot,
// then notification fan-out. Everything after the commit is advisory: a
// failed check means fewer grants or no broadcast, never a rolled back
// reward.
type RewardProcessor struct {
	Ledger     *LedgerStore
	Config     *ConfigProvider
	Levels     *LevelEngine
	Badges     *BadgeRuleEngine
	Milestones *MilestoneEngine
	Notifier   EventNotifier
}

func NewRewardProcessor(ledger *LedgerStore, cfg *ConfigProvider, levels *LevelEngine, badges *BadgeRuleEngine, milestones *MilestoneEngine, notifier EventNotifier) *RewardProcessor {
	return &RewardProcessor{
		Ledger:     ledger,
		Config:     cfg,
		Levels:     levels,
		Badges:     badges,
		Milestones: milestones,
		Notifier:   notifier,
	}
}

// Process applies one reward event end to end and returns the resulting
// profile plus whether anything was credited. Unknown action types and
// duplicate events come back unchanged and uncredited.
func (p *RewardProcessor) Process(ev RewardEvent) (*models.UserProfile, bool, error) {
	out, err := p.Ledger.ApplyReward(ev.UserID, ev.GroupID, ev.ActionType, ev.SourceEventID)
	if err != nil {
		return nil, false, fmt.Errorf("apply reward for user %d: %w", ev.UserID, err)
	}
	if !out.Applied {
		return out.Profile, false, nil
	}

	prof := out.Profile
	cfg := p.Config.Get(ev.GroupID)

	// Level check against the committed snapshot. The level-up bonus runs as
	// its own ledger transaction and deliberately skips a second level check:
	// bonuses do not cascade.
	tr := p.Levels.Evaluate(out.PrevLevel, prof, cfg.LevelTable)
	if tr.LeveledUp {
		if err := p.Ledger.SetLevel(ev.UserID, tr.NewLevel); err != nil {
			log.Printf("❌ [PROCESSOR] persist level %d for user %d failed: %v", tr.NewLevel, ev.UserID, err)
		} else {
			prof.Level = tr.NewLevel
			log.Printf("🎮 [PROCESSOR] user %d leveled up %d → %d", ev.UserID, tr.OldLevel, tr.NewLevel)
			if bonus := p.applyLevelBonus(ev, tr); bonus != nil {
				prof = bonus
			}
			p.notify(cfg, ev.GroupID, models.TemplateLevelUp, map[string]string{
				"display_name": displayName(prof),
				"old_level":    strconv.Itoa(tr.OldLevel),
				"new_level":    strconv.Itoa(tr.NewLevel),
				"level_name":   tr.LevelName,
			})
		}
	}

	badges, err := p.Badges.CheckAndUnlock(ev.UserID, prof, ev.GroupID)
	if err != nil {
		log.Printf("⚠️ [PROCESSOR] badge check for user %d failed: %v", ev.UserID, err)
	}
	for _, b := range badges {
		p.notify(cfg, ev.GroupID, models.TemplateBadgeUnlock, map[string]string{
			"display_name": displayName(prof),
			"badge_name":   b.Name,
			"rarity":       b.Rarity,
		})
	}

	milestones, err := p.Milestones.CheckAndGrant(ev.UserID, ev.GroupID, prof.TotalPointsEarned)
	if err != nil {
		log.Printf("⚠️ [PROCESSOR] milestone check for user %d failed: %v", ev.UserID, err)
	}
	for _, ms := range milestones {
		p.notify(cfg, ev.GroupID, models.TemplateMilestone, map[string]string{
			"display_name":    displayName(prof),
			"milestone_name":  ms.Name,
			"required_points": strconv.FormatInt(ms.RequiredPoints, 10),
			"reward_amount":   strconv.FormatInt(ms.RewardAmount, 10),
		})
	}

	// Hand back the freshest snapshot if downstream grants moved balances.
	if len(badges) > 0 || len(milestones) > 0 {
		if fresh, err := p.Ledger.GetProfile(ev.UserID); err == nil {
			prof = fresh
		}
	}
	return prof, true, nil
}

// applyLevelBonus pays the configured level_up_bonus through the normal
// reward pipeline in a second, independent transaction.
func (p *RewardProcessor) applyLevelBonus(ev RewardEvent, tr LevelTransition) *models.UserProfile {
	if _, ok := p.Config.RewardTable(ev.GroupID)[models.ActionLevelUpBonus]; !ok {
		return nil
	}
	bonusEventID := ""
	if ev.SourceEventID != "" {
		bonusEventID = fmt.Sprintf("%s:level_%d", ev.SourceEventID, tr.NewLevel)
	}
	out, err := p.Ledger.ApplyReward(ev.UserID, ev.GroupID, models.ActionLevelUpBonus, bonusEventID)
	if err != nil {
		log.Printf("⚠️ [PROCESSOR] level-up bonus for user %d failed: %v", ev.UserID, err)
		return nil
	}
	return out.Profile
}

func (p *RewardProcessor) notify(cfg *models.GroupConfig, groupID int64, kind string, payload map[string]string) {
	if p.Notifier == nil || !cfg.BroadcastEnabled || len(cfg.BroadcastTargets) == 0 {
		return
	}
	p.Notifier.Enqueue(groupID, kind, payload, cfg.BroadcastTargets)
}

func displayName(prof *models.UserProfile) string {
	if prof.DisplayName != "" {
		return prof.DisplayName
	}
	return strconv.FormatInt(prof.UserID, 10)
}
