package services

import (
	"errors"
	"fmt"
	"log"

	"reward-progression-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeRuleEngine evaluates declarative unlock conditions against profile
// snapshots and grants badges idempotently.
type BadgeRuleEngine struct {
	DB *gorm.DB
}

func NewBadgeRuleEngine(db *gorm.DB) *BadgeRuleEngine {
	return &BadgeRuleEngine{DB: db}
}

// CheckAndUnlock scans the active badge definitions in scope (global plus the
// user's group), grants every satisfied, not-yet-owned one and returns the
// newly granted definitions. A malformed definition is skipped, never an
// error that aborts the scan.
func (e *BadgeRuleEngine) CheckAndUnlock(userID int64, prof *models.UserProfile, groupID int64) ([]models.BadgeDefinition, error) {
	if prof == nil {
		return nil, nil
	}

	var defs []models.BadgeDefinition
	if err := e.DB.
		Where("status = ? AND group_id IN ?", models.BadgeStatusActive, []int64{models.GlobalGroupID, groupID}).
		Find(&defs).Error; err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, nil
	}

	owned := make(map[string]bool)
	var ownedIDs []string
	if err := e.DB.Model(&models.UserBadge{}).
		Where("user_id = ?", userID).
		Pluck("badge_id", &ownedIDs).Error; err != nil {
		return nil, err
	}
	for _, id := range ownedIDs {
		owned[id] = true
	}

	var granted []models.BadgeDefinition
	for _, def := range defs {
		if owned[def.ID] || !conditionSatisfied(def.Condition, prof) {
			continue
		}
		ok, err := e.grant(userID, def.ID)
		if err != nil {
			// One broken grant must not starve the rest of the scan.
			log.Printf("⚠️ [BADGE] grant %s to user %d failed: %v", def.Code, userID, err)
			continue
		}
		if ok {
			granted = append(granted, def)
			log.Printf("🎖️ [BADGE] %s awarded to user %d", def.Code, userID)
		}
	}

	if len(granted) > 0 {
		if err := e.RefreshBadgeSummary(userID); err != nil {
			log.Printf("⚠️ [BADGE] summary refresh for user %d failed: %v", userID, err)
		}
	}
	return granted, nil
}

// grant inserts the UserBadge row. The composite unique index arbitrates
// concurrent duplicates; losing the race is reported as "not newly granted",
// not as an error.
func (e *BadgeRuleEngine) grant(userID int64, badgeID string) (bool, error) {
	ub := models.UserBadge{
		ID:      uuid.NewString(),
		UserID:  userID,
		BadgeID: badgeID,
	}
	res := e.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(&ub)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GrantAdminBadge grants a badge by hand, the only path for admin_only
// conditions. Returns false when the user already owns it.
func (e *BadgeRuleEngine) GrantAdminBadge(userID int64, badgeID string) (bool, error) {
	var def models.BadgeDefinition
	if err := e.DB.Where("id = ?", badgeID).First(&def).Error; err != nil {
		return false, fmt.Errorf("badge %s: %w", badgeID, err)
	}
	if def.Status != models.BadgeStatusActive {
		return false, fmt.Errorf("badge %s is retired", def.Code)
	}
	ok, err := e.grant(userID, badgeID)
	if err != nil {
		return false, err
	}
	if ok {
		if err := e.RefreshBadgeSummary(userID); err != nil {
			log.Printf("⚠️ [BADGE] summary refresh for user %d failed: %v", userID, err)
		}
	}
	return ok, nil
}

// RefreshBadgeSummary recomputes the denormalized badge list on the profile
// row from the user_badges join. The summary is a read cache; user_badges
// stays the source of truth.
func (e *BadgeRuleEngine) RefreshBadgeSummary(userID int64) error {
	var rows []struct {
		BadgeID string
		Code    string
		Name    string
		Rarity  string
	}
	if err := e.DB.Model(&models.UserBadge{}).
		Select("user_badges.badge_id, badge_definitions.code, badge_definitions.name, badge_definitions.rarity").
		Joins("JOIN badge_definitions ON badge_definitions.id = user_badges.badge_id").
		Where("user_badges.user_id = ?", userID).
		Order("user_badges.awarded_at ASC").
		Scan(&rows).Error; err != nil {
		return err
	}

	summary := make(models.BadgeSummary, 0, len(rows))
	for _, r := range rows {
		summary = append(summary, models.BadgeSummaryItem{
			BadgeID: r.BadgeID,
			Code:    r.Code,
			Name:    r.Name,
			Rarity:  r.Rarity,
		})
	}
	return e.DB.Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Update("badge_summary", summary).Error
}

// UserBadges lists a user's badges joined with their definitions.
func (e *BadgeRuleEngine) UserBadges(userID int64) ([]map[string]interface{}, error) {
	var rows []struct {
		models.UserBadge
		Code        string
		Name        string
		Description string
		IconURL     string
		Rarity      string
	}
	if err := e.DB.Model(&models.UserBadge{}).
		Select("user_badges.*, badge_definitions.code, badge_definitions.name, badge_definitions.description, badge_definitions.icon_url, badge_definitions.rarity").
		Joins("JOIN badge_definitions ON badge_definitions.id = user_badges.badge_id").
		Where("user_badges.user_id = ?", userID).
		Order("user_badges.awarded_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]interface{}{
			"badge_id":    r.BadgeID,
			"code":        r.Code,
			"name":        r.Name,
			"description": r.Description,
			"icon_url":    r.IconURL,
			"rarity":      r.Rarity,
			"awarded_at":  r.AwardedAt,
		})
	}
	return out, nil
}

// conditionSatisfied evaluates one unlock condition against the snapshot.
// Unknown kinds and unknown fields read as "not satisfied".
func conditionSatisfied(cond models.UnlockCondition, prof *models.UserProfile) bool {
	switch cond.Type {
	case models.ConditionStatBased:
		v, ok := prof.StatValue(cond.Field)
		return ok && v >= cond.Target
	case models.ConditionEvaluationStreak:
		col := evalCounterField(cond.EvaluationType)
		if col == "" {
			return false
		}
		v, ok := prof.StatValue(col)
		return ok && v >= cond.Count
	case models.ConditionAdminOnly:
		return false
	default:
		return false
	}
}

// evalCounterField restricts evaluation_streak to the evaluation counters.
func evalCounterField(evaluationType string) string {
	switch evaluationType {
	case models.ActionUserEval:
		return "user_eval_count"
	case models.ActionMerchantEval:
		return "merchant_eval_count"
	case models.ActionTextEval:
		return "text_eval_count"
	default:
		return ""
	}
}
