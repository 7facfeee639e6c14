package services

import (
	"fmt"
	"log"

	"reward-progression-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MilestoneEngine grants cumulative-points bonuses, independent of level and
// badges. Evaluation runs against lifetime earned points, not the spendable
// balance.
type MilestoneEngine struct {
	DB     *gorm.DB
	Ledger *LedgerStore
	Badges *BadgeRuleEngine
}

func NewMilestoneEngine(db *gorm.DB, ledger *LedgerStore, badges *BadgeRuleEngine) *MilestoneEngine {
	return &MilestoneEngine{DB: db, Ledger: ledger, Badges: badges}
}

// CheckAndGrant grants every milestone in scope the user has newly reached
// and returns them. One-shot milestones grant once; repeatable ones grant
// once per full multiple of their threshold, so replaying the same check is
// idempotent either way.
func (m *MilestoneEngine) CheckAndGrant(userID, groupScope int64, cumulativePoints int64) ([]models.Milestone, error) {
	var milestones []models.Milestone
	if err := m.DB.
		Where("group_id IN ? AND required_points <= ?", []int64{models.GlobalGroupID, groupScope}, cumulativePoints).
		Order("required_points ASC").
		Find(&milestones).Error; err != nil {
		return nil, err
	}

	var achieved []models.Milestone
	for _, ms := range milestones {
		achievedCount, err := m.achievementCount(userID, groupScope, ms.ID)
		if err != nil {
			log.Printf("⚠️ [MILESTONE] count for %s failed: %v", ms.Name, err)
			continue
		}

		owed := int64(1)
		if ms.AllowRepeat && ms.RequiredPoints > 0 {
			owed = cumulativePoints / ms.RequiredPoints
		}

		granted := false
		for seq := achievedCount + 1; int64(seq) <= owed; seq++ {
			ok, err := m.grantOne(userID, groupScope, &ms, seq)
			if err != nil {
				log.Printf("⚠️ [MILESTONE] grant %s (seq %d) to user %d failed: %v", ms.Name, seq, userID, err)
				break
			}
			if !ok {
				// Concurrent grant won the race; nothing owed anymore.
				break
			}
			granted = true
			log.Printf("🏆 [MILESTONE] %s achieved by user %d (seq %d)", ms.Name, userID, seq)
		}
		if granted {
			achieved = append(achieved, ms)
		}
	}
	return achieved, nil
}

func (m *MilestoneEngine) achievementCount(userID, groupScope int64, milestoneID string) (int, error) {
	var n int64
	err := m.DB.Model(&models.UserMilestoneAchievement{}).
		Where("user_id = ? AND group_scope = ? AND milestone_id = ?", userID, groupScope, milestoneID).
		Count(&n).Error
	return int(n), err
}

// grantOne writes the achievement record and its bonus reward in one
// transaction, so a crash between the two cannot leave an un-recorded grant
// that a retry would double-pay. The composite unique index on the
// achievement row arbitrates concurrent duplicates.
func (m *MilestoneEngine) grantOne(userID, groupScope int64, ms *models.Milestone, seq int) (bool, error) {
	granted := false
	err := m.DB.Transaction(func(tx *gorm.DB) error {
		rec := models.UserMilestoneAchievement{
			ID:          uuid.NewString(),
			UserID:      userID,
			GroupScope:  groupScope,
			MilestoneID: ms.ID,
			Seq:         seq,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"}, {Name: "group_scope"}, {Name: "milestone_id"}, {Name: "seq"},
			},
			DoNothing: true,
		}).Create(&rec)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // lost the race, nothing to pay out
		}
		granted = true

		exp, points := ms.RewardDeltas()
		if exp != 0 || points != 0 {
			srcGroup := &groupScope
			if groupScope == models.GlobalGroupID {
				srcGroup = nil
			}
			desc := fmt.Sprintf("里程碑奖励: %s", ms.Name)
			if _, _, _, err := m.Ledger.applyChange(tx, userID, srcGroup, models.ActionMilestoneBonus, exp, points, desc, ""); err != nil {
				return err
			}
		}

		if ms.BadgeID != nil && *ms.BadgeID != "" {
			ub := models.UserBadge{
				ID:      uuid.NewString(),
				UserID:  userID,
				BadgeID: *ms.BadgeID,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
				DoNothing: true,
			}).Create(&ub).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if granted && ms.BadgeID != nil && *ms.BadgeID != "" {
		if err := m.Badges.RefreshBadgeSummary(userID); err != nil {
			log.Printf("⚠️ [MILESTONE] badge summary refresh for user %d failed: %v", userID, err)
		}
	}
	return granted, nil
}
