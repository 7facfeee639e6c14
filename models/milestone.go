package models

import (
	"time"
)

// MilestoneRewardType selects what a milestone pays out.
type MilestoneRewardType string

const (
	MilestoneRewardPoints MilestoneRewardType = "points"
	MilestoneRewardExp    MilestoneRewardType = "exp"
	MilestoneRewardMixed  MilestoneRewardType = "mixed"
	MilestoneRewardBadge  MilestoneRewardType = "badge"
)

// Milestone is a cumulative-points threshold granting a one-time (or
// repeatable) bonus, evaluated against lifetime earned points, independent of
// level. GroupID 0 scopes it globally.
type Milestone struct {
	ID             string              `gorm:"primaryKey;type:uuid" json:"id"`
	GroupID        int64               `gorm:"index" json:"group_id"`
	Name           string              `gorm:"not null" json:"name"`
	RequiredPoints int64               `gorm:"not null" json:"required_points"`
	RewardType     MilestoneRewardType `gorm:"type:varchar(16);not null" json:"reward_type"`
	RewardAmount   int64               `json:"reward_amount"`
	// Optional badge side effect (reward_type badge, or extra on top).
	BadgeID     *string   `gorm:"type:uuid" json:"badge_id,omitempty"`
	AllowRepeat bool      `gorm:"default:false" json:"allow_repeat"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// RewardDeltas translates the reward type into ledger deltas. Badge-only
// milestones pay nothing through the ledger.
func (m *Milestone) RewardDeltas() (exp, points int64) {
	switch m.RewardType {
	case MilestoneRewardPoints:
		return 0, m.RewardAmount
	case MilestoneRewardExp:
		return m.RewardAmount, 0
	case MilestoneRewardMixed:
		return m.RewardAmount, m.RewardAmount
	default:
		return 0, 0
	}
}

// UserMilestoneAchievement records one grant. Seq is 1 for the first grant
// and increments per repeat, so the composite unique index rejects duplicate
// grants for both one-shot and repeatable milestones.
type UserMilestoneAchievement struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      int64     `gorm:"uniqueIndex:idx_user_milestone;not null" json:"user_id"`
	GroupScope  int64     `gorm:"uniqueIndex:idx_user_milestone" json:"group_scope"`
	MilestoneID string    `gorm:"uniqueIndex:idx_user_milestone;type:uuid;not null" json:"milestone_id"`
	Seq         int       `gorm:"uniqueIndex:idx_user_milestone;default:1" json:"seq"`
	AchievedAt  time.Time `gorm:"autoCreateTime" json:"achieved_at"`
}
