package models

import (
	"database/sql/driver"
	"time"
)

// ConditionKind tags the closed set of badge unlock conditions. Anything
// outside this set decodes fine but never satisfies.
type ConditionKind string

const (
	ConditionStatBased        ConditionKind = "stat_based"
	ConditionEvaluationStreak ConditionKind = "evaluation_streak"
	ConditionAdminOnly        ConditionKind = "admin_only"
)

// UnlockCondition is a declarative rule evaluated against a profile snapshot.
// stat_based:        profile[Field] >= Target
// evaluation_streak: the named evaluation counter >= Count
// admin_only:        never auto-granted
type UnlockCondition struct {
	Type ConditionKind `json:"type"`

	// stat_based
	Field  string `json:"field,omitempty"`
	Target int64  `json:"target,omitempty"`

	// evaluation_streak
	EvaluationType string `json:"evaluation_type,omitempty"`
	Count          int64  `json:"count,omitempty"`
}

func (c UnlockCondition) Value() (driver.Value, error) { return jsonValue(c) }
func (c *UnlockCondition) Scan(src interface{}) error  { return jsonScan(c, src) }

type BadgeStatus string

const (
	BadgeStatusActive  BadgeStatus = "active"
	BadgeStatusRetired BadgeStatus = "retired"
)

// BadgeDefinition is admin-owned configuration, read-only to the engines.
// GroupID 0 scopes the badge globally.
type BadgeDefinition struct {
	ID          string          `gorm:"primaryKey;type:uuid" json:"id"`
	Code        string          `gorm:"uniqueIndex;not null" json:"code"`
	GroupID     int64           `gorm:"index" json:"group_id"`
	Name        string          `gorm:"not null" json:"name"`
	Description string          `json:"description"`
	IconURL     string          `gorm:"type:text" json:"icon_url"`
	Rarity      string          `gorm:"type:varchar(16);default:'common'" json:"rarity"`
	Condition   UnlockCondition `gorm:"type:jsonb" json:"unlock_condition"`
	Status      BadgeStatus     `gorm:"type:varchar(16);default:'active';index" json:"status"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// UserBadge records a grant. The composite unique index is the idempotency
// boundary: concurrent duplicate grants lose at the storage layer.
type UserBadge struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    int64     `gorm:"uniqueIndex:idx_user_badge;not null" json:"user_id"`
	BadgeID   string    `gorm:"uniqueIndex:idx_user_badge;type:uuid;not null" json:"badge_id"`
	AwardedAt time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}

// BadgeSummaryItem is one element of the denormalized badge cache on the
// profile row.
type BadgeSummaryItem struct {
	BadgeID string `json:"badge_id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Rarity  string `json:"rarity"`
}

type BadgeSummary []BadgeSummaryItem

func (s BadgeSummary) Value() (driver.Value, error) { return jsonValue(s) }
func (s *BadgeSummary) Scan(src interface{}) error  { return jsonScan(s, src) }
