package models

import (
	"time"
)

// UserProfile is the per-user aggregate the ledger derives. One row per user;
// group scope lives on ledger entries and milestone achievements, not here.
// Invariant: AvailablePoints == TotalPointsEarned - TotalPointsSpent, and
// Level/TotalExp only decrease through an explicit admin adjustment.
type UserProfile struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      int64  `gorm:"uniqueIndex;not null" json:"user_id"`
	DisplayName string `json:"display_name"`

	// Core progression
	Level             int   `json:"level" gorm:"default:1"`
	TotalExp          int64 `json:"total_exp" gorm:"default:0"`
	AvailablePoints   int64 `json:"available_points" gorm:"default:0"`
	TotalPointsEarned int64 `json:"total_points_earned" gorm:"default:0"`
	TotalPointsSpent  int64 `json:"total_points_spent" gorm:"default:0"`

	// Activity counters (per action category)
	AttackCount       int64 `json:"attack_count" gorm:"default:0"`
	UserEvalCount     int64 `json:"user_eval_count" gorm:"default:0"`
	MerchantEvalCount int64 `json:"merchant_eval_count" gorm:"default:0"`
	TextEvalCount     int64 `json:"text_eval_count" gorm:"default:0"`
	OrderCount        int64 `json:"order_count" gorm:"default:0"`
	BindCount         int64 `json:"bind_count" gorm:"default:0"`

	// Read cache of the user_badges join, refreshed after every grant.
	// Never written by business logic directly.
	BadgeSummary BadgeSummary `gorm:"type:jsonb" json:"badge_summary"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TotalEvalCount is the combined evaluation count used by level requirements.
func (p *UserProfile) TotalEvalCount() int64 {
	return p.UserEvalCount + p.MerchantEvalCount + p.TextEvalCount
}

// CounterColumn maps an action type to the profile counter it bumps.
// Actions without a counter (bonuses, admin adjustments) return "".
func CounterColumn(actionType string) string {
	switch actionType {
	case ActionAttack:
		return "attack_count"
	case ActionUserEval:
		return "user_eval_count"
	case ActionMerchantEval:
		return "merchant_eval_count"
	case ActionTextEval:
		return "text_eval_count"
	case ActionOrder:
		return "order_count"
	case ActionBind:
		return "bind_count"
	default:
		return ""
	}
}

// StatValue resolves a condition field name against the profile snapshot.
// Unknown fields report ok=false so a bad badge definition never satisfies.
func (p *UserProfile) StatValue(field string) (int64, bool) {
	switch field {
	case "attack_count":
		return p.AttackCount, true
	case "user_eval_count":
		return p.UserEvalCount, true
	case "merchant_eval_count":
		return p.MerchantEvalCount, true
	case "text_eval_count":
		return p.TextEvalCount, true
	case "order_count":
		return p.OrderCount, true
	case "bind_count":
		return p.BindCount, true
	case "total_exp":
		return p.TotalExp, true
	case "total_points_earned":
		return p.TotalPointsEarned, true
	case "available_points":
		return p.AvailablePoints, true
	case "level":
		return int64(p.Level), true
	default:
		return 0, false
	}
}

// Well-known action types emitted by the booking/evaluation subsystem.
// The reward table may define others; these are the ones with counters.
const (
	ActionAttack       = "attack"
	ActionUserEval     = "user_eval"
	ActionMerchantEval = "merchant_eval"
	ActionTextEval     = "text_eval"
	ActionOrder        = "order"
	ActionBind         = "bind"

	// Internal actions produced by the engine itself.
	ActionLevelUpBonus   = "level_up_bonus"
	ActionMilestoneBonus = "milestone_bonus"
	ActionPointsSpent    = "points_spent"
	ActionAdminAdjust    = "admin_adjust"
)
