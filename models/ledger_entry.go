package models

import (
	"time"
)

// LedgerEntry is the append-only audit record. Exactly one entry is written
// per profile mutation, inside the same transaction; rows are never updated.
// ExpAfter/PointsAfter snapshot the profile *after* the change so the history
// can be audited without replaying it.
type LedgerEntry struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        int64  `gorm:"index;not null;uniqueIndex:idx_ledger_event_dedup,where:related_event_id <> ''" json:"user_id"`
	SourceGroupID *int64 `gorm:"index" json:"source_group_id,omitempty"`
	ActionType    string `gorm:"not null;uniqueIndex:idx_ledger_event_dedup,where:related_event_id <> ''" json:"action_type"`

	ExpChange    int64 `json:"exp_change"`
	PointsChange int64 `json:"points_change"`
	ExpAfter     int64 `json:"exp_after"`
	PointsAfter  int64 `json:"points_after"`

	Description string `json:"description"`
	// Upstream event id, recorded for audit and used to deduplicate
	// re-delivered events (empty means no dedup possible).
	RelatedEventID string `gorm:"uniqueIndex:idx_ledger_event_dedup,where:related_event_id <> ''" json:"related_event_id"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
