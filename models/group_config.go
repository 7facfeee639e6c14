package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// GlobalGroupID is the group id of the fallback config row. Groups without
// their own config resolve to it.
const GlobalGroupID int64 = 0

// LevelThreshold is one row of a group's level table, ordered ascending by
// RequiredExp. A level is reached when both requirements are satisfied.
type LevelThreshold struct {
	Level         int    `json:"level"`
	Name          string `json:"name"`
	RequiredExp   int64  `json:"required_exp"`
	RequiredEvals int64  `json:"required_evals"`
}

type LevelTable []LevelThreshold

// RewardRule maps an action type to its exp/point deltas.
type RewardRule struct {
	Exp         int64  `json:"exp"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

type RewardTable map[string]RewardRule

// BroadcastTemplate is a stored notification text with {placeholder} tokens.
type BroadcastTemplate struct {
	Text        string `json:"text"`
	Pin         bool   `json:"pin"`
	UnpinAfterS int    `json:"unpin_after_s,omitempty"`
}

type TemplateMap map[string]BroadcastTemplate

type Int64List []int64

// Template kinds rendered by the broadcast dispatcher.
const (
	TemplateLevelUp     = "level_up"
	TemplateBadgeUnlock = "badge_unlock"
	TemplateMilestone   = "milestone"
)

// GroupConfig holds per-group progression configuration. GroupID 0 is the
// global default; resolution falls back to it when no group row exists.
type GroupConfig struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	GroupID int64  `gorm:"uniqueIndex;not null" json:"group_id"`

	LevelTable         LevelTable  `gorm:"type:jsonb" json:"level_table"`
	RewardTable        RewardTable `gorm:"type:jsonb" json:"reward_table"`
	BroadcastTemplates TemplateMap `gorm:"type:jsonb" json:"broadcast_templates"`
	BroadcastTargets   Int64List   `gorm:"type:jsonb" json:"broadcast_targets"`
	BroadcastEnabled   bool        `gorm:"default:false" json:"broadcast_enabled"`

	Timestamps
}

// DefaultLevelTable seeds the global config on first boot.
var DefaultLevelTable = LevelTable{
	{Level: 1, Name: "新人", RequiredExp: 0, RequiredEvals: 0},
	{Level: 2, Name: "学徒", RequiredExp: 50, RequiredEvals: 3},
	{Level: 3, Name: "熟手", RequiredExp: 200, RequiredEvals: 10},
	{Level: 4, Name: "行家", RequiredExp: 500, RequiredEvals: 25},
	{Level: 5, Name: "宗师", RequiredExp: 1200, RequiredEvals: 60},
}

// DefaultRewardTable seeds the global config on first boot.
var DefaultRewardTable = RewardTable{
	ActionUserEval:     {Exp: 30, Points: 25, Description: "用户测评"},
	ActionMerchantEval: {Exp: 30, Points: 25, Description: "商家测评"},
	ActionTextEval:     {Exp: 15, Points: 10, Description: "文字测评"},
	ActionAttack:       {Exp: 10, Points: 5, Description: "出击"},
	ActionOrder:        {Exp: 20, Points: 15, Description: "订单完成"},
	ActionBind:         {Exp: 10, Points: 10, Description: "绑定"},
	ActionLevelUpBonus: {Exp: 0, Points: 50, Description: "升级奖励"},
}

// DefaultBroadcastTemplates seeds the global config on first boot.
var DefaultBroadcastTemplates = TemplateMap{
	TemplateLevelUp:     {Text: "🎉 恭喜 {display_name} 升级到 Lv.{new_level} {level_name}！"},
	TemplateBadgeUnlock: {Text: "🎖 {display_name} 解锁了徽章「{badge_name}」（{rarity}）！"},
	TemplateMilestone:   {Text: "🏆 {display_name} 达成里程碑「{milestone_name}」，奖励 {reward_amount}！"},
}

// --- JSON column plumbing ---

func jsonValue(v interface{}) (driver.Value, error) { return json.Marshal(v) }

func jsonScan(dst interface{}, src interface{}) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}

func (t LevelTable) Value() (driver.Value, error)  { return json.Marshal(t) }
func (t *LevelTable) Scan(src interface{}) error   { return jsonScan(t, src) }
func (t RewardTable) Value() (driver.Value, error) { return json.Marshal(t) }
func (t *RewardTable) Scan(src interface{}) error  { return jsonScan(t, src) }
func (t TemplateMap) Value() (driver.Value, error) { return json.Marshal(t) }
func (t *TemplateMap) Scan(src interface{}) error  { return jsonScan(t, src) }
func (l Int64List) Value() (driver.Value, error)   { return json.Marshal(l) }
func (l *Int64List) Scan(src interface{}) error    { return jsonScan(l, src) }
