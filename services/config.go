package services

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"reward-progression-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConfigProvider resolves group-scoped configuration with a global fallback.
// Config rows are read-mostly, so resolved configs are cached in memory and
// invalidated explicitly on admin writes.
type ConfigProvider struct {
	DB *gorm.DB

	mu    sync.RWMutex
	cache map[int64]*models.GroupConfig
}

func NewConfigProvider(db *gorm.DB) *ConfigProvider {
	return &ConfigProvider{DB: db, cache: make(map[int64]*models.GroupConfig)}
}

// EnsureGlobalDefaults seeds the global config row on first boot so a fresh
// deployment rewards sanely before any admin touches it.
func (p *ConfigProvider) EnsureGlobalDefaults() error {
	var cfg models.GroupConfig
	err := p.DB.Where("group_id = ?", models.GlobalGroupID).First(&cfg).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	cfg = models.GroupConfig{
		ID:                 uuid.NewString(),
		GroupID:            models.GlobalGroupID,
		LevelTable:         models.DefaultLevelTable,
		RewardTable:        models.DefaultRewardTable,
		BroadcastTemplates: models.DefaultBroadcastTemplates,
		BroadcastTargets:   models.Int64List{},
	}
	if err := p.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}},
		DoNothing: true,
	}).Create(&cfg).Error; err != nil {
		return fmt.Errorf("seed global config: %w", err)
	}
	log.Println("✅ [CONFIG] seeded global default config")
	return nil
}

// Get resolves the effective config for a group: group row if present,
// otherwise the global row. A missing global row yields built-in defaults so
// config lookups never fail the surrounding event.
func (p *ConfigProvider) Get(groupID int64) *models.GroupConfig {
	if cfg := p.cached(groupID); cfg != nil {
		return cfg
	}

	var cfg models.GroupConfig
	err := p.DB.Where("group_id = ?", groupID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) && groupID != models.GlobalGroupID {
		return p.Get(models.GlobalGroupID)
	}
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("⚠️ [CONFIG] load failed for group %d: %v", groupID, err)
		}
		return &models.GroupConfig{
			GroupID:            models.GlobalGroupID,
			LevelTable:         models.DefaultLevelTable,
			RewardTable:        models.DefaultRewardTable,
			BroadcastTemplates: models.DefaultBroadcastTemplates,
		}
	}

	p.mu.Lock()
	p.cache[groupID] = &cfg
	p.mu.Unlock()
	return &cfg
}

func (p *ConfigProvider) cached(groupID int64) *models.GroupConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache[groupID]
}

// RewardTable returns the effective reward table for a group.
func (p *ConfigProvider) RewardTable(groupID int64) models.RewardTable {
	return p.Get(groupID).RewardTable
}

// LevelTable returns the effective level table for a group.
func (p *ConfigProvider) LevelTable(groupID int64) models.LevelTable {
	return p.Get(groupID).LevelTable
}

// Template resolves a named broadcast template for a group.
func (p *ConfigProvider) Template(groupID int64, kind string) (models.BroadcastTemplate, bool) {
	tpl, ok := p.Get(groupID).BroadcastTemplates[kind]
	return tpl, ok
}

// Invalidate drops a group's cached config after an admin write.
func (p *ConfigProvider) Invalidate(groupID int64) {
	p.mu.Lock()
	delete(p.cache, groupID)
	if groupID == models.GlobalGroupID {
		// Groups without their own row resolve through the global one.
		p.cache = make(map[int64]*models.GroupConfig)
	}
	p.mu.Unlock()
}

// GroupConfigUpdate carries the admin surface's partial config update. Nil
// fields are left untouched.
type GroupConfigUpdate struct {
	LevelTable         *models.LevelTable  `json:"level_table"`
	RewardTable        *models.RewardTable `json:"reward_table"`
	BroadcastTemplates *models.TemplateMap `json:"broadcast_templates"`
	BroadcastTargets   *models.Int64List   `json:"broadcast_targets"`
	BroadcastEnabled   *bool               `json:"broadcast_enabled"`
}

// Apply upserts a group's config row and invalidates its cache entry.
func (p *ConfigProvider) Apply(groupID int64, upd GroupConfigUpdate) (*models.GroupConfig, error) {
	if upd.LevelTable != nil {
		if err := validateLevelTable(*upd.LevelTable); err != nil {
			return nil, err
		}
	}

	var cfg models.GroupConfig
	err := p.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("group_id = ?", groupID).First(&cfg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cfg = models.GroupConfig{ID: uuid.NewString(), GroupID: groupID}
		} else if err != nil {
			return err
		}

		if upd.LevelTable != nil {
			cfg.LevelTable = *upd.LevelTable
		}
		if upd.RewardTable != nil {
			cfg.RewardTable = *upd.RewardTable
		}
		if upd.BroadcastTemplates != nil {
			cfg.BroadcastTemplates = *upd.BroadcastTemplates
		}
		if upd.BroadcastTargets != nil {
			cfg.BroadcastTargets = *upd.BroadcastTargets
		}
		if upd.BroadcastEnabled != nil {
			cfg.BroadcastEnabled = *upd.BroadcastEnabled
		}
		return tx.Save(&cfg).Error
	})
	if err != nil {
		return nil, err
	}

	p.Invalidate(groupID)
	return &cfg, nil
}

// CreateBadge stores a new badge definition. The condition kind must belong
// to the closed set; this is an admin-facing structured error, not a skip.
func (p *ConfigProvider) CreateBadge(def *models.BadgeDefinition) error {
	switch def.Condition.Type {
	case models.ConditionStatBased, models.ConditionEvaluationStreak, models.ConditionAdminOnly:
	default:
		return fmt.Errorf("unknown unlock condition type %q", def.Condition.Type)
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.Status == "" {
		def.Status = models.BadgeStatusActive
	}
	return p.DB.Create(def).Error
}

// RetireBadge takes a definition out of rotation without touching existing
// grants.
func (p *ConfigProvider) RetireBadge(badgeID string) error {
	res := p.DB.Model(&models.BadgeDefinition{}).
		Where("id = ?", badgeID).
		Update("status", models.BadgeStatusRetired)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReplaceMilestones swaps a group's milestone list atomically, mirroring how
// the admin surface edits it as one document.
func (p *ConfigProvider) ReplaceMilestones(groupID int64, list []models.Milestone) error {
	for i := range list {
		if list[i].RequiredPoints <= 0 {
			return fmt.Errorf("milestone %q: required_points must be positive", list[i].Name)
		}
		switch list[i].RewardType {
		case models.MilestoneRewardPoints, models.MilestoneRewardExp, models.MilestoneRewardMixed, models.MilestoneRewardBadge:
		default:
			return fmt.Errorf("milestone %q: unknown reward type %q", list[i].Name, list[i].RewardType)
		}
		if list[i].ID == "" {
			list[i].ID = uuid.NewString()
		}
		list[i].GroupID = groupID
	}
	return p.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&models.Milestone{}).Error; err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
		return tx.Create(&list).Error
	})
}

// Milestones lists a group's milestones plus the global ones.
func (p *ConfigProvider) Milestones(groupID int64) ([]models.Milestone, error) {
	var list []models.Milestone
	err := p.DB.Where("group_id IN ?", []int64{models.GlobalGroupID, groupID}).
		Order("required_points ASC").
		Find(&list).Error
	return list, err
}

func validateLevelTable(table models.LevelTable) error {
	var prevExp int64 = -1
	for i, row := range table {
		if row.Level < 1 {
			return fmt.Errorf("level table row %d: level must be >= 1", i)
		}
		if row.RequiredExp < prevExp {
			return fmt.Errorf("level table row %d: required_exp must be ascending", i)
		}
		prevExp = row.RequiredExp
	}
	return nil
}
