package services

import (
	"path/filepath"
	"testing"

	"reward-progression-system/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "rewards.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.UserProfile{},
		&models.LedgerEntry{},
		&models.GroupConfig{},
		&models.BadgeDefinition{},
		&models.UserBadge{},
		&models.Milestone{},
		&models.UserMilestoneAchievement{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// seedConfig inserts a config row for a group and returns a provider over it.
func seedConfig(t *testing.T, db *gorm.DB, groupID int64, rewards models.RewardTable, levels models.LevelTable) *ConfigProvider {
	t.Helper()
	cfg := models.GroupConfig{
		ID:          uuid.NewString(),
		GroupID:     groupID,
		RewardTable: rewards,
		LevelTable:  levels,
	}
	if err := db.Create(&cfg).Error; err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return NewConfigProvider(db)
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}
