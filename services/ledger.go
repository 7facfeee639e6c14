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

// LedgerStore owns the append-only points/exp history and the per-user
// aggregate profile. Every profile mutation goes through it and produces
// exactly one ledger entry in the same transaction.
type LedgerStore struct {
	DB     *gorm.DB
	Config *ConfigProvider
}

func NewLedgerStore(db *gorm.DB, cfg *ConfigProvider) *LedgerStore {
	return &LedgerStore{DB: db, Config: cfg}
}

// ErrInsufficientPoints is returned when a spend exceeds the available balance.
var ErrInsufficientPoints = errors.New("insufficient available points")

// errDuplicateEvent aborts (rolls back) a transaction for an already-credited
// upstream event. Callers translate it into a silent no-op.
var errDuplicateEvent = errors.New("duplicate reward event")

// errInvariantViolation means applying the delta would drive a balance
// negative; the transaction is rolled back untouched.
var errInvariantViolation = errors.New("balance would go negative")

// RewardOutcome is what ApplyReward hands back to the processor.
type RewardOutcome struct {
	Profile   *models.UserProfile
	Entry     *models.LedgerEntry
	Applied   bool
	PrevLevel int
}

// ApplyReward resolves the (exp, points) delta for an action from the group's
// reward table and applies it atomically. Unknown action types and duplicate
// sourceEventIDs are silent no-ops, never errors: a bad or re-delivered event
// must not corrupt state. The profile is provisioned lazily on the first real
// reward.
func (s *LedgerStore) ApplyReward(userID, groupID int64, actionType, sourceEventID string) (*RewardOutcome, error) {
	rule, ok := s.Config.RewardTable(groupID)[actionType]
	if !ok {
		prof, err := s.GetProfile(userID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return &RewardOutcome{Profile: prof, Applied: false}, nil
	}

	srcGroup := &groupID
	if groupID == models.GlobalGroupID {
		srcGroup = nil
	}

	out := &RewardOutcome{}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		prof, entry, prevLevel, err := s.applyChange(tx, userID, srcGroup, actionType, rule.Exp, rule.Points, rule.Description, sourceEventID)
		if err != nil {
			return err
		}
		out.Profile = prof
		out.Entry = entry
		out.Applied = true
		out.PrevLevel = prevLevel
		return nil
	})
	if errors.Is(err, errDuplicateEvent) {
		log.Printf("⚠️ [LEDGER] duplicate event %s for user %d (%s), skipping", sourceEventID, userID, actionType)
		prof, perr := s.GetProfile(userID)
		if perr != nil && !errors.Is(perr, gorm.ErrRecordNotFound) {
			return nil, perr
		}
		return &RewardOutcome{Profile: prof, Applied: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyChange is the single write path for profile balances. It must run
// inside a transaction. Increments are SQL expressions so concurrent rewards
// for the same user serialize on the row instead of losing an update.
func (s *LedgerStore) applyChange(tx *gorm.DB, userID int64, sourceGroupID *int64, actionType string, exp, points int64, description, eventID string) (*models.UserProfile, *models.LedgerEntry, int, error) {
	if eventID != "" {
		var n int64
		if err := tx.Model(&models.LedgerEntry{}).
			Where("user_id = ? AND action_type = ? AND related_event_id = ?", userID, actionType, eventID).
			Count(&n).Error; err != nil {
			return nil, nil, 0, err
		}
		if n > 0 {
			return nil, nil, 0, errDuplicateEvent
		}
	}

	prof, err := s.ensureProfile(tx, userID)
	if err != nil {
		return nil, nil, 0, err
	}
	prevLevel := prof.Level

	updates := map[string]interface{}{
		"total_exp":        gorm.Expr("total_exp + ?", exp),
		"available_points": gorm.Expr("available_points + ?", points),
	}
	if points >= 0 {
		updates["total_points_earned"] = gorm.Expr("total_points_earned + ?", points)
	} else {
		// Negative points flow through the spent counter so
		// available == earned - spent keeps holding.
		updates["total_points_spent"] = gorm.Expr("total_points_spent + ?", -points)
	}
	if col := models.CounterColumn(actionType); col != "" {
		updates[col] = gorm.Expr(col + " + 1")
	}

	res := tx.Model(&models.UserProfile{}).
		Where("user_id = ? AND total_exp + ? >= 0 AND available_points + ? >= 0", userID, exp, points).
		Updates(updates)
	if res.Error != nil {
		return nil, nil, 0, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil, 0, errInvariantViolation
	}

	if err := tx.Where("user_id = ?", userID).First(prof).Error; err != nil {
		return nil, nil, 0, err
	}

	entry := &models.LedgerEntry{
		ID:             uuid.NewString(),
		UserID:         userID,
		SourceGroupID:  sourceGroupID,
		ActionType:     actionType,
		ExpChange:      exp,
		PointsChange:   points,
		ExpAfter:       prof.TotalExp,
		PointsAfter:    prof.AvailablePoints,
		Description:    description,
		RelatedEventID: eventID,
	}
	if err := tx.Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a dedup race; the partial unique index is the backstop.
			return nil, nil, 0, errDuplicateEvent
		}
		return nil, nil, 0, err
	}
	return prof, entry, prevLevel, nil
}

// ensureProfile loads the profile row, creating it with defaults if this is
// the user's first reward.
func (s *LedgerStore) ensureProfile(tx *gorm.DB, userID int64) (*models.UserProfile, error) {
	var prof models.UserProfile
	err := tx.Where("user_id = ?", userID).First(&prof).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prof = models.UserProfile{
			ID:     uuid.NewString(),
			UserID: userID,
			Level:  1,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&prof).Error; err != nil {
			return nil, err
		}
		// Re-read in case a concurrent provision won.
		if err := tx.Where("user_id = ?", userID).First(&prof).Error; err != nil {
			return nil, err
		}
		return &prof, nil
	}
	if err != nil {
		return nil, err
	}
	return &prof, nil
}

// SpendPoints debits the available balance and records the spend. Fails with
// ErrInsufficientPoints instead of driving the balance negative.
func (s *LedgerStore) SpendPoints(userID, points int64, description string) (*models.UserProfile, error) {
	if points <= 0 {
		return nil, fmt.Errorf("spend amount must be positive, got %d", points)
	}
	var prof *models.UserProfile
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		prof, _, _, err = s.applyChange(tx, userID, nil, models.ActionPointsSpent, 0, -points, description, "")
		if errors.Is(err, errInvariantViolation) {
			return ErrInsufficientPoints
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return prof, nil
}

// AdminAdjust applies an administrative balance override. This is the one
// sanctioned path where exp can move downward; the non-negative floor still
// holds.
func (s *LedgerStore) AdminAdjust(userID, expDelta, pointsDelta int64, reason string) (*models.UserProfile, error) {
	var prof *models.UserProfile
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		prof, _, _, err = s.applyChange(tx, userID, nil, models.ActionAdminAdjust, expDelta, pointsDelta, reason, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return prof, nil
}

// SetLevel persists a level transition decided by the level engine (or an
// explicit admin override).
func (s *LedgerStore) SetLevel(userID int64, level int) error {
	return s.DB.Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Update("level", level).Error
}

func (s *LedgerStore) GetProfile(userID int64) (*models.UserProfile, error) {
	var prof models.UserProfile
	if err := s.DB.Where("user_id = ?", userID).First(&prof).Error; err != nil {
		return nil, err
	}
	return &prof, nil
}

// LedgerHistory returns a page of a user's ledger, newest first.
func (s *LedgerStore) LedgerHistory(userID int64, page, size int) (map[string]interface{}, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	var total int64
	if err := s.DB.Model(&models.LedgerEntry{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, err
	}

	var entries []models.LedgerEntry
	if err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(size).Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return map[string]interface{}{
		"entries":     entries,
		"page":        page,
		"size":        size,
		"total_items": total,
		"total_pages": totalPages,
	}, nil
}

// Leaderboard returns profiles ranked by level, points or exp.
func (s *LedgerStore) Leaderboard(sortBy string, limit int, excludeInactive bool) ([]models.UserProfile, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var order string
	switch sortBy {
	case "points":
		order = "total_points_earned DESC, total_exp DESC"
	case "exp":
		order = "total_exp DESC, total_points_earned DESC"
	default: // level
		order = "level DESC, total_exp DESC"
	}

	q := s.DB.Model(&models.UserProfile{}).Order(order).Limit(limit)
	if excludeInactive {
		q = q.Where("total_exp > 0 OR total_points_earned > 0")
	}

	var profiles []models.UserProfile
	if err := q.Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// DeleteUserCascade removes a profile together with its ledger, badges and
// milestone records. The profile is never deleted any other way.
func (s *LedgerStore) DeleteUserCascade(userID int64) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.LedgerEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.UserBadge{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.UserMilestoneAchievement{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&models.UserProfile{}).Error
	})
}

// LedgerDrift is one user whose aggregate disagrees with their history.
type LedgerDrift struct {
	UserID          int64 `json:"user_id"`
	LedgerExp       int64 `json:"ledger_exp"`
	ProfileExp      int64 `json:"profile_exp"`
	LedgerBalance   int64 `json:"ledger_balance"`
	AvailablePoints int64 `json:"available_points"`
}

// Reconcile compares every profile against the sum of its ledger entries.
// Run periodically by the maintenance job; drift means a bug, not data to fix
// silently.
func (s *LedgerStore) Reconcile() ([]LedgerDrift, error) {
	var profiles []models.UserProfile
	if err := s.DB.Find(&profiles).Error; err != nil {
		return nil, err
	}

	var drifts []LedgerDrift
	for _, prof := range profiles {
		type sums struct {
			Exp    int64
			Points int64
		}
		var agg sums
		if err := s.DB.Model(&models.LedgerEntry{}).
			Select("COALESCE(SUM(exp_change),0) AS exp, COALESCE(SUM(points_change),0) AS points").
			Where("user_id = ?", prof.UserID).
			Scan(&agg).Error; err != nil {
			return nil, err
		}
		if agg.Exp != prof.TotalExp || agg.Points != prof.AvailablePoints {
			drifts = append(drifts, LedgerDrift{
				UserID:          prof.UserID,
				LedgerExp:       agg.Exp,
				ProfileExp:      prof.TotalExp,
				LedgerBalance:   agg.Points,
				AvailablePoints: prof.AvailablePoints,
			})
		}
	}
	if len(drifts) > 0 {
		log.Printf("❌ [LEDGER] reconciliation found %d drifting profile(s)", len(drifts))
	}
	return drifts, nil
}
