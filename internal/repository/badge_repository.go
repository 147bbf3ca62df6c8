package repository

import (
	"codequest_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeRepository struct {
	DB    *gorm.DB
	guard StorageGuard
}

func NewBadgeRepository(db *gorm.DB, guard StorageGuard) *BadgeRepository {
	return &BadgeRepository{DB: db, guard: guard}
}

// ListActive 启用中的徽章定义及其资格规则
func (r *BadgeRepository) ListActive() ([]model.Badge, error) {
	var badges []model.Badge
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Preload("Requirement").
			Where("is_active = ?", true).
			Order("id ASC").Find(&badges).Error
	})
	if err != nil {
		return nil, err
	}
	return badges, nil
}

func (r *BadgeRepository) AwardsByUser(userID uint) ([]model.BadgeAward, error) {
	var awards []model.BadgeAward
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Preload("Badge").
			Where("user_id = ?", userID).
			Order("created_at ASC").Find(&awards).Error
	})
	if err != nil {
		return nil, err
	}
	return awards, nil
}

// CreateAwardIfAbsent 颁发徽章。(user_id, badge_id) 唯一索引吞并发，
// 已持有时静默跳过并返回 false，从不报错。
func (r *BadgeRepository) CreateAwardIfAbsent(userID, badgeID uint) (bool, error) {
	award := &model.BadgeAward{UserID: userID, BadgeID: badgeID}

	var affected int64
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(award)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// PointsPerUser 排行榜用的逐用户徽章加分聚合
func (r *BadgeRepository) PointsPerUser() ([]UserPoints, error) {
	var rows []UserPoints
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Table("badge_awards AS ba").
			Select("ba.user_id, COALESCE(SUM(b.points_value), 0) AS points").
			Joins("JOIN badges b ON b.id = ba.badge_id").
			Where("ba.deleted_at IS NULL").
			Group("ba.user_id").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
