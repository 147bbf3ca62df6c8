package repository

import (
	"codequest_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressRepository 完成记录的唯一写入口
type ProgressRepository struct {
	DB    *gorm.DB
	guard StorageGuard
}

func NewProgressRepository(db *gorm.DB, guard StorageGuard) *ProgressRepository {
	return &ProgressRepository{DB: db, guard: guard}
}

// FindByUserAndRef 查找用户对某个内容/关卡的记录，不存在时返回 (nil, nil)
func (r *ProgressRepository) FindByUserAndRef(userID uint, ref model.ContentRef) (*model.UserProgress, error) {
	var progress model.UserProgress
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		q := tx.Where("user_id = ?", userID)
		if ref.IsChallenge() {
			q = q.Where("challenge_id = ?", *ref.ChallengeID)
		} else {
			q = q.Where("content_id = ?", *ref.ContentID)
		}
		return q.First(&progress).Error
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &progress, nil
}

// Create 插入首次接触的记录；并发抢建时返回 gorm.ErrDuplicatedKey，调用方重读即可
func (r *ProgressRepository) Create(progress *model.UserProgress) error {
	return r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Create(progress).Error
	})
}

// UpdateCAS 以版本号为闸的条件更新。updates 不包含 version，
// 由这里统一追加自增；返回是否真的写到了行。
func (r *ProgressRepository) UpdateCAS(progress *model.UserProgress, updates map[string]interface{}) (bool, error) {
	updates["version"] = gorm.Expr("version + 1")

	var affected int64
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		res := tx.Model(&model.UserProgress{}).
			Where("id = ? AND version = ?", progress.ID, progress.Version).
			Updates(updates)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListByUser 用户的进度列表，status 可选 completed / in_progress
func (r *ProgressRepository) ListByUser(userID uint, status string, page, limit int) ([]model.UserProgress, int64, error) {
	var records []model.UserProgress
	var total int64

	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		q := tx.Model(&model.UserProgress{}).Where("user_id = ?", userID)
		switch status {
		case "completed":
			q = q.Where("completed_at IS NOT NULL")
		case "in_progress":
			q = q.Where("completed_at IS NULL")
		}

		if err := q.Count(&total).Error; err != nil {
			return err
		}
		return q.Order("updated_at DESC").
			Offset((page - 1) * limit).Limit(limit).
			Find(&records).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ProgressFact 进度记录连同目录侧元数据的联查行，
// 统计、徽章评估和推荐的历史画像都吃这一份快照
type ProgressFact struct {
	ID                   uint
	ContentID            *uint
	ChallengeID          *uint
	CompletionPercentage float64
	PointsEarned         int
	StartedAt            time.Time
	CompletedAt          *time.Time
	UpdatedAt            time.Time
	Difficulty           int
	ContentType          string
	Tags                 string
	Title                string
}

// Facts 返回用户全部进度的联查快照，单条 SQL 保证读取一致性
func (r *ProgressRepository) Facts(userID uint) ([]ProgressFact, error) {
	var facts []ProgressFact
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Table("user_progress AS up").
			Select(`up.id, up.content_id, up.challenge_id, up.completion_percentage,
				up.points_earned, up.started_at, up.completed_at, up.updated_at,
				COALESCE(c.difficulty_base, ch.difficulty, 0) AS difficulty,
				CASE WHEN up.challenge_id IS NOT NULL THEN 'challenge' ELSE COALESCE(c.content_type, '') END AS content_type,
				COALESCE(c.tags, ch.tags, '') AS tags,
				COALESCE(c.title, ch.title, '') AS title`).
			Joins("LEFT JOIN contents c ON up.content_id = c.id").
			Joins("LEFT JOIN challenges ch ON up.challenge_id = ch.id").
			Where("up.user_id = ? AND up.deleted_at IS NULL", userID).
			Order("up.updated_at DESC").
			Scan(&facts).Error
	})
	if err != nil {
		return nil, err
	}
	return facts, nil
}

// PointsPerUser 排行榜用的逐用户积分聚合
func (r *ProgressRepository) PointsPerUser() ([]UserPoints, error) {
	var rows []UserPoints
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Model(&model.UserProgress{}).
			Select("user_id, COALESCE(SUM(points_earned), 0) AS points").
			Group("user_id").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RecordHintUsage 记录提示消费，同档位重复请求静默去重
func (r *ProgressRepository) RecordHintUsage(userID, challengeID uint, hintLevel int, userAttempt string) error {
	usage := &model.HintUsage{
		UserID:      userID,
		ChallengeID: challengeID,
		HintLevel:   hintLevel,
		UserAttempt: userAttempt,
	}
	return r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(usage).Error
	})
}

// HintLevelsUsed 用户在某关卡已消费的提示档位，升序
func (r *ProgressRepository) HintLevelsUsed(userID, challengeID uint) ([]int, error) {
	var levels []int
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Model(&model.HintUsage{}).
			Where("user_id = ? AND challenge_id = ?", userID, challengeID).
			Order("hint_level ASC").
			Pluck("hint_level", &levels).Error
	})
	if err != nil {
		return nil, err
	}
	return levels, nil
}
