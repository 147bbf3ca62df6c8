package repository

import (
	"codequest_backend/internal/model"

	"gorm.io/gorm"
)

// ContentRepository 内容目录的只读访问层，目录数据由外部内容服务维护
type ContentRepository struct {
	DB    *gorm.DB
	guard StorageGuard
}

func NewContentRepository(db *gorm.DB, guard StorageGuard) *ContentRepository {
	return &ContentRepository{DB: db, guard: guard}
}

func (r *ContentRepository) GetContentByID(id uint) (*model.Content, error) {
	var content model.Content
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.First(&content, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &content, nil
}

func (r *ContentRepository) GetChallengeByID(id uint) (*model.Challenge, error) {
	var challenge model.Challenge
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.First(&challenge, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// ListContents 某年龄组的可用内容。ageGroupID 为 0 时跨组，contentType 为空时不过滤类型
func (r *ContentRepository) ListContents(ageGroupID uint, contentType string) ([]model.Content, error) {
	var contents []model.Content
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		q := tx.Where("is_active = ?", true)
		if ageGroupID > 0 {
			q = q.Where("age_group_id = ?", ageGroupID)
		}
		if contentType != "" {
			q = q.Where("content_type = ?", contentType)
		}
		return q.Order("id ASC").Find(&contents).Error
	})
	if err != nil {
		return nil, err
	}
	return contents, nil
}

func (r *ContentRepository) ListChallenges(ageGroupID uint) ([]model.Challenge, error) {
	var challenges []model.Challenge
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		q := tx.Where("is_active = ?", true)
		if ageGroupID > 0 {
			q = q.Where("age_group_id = ?", ageGroupID)
		}
		return q.Order("id ASC").Find(&challenges).Error
	})
	if err != nil {
		return nil, err
	}
	return challenges, nil
}

// MaxDifficulty 年龄组内容与关卡两侧的最高难度，ageGroupID 为 0 时跨组
func (r *ContentRepository) MaxDifficulty(ageGroupID uint) (int, error) {
	var contentMax, challengeMax int
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		contentQ := tx.Model(&model.Content{}).Where("is_active = ?", true)
		challengeQ := tx.Model(&model.Challenge{}).Where("is_active = ?", true)
		if ageGroupID > 0 {
			contentQ = contentQ.Where("age_group_id = ?", ageGroupID)
			challengeQ = challengeQ.Where("age_group_id = ?", ageGroupID)
		}
		if err := contentQ.
			Select("COALESCE(MAX(difficulty_base), 0)").
			Scan(&contentMax).Error; err != nil {
			return err
		}
		return challengeQ.
			Select("COALESCE(MAX(difficulty), 0)").
			Scan(&challengeMax).Error
	})
	if err != nil {
		return 0, err
	}
	if challengeMax > contentMax {
		return challengeMax, nil
	}
	return contentMax, nil
}

// HintsByChallenge 关卡的全部提示，按档位升序
func (r *ContentRepository) HintsByChallenge(challengeID uint) ([]model.Hint, error) {
	var hints []model.Hint
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Where("challenge_id = ?", challengeID).
			Order("sequence_number ASC").Find(&hints).Error
	})
	if err != nil {
		return nil, err
	}
	return hints, nil
}

// PopularContentRow 内容连同互动人数
type PopularContentRow struct {
	model.Content
	Engagement int64 `json:"engagement"`
}

// PopularContents 按互动的进度记录数排序的内容，平手按 id 升序保证稳定
func (r *ContentRepository) PopularContents(limit int) ([]PopularContentRow, error) {
	var rows []PopularContentRow
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Table("contents AS c").
			Select("c.*, COUNT(up.id) AS engagement").
			Joins("LEFT JOIN user_progress up ON up.content_id = c.id AND up.deleted_at IS NULL").
			Where("c.is_active = ? AND c.deleted_at IS NULL", true).
			Group("c.id").
			Order("engagement DESC, c.id ASC").
			Limit(limit).
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
