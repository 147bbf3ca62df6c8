package repository

import (
	"codequest_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

// UserRepository 用户只读副本的查询入口，写入方是身份服务的同步任务
type UserRepository struct {
	DB    *gorm.DB
	guard StorageGuard
}

func NewUserRepository(db *gorm.DB, guard StorageGuard) *UserRepository {
	return &UserRepository{DB: db, guard: guard}
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Preload("AgeGroup").First(&user, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindAllLite 排行榜聚合用的全量用户，只取裁决排序需要的列
func (r *UserRepository) FindAllLite() ([]model.User, error) {
	var users []model.User
	err := r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Select("id", "username", "display_name", "joined_at").
			Order("id ASC").Find(&users).Error
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) UpdateLastSeen(userID uint) error {
	return r.guard.run(r.DB, func(tx *gorm.DB) error {
		return tx.Model(&model.User{}).
			Where("id = ?", userID).
			Update("last_seen", time.Now()).Error
	})
}
