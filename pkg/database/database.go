package database

import (
	"fmt"
	"log"

	"codequest_backend/internal/config"
	"codequest_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	// TranslateError 让唯一索引冲突以 gorm.ErrDuplicatedKey 浮出来，
	// 进度首写竞争和徽章并发发放都靠它裁决
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Info),
		TranslateError: true,
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")
	return db, nil
}

// Migrate 建表并写入基础数据。debug 模式每次启动都会执行，
// release 模式需要 --migrate 或 --migrate-only 显式触发。
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.AgeGroup{},
		&model.User{},
		&model.Content{},
		&model.Challenge{},
		&model.Hint{},
		&model.HintUsage{},
		&model.UserProgress{},
		&model.Badge{},
		&model.BadgeRequirement{},
		&model.BadgeAward{},
	)

	if err != nil {
		return err
	}

	log.Println("Database migration completed")

	seedAgeGroups(db)
	seedBadges(db)
	return nil
}

// 默认年龄组
func seedAgeGroups(db *gorm.DB) {
	var count int64
	db.Model(&model.AgeGroup{}).Count(&count)
	if count > 0 {
		return
	}

	defaultGroups := []model.AgeGroup{
		{Name: "juniors", MinAge: 6, MaxAge: 8, Description: "图形化积木为主的入门组"},
		{Name: "explorers", MinAge: 9, MaxAge: 12, Description: "积木转代码的过渡组"},
		{Name: "creators", MinAge: 13, MaxAge: 15, Description: "独立写代码的进阶组"},
	}
	for _, g := range defaultGroups {
		db.Create(&g)
	}
}

// 默认徽章（为空时写入一套基础成就）
func seedBadges(db *gorm.DB) {
	var count int64
	db.Model(&model.Badge{}).Count(&count)
	if count > 0 {
		return
	}

	defaultBadges := []model.Badge{
		{
			Name: "First Steps", Description: "完成第一个学习项目", PointsValue: 10, IsActive: true,
			Requirement: &model.BadgeRequirement{Type: model.RequirementCompletedCount, Threshold: 1, Scope: model.ScopeAny},
		},
		{
			Name: "Bookworm", Description: "完成 5 个教程或故事", PointsValue: 20, IsActive: true,
			Requirement: &model.BadgeRequirement{Type: model.RequirementCompletedCount, Threshold: 5, Scope: model.ScopeContent},
		},
		{
			Name: "Puzzle Master", Description: "攻克 5 道关卡", PointsValue: 30, IsActive: true,
			Requirement: &model.BadgeRequirement{Type: model.RequirementCompletedCount, Threshold: 5, Scope: model.ScopeChallenge},
		},
		{
			Name: "Century Club", Description: "累计拿到 100 积分", PointsValue: 25, IsActive: true,
			Requirement: &model.BadgeRequirement{Type: model.RequirementPointsThreshold, Threshold: 100},
		},
		{
			Name: "All-Terrain", Description: "在三个不同难度档上都有完成记录", PointsValue: 40, IsActive: true,
			Requirement: &model.BadgeRequirement{Type: model.RequirementDistinctDifficulty, Threshold: 3},
		},
	}
	for _, b := range defaultBadges {
		db.Create(&b)
	}
}
