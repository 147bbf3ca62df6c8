package model

// BadgeRequirementType 徽章资格谓词的变体标签
type BadgeRequirementType string

const (
	// RequirementCompletedCount 完成数达标，可限定 scope 只数内容或只数关卡
	RequirementCompletedCount BadgeRequirementType = "completed_count"
	// RequirementPointsThreshold 总积分达标
	RequirementPointsThreshold BadgeRequirementType = "points_threshold"
	// RequirementDistinctDifficulty 完成过的不同难度档数达标
	RequirementDistinctDifficulty BadgeRequirementType = "distinct_difficulty"
)

type RequirementScope string

const (
	ScopeAny       RequirementScope = "any"
	ScopeContent   RequirementScope = "content"
	ScopeChallenge RequirementScope = "challenge"
)

// Badge 徽章定义（外部运营后台维护，核心只读）
// swagger:model Badge
type Badge struct {
	BaseModel
	Name        string            `gorm:"size:100;unique;not null" json:"name"`
	Description string            `gorm:"size:500" json:"description"`
	ImageURL    string            `gorm:"size:255" json:"imageUrl"`
	PointsValue int               `gorm:"not null;default:0" json:"pointsValue"` // 计入排行榜总分
	IsActive    bool              `gorm:"default:true" json:"isActive"`
	Requirement *BadgeRequirement `gorm:"foreignKey:BadgeID" json:"requirement,omitempty"`
}

func (Badge) TableName() string {
	return "badges"
}

// BadgeRequirement 每个徽章一条资格规则
type BadgeRequirement struct {
	BaseModel
	BadgeID   uint                 `gorm:"uniqueIndex;not null" json:"badgeId"`
	Type      BadgeRequirementType `gorm:"size:30;not null" json:"type"`
	Threshold int                  `gorm:"not null" json:"threshold"`
	Scope     RequirementScope     `gorm:"size:20;default:'any'" json:"scope"`
}

func (BadgeRequirement) TableName() string {
	return "badge_requirements"
}

// BadgeAward 用户获得徽章的事实记录，(user_id, badge_id) 唯一，
// 唯一索引同时充当并发评估下恰好一次颁发的闸门
type BadgeAward struct {
	BaseModel
	UserID  uint   `gorm:"index:idx_award_user_badge,unique;not null" json:"userId"`
	BadgeID uint   `gorm:"index:idx_award_user_badge,unique;not null" json:"badgeId"`
	Badge   *Badge `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
}

func (BadgeAward) TableName() string {
	return "badge_awards"
}
