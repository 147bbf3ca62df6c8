package model

// Challenge 编程闯关题（外部内容服务维护，核心只读）
// swagger:model Challenge
type Challenge struct {
	BaseModel
	Title       string `gorm:"size:200;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Difficulty  int    `gorm:"not null;default:1" json:"difficulty"` // 1-5
	Points      int    `gorm:"not null;default:10" json:"points"`    // 满分值，提示扣分的上限
	Theme       string `gorm:"size:100" json:"theme"`
	AgeGroupID  uint   `gorm:"index;not null" json:"ageGroupId"`
	Tags        string `gorm:"size:500" json:"-"`
	IsActive    bool   `gorm:"default:true" json:"isActive"`
}

func (Challenge) TableName() string {
	return "challenges"
}

func (c *Challenge) TagList() []string {
	return DecodeTags(c.Tags)
}
