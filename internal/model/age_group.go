package model

// AgeGroup 年龄分组，内容目录按分组投放
type AgeGroup struct {
	BaseModel
	Name        string `gorm:"size:50;unique;not null" json:"name"`
	MinAge      int    `gorm:"not null" json:"minAge"`
	MaxAge      int    `gorm:"not null" json:"maxAge"`
	Description string `gorm:"size:255" json:"description"`
}

func (AgeGroup) TableName() string {
	return "age_groups"
}
