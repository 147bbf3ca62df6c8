package model

import (
	"time"
)

// User 身份服务同步过来的用户只读副本，核心只消费不修改
// swagger:model User
type User struct {
	BaseModel
	Username    string    `gorm:"size:100;unique;not null" json:"username"`
	DisplayName string    `gorm:"size:100" json:"displayName"`
	AgeGroupID  *uint     `gorm:"index" json:"ageGroupId"`
	AgeGroup    *AgeGroup `gorm:"foreignKey:AgeGroupID" json:"ageGroup,omitempty"`
	JoinedAt    time.Time `gorm:"index;autoCreateTime" json:"joinedAt"` // 注册时间，排行榜并列时的裁决依据
	LastSeen    time.Time `gorm:"autoCreateTime" json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
