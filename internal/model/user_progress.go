package model

import (
	"time"
)

// UserProgress 用户对单个内容或关卡的完成记录
// content_id 与 challenge_id 二选一；completion_percentage 只增不减；
// points_earned 在首次达到 100% 时一次性写入，之后不再变化。
// version 用于乐观并发控制，同一记录的并发更新按版本裁决。
// swagger:model UserProgress
type UserProgress struct {
	BaseModel
	UserID               uint       `gorm:"index:idx_progress_user_content,unique;index:idx_progress_user_challenge,unique;not null" json:"userId"`
	ContentID            *uint      `gorm:"index:idx_progress_user_content,unique" json:"contentId"`
	ChallengeID          *uint      `gorm:"index:idx_progress_user_challenge,unique" json:"challengeId"`
	CompletionPercentage float64    `gorm:"not null;default:0" json:"completionPercentage"`
	StartedAt            time.Time  `gorm:"not null" json:"startedAt"`
	CompletedAt          *time.Time `json:"completedAt"`
	PointsEarned         int        `gorm:"not null;default:0" json:"pointsEarned"`
	Version              int        `gorm:"not null;default:1" json:"-"`
}

func (UserProgress) TableName() string {
	return "user_progress"
}

// IsCompleted 完成判定统一走这里，避免浮点口径不一致
func (p *UserProgress) IsCompleted() bool {
	return p.CompletedAt != nil
}

// Ref 返回记录指向的目录引用
func (p *UserProgress) Ref() ContentRef {
	if p.ChallengeID != nil {
		return ContentRef{ChallengeID: p.ChallengeID}
	}
	return ContentRef{ContentID: p.ContentID}
}

// ContentRef 指向内容或关卡二者之一的引用
type ContentRef struct {
	ContentID   *uint `json:"contentId,omitempty"`
	ChallengeID *uint `json:"challengeId,omitempty"`
}

// Valid 恰好一个引用字段被设置才合法
func (r ContentRef) Valid() bool {
	return (r.ContentID != nil) != (r.ChallengeID != nil)
}

func (r ContentRef) IsChallenge() bool {
	return r.ChallengeID != nil
}
