package model

// Hint 关卡的阶梯提示，sequence_number 越大提示越直白、扣分越多
type Hint struct {
	BaseModel
	ChallengeID     uint   `gorm:"index:idx_challenge_seq,unique;not null" json:"challengeId"`
	SequenceNumber  int    `gorm:"index:idx_challenge_seq,unique;not null" json:"sequenceNumber"` // 1-3
	Text            string `gorm:"type:text" json:"text"`
	PointsDeduction int    `gorm:"not null;default:0" json:"pointsDeduction"`
}

func (Hint) TableName() string {
	return "hints"
}

// HintUsage 用户在某道关卡上已消费的提示档位，结算扣分时回放
// 同一档位重复请求只记一次
type HintUsage struct {
	UUIDBase
	UserID      uint   `gorm:"index:idx_usage_user_challenge_level,unique;not null" json:"userId"`
	ChallengeID uint   `gorm:"index:idx_usage_user_challenge_level,unique;not null" json:"challengeId"`
	HintLevel   int    `gorm:"index:idx_usage_user_challenge_level,unique;not null" json:"hintLevel"`
	UserAttempt string `gorm:"size:2000" json:"-"` // 请求时的代码片段，便于排查生成质量
}

func (HintUsage) TableName() string {
	return "hint_usages"
}
