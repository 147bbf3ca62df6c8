package model

import "encoding/json"

type ContentType string

const (
	ContentTutorial ContentType = "tutorial"
	ContentStory    ContentType = "story"
	ContentActivity ContentType = "activity"
)

// Content 内容目录条目（外部内容服务维护，核心只读）
// swagger:model Content
type Content struct {
	BaseModel
	Title          string      `gorm:"size:200;not null" json:"title"`
	Description    string      `gorm:"type:text" json:"description"`
	ContentType    ContentType `gorm:"size:20;index;not null" json:"contentType"`
	DifficultyBase int         `gorm:"not null;default:1" json:"difficultyBase"` // 1-5
	AgeGroupID     uint        `gorm:"index;not null" json:"ageGroupId"`
	Tags           string      `gorm:"size:500" json:"-"` // JSON 数组
	IsActive       bool        `gorm:"default:true" json:"isActive"`
}

func (Content) TableName() string {
	return "contents"
}

// TagList 解析 Tags 字段，脏数据时返回空列表
func (c *Content) TagList() []string {
	return DecodeTags(c.Tags)
}

// DecodeTags 把 JSON 数组形式的标签串还原成列表，解析失败按无标签处理
func DecodeTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

func EncodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return ""
	}
	return string(b)
}
