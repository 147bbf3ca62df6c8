package util

// 完成度相关常量
const (
	CompletionMax = 100.0
	CompletionMin = 0.0
)

const (
	MaxHintLevel = 3
	MinHintLevel = 1
)
