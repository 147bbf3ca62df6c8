package service

import (
	"codequest_backend/internal/config"
	"math"
	"sync"
	"time"
)

// ScoringEngine 积分、提示扣分与推荐打分的纯计算核心。
// 不落库、不发请求，全部口径来自配置快照，配置热更新时整体替换。
type ScoringEngine struct {
	mu  sync.RWMutex
	cfg config.ScoringConfig
}

func NewScoringEngine(cfg config.ScoringConfig) *ScoringEngine {
	return &ScoringEngine{cfg: cfg}
}

// UpdateConfig 配置热更新入口，整份替换避免读到半新半旧的权重
func (s *ScoringEngine) UpdateConfig(cfg config.ScoringConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *ScoringEngine) snapshot() config.ScoringConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// AgeGroupFactor 年龄组的难度归一系数，表里没有的组按 1.0
func (s *ScoringEngine) AgeGroupFactor(groupName string) float64 {
	cfg := s.snapshot()
	if factor, ok := cfg.AgeGroupFactors[groupName]; ok && factor > 0 {
		return factor
	}
	return 1.0
}

// PointsForCompletion 完成即得的积分：难度基数 × 每档基础分 × 年龄组系数
func (s *ScoringEngine) PointsForCompletion(difficultyBase int, ageGroupFactor float64) int {
	if difficultyBase <= 0 {
		return 0
	}
	cfg := s.snapshot()
	base := cfg.BasePointsPerDifficulty
	if base <= 0 {
		base = 10
	}
	if ageGroupFactor <= 0 {
		ageGroupFactor = 1.0
	}
	return int(math.Round(float64(difficultyBase*base) * ageGroupFactor))
}

// HintDeduction 单个提示档位的扣分，档位超出表范围时为 0
func (s *ScoringEngine) HintDeduction(level int, table []int) int {
	if level < 1 || level > len(table) {
		return 0
	}
	return table[level-1]
}

// DefaultHintDeductions 关卡未配置提示表时的兜底扣分表
func (s *ScoringEngine) DefaultHintDeductions() []int {
	cfg := s.snapshot()
	if len(cfg.DefaultHintDeductions) > 0 {
		out := make([]int, len(cfg.DefaultHintDeductions))
		copy(out, cfg.DefaultHintDeductions)
		return out
	}
	return []int{5, 10, 15}
}

// TotalHintDeduction 多档提示的累计扣分，封顶不超过满分
func (s *ScoringEngine) TotalHintDeduction(levels []int, table []int, fullPoints int) int {
	total := 0
	for _, level := range levels {
		total += s.HintDeduction(level, table)
	}
	if total > fullPoints {
		total = fullPoints
	}
	if total < 0 {
		total = 0
	}
	return total
}

// Candidate 推荐候选的打分输入
type Candidate struct {
	ID          uint
	IsChallenge bool
	ContentType string
	Difficulty  int
	Tags        []string
}

// EngagementFact 用户历史中一条互动的画像输入
type EngagementFact struct {
	Difficulty  int
	ContentType string
	Tags        []string
	Completion  float64
	LastTouched time.Time
	Completed   bool
}

// UserHistory 推荐打分用的画像：近期衰减后的类型/标签亲和度 + 已完成难度均值
type UserHistory struct {
	AvgCompletedDifficulty float64
	TypeAffinity           map[string]float64
	TagAffinity            map[string]float64
}

// BuildUserHistory 把互动历史折算成画像。
// 每条互动的权重 = 完成度 × 按半衰期衰减的新近度，越近影响越大。
func (s *ScoringEngine) BuildUserHistory(facts []EngagementFact, now time.Time) UserHistory {
	cfg := s.snapshot()
	halfLife := cfg.RecencyHalfLifeDays
	if halfLife <= 0 {
		halfLife = 14.0
	}

	hist := UserHistory{
		TypeAffinity: make(map[string]float64),
		TagAffinity:  make(map[string]float64),
	}

	var completedSum float64
	var completedCount int

	for _, fact := range facts {
		ageDays := now.Sub(fact.LastTouched).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		decay := math.Exp(-ageDays * math.Ln2 / halfLife)
		weight := decay * fact.Completion / 100.0

		if fact.ContentType != "" {
			hist.TypeAffinity[fact.ContentType] += weight
		}
		for _, tag := range fact.Tags {
			hist.TagAffinity[tag] += weight
		}

		if fact.Completed {
			completedSum += float64(fact.Difficulty)
			completedCount++
		}
	}

	if completedCount > 0 {
		hist.AvgCompletedDifficulty = completedSum / float64(completedCount)
	}
	return hist
}

// RecommendationScore 候选项得分 = 亲和度项 × recency_weight + 难度差项 × difficulty_weight。
// 难度差项在“略高于均值半档”处取峰值，两侧线性回落；
// 已完成条目由调用方先行剔除，这里不做新颖度惩罚。
func (s *ScoringEngine) RecommendationScore(cand Candidate, hist UserHistory) float64 {
	cfg := s.snapshot()

	affinity := hist.TypeAffinity[cand.ContentType]
	if len(cand.Tags) > 0 {
		var tagSum float64
		for _, tag := range cand.Tags {
			tagSum += hist.TagAffinity[tag]
		}
		affinity += tagSum / float64(len(cand.Tags))
	}
	// 压缩到 (0,1)，避免重度用户的亲和度淹没难度项
	affinity = affinity / (1 + affinity)

	gap := float64(cand.Difficulty) - hist.AvgCompletedDifficulty
	diffTerm := 1 - math.Min(math.Abs(gap-0.5), 2.5)/2.5

	return cfg.RecencyWeight*affinity + cfg.DifficultyWeight*diffTerm
}

// TargetDifficulty 学习路径的起步难度：
// 完成度 ≥75% 的记录按难度取均值并取整，全部高分时上调一档。
func (s *ScoringEngine) TargetDifficulty(facts []EngagementFact) int {
	cfg := s.snapshot()
	threshold := cfg.HighScoreThreshold
	if threshold <= 0 {
		threshold = 90.0
	}
	bumpFraction := cfg.HighScoreBumpFraction
	if bumpFraction <= 0 {
		bumpFraction = 0.7
	}

	var sum float64
	var count, highCount int
	for _, fact := range facts {
		if fact.Completion < 75.0 {
			continue
		}
		sum += float64(fact.Difficulty)
		count++
		if fact.Completion >= threshold {
			highCount++
		}
	}

	if count == 0 {
		return 1
	}

	level := int(math.Round(sum / float64(count)))
	if level < 1 {
		level = 1
	}
	if level > 5 {
		level = 5
	}

	if float64(highCount)/float64(count) >= bumpFraction && level < 5 {
		level++
	}
	return level
}

// PaceLabel 按注册以来的完成速率给出节奏标签
func (s *ScoringEngine) PaceLabel(completedCount, joinedDays int) string {
	cfg := s.snapshot()
	steady := cfg.PaceSteadyPerWeek
	if steady <= 0 {
		steady = 1.0
	}
	intensive := cfg.PaceIntensivePerWeek
	if intensive <= steady {
		intensive = steady * 3
	}

	if joinedDays < 1 {
		joinedDays = 1
	}
	perWeek := float64(completedCount) / float64(joinedDays) * 7

	switch {
	case perWeek >= intensive:
		return "intensive"
	case perWeek >= steady:
		return "steady"
	default:
		return "relaxed"
	}
}
