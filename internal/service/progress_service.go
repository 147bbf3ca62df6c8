package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"codequest_backend/internal/model"
	"codequest_backend/internal/repository"
	"codequest_backend/internal/util"
	"codequest_backend/pkg/logger"
	"codequest_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 乐观锁冲突时的重读上限，超过即视为存储侧过载
const maxTrackAttempts = 3

type ProgressService struct {
	ProgressRepo *repository.ProgressRepository
	ContentRepo  *repository.ContentRepository
	UserRepo     *repository.UserRepository
	Scoring      *ScoringEngine
	Ledger       *GamificationService
}

func NewProgressService(
	progressRepo *repository.ProgressRepository,
	contentRepo *repository.ContentRepository,
	userRepo *repository.UserRepository,
	scoring *ScoringEngine,
	ledger *GamificationService,
) *ProgressService {
	return &ProgressService{
		ProgressRepo: progressRepo,
		ContentRepo:  contentRepo,
		UserRepo:     userRepo,
		Scoring:      scoring,
		Ledger:       ledger,
	}
}

type TrackCompletionRequest struct {
	ContentID            *uint   `json:"content_id"`
	ChallengeID          *uint   `json:"challenge_id"`
	CompletionPercentage float64 `json:"completion_percentage" binding:"min=0,max=100"`
}

type TrackCompletionResult struct {
	Progress       *model.UserProgress `json:"progress"`
	NewlyCompleted bool                `json:"newly_completed"`
	NewBadges      []model.Badge       `json:"new_badges,omitempty"`
}

// catalogItem 进度指向的目录条目在打分时需要的字段
type catalogItem struct {
	difficulty int
	fullPoints int
}

// TrackCompletion 记录一次完成度上报。
// 完成度只能前进：回退报 ErrInvalidTransition，原地重复上报直接返回现有记录不落库。
// 首次到达 100% 时在同一次写入里记下 completed_at 和积分，之后任何重复上报都不再加分。
func (s *ProgressService) TrackCompletion(userID uint, req TrackCompletionRequest) (*TrackCompletionResult, error) {
	if req.CompletionPercentage < util.CompletionMin || req.CompletionPercentage > util.CompletionMax {
		return nil, fmt.Errorf("%w: completion_percentage must be between 0 and 100", util.ErrInvalidInput)
	}

	ref := model.ContentRef{ContentID: req.ContentID, ChallengeID: req.ChallengeID}
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: exactly one of content_id or challenge_id is required", util.ErrInvalidInput)
	}

	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}

	item, err := s.resolveCatalogItem(ref)
	if err != nil {
		return nil, err
	}

	factor := 1.0
	if user.AgeGroup != nil {
		factor = s.Scoring.AgeGroupFactor(user.AgeGroup.Name)
	}

	for attempt := 0; attempt < maxTrackAttempts; attempt++ {
		existing, err := s.ProgressRepo.FindByUserAndRef(userID, ref)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			result, retry, err := s.createProgress(userID, ref, req.CompletionPercentage, item, factor)
			if retry {
				continue // 并发首写撞了唯一索引，重读后走更新路径
			}
			return result, err
		}

		result, retry, err := s.updateProgress(existing, req.CompletionPercentage, item, factor)
		if retry {
			continue // 版本号已被别人推进，重读后重新裁决
		}
		return result, err
	}

	return nil, fmt.Errorf("%w: progress record is under heavy contention", util.ErrStorageUnavailable)
}

func (s *ProgressService) createProgress(
	userID uint,
	ref model.ContentRef,
	percentage float64,
	item catalogItem,
	factor float64,
) (*TrackCompletionResult, bool, error) {
	now := time.Now()
	progress := &model.UserProgress{
		UserID:               userID,
		ContentID:            ref.ContentID,
		ChallengeID:          ref.ChallengeID,
		CompletionPercentage: percentage,
		StartedAt:            now,
		Version:              1,
	}

	completed := percentage >= util.CompletionMax
	if completed {
		points, err := s.completionPoints(userID, ref, item, factor)
		if err != nil {
			return nil, false, err
		}
		progress.CompletedAt = &now
		progress.PointsEarned = points
	}

	if err := s.ProgressRepo.Create(progress); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, true, nil
		}
		return nil, false, err
	}

	result := &TrackCompletionResult{Progress: progress, NewlyCompleted: completed}
	if completed {
		result.NewBadges = s.afterCompletion(userID, ref)
	}
	return result, false, nil
}

func (s *ProgressService) updateProgress(
	existing *model.UserProgress,
	percentage float64,
	item catalogItem,
	factor float64,
) (*TrackCompletionResult, bool, error) {
	ref := existing.Ref()
	if percentage < existing.CompletionPercentage {
		return nil, false, fmt.Errorf("%w: completion_percentage cannot decrease from %.1f to %.1f",
			util.ErrInvalidTransition, existing.CompletionPercentage, percentage)
	}
	if percentage == existing.CompletionPercentage {
		// 幂等重放，不产生写入
		return &TrackCompletionResult{Progress: existing}, false, nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"completion_percentage": percentage,
	}

	newlyCompleted := percentage >= util.CompletionMax && !existing.IsCompleted()
	points := 0
	if newlyCompleted {
		var err error
		points, err = s.completionPoints(existing.UserID, ref, item, factor)
		if err != nil {
			return nil, false, err
		}
		updates["completed_at"] = now
		updates["points_earned"] = points
	}

	ok, err := s.ProgressRepo.UpdateCAS(existing, updates)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, true, nil
	}

	existing.CompletionPercentage = percentage
	existing.Version++
	if newlyCompleted {
		existing.CompletedAt = &now
		existing.PointsEarned = points
	}

	result := &TrackCompletionResult{Progress: existing, NewlyCompleted: newlyCompleted}
	if newlyCompleted {
		result.NewBadges = s.afterCompletion(existing.UserID, ref)
	}
	return result, false, nil
}

// afterCompletion 加分落库后的联动：同步评一次徽章、作废排行榜缓存。
// 两者失败都不影响已提交的进度，留给下次统计/排行榜读取时补偿。
func (s *ProgressService) afterCompletion(userID uint, ref model.ContentRef) []model.Badge {
	kind := KindContent
	if ref.IsChallenge() {
		kind = KindChallenge
	}
	monitoring.CompletionCounter.WithLabelValues(kind).Inc()

	badges, err := s.Ledger.EvaluateBadges(userID)
	if err != nil {
		logger.Log.Warn("完成后评定徽章失败，等待下次读取时重试", zap.Uint("userId", userID), zap.Error(err))
	}
	s.Ledger.InvalidateLeaderboard()
	return badges
}

func (s *ProgressService) resolveCatalogItem(ref model.ContentRef) (catalogItem, error) {
	if ref.IsChallenge() {
		challenge, err := s.ContentRepo.GetChallengeByID(*ref.ChallengeID)
		if err != nil {
			if repository.IsNotFound(err) {
				return catalogItem{}, util.ErrChallengeNotFound
			}
			return catalogItem{}, err
		}
		return catalogItem{difficulty: challenge.Difficulty, fullPoints: challenge.Points}, nil
	}

	content, err := s.ContentRepo.GetContentByID(*ref.ContentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return catalogItem{}, util.ErrContentNotFound
		}
		return catalogItem{}, err
	}
	return catalogItem{difficulty: content.DifficultyBase}, nil
}

// completionPoints 完成时刻的最终得分。
// 关卡要先结清提示账：按已用档位累计扣分（封顶为关卡满分），净得分不为负。
func (s *ProgressService) completionPoints(userID uint, ref model.ContentRef, item catalogItem, factor float64) (int, error) {
	points := s.Scoring.PointsForCompletion(item.difficulty, factor)
	if !ref.IsChallenge() {
		return points, nil
	}

	levels, err := s.ProgressRepo.HintLevelsUsed(userID, *ref.ChallengeID)
	if err != nil {
		return 0, err
	}
	if len(levels) == 0 {
		return points, nil
	}

	table, err := s.hintDeductionTable(*ref.ChallengeID)
	if err != nil {
		return 0, err
	}

	points -= s.Scoring.TotalHintDeduction(levels, table, item.fullPoints)
	if points < 0 {
		points = 0
	}
	return points, nil
}

// hintDeductionTable 关卡自带提示时按行内扣分，否则用配置的默认表
func (s *ProgressService) hintDeductionTable(challengeID uint) ([]int, error) {
	hints, err := s.ContentRepo.HintsByChallenge(challengeID)
	if err != nil {
		return nil, err
	}
	if len(hints) == 0 {
		return s.Scoring.DefaultHintDeductions(), nil
	}
	table := make([]int, len(hints))
	for i, hint := range hints {
		table[i] = hint.PointsDeduction
	}
	return table, nil
}

type RecentCompletion struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type UserStats struct {
	CompletedCount    int               `json:"completed_count"`
	InProgressCount   int               `json:"in_progress_count"`
	TotalPoints       int               `json:"total_points"`
	BadgesEarned      int               `json:"badges_earned"`
	AverageDifficulty float64           `json:"average_difficulty"`
	RecentCompletion  *RecentCompletion `json:"recent_completion,omitempty"`
	JoinedDays        int               `json:"joined_days"`
	Pace              string            `json:"pace"`
}

// Stats 用户学习概览。
// 进门先补评一次徽章，把上次完成时评定失败的账补上。
func (s *ProgressService) Stats(userID uint) (*UserStats, error) {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}

	if _, err := s.Ledger.EvaluateBadges(userID); err != nil {
		logger.Log.Warn("读取统计时补评徽章失败", zap.Uint("userId", userID), zap.Error(err))
	}

	facts, err := s.ProgressRepo.Facts(userID)
	if err != nil {
		return nil, err
	}

	stats := &UserStats{}
	var difficultySum int
	for _, fact := range facts {
		if fact.CompletedAt != nil {
			stats.CompletedCount++
			difficultySum += fact.Difficulty
			stats.TotalPoints += fact.PointsEarned
			if stats.RecentCompletion == nil {
				// facts 按 updated_at 倒序，第一条完成记录即最近一次
				stats.RecentCompletion = &RecentCompletion{
					ID:    fact.ID,
					Title: fact.Title,
					Type:  factKind(fact),
				}
			}
		} else {
			stats.InProgressCount++
		}
	}

	if stats.CompletedCount > 0 {
		avg := float64(difficultySum) / float64(stats.CompletedCount)
		stats.AverageDifficulty = math.Round(avg*10) / 10
	}

	badgePoints, badgeCount, err := s.Ledger.BadgeTotals(userID)
	if err != nil {
		return nil, err
	}
	stats.TotalPoints += badgePoints
	stats.BadgesEarned = badgeCount

	stats.JoinedDays = int(time.Since(user.JoinedAt).Hours() / 24)
	stats.Pace = s.Scoring.PaceLabel(stats.CompletedCount, stats.JoinedDays)
	return stats, nil
}

func factKind(fact repository.ProgressFact) string {
	if fact.ChallengeID != nil {
		return "challenge"
	}
	return fact.ContentType
}

// ListProgress 分页列出进度，status 可选 completed / in_progress
func (s *ProgressService) ListProgress(userID uint, status string, page, limit int) ([]model.UserProgress, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.ProgressRepo.ListByUser(userID, status, page, limit)
}
