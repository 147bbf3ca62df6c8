package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"codequest_backend/internal/model"
	"codequest_backend/internal/repository"
	"codequest_backend/pkg/logger"
	"codequest_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	leaderboardCacheKey = "codequest:leaderboard:v1"
	leaderboardCacheTTL = 30 * time.Second
)

type GamificationService struct {
	BadgeRepo    *repository.BadgeRepository
	ProgressRepo *repository.ProgressRepository
	UserRepo     *repository.UserRepository
	Redis        *redis.Client
}

func NewGamificationService(
	badgeRepo *repository.BadgeRepository,
	progressRepo *repository.ProgressRepository,
	userRepo *repository.UserRepository,
	redisClient *redis.Client,
) *GamificationService {
	return &GamificationService{
		BadgeRepo:    badgeRepo,
		ProgressRepo: progressRepo,
		UserRepo:     userRepo,
		Redis:        redisClient,
	}
}

// badgeAggregate 一次进度快照折算出的徽章判定指标
type badgeAggregate struct {
	completedAny       int
	completedContent   int
	completedChallenge int
	totalPoints        int
	distinctDifficulty int
}

func buildBadgeAggregate(facts []repository.ProgressFact, earnedBadgePoints int) badgeAggregate {
	agg := badgeAggregate{totalPoints: earnedBadgePoints}
	difficulties := make(map[int]struct{})

	for _, fact := range facts {
		if fact.CompletedAt == nil {
			continue
		}
		agg.completedAny++
		if fact.ChallengeID != nil {
			agg.completedChallenge++
		} else {
			agg.completedContent++
		}
		agg.totalPoints += fact.PointsEarned
		difficulties[fact.Difficulty] = struct{}{}
	}

	agg.distinctDifficulty = len(difficulties)
	return agg
}

// requirementSatisfied 单条徽章规则的判定。未知规则类型一律不发。
func requirementSatisfied(req *model.BadgeRequirement, agg badgeAggregate) bool {
	if req == nil || req.Threshold <= 0 {
		return false
	}

	switch req.Type {
	case model.RequirementCompletedCount:
		switch req.Scope {
		case model.ScopeContent:
			return agg.completedContent >= req.Threshold
		case model.ScopeChallenge:
			return agg.completedChallenge >= req.Threshold
		default:
			return agg.completedAny >= req.Threshold
		}
	case model.RequirementPointsThreshold:
		return agg.totalPoints >= req.Threshold
	case model.RequirementDistinctDifficulty:
		return agg.distinctDifficulty >= req.Threshold
	default:
		return false
	}
}

// EvaluateBadges 对该用户评定一轮徽章，返回本轮新发放的徽章。
// 发放靠 (user_id, badge_id) 唯一索引兜底：并发评定时先写的生效，
// 后写的静默落空，谁都不会重复发。
func (s *GamificationService) EvaluateBadges(userID uint) ([]model.Badge, error) {
	badges, err := s.BadgeRepo.ListActive()
	if err != nil {
		return nil, err
	}
	if len(badges) == 0 {
		return nil, nil
	}

	awards, err := s.BadgeRepo.AwardsByUser(userID)
	if err != nil {
		return nil, err
	}
	held := make(map[uint]struct{}, len(awards))
	earnedPoints := 0
	for _, award := range awards {
		held[award.BadgeID] = struct{}{}
		if award.Badge != nil {
			earnedPoints += award.Badge.PointsValue
		}
	}

	facts, err := s.ProgressRepo.Facts(userID)
	if err != nil {
		return nil, err
	}
	agg := buildBadgeAggregate(facts, earnedPoints)

	var newlyAwarded []model.Badge
	for _, badge := range badges {
		if _, ok := held[badge.ID]; ok {
			continue
		}
		if !requirementSatisfied(badge.Requirement, agg) {
			continue
		}

		created, err := s.BadgeRepo.CreateAwardIfAbsent(userID, badge.ID)
		if err != nil {
			return newlyAwarded, err
		}
		if created {
			monitoring.BadgeAwardCounter.Inc()
			newlyAwarded = append(newlyAwarded, badge)
		}
	}

	if len(newlyAwarded) > 0 {
		// 徽章自带积分，排行榜缓存随之作废
		s.InvalidateLeaderboard()
	}
	return newlyAwarded, nil
}

// BadgeTotals 徽章附带积分总和与持有数，供统计口径合并
func (s *GamificationService) BadgeTotals(userID uint) (int, int, error) {
	awards, err := s.BadgeRepo.AwardsByUser(userID)
	if err != nil {
		return 0, 0, err
	}
	points := 0
	for _, award := range awards {
		if award.Badge != nil {
			points += award.Badge.PointsValue
		}
	}
	return points, len(awards), nil
}

type BadgeStatus struct {
	Badge    model.Badge `json:"badge"`
	Earned   bool        `json:"earned"`
	EarnedAt *time.Time  `json:"earned_at,omitempty"`
	Progress float64     `json:"progress"`
}

// BadgeProgress 全部启用徽章的持有状态与完成度，给徽章墙用
func (s *GamificationService) BadgeProgress(userID uint) ([]BadgeStatus, error) {
	badges, err := s.BadgeRepo.ListActive()
	if err != nil {
		return nil, err
	}

	awards, err := s.BadgeRepo.AwardsByUser(userID)
	if err != nil {
		return nil, err
	}
	earnedAt := make(map[uint]time.Time, len(awards))
	earnedPoints := 0
	for _, award := range awards {
		earnedAt[award.BadgeID] = award.CreatedAt
		if award.Badge != nil {
			earnedPoints += award.Badge.PointsValue
		}
	}

	facts, err := s.ProgressRepo.Facts(userID)
	if err != nil {
		return nil, err
	}
	agg := buildBadgeAggregate(facts, earnedPoints)

	statuses := make([]BadgeStatus, 0, len(badges))
	for _, badge := range badges {
		status := BadgeStatus{Badge: badge}
		if at, ok := earnedAt[badge.ID]; ok {
			status.Earned = true
			status.EarnedAt = &at
			status.Progress = 1.0
		} else {
			status.Progress = requirementProgress(badge.Requirement, agg)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func requirementProgress(req *model.BadgeRequirement, agg badgeAggregate) float64 {
	if req == nil || req.Threshold <= 0 {
		return 0
	}

	var current int
	switch req.Type {
	case model.RequirementCompletedCount:
		switch req.Scope {
		case model.ScopeContent:
			current = agg.completedContent
		case model.ScopeChallenge:
			current = agg.completedChallenge
		default:
			current = agg.completedAny
		}
	case model.RequirementPointsThreshold:
		current = agg.totalPoints
	case model.RequirementDistinctDifficulty:
		current = agg.distinctDifficulty
	default:
		return 0
	}

	progress := float64(current) / float64(req.Threshold)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      uint   `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Points      int    `json:"points"`
}

type LeaderboardResult struct {
	Entries         []LeaderboardEntry `json:"leaderboard"`
	RequesterRank   int                `json:"current_user_rank"`
	RequesterPoints int                `json:"current_user_points"`
}

// standing 全量榜单的缓存单元，顺序即名次
type standing struct {
	UserID      uint      `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Points      int       `json:"points"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Leaderboard 全站排行榜。
// 榜单永远由进度积分 + 徽章积分全量重算，Redis 只作短时只读缓存，
// 任何加分动作都会显式作废缓存，不存在缓存侧的增量改写。
// 请求者名次按全量榜单计，即使没进前 N 也会返回。
func (s *GamificationService) Leaderboard(topN int, requestingUserID uint) (*LeaderboardResult, error) {
	if topN < 1 {
		topN = 10
	}
	if topN > 100 {
		topN = 100
	}

	// 上次完成时若有徽章没评上，这里补一次再出榜
	if _, err := s.EvaluateBadges(requestingUserID); err != nil {
		logger.Log.Warn("出榜前补评徽章失败", zap.Uint("userId", requestingUserID), zap.Error(err))
	}

	standings, err := s.loadStandings()
	if err != nil {
		return nil, err
	}

	result := &LeaderboardResult{Entries: make([]LeaderboardEntry, 0, topN)}
	for i, st := range standings {
		rank := i + 1
		if rank <= topN {
			result.Entries = append(result.Entries, LeaderboardEntry{
				Rank:        rank,
				UserID:      st.UserID,
				Username:    st.Username,
				DisplayName: st.DisplayName,
				Points:      st.Points,
			})
		}
		if st.UserID == requestingUserID {
			result.RequesterRank = rank
			result.RequesterPoints = st.Points
		}
		if rank > topN && result.RequesterRank > 0 {
			break
		}
	}
	return result, nil
}

// loadStandings 读缓存，未命中就全量重算并回填
func (s *GamificationService) loadStandings() ([]standing, error) {
	if s.Redis != nil {
		val, err := s.Redis.Get(context.Background(), leaderboardCacheKey).Result()
		if err == nil {
			var cached []standing
			if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
				monitoring.LeaderboardCacheCounter.WithLabelValues("hit").Inc()
				return cached, nil
			}
			// 缓存内容坏了就当未命中，重算覆盖
		} else if err != redis.Nil {
			logger.Log.Warn("读取排行榜缓存失败，改走全量重算", zap.Error(err))
		}
		monitoring.LeaderboardCacheCounter.WithLabelValues("miss").Inc()
	}

	standings, err := s.computeStandings()
	if err != nil {
		return nil, err
	}

	if s.Redis != nil {
		if data, jsonErr := json.Marshal(standings); jsonErr == nil {
			if err := s.Redis.Set(context.Background(), leaderboardCacheKey, data, leaderboardCacheTTL).Err(); err != nil {
				logger.Log.Warn("回填排行榜缓存失败", zap.Error(err))
			}
		}
	}
	return standings, nil
}

func (s *GamificationService) computeStandings() ([]standing, error) {
	users, err := s.UserRepo.FindAllLite()
	if err != nil {
		return nil, err
	}

	progressPoints, err := s.ProgressRepo.PointsPerUser()
	if err != nil {
		return nil, err
	}
	badgePoints, err := s.BadgeRepo.PointsPerUser()
	if err != nil {
		return nil, err
	}

	pointsByUser := make(map[uint]int, len(users))
	for _, row := range progressPoints {
		pointsByUser[row.UserID] += row.Points
	}
	for _, row := range badgePoints {
		pointsByUser[row.UserID] += row.Points
	}

	standings := make([]standing, 0, len(users))
	for _, user := range users {
		standings = append(standings, standing{
			UserID:      user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			Points:      pointsByUser[user.ID],
			JoinedAt:    user.JoinedAt,
		})
	}

	// 积分降序，平分看谁来得早，再平看 ID
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Points != standings[j].Points {
			return standings[i].Points > standings[j].Points
		}
		if !standings[i].JoinedAt.Equal(standings[j].JoinedAt) {
			return standings[i].JoinedAt.Before(standings[j].JoinedAt)
		}
		return standings[i].UserID < standings[j].UserID
	})
	return standings, nil
}

// InvalidateLeaderboard 积分口径变动后的显式作废，失败只记日志
func (s *GamificationService) InvalidateLeaderboard() {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(context.Background(), leaderboardCacheKey).Err(); err != nil {
		logger.Log.Warn("作废排行榜缓存失败", zap.Error(err))
	}
}
