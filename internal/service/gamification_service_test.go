package service

import (
	"sync"
	"testing"
	"time"

	"codequest_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) seedCompletedProgress(t *testing.T, userID, contentID uint, points int) {
	t.Helper()
	now := time.Now()
	require.NoError(t, e.db.Create(&model.UserProgress{
		UserID:               userID,
		ContentID:            &contentID,
		CompletionPercentage: 100,
		StartedAt:            now,
		CompletedAt:          &now,
		PointsEarned:         points,
		Version:              1,
	}).Error)
}

func (e *testEnv) seedCompletedChallengeProgress(t *testing.T, userID, challengeID uint, points int) {
	t.Helper()
	now := time.Now()
	require.NoError(t, e.db.Create(&model.UserProgress{
		UserID:               userID,
		ChallengeID:          &challengeID,
		CompletionPercentage: 100,
		StartedAt:            now,
		CompletedAt:          &now,
		PointsEarned:         points,
		Version:              1,
	}).Error)
}

func TestEvaluateBadgesCompletedCount(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	first := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)
	second := env.seedContent(t, "Space Story", model.ContentStory, 2, 0)
	badge := env.seedBadge(t, "Getting Started", 10, &model.BadgeRequirement{
		Type:      model.RequirementCompletedCount,
		Threshold: 2,
		Scope:     model.ScopeAny,
	})

	env.seedCompletedProgress(t, user.ID, first.ID, 20)

	// 只完成一个，门槛是两个，不发
	newly, err := env.ledger.EvaluateBadges(user.ID)
	require.NoError(t, err)
	assert.Empty(t, newly)

	env.seedCompletedProgress(t, user.ID, second.ID, 20)

	newly, err = env.ledger.EvaluateBadges(user.ID)
	require.NoError(t, err)
	require.Len(t, newly, 1)
	assert.Equal(t, badge.ID, newly[0].ID)

	// 再评一轮不会重复发
	newly, err = env.ledger.EvaluateBadges(user.ID)
	require.NoError(t, err)
	assert.Empty(t, newly)
}

func TestEvaluateBadgesScopes(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)
	challenge := env.seedChallenge(t, "Maze", 3, 30, 0)

	contentBadge := env.seedBadge(t, "Reader", 5, &model.BadgeRequirement{
		Type:      model.RequirementCompletedCount,
		Threshold: 1,
		Scope:     model.ScopeContent,
	})
	challengeBadge := env.seedBadge(t, "Solver", 5, &model.BadgeRequirement{
		Type:      model.RequirementCompletedCount,
		Threshold: 1,
		Scope:     model.ScopeChallenge,
	})

	env.seedCompletedProgress(t, user.ID, content.ID, 20)

	newly, err := env.ledger.EvaluateBadges(user.ID)
	require.NoError(t, err)
	require.Len(t, newly, 1)
	assert.Equal(t, contentBadge.ID, newly[0].ID)

	env.seedCompletedChallengeProgress(t, user.ID, challenge.ID, 30)

	newly, err = env.ledger.EvaluateBadges(user.ID)
	require.NoError(t, err)
	require.Len(t, newly, 1)
	assert.Equal(t, challengeBadge.ID, newly[0].ID)
}

func TestEvaluateBadgesPointsThresholdSinglePass(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 3, 0)

	lower := env.seedBadge(t, "Bronze", 20, &model.BadgeRequirement{
		Type:      model.RequirementPointsThreshold,
		Threshold: 30,
	})
	upper := env.seedBadge(t, "Silver", 0, &model.BadgeRequirement{
		Type:      model.RequirementPointsThreshold,
		Threshold: 50,
	})

	env.seedCompletedProgress(t, user.ID, content.ID, 30)

	// 第一轮只有 Bronze 达标，Silver 差着 Bronze 附带的 20 分
	newly, err := env.ledger.EvaluateBadges(user.ID)
	require.NoError(t, err)
	require.Len(t, newly, 1)
	assert.Equal(t, lower.ID, newly[0].ID)

	// 第二轮把 Bronze 的 20 分计入总分后 Silver 达标
	newly, err = env.ledger.EvaluateBadges(user.ID)
	require.NoError(t, err)
	require.Len(t, newly, 1)
	assert.Equal(t, upper.ID, newly[0].ID)
}

func TestEvaluateBadgesDistinctDifficulty(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	env.seedBadge(t, "Climber", 15, &model.BadgeRequirement{
		Type:      model.RequirementDistinctDifficulty,
		Threshold: 3,
	})

	for _, difficulty := range []int{1, 2, 2} {
		content := env.seedContent(t, "Item", model.ContentTutorial, difficulty, 0)
		env.seedCompletedProgress(t, user.ID, content.ID, difficulty*10)
	}

	// 难度集合 {1,2}，不够三档
	newly, err := env.ledger.EvaluateBadges(user.ID)
	require.NoError(t, err)
	assert.Empty(t, newly)

	content := env.seedContent(t, "Hard Item", model.ContentTutorial, 3, 0)
	env.seedCompletedProgress(t, user.ID, content.ID, 30)

	newly, err = env.ledger.EvaluateBadges(user.ID)
	require.NoError(t, err)
	assert.Len(t, newly, 1)
}

func TestEvaluateBadgesConcurrentAwardOnce(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)
	env.seedBadge(t, "First Steps", 10, &model.BadgeRequirement{
		Type:      model.RequirementCompletedCount,
		Threshold: 1,
		Scope:     model.ScopeAny,
	})
	env.seedCompletedProgress(t, user.ID, content.ID, 20)

	var wg sync.WaitGroup
	awarded := make([][]model.Badge, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			awarded[i], errs[i] = env.ledger.EvaluateBadges(user.ID)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// 唯一索引兜底：并发评定只产生一条发放记录
	var count int64
	require.NoError(t, env.db.Model(&model.BadgeAward{}).
		Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, 1, len(awarded[0])+len(awarded[1]))
}

func TestLeaderboardOrdering(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	early := env.seedUser(t, "anna", nil, base)
	late := env.seedUser(t, "boris", nil, base.AddDate(0, 0, 2))
	third := env.seedUser(t, "chen", nil, base.AddDate(0, 0, 5))
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)

	env.seedCompletedProgress(t, early.ID, content.ID, 100)
	env.seedCompletedProgress(t, late.ID, content.ID, 100)
	env.seedCompletedProgress(t, third.ID, content.ID, 50)

	result, err := env.ledger.Leaderboard(10, third.ID)
	require.NoError(t, err)

	require.Len(t, result.Entries, 3)
	// 同分时先注册的排前面
	assert.Equal(t, "anna", result.Entries[0].Username)
	assert.Equal(t, 1, result.Entries[0].Rank)
	assert.Equal(t, "boris", result.Entries[1].Username)
	assert.Equal(t, 2, result.Entries[1].Rank)
	assert.Equal(t, "chen", result.Entries[2].Username)

	assert.Equal(t, 3, result.RequesterRank)
	assert.Equal(t, 50, result.RequesterPoints)
}

func TestLeaderboardRequesterOutsideTopN(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	leader := env.seedUser(t, "anna", nil, base)
	runnerUp := env.seedUser(t, "boris", nil, base)
	requester := env.seedUser(t, "chen", nil, base)
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)

	env.seedCompletedProgress(t, leader.ID, content.ID, 300)
	env.seedCompletedProgress(t, runnerUp.ID, content.ID, 200)
	env.seedCompletedProgress(t, requester.ID, content.ID, 100)

	result, err := env.ledger.Leaderboard(1, requester.ID)
	require.NoError(t, err)

	// 榜单截断在 top 1，但请求者还是能看到自己的真实名次
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "anna", result.Entries[0].Username)
	assert.Equal(t, 3, result.RequesterRank)
	assert.Equal(t, 100, result.RequesterPoints)
}

func TestLeaderboardCountsBadgePoints(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	plain := env.seedUser(t, "anna", nil, base)
	decorated := env.seedUser(t, "boris", nil, base)
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)
	badge := env.seedBadge(t, "Shiny", 25, &model.BadgeRequirement{
		Type:      model.RequirementCompletedCount,
		Threshold: 99,
	})

	env.seedCompletedProgress(t, plain.ID, content.ID, 40)
	env.seedCompletedProgress(t, decorated.ID, content.ID, 30)

	created, err := env.badgeRepo.CreateAwardIfAbsent(decorated.ID, badge.ID)
	require.NoError(t, err)
	require.True(t, created)

	result, err := env.ledger.Leaderboard(10, plain.ID)
	require.NoError(t, err)

	// 30 进度分 + 25 徽章分 = 55，压过只有 40 进度分的
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "boris", result.Entries[0].Username)
	assert.Equal(t, 55, result.Entries[0].Points)
	assert.Equal(t, "anna", result.Entries[1].Username)
	assert.Equal(t, 40, result.Entries[1].Points)
}

func TestBadgeProgress(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)

	env.seedBadge(t, "Marathon", 50, &model.BadgeRequirement{
		Type:      model.RequirementCompletedCount,
		Threshold: 4,
		Scope:     model.ScopeAny,
	})
	instant := env.seedBadge(t, "First Steps", 10, &model.BadgeRequirement{
		Type:      model.RequirementCompletedCount,
		Threshold: 1,
		Scope:     model.ScopeAny,
	})

	env.seedCompletedProgress(t, user.ID, content.ID, 20)

	_, err := env.ledger.EvaluateBadges(user.ID)
	require.NoError(t, err)

	statuses, err := env.ledger.BadgeProgress(user.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byName := make(map[string]BadgeStatus, len(statuses))
	for _, status := range statuses {
		byName[status.Badge.Name] = status
	}

	earned := byName["First Steps"]
	assert.True(t, earned.Earned)
	assert.Equal(t, instant.ID, earned.Badge.ID)
	assert.Equal(t, 1.0, earned.Progress)
	require.NotNil(t, earned.EarnedAt)

	pending := byName["Marathon"]
	assert.False(t, pending.Earned)
	assert.InDelta(t, 0.25, pending.Progress, 0.001)
}
