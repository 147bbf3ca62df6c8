package service

import (
	"sync"
	"testing"
	"time"

	"codequest_backend/internal/model"
	"codequest_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackCompletionCreatesRecord(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now().AddDate(0, 0, -7))
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)

	result, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: 40,
	})
	require.NoError(t, err)

	assert.Equal(t, 40.0, result.Progress.CompletionPercentage)
	assert.False(t, result.NewlyCompleted)
	assert.Nil(t, result.Progress.CompletedAt)
	assert.Equal(t, 0, result.Progress.PointsEarned)
}

func TestTrackCompletionRejectsRegression(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)

	_, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: 50,
	})
	require.NoError(t, err)

	_, err = env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: 30,
	})
	assert.ErrorIs(t, err, util.ErrInvalidTransition)
}

func TestTrackCompletionCoalescesEqualUpdate(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)

	first, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: 50,
	})
	require.NoError(t, err)

	second, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: 50,
	})
	require.NoError(t, err)

	// 重复上报返回现有记录，没有产生新写入
	assert.Equal(t, first.Progress.ID, second.Progress.ID)
	var stored model.UserProgress
	require.NoError(t, env.db.First(&stored, first.Progress.ID).Error)
	assert.Equal(t, 1, stored.Version)
}

func TestTrackCompletionAwardsPointsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 3, 0)

	result, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: 100,
	})
	require.NoError(t, err)

	// 难度 3 × 每档 10 分 × 系数 1.0 = 30 分
	assert.True(t, result.NewlyCompleted)
	assert.Equal(t, 30, result.Progress.PointsEarned)
	require.NotNil(t, result.Progress.CompletedAt)

	// 二次上报 100%：原样返回，不再加分
	repeat, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: 100,
	})
	require.NoError(t, err)
	assert.False(t, repeat.NewlyCompleted)
	assert.Equal(t, 30, repeat.Progress.PointsEarned)

	var total int
	require.NoError(t, env.db.Model(&model.UserProgress{}).
		Where("user_id = ?", user.ID).
		Select("COALESCE(SUM(points_earned), 0)").Scan(&total).Error)
	assert.Equal(t, 30, total)
}

func TestTrackCompletionValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)
	challenge := env.seedChallenge(t, "Maze", 2, 20, 0)

	// content_id 和 challenge_id 必须恰好给一个
	_, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		ChallengeID:          uintPtr(challenge.ID),
		CompletionPercentage: 10,
	})
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	_, err = env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		CompletionPercentage: 10,
	})
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	_, err = env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: 101,
	})
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	_, err = env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: -1,
	})
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}

func TestTrackCompletionUnknownTargets(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)

	_, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(9999),
		CompletionPercentage: 10,
	})
	assert.ErrorIs(t, err, util.ErrContentNotFound)

	_, err = env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ChallengeID:          uintPtr(9999),
		CompletionPercentage: 10,
	})
	assert.ErrorIs(t, err, util.ErrChallengeNotFound)

	_, err = env.tracker.TrackCompletion(9999, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: 10,
	})
	assert.ErrorIs(t, err, util.ErrUserNotFound)
}

func TestTrackCompletionAppliesHintDeductions(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	challenge := env.seedChallenge(t, "Maze Escape", 5, 50, 0)
	env.seedHint(t, challenge.ID, 1, 5, "Look at the walls")
	env.seedHint(t, challenge.ID, 2, 10, "Follow the left wall")
	env.seedHint(t, challenge.ID, 3, 15, "Turn left at every junction")

	require.NoError(t, env.progressRepo.RecordHintUsage(user.ID, challenge.ID, 1, ""))
	require.NoError(t, env.progressRepo.RecordHintUsage(user.ID, challenge.ID, 2, ""))

	result, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ChallengeID:          uintPtr(challenge.ID),
		CompletionPercentage: 100,
	})
	require.NoError(t, err)

	// 满分 50，用掉档位 1 和 2 的提示扣 5+10，落袋 35
	assert.Equal(t, 35, result.Progress.PointsEarned)
}

func TestTrackCompletionDeductionCappedAtFullPoints(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	challenge := env.seedChallenge(t, "Tiny Maze", 1, 10, 0)
	env.seedHint(t, challenge.ID, 1, 20, "hint one")
	env.seedHint(t, challenge.ID, 2, 20, "hint two")

	require.NoError(t, env.progressRepo.RecordHintUsage(user.ID, challenge.ID, 1, ""))
	require.NoError(t, env.progressRepo.RecordHintUsage(user.ID, challenge.ID, 2, ""))

	result, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ChallengeID:          uintPtr(challenge.ID),
		CompletionPercentage: 100,
	})
	require.NoError(t, err)

	// 扣分封顶在关卡满分，净得分到 0 为止不出现负数
	assert.Equal(t, 0, result.Progress.PointsEarned)
}

func TestTrackCompletionUsesAgeGroupFactor(t *testing.T) {
	env := newTestEnv(t)
	group := env.seedAgeGroup(t, "juniors", 6, 8)
	user := env.seedUser(t, "mira", uintPtr(group.ID), time.Now())
	content := env.seedContent(t, "Shapes", model.ContentActivity, 3, group.ID)

	result, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: 100,
	})
	require.NoError(t, err)

	// juniors 组系数 0.8：30 × 0.8 = 24
	assert.Equal(t, 24, result.Progress.PointsEarned)
}

func TestTrackCompletionConcurrentFinish(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 3, 0)

	_, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(content.ID),
		CompletionPercentage: 50,
	})
	require.NoError(t, err)

	results := make([]*TrackCompletionResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
				ContentID:            uintPtr(content.ID),
				CompletionPercentage: 100,
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// 两个并发完成只有一个真正记账
	newlyCompleted := 0
	for _, result := range results {
		if result.NewlyCompleted {
			newlyCompleted++
		}
	}
	assert.Equal(t, 1, newlyCompleted)

	var total int
	require.NoError(t, env.db.Model(&model.UserProgress{}).
		Where("user_id = ?", user.ID).
		Select("COALESCE(SUM(points_earned), 0)").Scan(&total).Error)
	assert.Equal(t, 30, total)
}

func TestTrackCompletionConcurrentFirstWrite(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	content := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)

	// 没有任何已有记录时并发首报，唯一索引保证只产生一行
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
				ContentID:            uintPtr(content.ID),
				CompletionPercentage: 100,
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var count int64
	require.NoError(t, env.db.Model(&model.UserProgress{}).
		Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now().AddDate(0, 0, -10))
	first := env.seedContent(t, "Loops 101", model.ContentTutorial, 2, 0)
	second := env.seedContent(t, "Space Story", model.ContentStory, 3, 0)
	third := env.seedContent(t, "Robot Lab", model.ContentActivity, 4, 0)
	env.seedBadge(t, "First Steps", 25, &model.BadgeRequirement{
		Type:      model.RequirementCompletedCount,
		Threshold: 1,
		Scope:     model.ScopeAny,
	})

	for _, contentID := range []uint{first.ID, second.ID} {
		_, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
			ContentID:            uintPtr(contentID),
			CompletionPercentage: 100,
		})
		require.NoError(t, err)
	}
	_, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
		ContentID:            uintPtr(third.ID),
		CompletionPercentage: 30,
	})
	require.NoError(t, err)

	stats, err := env.tracker.Stats(user.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.CompletedCount)
	assert.Equal(t, 1, stats.InProgressCount)
	// 进度积分 20+30，徽章附带 25
	assert.Equal(t, 75, stats.TotalPoints)
	assert.Equal(t, 1, stats.BadgesEarned)
	assert.InDelta(t, 2.5, stats.AverageDifficulty, 0.001)
	assert.Equal(t, 10, stats.JoinedDays)
	require.NotNil(t, stats.RecentCompletion)
	assert.Equal(t, "Space Story", stats.RecentCompletion.Title)
	assert.Equal(t, "steady", stats.Pace)
}

func TestStatsUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.tracker.Stats(42)
	assert.ErrorIs(t, err, util.ErrUserNotFound)
}

func TestListProgress(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())

	var contentIDs []uint
	for i := 0; i < 3; i++ {
		content := env.seedContent(t, "Item", model.ContentTutorial, 1, 0)
		contentIDs = append(contentIDs, content.ID)
	}

	for i, contentID := range contentIDs {
		pct := 100.0
		if i == 2 {
			pct = 20.0
		}
		_, err := env.tracker.TrackCompletion(user.ID, TrackCompletionRequest{
			ContentID:            uintPtr(contentID),
			CompletionPercentage: pct,
		})
		require.NoError(t, err)
	}

	all, total, err := env.tracker.ListProgress(user.ID, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	completed, total, err := env.tracker.ListProgress(user.ID, "completed", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, completed, 2)

	inProgress, total, err := env.tracker.ListProgress(user.ID, "in_progress", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, inProgress, 1)

	paged, total, err := env.tracker.ListProgress(user.ID, "", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, paged, 1)
}
