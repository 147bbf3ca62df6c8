package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codequest_backend/internal/config"
	"codequest_backend/internal/model"
	"codequest_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHintService(env *testEnv, cfg config.AIConfig) *HintService {
	return NewHintService(env.contentRepo, env.progressRepo, env.scoring, cfg)
}

func seedMazeChallenge(t *testing.T, env *testEnv) *model.Challenge {
	t.Helper()
	challenge := env.seedChallenge(t, "Maze Escape", 5, 50, 0)
	env.seedHint(t, challenge.ID, 1, 5, "Look at the walls")
	env.seedHint(t, challenge.ID, 2, 10, "Follow the left wall")
	env.seedHint(t, challenge.ID, 3, 15, "Turn left at every junction")
	return challenge
}

func TestGenerateHintFallsBackToLibrary(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	challenge := seedMazeChallenge(t, env)

	// 未配置生成服务，直接退回题库文案
	svc := newTestHintService(env, config.AIConfig{})

	result, err := svc.GenerateHint(user.ID, challenge.ID, HintRequest{HintLevel: 2})
	require.NoError(t, err)

	assert.Equal(t, HintSourceLibrary, result.Source)
	assert.Equal(t, "Follow the left wall", result.Hint)
	assert.Equal(t, 10, result.PointsDeduction)

	levels, err := env.progressRepo.HintLevelsUsed(user.ID, challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, levels)
}

func TestGenerateHintRepeatLevelRecordedOnce(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	challenge := seedMazeChallenge(t, env)
	svc := newTestHintService(env, config.AIConfig{})

	for i := 0; i < 3; i++ {
		_, err := svc.GenerateHint(user.ID, challenge.ID, HintRequest{HintLevel: 1})
		require.NoError(t, err)
	}

	levels, err := env.progressRepo.HintLevelsUsed(user.ID, challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, levels)
}

func TestGenerateHintUsesGenerator(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	challenge := seedMazeChallenge(t, env)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req hintChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"role":    "assistant",
					"content": "What happens at the first junction?",
				}},
			},
		})
	}))
	defer server.Close()

	svc := newTestHintService(env, config.AIConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-test",
		Timeout: 2 * time.Second,
	})

	result, err := svc.GenerateHint(user.ID, challenge.ID, HintRequest{HintLevel: 1, UserAttempt: "move(); move();"})
	require.NoError(t, err)

	assert.Equal(t, HintSourceGenerated, result.Source)
	assert.Equal(t, "What happens at the first junction?", result.Hint)
	assert.Equal(t, 5, result.PointsDeduction)
}

func TestGenerateHintGeneratorFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	challenge := seedMazeChallenge(t, env)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := newTestHintService(env, config.AIConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-test",
		Timeout: 2 * time.Second,
	})

	result, err := svc.GenerateHint(user.ID, challenge.ID, HintRequest{HintLevel: 3})
	require.NoError(t, err)

	// 生成失败不是用户的错：退回题库文案，扣分口径不变
	assert.Equal(t, HintSourceLibrary, result.Source)
	assert.Equal(t, "Turn left at every junction", result.Hint)
	assert.Equal(t, 15, result.PointsDeduction)

	levels, err := env.progressRepo.HintLevelsUsed(user.ID, challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, levels)
}

func TestGenerateHintValidation(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	challenge := seedMazeChallenge(t, env)
	svc := newTestHintService(env, config.AIConfig{})

	_, err := svc.GenerateHint(user.ID, challenge.ID, HintRequest{HintLevel: 0})
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	_, err = svc.GenerateHint(user.ID, challenge.ID, HintRequest{HintLevel: 4})
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	_, err = svc.GenerateHint(user.ID, 9999, HintRequest{HintLevel: 1})
	assert.ErrorIs(t, err, util.ErrChallengeNotFound)
}

func TestGenerateHintDefaultDeductionTable(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "mira", nil, time.Now())
	// 没有预置提示行的关卡走配置里的默认扣分表
	challenge := env.seedChallenge(t, "Blank Maze", 3, 30, 0)
	svc := newTestHintService(env, config.AIConfig{})

	result, err := svc.GenerateHint(user.ID, challenge.ID, HintRequest{HintLevel: 2})
	require.NoError(t, err)

	assert.Equal(t, 10, result.PointsDeduction)
	assert.Equal(t, HintSourceLibrary, result.Source)
	assert.NotEmpty(t, result.Hint)
}
