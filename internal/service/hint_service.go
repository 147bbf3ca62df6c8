package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"codequest_backend/internal/config"
	"codequest_backend/internal/model"
	"codequest_backend/internal/repository"
	"codequest_backend/internal/util"
	"codequest_backend/pkg/logger"

	"go.uber.org/zap"
)

const (
	HintSourceGenerated = "generated"
	HintSourceLibrary   = "library"
)

type HintService struct {
	ContentRepo  *repository.ContentRepository
	ProgressRepo *repository.ProgressRepository
	Scoring      *ScoringEngine
	config       config.AIConfig
	client       *http.Client
}

func NewHintService(
	contentRepo *repository.ContentRepository,
	progressRepo *repository.ProgressRepository,
	scoring *ScoringEngine,
	cfg config.AIConfig,
) *HintService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &HintService{
		ContentRepo:  contentRepo,
		ProgressRepo: progressRepo,
		Scoring:      scoring,
		config:       cfg,
		client:       &http.Client{Timeout: timeout},
	}
}

type HintRequest struct {
	HintLevel   int    `json:"hint_level" binding:"required,min=1,max=3"`
	UserAttempt string `json:"user_attempt"`
}

type HintResult struct {
	ChallengeID     uint   `json:"challenge_id"`
	HintLevel       int    `json:"hint_level"`
	Hint            string `json:"hint"`
	PointsDeduction int    `json:"points_deduction"`
	Source          string `json:"source"`
}

// GenerateHint 为关卡出一条分档提示并记一笔扣分账。
// 扣分先于文案落账：同一档位重复请求只记一次，结算发生在关卡完成时。
// 文案优先走生成服务，失败就退回题库里预置的提示，绝不因为生成挂了报错。
func (s *HintService) GenerateHint(userID, challengeID uint, req HintRequest) (*HintResult, error) {
	if req.HintLevel < util.MinHintLevel || req.HintLevel > util.MaxHintLevel {
		return nil, fmt.Errorf("%w: hint_level must be between %d and %d",
			util.ErrInvalidInput, util.MinHintLevel, util.MaxHintLevel)
	}

	challenge, err := s.ContentRepo.GetChallengeByID(challengeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrChallengeNotFound
		}
		return nil, err
	}

	hints, err := s.ContentRepo.HintsByChallenge(challengeID)
	if err != nil {
		return nil, err
	}

	table := s.Scoring.DefaultHintDeductions()
	if len(hints) > 0 {
		table = make([]int, len(hints))
		for i, hint := range hints {
			table[i] = hint.PointsDeduction
		}
	}
	deduction := s.Scoring.HintDeduction(req.HintLevel, table)

	if err := s.ProgressRepo.RecordHintUsage(userID, challengeID, req.HintLevel, req.UserAttempt); err != nil {
		return nil, err
	}

	result := &HintResult{
		ChallengeID:     challengeID,
		HintLevel:       req.HintLevel,
		PointsDeduction: deduction,
		Source:          HintSourceGenerated,
	}

	text, genErr := s.generateHintText(challenge, req.HintLevel, req.UserAttempt)
	if genErr != nil {
		logger.Log.Warn("提示生成失败，退回题库预置提示",
			zap.Uint("challengeId", challengeID),
			zap.Int("hintLevel", req.HintLevel),
			zap.Error(genErr))
		text = libraryHint(hints, req.HintLevel)
		result.Source = HintSourceLibrary
	}

	result.Hint = text
	return result, nil
}

// libraryHint 题库预置提示，档位缺失时给通用台词
func libraryHint(hints []model.Hint, level int) string {
	for _, hint := range hints {
		if hint.SequenceNumber == level {
			return hint.Text
		}
	}
	switch level {
	case 1:
		return "Read the challenge description again slowly. What is the very first thing it asks you to do?"
	case 2:
		return "Break the challenge into smaller steps and solve just the first one. Which block or command starts it off?"
	default:
		return "Walk through your solution one step at a time and compare each step with what the challenge expects."
	}
}

type hintChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type hintChatRequest struct {
	Model    string            `json:"model"`
	Messages []hintChatMessage `json:"messages"`
}

type hintChatResponse struct {
	Choices []struct {
		Message hintChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// generateHintText 调 OpenAI 兼容接口生成分档提示文案
func (s *HintService) generateHintText(challenge *model.Challenge, level int, userAttempt string) (string, error) {
	if s.config.BaseURL == "" {
		return "", fmt.Errorf("hint generator is not configured")
	}

	system := "你是一个面向少儿编程学习者的温和助教。" +
		"只给启发式提示，不给完整答案，语言要鼓励、简短、适合孩子阅读。" +
		"第1档提示只点方向，第2档给出具体切入点，第3档可以逐步引导到接近答案但仍保留最后一步。"

	prompt := fmt.Sprintf("关卡标题：%s\n关卡描述：%s\n提示档位：%d", challenge.Title, challenge.Description, level)
	if userAttempt != "" {
		prompt += fmt.Sprintf("\n学生当前的尝试：%s", userAttempt)
	}

	reqBody := hintChatRequest{
		Model: s.config.Model,
		Messages: []hintChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest("POST", s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hint API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result hintChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("hint API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("hint API returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}
