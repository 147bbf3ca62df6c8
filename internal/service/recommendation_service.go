package service

import (
	"fmt"
	"sort"
	"time"

	"codequest_backend/internal/model"
	"codequest_backend/internal/repository"
	"codequest_backend/internal/util"
)

type RecommendationService struct {
	ContentRepo  *repository.ContentRepository
	ProgressRepo *repository.ProgressRepository
	UserRepo     *repository.UserRepository
	Scoring      *ScoringEngine
}

func NewRecommendationService(
	contentRepo *repository.ContentRepository,
	progressRepo *repository.ProgressRepository,
	userRepo *repository.UserRepository,
	scoring *ScoringEngine,
) *RecommendationService {
	return &RecommendationService{
		ContentRepo:  contentRepo,
		ProgressRepo: progressRepo,
		UserRepo:     userRepo,
		Scoring:      scoring,
	}
}

const (
	KindContent   = "content"
	KindChallenge = "challenge"
)

type Recommendation struct {
	ID          uint     `json:"id"`
	Kind        string   `json:"kind"`
	Title       string   `json:"title"`
	ContentType string   `json:"content_type,omitempty"`
	Difficulty  int      `json:"difficulty"`
	Tags        []string `json:"tags,omitempty"`
	Score       float64  `json:"score"`
}

// rankedItem 参与排序的候选，分数并列时 id 小者优先，再并列内容先于关卡
type rankedItem struct {
	cand  Candidate
	title string
	score float64
}

// Recommend 给用户挑最多 count 条没完成过的条目。
// 候选池 = 用户年龄组下启用的内容与关卡，减去已完成的；
// 合格候选不足 count 条时照常返回更少的条目，不算错误。
func (s *RecommendationService) Recommend(userID uint, count int, contentType string) ([]Recommendation, error) {
	if count < 1 {
		count = 5
	}
	if count > 50 {
		count = 50
	}
	if contentType != "" && !validTypeFilter(contentType) {
		return nil, fmt.Errorf("%w: unknown content_type %q", util.ErrInvalidInput, contentType)
	}

	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}

	facts, err := s.ProgressRepo.Facts(userID)
	if err != nil {
		return nil, err
	}
	hist := s.Scoring.BuildUserHistory(engagementsFromFacts(facts), time.Now())

	items, err := s.rankedCandidates(user, contentType, facts, hist)
	if err != nil {
		return nil, err
	}

	if len(items) > count {
		items = items[:count]
	}

	recs := make([]Recommendation, 0, len(items))
	for _, item := range items {
		recs = append(recs, Recommendation{
			ID:          item.cand.ID,
			Kind:        candidateKind(item.cand),
			Title:       item.title,
			ContentType: item.cand.ContentType,
			Difficulty:  item.cand.Difficulty,
			Tags:        item.cand.Tags,
			Score:       item.score,
		})
	}
	return recs, nil
}

// rankedCandidates 组装候选池、剔除已完成、打分并排出确定顺序
func (s *RecommendationService) rankedCandidates(
	user *model.User,
	contentType string,
	facts []repository.ProgressFact,
	hist UserHistory,
) ([]rankedItem, error) {
	doneContent, doneChallenge := completedSets(facts)

	var ageGroupID uint
	if user.AgeGroupID != nil {
		ageGroupID = *user.AgeGroupID
	}

	var items []rankedItem

	if contentType != KindChallenge {
		contents, err := s.ContentRepo.ListContents(ageGroupID, contentType)
		if err != nil {
			return nil, err
		}
		for _, c := range contents {
			if _, done := doneContent[c.ID]; done {
				continue
			}
			cand := Candidate{
				ID:          c.ID,
				ContentType: string(c.ContentType),
				Difficulty:  c.DifficultyBase,
				Tags:        c.TagList(),
			}
			items = append(items, rankedItem{
				cand:  cand,
				title: c.Title,
				score: s.Scoring.RecommendationScore(cand, hist),
			})
		}
	}

	if contentType == "" || contentType == KindChallenge {
		challenges, err := s.ContentRepo.ListChallenges(ageGroupID)
		if err != nil {
			return nil, err
		}
		for _, ch := range challenges {
			if _, done := doneChallenge[ch.ID]; done {
				continue
			}
			cand := Candidate{
				ID:          ch.ID,
				IsChallenge: true,
				ContentType: KindChallenge,
				Difficulty:  ch.Difficulty,
				Tags:        ch.TagList(),
			}
			items = append(items, rankedItem{
				cand:  cand,
				title: ch.Title,
				score: s.Scoring.RecommendationScore(cand, hist),
			})
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		if items[i].cand.ID != items[j].cand.ID {
			return items[i].cand.ID < items[j].cand.ID
		}
		return !items[i].cand.IsChallenge && items[j].cand.IsChallenge
	})
	return items, nil
}

type LearningPathStep struct {
	Order         int    `json:"order"`
	ID            uint   `json:"id"`
	Kind          string `json:"kind"`
	Title         string `json:"title"`
	Difficulty    int    `json:"difficulty"`
	EstimatedTime string `json:"estimated_time"`
	Rationale     string `json:"rationale"`
}

type LearningPath struct {
	Steps           []LearningPathStep `json:"steps"`
	TotalSteps      int                `json:"total_steps"`
	RecommendedPace string             `json:"recommended_pace"`
}

// LearningPath 从用户当前水平到所在年龄组最高难度的阶梯。
// 难度只升不降，每一档用同一套打分挑一个代表条目，没有合格条目的档位跳过。
func (s *RecommendationService) LearningPath(userID uint) (*LearningPath, error) {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}

	facts, err := s.ProgressRepo.Facts(userID)
	if err != nil {
		return nil, err
	}
	engagements := engagementsFromFacts(facts)
	hist := s.Scoring.BuildUserHistory(engagements, time.Now())
	target := s.Scoring.TargetDifficulty(engagements)

	var ageGroupID uint
	if user.AgeGroupID != nil {
		ageGroupID = *user.AgeGroupID
	}
	maxDifficulty, err := s.ContentRepo.MaxDifficulty(ageGroupID)
	if err != nil {
		return nil, err
	}

	completedCount := 0
	for _, fact := range facts {
		if fact.CompletedAt != nil {
			completedCount++
		}
	}
	joinedDays := int(time.Since(user.JoinedAt).Hours() / 24)

	path := &LearningPath{
		Steps:           []LearningPathStep{},
		RecommendedPace: s.Scoring.PaceLabel(completedCount, joinedDays),
	}

	if maxDifficulty == 0 {
		return path, nil
	}
	if target > maxDifficulty {
		target = maxDifficulty
	}

	items, err := s.rankedCandidates(user, "", facts, hist)
	if err != nil {
		return nil, err
	}

	maxSteps := s.Scoring.snapshot().MaxPathSteps
	if maxSteps < 1 {
		maxSteps = 10
	}

	for difficulty := target; difficulty <= maxDifficulty && len(path.Steps) < maxSteps; difficulty++ {
		pick, ok := bestAtDifficulty(items, difficulty)
		if !ok {
			continue
		}
		path.Steps = append(path.Steps, LearningPathStep{
			Order:         len(path.Steps) + 1,
			ID:            pick.cand.ID,
			Kind:          candidateKind(pick.cand),
			Title:         pick.title,
			Difficulty:    difficulty,
			EstimatedTime: estimatedTime(difficulty),
			Rationale:     stepRationale(difficulty, target),
		})
	}

	path.TotalSteps = len(path.Steps)
	return path, nil
}

// bestAtDifficulty items 已按总序排好，取该难度档的第一个即最优
func bestAtDifficulty(items []rankedItem, difficulty int) (rankedItem, bool) {
	for _, item := range items {
		if item.cand.Difficulty == difficulty {
			return item, true
		}
	}
	return rankedItem{}, false
}

func estimatedTime(difficulty int) string {
	return fmt.Sprintf("%d-%d minutes", difficulty*15, difficulty*25)
}

func stepRationale(difficulty, target int) string {
	if difficulty == target {
		return "Matches your current skill level"
	}
	return fmt.Sprintf("Builds up from the previous step to difficulty %d", difficulty)
}

type PopularContentItem struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	ContentType string `json:"content_type"`
	Difficulty  int    `json:"difficulty"`
	Engagement  int64  `json:"engagement"`
}

// PopularContent 按学习人次排的热门内容，人人可见，与个人画像无关
func (s *RecommendationService) PopularContent(limit int) ([]PopularContentItem, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	rows, err := s.ContentRepo.PopularContents(limit)
	if err != nil {
		return nil, err
	}

	items := make([]PopularContentItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, PopularContentItem{
			ID:          row.ID,
			Title:       row.Title,
			ContentType: string(row.ContentType),
			Difficulty:  row.DifficultyBase,
			Engagement:  row.Engagement,
		})
	}
	return items, nil
}

func candidateKind(cand Candidate) string {
	if cand.IsChallenge {
		return KindChallenge
	}
	return KindContent
}

func validTypeFilter(contentType string) bool {
	switch contentType {
	case string(model.ContentTutorial), string(model.ContentStory), string(model.ContentActivity), KindChallenge:
		return true
	}
	return false
}

// completedSets 已完成条目的主键集合，推荐时整体剔除
func completedSets(facts []repository.ProgressFact) (map[uint]struct{}, map[uint]struct{}) {
	doneContent := make(map[uint]struct{})
	doneChallenge := make(map[uint]struct{})
	for _, fact := range facts {
		if fact.CompletedAt == nil {
			continue
		}
		if fact.ChallengeID != nil {
			doneChallenge[*fact.ChallengeID] = struct{}{}
		} else if fact.ContentID != nil {
			doneContent[*fact.ContentID] = struct{}{}
		}
	}
	return doneContent, doneChallenge
}

// engagementsFromFacts 进度事实转成画像输入
func engagementsFromFacts(facts []repository.ProgressFact) []EngagementFact {
	engagements := make([]EngagementFact, 0, len(facts))
	for _, fact := range facts {
		engagements = append(engagements, EngagementFact{
			Difficulty:  fact.Difficulty,
			ContentType: factKind(fact),
			Tags:        model.DecodeTags(fact.Tags),
			Completion:  fact.CompletionPercentage,
			LastTouched: fact.UpdatedAt,
			Completed:   fact.CompletedAt != nil,
		})
	}
	return engagements
}
