package controller

import (
	"strconv"

	"codequest_backend/internal/service"
	"codequest_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// RecommendationController 处理个性化推荐与学习路径的API请求

type RecommendationController struct {
	RecommendationService *service.RecommendationService
}

func NewRecommendationController(recommendationService *service.RecommendationService) *RecommendationController {
	return &RecommendationController{RecommendationService: recommendationService}
}

// @Summary 获取个性化推荐
// @Description 按近期兴趣和难度匹配度推荐未完成的内容与关卡
// @Tags 推荐
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param count query int false "期望条数，默认 5"
// @Param content_type query string false "类型过滤" enums(tutorial,story,activity,challenge)
// @Success 200 {object} util.Response
// @Router /api/recommendations [get]
func (c *RecommendationController) GetRecommendations(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	count, _ := strconv.Atoi(ctx.DefaultQuery("count", "5"))
	contentType := ctx.Query("content_type")

	recommendations, err := c.RecommendationService.Recommend(user.UserID, count, contentType)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"items": recommendations,
		"count": len(recommendations),
	})
}

// @Summary 获取学习路径
// @Description 生成从当前水平到所在年龄组最高难度的阶梯式学习路径
// @Tags 推荐
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/learning-path [get]
func (c *RecommendationController) GetLearningPath(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	path, err := c.RecommendationService.LearningPath(user.UserID)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	util.Success(ctx, path)
}
