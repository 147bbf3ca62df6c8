package controller

import (
	"strconv"

	"codequest_backend/internal/service"
	"codequest_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ContentController 处理内容目录侧的API请求：热门内容与关卡提示

type ContentController struct {
	RecommendationService *service.RecommendationService
	HintService           *service.HintService
}

func NewContentController(
	recommendationService *service.RecommendationService,
	hintService *service.HintService,
) *ContentController {
	return &ContentController{
		RecommendationService: recommendationService,
		HintService:           hintService,
	}
}

// @Summary 获取热门内容
// @Description 按学习人次排序的热门内容，无需个人画像
// @Tags 内容
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "条数，默认 10"
// @Success 200 {object} util.Response
// @Router /api/content/popular [get]
func (c *ContentController) GetPopularContent(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))

	items, err := c.RecommendationService.PopularContent(limit)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	util.Success(ctx, items)
}

// @Summary 请求关卡提示
// @Description 生成一条分档提示并记录扣分，档位 1-3 越高越直白
// @Tags 内容
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "关卡ID"
// @Param hint body service.HintRequest true "提示请求"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/challenges/{id}/hints [post]
func (c *ContentController) GenerateHint(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	challengeIDStr := ctx.Param("id")
	challengeID, err := strconv.ParseUint(challengeIDStr, 10, 32)
	if err != nil {
		util.BadRequest(ctx, "Invalid challenge ID")
		return
	}

	var req service.HintRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.HintService.GenerateHint(user.UserID, uint(challengeID), req)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	util.Success(ctx, result)
}
