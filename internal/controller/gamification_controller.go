package controller

import (
	"fmt"
	"strconv"

	"codequest_backend/internal/service"
	"codequest_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// GamificationController 处理徽章与排行榜的API请求

type GamificationController struct {
	GamificationService *service.GamificationService
}

func NewGamificationController(gamificationService *service.GamificationService) *GamificationController {
	return &GamificationController{GamificationService: gamificationService}
}

// @Summary 触发徽章评定
// @Description 对当前用户立即评定一轮徽章，返回本轮新发放的徽章
// @Tags 徽章与排行
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/badges/check [post]
func (c *GamificationController) CheckBadges(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	newBadges, err := c.GamificationService.EvaluateBadges(user.UserID)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	message := "暂无新徽章"
	if len(newBadges) > 0 {
		message = fmt.Sprintf("恭喜获得 %d 枚新徽章", len(newBadges))
	}
	util.Success(ctx, gin.H{
		"awarded": newBadges,
		"message": message,
	})
}

// @Summary 获取徽章墙
// @Description 全部启用徽章的持有状态与完成度
// @Tags 徽章与排行
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/badges [get]
func (c *GamificationController) GetUserBadges(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	statuses, err := c.GamificationService.BadgeProgress(user.UserID)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	util.Success(ctx, statuses)
}

// @Summary 获取排行榜
// @Description 按总积分（进度积分+徽章积分）排名，返回前 N 名及请求者自己的名次
// @Tags 徽章与排行
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param top query int false "榜单长度，默认 10"
// @Success 200 {object} util.Response
// @Router /api/leaderboard [get]
func (c *GamificationController) GetLeaderboard(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	topN, _ := strconv.Atoi(ctx.DefaultQuery("top", "10"))

	result, err := c.GamificationService.Leaderboard(topN, user.UserID)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	util.Success(ctx, result)
}
