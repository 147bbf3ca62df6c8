package controller

import (
	"errors"
	"net/http"
	"strconv"

	"codequest_backend/internal/service"
	"codequest_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ProgressController 处理学习进度上报与统计的API请求

type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

// @Summary 上报学习进度
// @Description 上报内容或关卡的完成度，首次到 100% 时结算积分并评定徽章
// @Tags 进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param progress body service.TrackCompletionRequest true "进度信息，content_id 与 challenge_id 二选一"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /api/progress [post]
func (c *ProgressController) TrackCompletion(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.TrackCompletionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.ProgressService.TrackCompletion(user.UserID, req)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary 获取进度列表
// @Description 分页获取当前用户的学习进度记录
// @Tags 进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param status query string false "过滤状态" enums(completed,in_progress)
// @Param page query int false "页码，默认 1"
// @Param limit query int false "每页条数，默认 20"
// @Success 200 {object} util.Response
// @Router /api/progress [get]
func (c *ProgressController) GetUserProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	status := ctx.Query("status")
	if status != "" && status != "completed" && status != "in_progress" {
		util.BadRequest(ctx, "Invalid status. Must be 'completed' or 'in_progress'")
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	items, total, err := c.ProgressService.ListProgress(user.UserID, status, page, limit)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"items": items,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// @Summary 获取学习统计
// @Description 获取当前用户的完成数、总积分、平均难度等概览
// @Tags 进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/progress/stats [get]
func (c *ProgressController) GetUserStats(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	stats, err := c.ProgressService.Stats(user.UserID)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	util.Success(ctx, stats)
}

// handleServiceError 业务错误到 HTTP 状态码的统一翻译
func handleServiceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrInvalidInput):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrInvalidTransition):
		util.Error(ctx, http.StatusBadRequest, "完成度不可回退")
	case errors.Is(err, util.ErrUserNotFound):
		util.Error(ctx, http.StatusNotFound, "用户不存在")
	case errors.Is(err, util.ErrContentNotFound):
		util.Error(ctx, http.StatusNotFound, "内容不存在")
	case errors.Is(err, util.ErrChallengeNotFound):
		util.Error(ctx, http.StatusNotFound, "关卡不存在")
	case errors.Is(err, util.ErrStorageUnavailable):
		util.ServiceUnavailable(ctx)
	default:
		util.LogInternalError(ctx, err)
	}
}
