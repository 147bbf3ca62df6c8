package app

import (
	"codequest_backend/docs"
	"codequest_backend/internal/config"
	"codequest_backend/internal/middleware"
	"codequest_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 需要授权的路由，身份由外部账号服务签发的 JWT 提供
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		// 学习进度
		authGroup.POST("/progress", c.progress.TrackCompletion)
		authGroup.GET("/progress", c.progress.GetUserProgress)
		authGroup.GET("/progress/stats", c.progress.GetUserStats)

		// 推荐与学习路径
		authGroup.GET("/recommendations", c.recommendation.GetRecommendations)
		authGroup.GET("/learning-path", c.recommendation.GetLearningPath)
		authGroup.GET("/content/popular", c.content.GetPopularContent)

		// 关卡提示
		authGroup.POST("/challenges/:id/hints", c.content.GenerateHint)

		// 徽章与排行榜
		authGroup.POST("/badges/check", c.gamification.CheckBadges)
		authGroup.GET("/badges", c.gamification.GetUserBadges)
		authGroup.GET("/leaderboard", c.gamification.GetLeaderboard)
	}
}
