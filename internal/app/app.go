package app

import (
	"codequest_backend/internal/config"
	"codequest_backend/internal/controller"
	"codequest_backend/internal/repository"
	"codequest_backend/internal/service"
	"codequest_backend/pkg/configwatcher"
	"codequest_backend/pkg/database"
	"codequest_backend/pkg/logger"
	"codequest_backend/pkg/monitoring"
	"codequest_backend/pkg/security"
	"codequest_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config         *config.Config
	Router         *gin.Engine
	DB             *gorm.DB
	Redis          *redis.Client
	services       *services
	tracerProvider *sdktrace.TracerProvider
}

type repositories struct {
	user     *repository.UserRepository
	content  *repository.ContentRepository
	progress *repository.ProgressRepository
	badge    *repository.BadgeRepository
}

type services struct {
	scoring        *service.ScoringEngine
	gamification   *service.GamificationService
	progress       *service.ProgressService
	recommendation *service.RecommendationService
	hint           *service.HintService
}

type controllers struct {
	progress       *controller.ProgressController
	recommendation *controller.RecommendationController
	gamification   *controller.GamificationController
	content        *controller.ContentController
	health         *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, cfg *config.Config) *repositories {
	guard := repository.NewStorageGuard(cfg.Database.QueryTimeout, cfg.Database.RetryBackoff)
	return &repositories{
		user:     repository.NewUserRepository(db, guard),
		content:  repository.NewContentRepository(db, guard),
		progress: repository.NewProgressRepository(db, guard),
		badge:    repository.NewBadgeRepository(db, guard),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.scoring = service.NewScoringEngine(cfg.Scoring)
	s.gamification = service.NewGamificationService(repos.badge, repos.progress, repos.user, rdb)
	s.progress = service.NewProgressService(repos.progress, repos.content, repos.user, s.scoring, s.gamification)
	s.recommendation = service.NewRecommendationService(repos.content, repos.progress, repos.user, s.scoring)
	s.hint = service.NewHintService(repos.content, repos.progress, s.scoring, cfg.AI)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		progress:       controller.NewProgressController(s.progress),
		recommendation: controller.NewRecommendationController(s.recommendation),
		gamification:   controller.NewGamificationController(s.gamification),
		content:        controller.NewContentController(s.recommendation, s.hint),
		health:         controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 600
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// watchScoringConfig 让积分与推荐权重热生效，其余配置仍需重启
func (a *App) watchScoringConfig() {
	go configwatcher.WatchConfig("configs/config.yaml", func(newCfg *config.Config) {
		a.services.scoring.UpdateConfig(newCfg.Scoring)
		logger.Log.Info("积分配置热更新完成")
	})
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// debug 模式每次启动自动迁移，release 模式需显式 --migrate
	if cfg.ForceMigrate || cfg.Server.Mode != "release" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	// 排行榜缓存属于可降级依赖，Redis 连不上只降级为每次全量重算
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Failed to initialize redis, leaderboard cache disabled", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, cfg)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("codequest-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracerProvider = tp
	}

	app.registerRoutes(router, controllers, repos, cfg)

	app.watchScoringConfig()

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// 追踪器最后关，不丢在途 span
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	logger.Log.Sync()
	log.Println("Server exiting")
}
