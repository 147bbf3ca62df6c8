package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	AI        AIConfig
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Log       LogConfig       `mapstructure:"log"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// AIConfig 外部提示文案生成服务（OpenAI 兼容接口）
type AIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout_seconds"`
}

// ScoringConfig 积分与推荐权重，支持热更新
type ScoringConfig struct {
	BasePointsPerDifficulty int                `mapstructure:"base_points_per_difficulty"`
	AgeGroupFactors         map[string]float64 `mapstructure:"age_group_factors"`
	DefaultHintDeductions   []int              `mapstructure:"default_hint_deductions"`

	RecencyWeight       float64 `mapstructure:"recency_weight"`
	DifficultyWeight    float64 `mapstructure:"difficulty_weight"`
	RecencyHalfLifeDays float64 `mapstructure:"recency_half_life_days"`

	MaxPathSteps          int     `mapstructure:"max_path_steps"`
	PaceSteadyPerWeek     float64 `mapstructure:"pace_steady_per_week"`
	PaceIntensivePerWeek  float64 `mapstructure:"pace_intensive_per_week"`
	HighScoreThreshold    float64 `mapstructure:"high_score_threshold"`
	HighScoreBumpFraction float64 `mapstructure:"high_score_bump_fraction"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	Charset      string
	ParseTime    bool
	QueryTimeout time.Duration `mapstructure:"query_timeout_ms"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff_ms"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("CODEQUEST")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// AI
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.api_key", "AI_API_KEY")
	viper.BindEnv("ai.model", "AI_MODEL")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	setScoringDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.AI.Timeout = cfg.AI.Timeout * time.Second
	cfg.Database.QueryTimeout = cfg.Database.QueryTimeout * time.Millisecond
	cfg.Database.RetryBackoff = cfg.Database.RetryBackoff * time.Millisecond

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	return &cfg, nil
}

// setScoringDefaults 积分口径的兜底值，config.yaml 可覆盖
func setScoringDefaults() {
	viper.SetDefault("scoring.base_points_per_difficulty", 10)
	viper.SetDefault("scoring.default_hint_deductions", []int{5, 10, 15})
	viper.SetDefault("scoring.recency_weight", 0.6)
	viper.SetDefault("scoring.difficulty_weight", 0.4)
	viper.SetDefault("scoring.recency_half_life_days", 14.0)
	viper.SetDefault("scoring.max_path_steps", 10)
	viper.SetDefault("scoring.pace_steady_per_week", 1.0)
	viper.SetDefault("scoring.pace_intensive_per_week", 3.0)
	viper.SetDefault("scoring.high_score_threshold", 90.0)
	viper.SetDefault("scoring.high_score_bump_fraction", 0.7)

	viper.SetDefault("database.query_timeout_ms", 3000)
	viper.SetDefault("database.retry_backoff_ms", 100)
	viper.SetDefault("ai.timeout_seconds", 8)

	viper.SetDefault("log.dir", "logs")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 5)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
}
