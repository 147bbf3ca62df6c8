package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// CompletionCounter 首次完成事件，按内容/关卡区分
	CompletionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codequest_completions_total",
			Help: "Total number of first-time completions",
		},
		[]string{"kind"},
	)

	// BadgeAwardCounter 徽章颁发次数
	BadgeAwardCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codequest_badge_awards_total",
			Help: "Total number of badges awarded",
		},
	)

	// LeaderboardCacheCounter 排行榜缓存查询结果分布
	LeaderboardCacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codequest_leaderboard_cache_total",
			Help: "Leaderboard cache lookups by result",
		},
		[]string{"result"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(CompletionCounter)
	prometheus.MustRegister(BadgeAwardCounter)
	prometheus.MustRegister(LeaderboardCacheCounter)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
