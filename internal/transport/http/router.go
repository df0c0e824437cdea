package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clientmanager/backend/internal/health"
	"clientmanager/backend/internal/logger"
	"clientmanager/backend/internal/middleware"
	"clientmanager/backend/internal/monitoring"
	"clientmanager/backend/internal/storage"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Store   storage.Store // 租户隔离后的存储
	Health  *health.HealthChecker
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
//
// 路由:
//   - GET /health/live, /health/ready: 存活与就绪检查
//   - GET /metrics: Prometheus 指标
//   - /api/v1/teams/:teamID/inquiries: 团队范围内的咨询查询与删除
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := logger.OrNop(deps.Logger).Named("http")
	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log)

	router := gin.New()
	router.Use(monitor.PanicRecovery())
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())

	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	h := &InquiryHandler{store: deps.Store, log: log}
	teams := router.Group("/api/v1/teams/:teamID", middleware.TeamScope("teamID"))
	{
		teams.GET("/inquiries", h.list)
		teams.GET("/inquiries/:id", h.get)
		teams.DELETE("/inquiries/:id", h.delete)
	}

	return router
}
