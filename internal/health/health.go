// Package health 提供存活和就绪检查。
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"clientmanager/backend/internal/logger"
	"clientmanager/backend/internal/storage"
)

// 默认的存活检查阈值
const maxGoroutines = 10000

// Pinger 可探测连通性的依赖（例如 Redis）
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器，存储不可用时就绪检查失败
func NewHealthChecker(store storage.Store, log *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger.OrNop(log).Named("health"),
	}

	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	hc.AddReadinessCheck("database", store.Health)

	return hc
}

// AddReadinessCheck 添加就绪检查，失败时记录警告
func (hc *HealthChecker) AddReadinessCheck(name string, check func() error) {
	hc.health.AddReadinessCheck(name, func() error {
		if err := check(); err != nil {
			hc.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			return err
		}
		return nil
	})
}

// AddPinger 添加依赖的连通性就绪检查
func (hc *HealthChecker) AddPinger(name string, p Pinger, timeout time.Duration) {
	hc.AddReadinessCheck(name, PingCheck(p, timeout))
}

// Handler 返回健康检查处理器（/live 和 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查端点
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查端点
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// PingCheck 将 Pinger 包装为带超时的检查
func PingCheck(p Pinger, timeout time.Duration) healthcheck.Check {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return p.Ping(ctx)
	}
}
