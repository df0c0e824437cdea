// Package monitoring 提供邮件接入流程的 Prometheus 指标。
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clientmanager/backend/internal/domain"
)

const namespace = "clientmanager"

// Metrics 监控指标。
//
// 所有 Record 方法允许在 nil 接收者上调用，未启用监控的组件无需判空。
type Metrics struct {
	registry *prometheus.Registry

	// SMTP 指标
	SMTPMessagesReceived prometheus.Counter
	SMTPMessagesRejected *prometheus.CounterVec
	SMTPRateLimited      prometheus.Counter

	// 接入指标
	MessagesProcessed *prometheus.CounterVec
	PersonsCreated    *prometheus.CounterVec
	IngestFailures    *prometheus.CounterVec
	ProcessingTime    prometheus.Histogram
	MailboxPending    prometheus.Gauge

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics 创建监控指标，指标注册到独立的注册表
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		SMTPMessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "smtp_messages_received_total",
			Help:      "Total number of messages accepted by the SMTP backend",
		}),
		SMTPMessagesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "smtp_messages_rejected_total",
			Help:      "Total number of SMTP commands rejected",
		}, []string{"reason"}),
		SMTPRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "smtp_rate_limited_total",
			Help:      "Total number of SMTP sessions refused by the rate limiter",
		}),

		MessagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_messages_processed_total",
			Help:      "Total number of ingested messages by match outcome",
		}, []string{"outcome"}),
		PersonsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_persons_created_total",
			Help:      "Total number of persons created from message addresses",
		}, []string{"role"}),
		IngestFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_failures_total",
			Help:      "Total number of messages that failed to ingest",
		}, []string{"stage"}),
		ProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_processing_duration_seconds",
			Help:      "Time spent converting and matching a single message",
			Buckets:   prometheus.DefBuckets,
		}),
		MailboxPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mailbox_pending_messages",
			Help:      "Number of unread messages waiting in the inbound mailbox",
		}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSMTPReceived 记录 SMTP 接收的邮件
func (m *Metrics) RecordSMTPReceived() {
	if m == nil {
		return
	}
	m.SMTPMessagesReceived.Inc()
}

// RecordSMTPRejected 记录被拒绝的 SMTP 命令
func (m *Metrics) RecordSMTPRejected(reason string) {
	if m == nil {
		return
	}
	m.SMTPMessagesRejected.WithLabelValues(reason).Inc()
}

// RecordSMTPRateLimited 记录限流拒绝
func (m *Metrics) RecordSMTPRateLimited() {
	if m == nil {
		return
	}
	m.SMTPRateLimited.Inc()
}

// RecordOutcome 记录邮件处理结果
func (m *Metrics) RecordOutcome(outcome domain.MatchOutcome, duration time.Duration) {
	if m == nil {
		return
	}
	m.MessagesProcessed.WithLabelValues(string(outcome)).Inc()
	m.ProcessingTime.Observe(duration.Seconds())
}

// RecordPersonCreated 记录新建联系人
func (m *Metrics) RecordPersonCreated(role domain.PersonRole) {
	if m == nil {
		return
	}
	m.PersonsCreated.WithLabelValues(string(role)).Inc()
}

// RecordFailure 记录处理失败，stage 为失败的阶段
func (m *Metrics) RecordFailure(stage string) {
	if m == nil {
		return
	}
	m.IngestFailures.WithLabelValues(stage).Inc()
}

// UpdateMailboxPending 更新待处理邮件数
func (m *Metrics) UpdateMailboxPending(count int) {
	if m == nil {
		return
	}
	m.MailboxPending.Set(float64(count))
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
