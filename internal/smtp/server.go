package smtp

import (
	"time"

	gosmtp "github.com/emersion/go-smtp"

	"clientmanager/backend/internal/config"
)

// NewServer 按配置创建 SMTP 服务器
func NewServer(backend *Backend, cfg *config.SMTPConfig) *gosmtp.Server {
	server := gosmtp.NewServer(backend)
	server.Addr = cfg.BindAddr
	server.Domain = cfg.Domain
	server.ReadTimeout = durationOr(cfg.ReadTimeout, 30*time.Second)
	server.WriteTimeout = durationOr(cfg.WriteTimeout, 30*time.Second)
	server.MaxMessageBytes = backend.maxMessageBytes
	server.MaxRecipients = cfg.MaxRecipients
	return server
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
