// Package smtp 实现只接收邮件的 SMTP 后端，收到的邮件投递到入站队列。
package smtp

import (
	"io"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"clientmanager/backend/internal/config"
	"clientmanager/backend/internal/inbound"
	"clientmanager/backend/internal/logger"
	"clientmanager/backend/internal/monitoring"
)

// Deliverer 入站邮件队列
type Deliverer interface {
	Deliver(msg *inbound.RawMessage)
}

var (
	errTooManySessions = &gosmtp.SMTPError{
		Code:         421,
		EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
		Message:      "too many connections, try again later",
	}
	errInvalidRecipient = &gosmtp.SMTPError{
		Code:         501,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
		Message:      "invalid recipient address",
	}
	errRelayDenied = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
		Message:      "relay access denied - domain not managed by this server",
	}
	errNoRecipients = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
		Message:      "no valid recipients",
	}
	errMessageTooLarge = &gosmtp.SMTPError{
		Code:         552,
		EnhancedCode: gosmtp.EnhancedCode{5, 3, 4},
		Message:      "message exceeds maximum size",
	}
	errUnparsable = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "message could not be parsed",
	}
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 只接收收件人域名在 AcceptedDomains 中的邮件（为空时全部接收），
// 不提供中继。解析后的邮件投递到 Deliverer，由接入器异步处理。
type Backend struct {
	mailbox         Deliverer
	accepted        map[string]struct{}
	maxMessageBytes int64
	limiter         *ConnectionLimiter
	metrics         *monitoring.Metrics
	log             *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(mailbox Deliverer, cfg *config.SMTPConfig, log *zap.Logger) *Backend {
	accepted := make(map[string]struct{}, len(cfg.AcceptedDomains))
	for _, d := range cfg.AcceptedDomains {
		accepted[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}

	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}

	return &Backend{
		mailbox:         mailbox,
		accepted:        accepted,
		maxMessageBytes: maxBytes,
		limiter:         NewConnectionLimiter(cfg.MaxConnections, cfg.RatePerSecond, cfg.Burst),
		log:             logger.OrNop(log).Named("smtp"),
	}
}

// SetMetrics 设置监控指标
func (b *Backend) SetMetrics(m *monitoring.Metrics) {
	b.metrics = m
}

// NewSession 创建新的 SMTP 会话，超过限流时返回 421。
func (b *Backend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	if !b.limiter.Acquire() {
		b.metrics.RecordSMTPRateLimited()
		b.log.Warn("smtp session refused by limiter", zap.Int("current", b.limiter.Current()))
		return nil, errTooManySessions
	}
	return &session{backend: b}, nil
}

// accepts 判断是否接收发往该域名的邮件
func (b *Backend) accepts(domain string) bool {
	if len(b.accepted) == 0 {
		return true
	}
	_, ok := b.accepted[strings.ToLower(domain)]
	return ok
}

type session struct {
	backend    *Backend
	from       string
	recipients []string
	released   bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = normalizeAddress(from)
	return nil
}

// Rcpt 处理 RCPT 命令，拒绝不受管理的域名。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)

	local, domain, ok := strings.Cut(addr, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		s.backend.metrics.RecordSMTPRejected("invalid_recipient")
		return errInvalidRecipient
	}
	if !s.backend.accepts(domain) {
		s.backend.metrics.RecordSMTPRejected("relay_denied")
		return errRelayDenied
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 解析邮件内容并投递到入站队列。
func (s *session) Data(r io.Reader) error {
	if len(s.recipients) == 0 {
		return errNoRecipients
	}

	raw, err := io.ReadAll(io.LimitReader(r, s.backend.maxMessageBytes+1))
	if err != nil {
		return err
	}
	if int64(len(raw)) > s.backend.maxMessageBytes {
		s.backend.metrics.RecordSMTPRejected("too_large")
		return errMessageTooLarge
	}

	msg, err := inbound.ParseMessage(s.from, s.recipients, raw)
	if err != nil {
		s.backend.metrics.RecordSMTPRejected("unparsable")
		s.backend.log.Warn("failed to parse inbound message",
			zap.String("from", s.from),
			zap.Strings("to", s.recipients),
			zap.Int("size", len(raw)),
			zap.Error(err))
		return errUnparsable
	}

	s.backend.mailbox.Deliver(msg)
	s.backend.metrics.RecordSMTPReceived()
	s.backend.log.Info("message received",
		zap.String("raw_id", msg.ID),
		zap.String("message_id", msg.MessageID),
		zap.String("from", msg.Sender.Email),
		zap.Strings("to", msg.ReceiverEmails()),
		zap.Int("size", len(raw)))
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.from = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	if !s.released {
		s.released = true
		s.backend.limiter.Release()
	}
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
