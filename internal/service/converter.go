package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"clientmanager/backend/internal/domain"
	"clientmanager/backend/internal/inbound"
	"clientmanager/backend/internal/logger"
	"clientmanager/backend/internal/monitoring"
	"clientmanager/backend/internal/parser"
	"clientmanager/backend/internal/storage"
)

var (
	ErrNoSender    = errors.New("message has no sender address")
	ErrNoReceivers = errors.New("message has no receiver addresses")
)

// MessageConverter 将原始邮件转换为领域邮件。
//
// 转发邮件（主题以 Fwd:/Fw: 开头）按邮件客户端签名选择解析器，
// 从正文中还原原始发件人、主题和正文，原转发人成为唯一收件人。
// 地址对应的联系人按邮箱查找，不存在时立即创建。
type MessageConverter struct {
	store        storage.Store
	agents       *parser.Registry
	receiverRole domain.PersonRole
	metrics      *monitoring.Metrics
	log          *zap.Logger
}

// NewMessageConverter 创建邮件转换器
//
// 参数:
//   - store: 存储，用于查找和创建联系人
//   - agents: 邮件客户端解析器注册表
//   - receiverRole: 新建收件人联系人的角色
//   - log: 日志记录器，可为 nil
func NewMessageConverter(store storage.Store, agents *parser.Registry, receiverRole domain.PersonRole, log *zap.Logger) *MessageConverter {
	if receiverRole == "" {
		receiverRole = domain.RoleClient
	}
	return &MessageConverter{
		store:        store,
		agents:       agents,
		receiverRole: receiverRole,
		log:          logger.OrNop(log).Named("converter"),
	}
}

// SetMetrics 设置监控指标
func (c *MessageConverter) SetMetrics(m *monitoring.Metrics) {
	c.metrics = m
}

// Convert 转换原始邮件，返回的邮件尚未持久化
func (c *MessageConverter) Convert(ctx context.Context, raw *inbound.RawMessage) (*domain.Message, error) {
	subject, body := raw.Subject, raw.Body
	sender, receivers := raw.Sender, raw.Receivers

	if parser.IsForwarded(raw.Subject) {
		agent := c.agents.For(raw.ClientSignature)
		original, err := agent.Sender(raw)
		if err != nil {
			c.log.Warn("forwarded message without recognizable sender, keeping envelope",
				zap.String("raw_id", raw.ID),
				zap.String("subject", raw.Subject),
				zap.String("client", raw.ClientSignature),
				zap.Error(err))
		} else {
			subject = agent.Subject(raw.Subject)
			body = agent.Body(raw)
			receivers = []inbound.Address{raw.Sender}
			sender = original
		}
	}

	if domain.NormalizeEmail(sender.Email) == "" {
		return nil, ErrNoSender
	}
	if len(receivers) == 0 {
		return nil, ErrNoReceivers
	}

	persons := c.store.Repos().Persons
	from, err := c.resolvePerson(ctx, persons, sender, domain.RoleClient, raw)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		Subject: subject,
		Body:    body,
		Date:    raw.Date,
	}
	msg.SetSender(from)
	for _, r := range receivers {
		if domain.NormalizeEmail(r.Email) == "" {
			continue
		}
		to, err := c.resolvePerson(ctx, persons, r, c.receiverRole, raw)
		if err != nil {
			return nil, err
		}
		msg.AddReceiver(to)
	}
	if len(msg.Recipients) == 0 {
		return nil, ErrNoReceivers
	}

	return msg, nil
}

// resolvePerson 查找邮箱对应的联系人，不存在时以邮件日期为创建日期新建
func (c *MessageConverter) resolvePerson(ctx context.Context, persons storage.Repository[*domain.Person], addr inbound.Address, role domain.PersonRole, raw *inbound.RawMessage) (*domain.Person, error) {
	existing, err := findPersonByEmail(ctx, persons, addr.Email, c.log)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	person := domain.NewPerson(addr.Name, addr.Email, role, raw.Date)
	if err := persons.Save(ctx, person); err != nil {
		return nil, fmt.Errorf("create person %s: %w", person.Email, err)
	}
	c.metrics.RecordPersonCreated(role)
	c.log.Debug("person created",
		zap.String("person_id", person.ID),
		zap.String("email", person.Email),
		zap.String("role", string(role)))
	return person, nil
}
