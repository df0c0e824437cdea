package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"clientmanager/backend/internal/domain"
	"clientmanager/backend/internal/logger"
	"clientmanager/backend/internal/storage"
)

// ErrUnsavedMessage 邮件尚未持久化
var ErrUnsavedMessage = errors.New("message must be persisted before matching")

// Locker 跨进程互斥，Acquire 在锁已被持有时返回错误
type Locker interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// MatchResult 匹配结果
type MatchResult struct {
	Outcome domain.MatchOutcome
	Inquiry *domain.Inquiry // 新建或重置的咨询，跳过时为 nil
}

// InquiryMatcher 在邮件持久化后新建或更新咨询。
//
// 处理顺序：
//  1. 发件人不是客户时跳过
//  2. 同一封邮件（领域签名相同）已处理过时跳过
//  3. 第一个收件人没有对应用户或用户没有当前团队时跳过
//  4. 该团队下存在该客户的打开咨询时重置其跟进时间，否则新建咨询
//
// 2 到 4 以及幂等标记的写入在同一事务内完成。
type InquiryMatcher struct {
	store   storage.Store
	factory InquiryFactory
	locker  Locker
	log     *zap.Logger
}

// NewInquiryMatcher 创建咨询匹配器，factory 为 nil 时使用 DefaultInquiryFactory
func NewInquiryMatcher(store storage.Store, factory InquiryFactory, log *zap.Logger) *InquiryMatcher {
	if factory == nil {
		factory = DefaultInquiryFactory{}
	}
	return &InquiryMatcher{
		store:   store,
		factory: factory,
		log:     logger.OrNop(log).Named("matcher"),
	}
}

// SetLocker 设置跨进程锁，多实例共享同一数据库时使用
func (m *InquiryMatcher) SetLocker(locker Locker) {
	m.locker = locker
}

// OnMessagePersisted 处理一封已持久化的邮件
//
// 参数:
//   - ctx: 服务上下文（不设置当前团队）
//   - msg: 已持久化的邮件，发件人和收件人已加载
//
// 返回值:
//   - MatchResult: 处理结果
//   - error: 存储失败或锁被其他进程持有
func (m *InquiryMatcher) OnMessagePersisted(ctx context.Context, msg *domain.Message) (MatchResult, error) {
	if msg.ID == "" {
		return MatchResult{}, ErrUnsavedMessage
	}
	if !msg.Sender.IsClient() {
		return MatchResult{Outcome: domain.OutcomeSkippedNotClient}, nil
	}

	signature := msg.Signature()
	if m.locker != nil {
		key := "message:" + signature
		if err := m.locker.Acquire(ctx, key); err != nil {
			return MatchResult{}, fmt.Errorf("lock message %s: %w", msg.ID, err)
		}
		defer func() {
			if err := m.locker.Release(context.WithoutCancel(ctx), key); err != nil {
				m.log.Warn("failed to release message lock", zap.String("message_id", msg.ID), zap.Error(err))
			}
		}()
	}

	var result MatchResult
	err := m.store.WithinTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
		var err error
		result, err = m.match(ctx, repos, msg, signature)
		return err
	})
	if errors.Is(err, storage.ErrDuplicate) {
		// 并发处理时另一方先写入了幂等标记
		m.log.Info("message processed concurrently", zap.String("message_id", msg.ID))
		return MatchResult{Outcome: domain.OutcomeSkippedDuplicate}, nil
	}
	if err != nil {
		return MatchResult{}, err
	}
	return result, nil
}

func (m *InquiryMatcher) match(ctx context.Context, repos storage.Repositories, msg *domain.Message, signature string) (MatchResult, error) {
	duplicate, err := m.alreadyProcessed(ctx, repos, msg, signature)
	if err != nil {
		return MatchResult{}, err
	}
	if duplicate {
		return MatchResult{Outcome: domain.OutcomeSkippedDuplicate}, nil
	}

	user, err := findUserByPerson(ctx, repos.Users, msg.FirstReceiver(), m.log)
	if err != nil {
		return MatchResult{}, err
	}
	team, err := currentTeam(ctx, repos.Teams, user)
	if err != nil {
		return MatchResult{}, err
	}
	if team == nil {
		return MatchResult{Outcome: domain.OutcomeSkippedNoOwner}, nil
	}

	teamCtx := storage.WithTeam(ctx, team.ID)
	inquiry, err := m.openInquiry(teamCtx, repos, msg, team)
	if err != nil {
		return MatchResult{}, err
	}

	outcome := domain.OutcomeReset
	if inquiry != nil {
		inquiry.ResetReferenceDate()
	} else {
		outcome = domain.OutcomeCreated
		inquiry = m.factory.CreateInquiry(msg)
		inquiry.AssignOwner(team)
	}
	if err := repos.Inquiries.Save(teamCtx, inquiry); err != nil {
		return MatchResult{}, fmt.Errorf("save inquiry: %w", err)
	}

	marker := &domain.ProcessedMessage{
		ID:        signature,
		MessageID: msg.ID,
		InquiryID: inquiry.ID,
		Outcome:   outcome,
	}
	if err := repos.Processed.Save(ctx, marker); err != nil {
		return MatchResult{}, fmt.Errorf("save processed marker: %w", err)
	}

	m.log.Info("inquiry matched",
		zap.String("message_id", msg.ID),
		zap.String("inquiry_id", inquiry.ID),
		zap.String("team_id", team.ID),
		zap.String("outcome", string(outcome)))
	return MatchResult{Outcome: outcome, Inquiry: inquiry}, nil
}

// alreadyProcessed 检查幂等标记，并兼容没有标记的历史咨询（来源邮件等价）
func (m *InquiryMatcher) alreadyProcessed(ctx context.Context, repos storage.Repositories, msg *domain.Message, signature string) (bool, error) {
	_, err := repos.Processed.Get(ctx, signature)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("get processed marker: %w", err)
	}

	// 等价邮件的发件人是同一联系人，只需检查该客户的咨询
	inquiries, err := repos.Inquiries.Find(ctx, []storage.Cond[*domain.Inquiry]{storage.InquiryByClient(msg.SenderID)},
		storage.PreloadSource, storage.PreloadSourceSender, storage.PreloadSourceRcpts)
	if err != nil {
		return false, fmt.Errorf("query inquiries: %w", err)
	}
	for _, inquiry := range inquiries {
		if inquiry.Source != nil && inquiry.Source.ID != msg.ID && inquiry.Source.Equivalent(msg) {
			return true, nil
		}
	}
	return false, nil
}

// openInquiry 返回团队内该客户的打开咨询，多个时取第一个
func (m *InquiryMatcher) openInquiry(teamCtx context.Context, repos storage.Repositories, msg *domain.Message, team *domain.Team) (*domain.Inquiry, error) {
	inquiries, err := repos.Inquiries.Find(teamCtx, []storage.Cond[*domain.Inquiry]{storage.InquiryByClient(msg.SenderID)},
		storage.PreloadClient)
	if err != nil {
		return nil, fmt.Errorf("query team inquiries: %w", err)
	}

	var open []*domain.Inquiry
	for _, inquiry := range inquiries {
		if inquiry.IsOpen() {
			open = append(open, inquiry)
		}
	}
	if len(open) == 0 {
		return nil, nil
	}
	if len(open) > 1 {
		m.log.Warn("multiple open inquiries for one client, resetting the first",
			zap.String("team_id", team.ID),
			zap.String("client_id", msg.SenderID),
			zap.Int("count", len(open)))
	}
	return open[0], nil
}
