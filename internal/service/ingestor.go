package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"clientmanager/backend/internal/domain"
	"clientmanager/backend/internal/inbound"
	"clientmanager/backend/internal/logger"
	"clientmanager/backend/internal/monitoring"
	"clientmanager/backend/internal/storage"
)

// MailSource 未读邮件来源
type MailSource interface {
	UnreadMessages(ctx context.Context) ([]*inbound.RawMessage, error)
	MarkRead(ctx context.Context, id string) error
	// Notifications 有新邮件时发出信号，多次投递可能合并为一次
	Notifications() <-chan struct{}
}

// 处理失败的阶段，用于日志和指标
const (
	stageFetch    = "fetch"
	stageConvert  = "convert"
	stageOwner    = "owner"
	stagePersist  = "persist"
	stageMatch    = "match"
	stageMarkRead = "mark_read"
)

// Ingestor 顺序处理邮件来源中的未读邮件。
//
// 每封邮件依次转换、确定所属团队、持久化、匹配咨询，成功后标记为已读；
// 失败的邮件保持未读，等待下一次通知或重试周期。
type Ingestor struct {
	source    MailSource
	store     storage.Store
	converter *MessageConverter
	matcher   *InquiryMatcher
	metrics   *monitoring.Metrics
	log       *zap.Logger

	retryInterval time.Duration
	mu            sync.Mutex // 保证同一时间只处理一批
}

// NewIngestor 创建邮件接入器
func NewIngestor(source MailSource, store storage.Store, converter *MessageConverter, matcher *InquiryMatcher, log *zap.Logger) *Ingestor {
	return &Ingestor{
		source:    source,
		store:     store,
		converter: converter,
		matcher:   matcher,
		log:       logger.OrNop(log).Named("ingestor"),
	}
}

// SetMetrics 设置监控指标
func (i *Ingestor) SetMetrics(m *monitoring.Metrics) {
	i.metrics = m
}

// SetRetryInterval 设置失败邮件的重试周期，0 表示只在收到通知时处理
func (i *Ingestor) SetRetryInterval(d time.Duration) {
	i.retryInterval = d
}

// Run 在收到通知或重试周期到达时处理未读邮件，直到 ctx 结束
func (i *Ingestor) Run(ctx context.Context) error {
	var retry <-chan time.Time
	if i.retryInterval > 0 {
		ticker := time.NewTicker(i.retryInterval)
		defer ticker.Stop()
		retry = ticker.C
	}

	i.log.Info("ingestor started", zap.Duration("retry_interval", i.retryInterval))
	// 启动时处理已积压的邮件
	i.drain(ctx)

	notifications := i.source.Notifications()
	for {
		select {
		case <-ctx.Done():
			i.log.Info("ingestor stopped")
			return nil
		case <-notifications:
			i.drain(ctx)
		case <-retry:
			i.drain(ctx)
		}
	}
}

func (i *Ingestor) drain(ctx context.Context) {
	if _, err := i.ProcessUnread(ctx); err != nil && ctx.Err() == nil {
		i.log.Error("failed to process some messages", zap.Error(err))
	}
}

// ProcessUnread 处理当前所有未读邮件
//
// 返回值:
//   - int: 成功处理并标记为已读的邮件数
//   - error: 各邮件失败原因的合并，单封失败不影响后续邮件
func (i *Ingestor) ProcessUnread(ctx context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	messages, err := i.source.UnreadMessages(ctx)
	if err != nil {
		i.metrics.RecordFailure(stageFetch)
		return 0, fmt.Errorf("fetch unread messages: %w", err)
	}

	var errs []error
	done := 0
	for _, raw := range messages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if _, err := i.Process(ctx, raw); err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", raw.ID, err))
			continue
		}
		if err := i.source.MarkRead(ctx, raw.ID); err != nil {
			i.metrics.RecordFailure(stageMarkRead)
			i.log.Error("failed to mark message read", zap.String("raw_id", raw.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("mark message %s read: %w", raw.ID, err))
			continue
		}
		done++
	}

	if p, ok := i.source.(interface{ Pending() int }); ok {
		i.metrics.UpdateMailboxPending(p.Pending())
	}
	return done, errors.Join(errs...)
}

// Process 处理单封邮件，不修改其已读状态
func (i *Ingestor) Process(ctx context.Context, raw *inbound.RawMessage) (MatchResult, error) {
	start := time.Now()
	fields := []zap.Field{
		zap.String("raw_id", raw.ID),
		zap.String("from", raw.Sender.Email),
		zap.String("subject", raw.Subject),
	}

	msg, err := i.converter.Convert(ctx, raw)
	if err != nil {
		return MatchResult{}, i.fail(stageConvert, err, fields)
	}

	msg.Fingerprint = msg.Signature()
	stored, err := i.findStored(ctx, msg.Fingerprint)
	if err != nil {
		return MatchResult{}, i.fail(stagePersist, err, fields)
	}

	var ownerID string
	if stored != nil {
		// 重复投递或上次匹配失败后的重试，沿用已保存的邮件
		i.log.Debug("message already stored, reusing it", append(fields, zap.String("message_id", stored.ID))...)
		msg, ownerID = stored, stored.OwnerID
	} else {
		owner, err := i.resolveOwner(ctx, msg)
		if err != nil {
			return MatchResult{}, i.fail(stageOwner, err, fields)
		}
		if owner == nil {
			i.log.Info("message has no owning team, skipped", fields...)
			i.metrics.RecordOutcome(domain.OutcomeSkippedNoOwner, time.Since(start))
			return MatchResult{Outcome: domain.OutcomeSkippedNoOwner}, nil
		}

		msg.AssignOwner(owner)
		if err := i.store.Repos().Messages.Save(ctx, msg); err != nil {
			return MatchResult{}, i.fail(stagePersist, err, fields)
		}
		ownerID = owner.ID
	}

	result, err := i.matcher.OnMessagePersisted(ctx, msg)
	if err != nil {
		return MatchResult{}, i.fail(stageMatch, err, append(fields, zap.String("message_id", msg.ID)))
	}

	i.metrics.RecordOutcome(result.Outcome, time.Since(start))
	i.log.Info("message ingested", append(fields,
		zap.String("message_id", msg.ID),
		zap.String("team_id", ownerID),
		zap.String("outcome", string(result.Outcome)))...)
	return result, nil
}

// findStored 按签名查找已保存的同一封邮件，多个时取第一个
func (i *Ingestor) findStored(ctx context.Context, fingerprint string) (*domain.Message, error) {
	stored, err := i.store.Repos().Messages.Find(ctx, []storage.Cond[*domain.Message]{storage.MessageByFingerprint(fingerprint)},
		storage.PreloadSender, storage.PreloadRecipients)
	if err != nil {
		return nil, fmt.Errorf("find stored message: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}
	return stored[0], nil
}

// resolveOwner 所属团队为第一个收件人对应用户的当前团队，
// 收件人不是用户时退回发件人对应用户的当前团队
func (i *Ingestor) resolveOwner(ctx context.Context, msg *domain.Message) (*domain.Team, error) {
	repos := i.store.Repos()
	for _, person := range []*domain.Person{msg.FirstReceiver(), msg.Sender} {
		user, err := findUserByPerson(ctx, repos.Users, person, i.log)
		if err != nil {
			return nil, err
		}
		team, err := currentTeam(ctx, repos.Teams, user)
		if err != nil {
			return nil, err
		}
		if team != nil {
			return team, nil
		}
	}
	return nil, nil
}

func (i *Ingestor) fail(stage string, err error, fields []zap.Field) error {
	i.metrics.RecordFailure(stage)
	i.log.Error("failed to ingest message", append(fields, zap.String("stage", stage), zap.Error(err))...)
	return fmt.Errorf("%s: %w", stage, err)
}
