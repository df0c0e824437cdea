package inbound

import (
	"context"
	"errors"
	"sync"
)

// ErrMessageNotFound 标记已读时找不到邮件
var ErrMessageNotFound = errors.New("inbound message not found")

// Mailbox 内存邮件队列，SMTP 会话投递，处理器消费。
//
// 每次投递都会向通知通道写入一个信号；通道容量为 1，
// 多次投递在消费者空闲前会合并为一次通知。
type Mailbox struct {
	mu       sync.Mutex
	messages []*RawMessage
	notify   chan struct{}
}

// NewMailbox 创建空队列
func NewMailbox() *Mailbox {
	return &Mailbox{
		notify: make(chan struct{}, 1),
	}
}

// Deliver 投递一封邮件并发出通知
func (m *Mailbox) Deliver(msg *RawMessage) {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Notifications 返回"收到新邮件"通知通道
func (m *Mailbox) Notifications() <-chan struct{} {
	return m.notify
}

// UnreadMessages 按投递顺序返回未读邮件快照
func (m *Mailbox) UnreadMessages(_ context.Context) ([]*RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*RawMessage, len(m.messages))
	copy(out, m.messages)
	return out, nil
}

// MarkRead 标记已读，已读邮件从队列中移除
func (m *Mailbox) MarkRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, msg := range m.messages {
		if msg.ID == id {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			return nil
		}
	}
	return ErrMessageNotFound
}

// Pending 返回未读邮件数量
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
