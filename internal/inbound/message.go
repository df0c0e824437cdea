package inbound

import (
	"strings"
	"time"
)

// Address 邮件地址及显示名称
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// String 返回 "Name <email>" 或仅 email
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

// RawMessage 邮件传输层交付的原始邮件，接收后不再修改
type RawMessage struct {
	ID              string    `json:"id"`              // 队列内唯一 ID
	MessageID       string    `json:"messageId"`       // Message-ID 头，可能为空
	Subject         string    `json:"subject"`
	Body            string    `json:"body"`
	Date            time.Time `json:"date"`
	Sender          Address   `json:"sender"`
	Receivers       []Address `json:"receivers"`
	ClientSignature string    `json:"clientSignature"` // User-Agent / X-Mailer
}

// ReceiverEmails 返回收件人邮箱列表
func (m *RawMessage) ReceiverEmails() []string {
	out := make([]string, 0, len(m.Receivers))
	for _, r := range m.Receivers {
		out = append(out, r.Email)
	}
	return out
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.TrimPrefix(addr, "<")
	addr = strings.TrimSuffix(addr, ">")
	return strings.ToLower(addr)
}
