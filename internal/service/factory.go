package service

import "clientmanager/backend/internal/domain"

// InquiryFactory 根据来源邮件创建新咨询（未设置所属团队）
type InquiryFactory interface {
	CreateInquiry(msg *domain.Message) *domain.Inquiry
}

// DefaultInquiryFactory 以邮件主题为咨询主题，正文为描述，发件人为客户
type DefaultInquiryFactory struct{}

func (DefaultInquiryFactory) CreateInquiry(msg *domain.Message) *domain.Inquiry {
	inquiry := &domain.Inquiry{
		Subject:     msg.Subject,
		Description: msg.Body,
	}
	if msg.Sender != nil {
		inquiry.SetClient(msg.Sender)
	}
	inquiry.SetSource(msg)
	return inquiry
}
