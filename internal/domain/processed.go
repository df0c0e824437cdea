package domain

import "time"

// MatchOutcome 咨询匹配结果
type MatchOutcome string

const (
	OutcomeCreated          MatchOutcome = "created"            // 新建咨询
	OutcomeReset            MatchOutcome = "reset"              // 重置已有咨询的跟进时间
	OutcomeSkippedNotClient MatchOutcome = "skipped_not_client" // 发件人不是客户
	OutcomeSkippedDuplicate MatchOutcome = "skipped_duplicate"  // 同一封邮件已处理
	OutcomeSkippedNoOwner   MatchOutcome = "skipped_no_owner"   // 收件人无法映射到团队
)

// ProcessedMessage 幂等标记，主键为邮件的领域等价签名。
// 与咨询的创建或更新在同一事务内写入。
type ProcessedMessage struct {
	ID        string       `json:"id" gorm:"primaryKey;type:varchar(64)"`
	MessageID string       `json:"messageId" gorm:"type:varchar(36);index"`
	InquiryID string       `json:"inquiryId" gorm:"type:varchar(36);index"`
	Outcome   MatchOutcome `json:"outcome" gorm:"type:varchar(32)"`
	CreatedAt time.Time    `json:"createdAt"`
}

func (p *ProcessedMessage) GetID() string   { return p.ID }
func (p *ProcessedMessage) SetID(id string) { p.ID = id }
func (p *ProcessedMessage) AppendOnly()     {}
