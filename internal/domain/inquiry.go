package domain

import (
	"sort"
	"time"
)

// Inquiry 团队跟踪的客户咨询
type Inquiry struct {
	ID            string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerID       string     `json:"ownerId" gorm:"type:varchar(36);index;not null"`
	Owner         *Team      `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	ClientID      string     `json:"clientId" gorm:"type:varchar(36);index;not null"`
	Client        *Person    `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	AssigneeID    *string    `json:"assigneeId,omitempty" gorm:"type:varchar(36)"`
	Assignee      *Person    `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID"`
	SourceID      string     `json:"sourceId" gorm:"type:varchar(36);index"`
	Source        *Message   `json:"source,omitempty" gorm:"foreignKey:SourceID"`
	Subject       string     `json:"subject" gorm:"type:varchar(998)"`
	Description   string     `json:"description" gorm:"type:text"`
	ReferenceDate *time.Time `json:"referenceDate,omitempty"` // 跟进截止时间
	IsArchived    bool       `json:"archived" gorm:"default:false;index"`
	Comments      []*Comment `json:"comments,omitempty" gorm:"foreignKey:InquiryID;constraint:OnDelete:CASCADE"`
	Tags          []*Tag     `json:"tags,omitempty" gorm:"many2many:inquiry_tags"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (i *Inquiry) GetID() string       { return i.ID }
func (i *Inquiry) SetID(id string)     { i.ID = id }
func (i *Inquiry) OwnerTeamID() string { return i.OwnerID }

func (i *Inquiry) SetOwnerTeamID(teamID string) {
	i.OwnerID = teamID
	if i.Owner != nil && i.Owner.ID != teamID {
		i.Owner = nil
	}
}

func (i *Inquiry) AssignOwner(team *Team) {
	i.Owner = team
	if team != nil {
		i.OwnerID = team.ID
	} else {
		i.OwnerID = ""
	}
}

// SetClient 设置客户
func (i *Inquiry) SetClient(p *Person) {
	i.Client = p
	i.ClientID = p.ID
}

// SetSource 设置来源邮件
func (i *Inquiry) SetSource(m *Message) {
	i.Source = m
	i.SourceID = m.ID
}

// Assign 指派负责人，传 nil 取消指派
func (i *Inquiry) Assign(p *Person) {
	i.Assignee = p
	if p == nil {
		i.AssigneeID = nil
		return
	}
	id := p.ID
	i.AssigneeID = &id
}

// ResetReferenceDate 清除跟进截止时间（收到新邮件时调用）
func (i *Inquiry) ResetReferenceDate() {
	i.ReferenceDate = nil
}

// IsOpen 未归档即为打开状态
func (i *Inquiry) IsOpen() bool {
	return !i.IsArchived
}

// AddComment 添加评论，评论按创建时间排序
func (i *Inquiry) AddComment(c *Comment) {
	c.InquiryID = i.ID
	i.Comments = append(i.Comments, c)
	sort.SliceStable(i.Comments, func(a, b int) bool {
		return i.Comments[a].CreatedAt.Before(i.Comments[b].CreatedAt)
	})
}

// AddTag 添加标签，同一标签只保留一份
func (i *Inquiry) AddTag(t *Tag) {
	for _, existing := range i.Tags {
		if existing.ID == t.ID {
			return
		}
	}
	i.Tags = append(i.Tags, t)
}

// Comment 咨询下的评论
type Comment struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	InquiryID string    `json:"inquiryId" gorm:"type:varchar(36);index;not null"`
	AuthorID  string    `json:"authorId" gorm:"type:varchar(36)"`
	Text      string    `json:"text" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *Comment) GetID() string   { return c.ID }
func (c *Comment) SetID(id string) { c.ID = id }
