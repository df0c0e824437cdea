package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Message 规范化后的入站邮件。
//
// 持久化之后只允许修改归属团队。收件人按位置保存，顺序即原始顺序。
// Fingerprint 在持久化时写入 Signature()，用于识别重复投递。
type Message struct {
	ID          string              `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Subject     string              `json:"subject" gorm:"type:varchar(998)"`
	Body        string              `json:"body" gorm:"type:text"`
	Date        time.Time           `json:"date" gorm:"index"`
	SenderID    string              `json:"senderId" gorm:"type:varchar(36);index;not null"`
	Sender      *Person             `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
	Recipients  []*MessageRecipient `json:"recipients,omitempty" gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
	OwnerID     string              `json:"ownerId" gorm:"type:varchar(36);index"`
	Owner       *Team               `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Fingerprint string              `json:"fingerprint" gorm:"type:varchar(64);index"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// MessageRecipient 邮件与收件人的关联，Position 保证收件人有序
type MessageRecipient struct {
	MessageID string  `json:"messageId" gorm:"primaryKey;type:varchar(36)"`
	Position  int     `json:"position" gorm:"primaryKey"`
	PersonID  string  `json:"personId" gorm:"type:varchar(36);index;not null"`
	Person    *Person `json:"person,omitempty" gorm:"foreignKey:PersonID"`
}

func (m *Message) GetID() string { return m.ID }

func (m *Message) SetID(id string) {
	m.ID = id
	for _, r := range m.Recipients {
		r.MessageID = id
	}
}

func (m *Message) OwnerTeamID() string { return m.OwnerID }

func (m *Message) SetOwnerTeamID(teamID string) {
	m.OwnerID = teamID
	if m.Owner != nil && m.Owner.ID != teamID {
		m.Owner = nil
	}
}

func (m *Message) AssignOwner(team *Team) {
	m.Owner = team
	if team != nil {
		m.OwnerID = team.ID
	} else {
		m.OwnerID = ""
	}
}

// SetSender 设置发件人
func (m *Message) SetSender(p *Person) {
	m.Sender = p
	m.SenderID = p.ID
}

// AddReceiver 在末尾追加收件人
func (m *Message) AddReceiver(p *Person) {
	m.Recipients = append(m.Recipients, &MessageRecipient{
		MessageID: m.ID,
		Position:  len(m.Recipients),
		PersonID:  p.ID,
		Person:    p,
	})
}

// Receivers 按原始顺序返回收件人
func (m *Message) Receivers() []*Person {
	links := make([]*MessageRecipient, len(m.Recipients))
	copy(links, m.Recipients)
	sort.SliceStable(links, func(i, j int) bool { return links[i].Position < links[j].Position })

	out := make([]*Person, 0, len(links))
	for _, l := range links {
		if l.Person != nil {
			out = append(out, l.Person)
		}
	}
	return out
}

// FirstReceiver 返回第一个收件人，没有收件人时返回 nil
func (m *Message) FirstReceiver() *Person {
	receivers := m.Receivers()
	if len(receivers) == 0 {
		return nil
	}
	return receivers[0]
}

// Signature 返回邮件的领域等价签名（十六进制 sha256）。
//
// 签名由主题、日期（UTC 秒）、发件人邮箱和有序收件人邮箱组成，
// 与对象标识和存储 ID 无关。
func (m *Message) Signature() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(m.Subject))
	b.WriteByte(0)
	b.WriteString(strconv.FormatInt(m.Date.UTC().Unix(), 10))
	b.WriteByte(0)
	if m.Sender != nil {
		b.WriteString(NormalizeEmail(m.Sender.Email))
	}
	for _, r := range m.Receivers() {
		b.WriteByte(0)
		b.WriteString(NormalizeEmail(r.Email))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Equivalent 判断两封邮件是否为同一封物理邮件
func (m *Message) Equivalent(other *Message) bool {
	if m == nil || other == nil {
		return false
	}
	return m.Signature() == other.Signature()
}
