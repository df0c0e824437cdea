package domain

import (
	"strings"
	"time"
)

// PersonRole 联系人角色
type PersonRole string

const (
	RoleClient   PersonRole = "client"   // 客户
	RoleEmployee PersonRole = "employee" // 员工
)

// ParsePersonRole 将配置中的角色字符串转换为 PersonRole
func ParsePersonRole(value string) (PersonRole, bool) {
	switch PersonRole(strings.ToLower(strings.TrimSpace(value))) {
	case RoleClient:
		return RoleClient, true
	case RoleEmployee:
		return RoleEmployee, true
	default:
		return "", false
	}
}

// Person 联系人，邮箱地址是查找身份的唯一依据。
//
// 同一租户范围内同一邮箱至多一个 Person，由"先查后建"保证，存储层不加唯一约束。
type Person struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FirstName    string     `json:"firstName" gorm:"type:varchar(100)"`
	LastName     string     `json:"lastName" gorm:"type:varchar(100)"`
	Email        string     `json:"email" gorm:"type:varchar(255);index"`
	Phone        string     `json:"phone,omitempty" gorm:"type:varchar(50)"`
	Skype        string     `json:"skype,omitempty" gorm:"type:varchar(100)"`
	Role         PersonRole `json:"role" gorm:"type:varchar(20);index"`
	CreationDate time.Time  `json:"creationDate"` // 首次出现的邮件日期
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (p *Person) GetID() string   { return p.ID }
func (p *Person) SetID(id string) { p.ID = id }

// FullName 返回"名 姓"，两者都为空时返回 "Unknown"
func (p *Person) FullName() string {
	full := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if full == "" {
		return "Unknown"
	}
	return full
}

// IsClient 判断是否为客户
func (p *Person) IsClient() bool {
	return p != nil && p.Role == RoleClient
}

// NewPerson 根据显示名称和邮箱创建联系人（未持久化）
//
// 参数:
//   - displayName: 显示名称，按空格切分，第一段为名，第二段为姓，其余丢弃
//   - email: 邮箱地址
//   - role: 角色
//   - created: 创建日期（通常为邮件日期）
func NewPerson(displayName, email string, role PersonRole, created time.Time) *Person {
	first, last := SplitDisplayName(displayName)
	return &Person{
		FirstName:    first,
		LastName:     last,
		Email:        NormalizeEmail(email),
		Role:         role,
		CreationDate: created,
	}
}

// SplitDisplayName 按单个空格切分显示名称，缺失的部分为空字符串
func SplitDisplayName(displayName string) (first, last string) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return "", ""
	}
	tokens := strings.Split(name, " ")
	first = tokens[0]
	if len(tokens) > 1 {
		last = tokens[1]
	}
	return first, last
}

// NormalizeEmail 规范化邮箱地址（去空白、去尖括号、转小写）
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	email = strings.TrimPrefix(email, "<")
	email = strings.TrimSuffix(email, ">")
	return strings.ToLower(email)
}
