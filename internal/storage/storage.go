// Package storage 定义泛型仓储接口、存储抽象以及租户隔离层。
package storage

import (
	"context"
	"errors"

	"clientmanager/backend/internal/domain"
)

var (
	// ErrNotFound 实体不存在（或不属于当前团队）
	ErrNotFound = errors.New("entity not found")
	// ErrForeignTenant 试图操作其他团队的数据
	ErrForeignTenant = errors.New("an attempt to access foreign multitenant data was made")
	// ErrDuplicate 只允许插入的实体主键重复
	ErrDuplicate = errors.New("entity already exists")
	// ErrOwnerRequired 保存可归属实体时既没有所属团队也没有当前团队
	ErrOwnerRequired = errors.New("ownable entity requires an owner team")
)

// 常用的预加载关系名
const (
	PreloadOwner         = "Owner"
	PreloadSender        = "Sender"
	PreloadRecipients    = "Recipients.Person"
	PreloadClient        = "Client"
	PreloadSource        = "Source"
	PreloadSourceSender  = "Source.Sender"
	PreloadSourceRcpts   = "Source.Recipients.Person"
	PreloadRelatedPerson = "RelatedPerson"
	PreloadCurrentTeam   = "CurrentTeam"
)

// 过滤条件使用的列名
const (
	ColumnOwner       = "owner_id"
	ColumnEmail       = "email"
	ColumnPersonID    = "person_id"
	ColumnClientID    = "client_id"
	ColumnFingerprint = "fingerprint"
)

// Cond 等值过滤条件。
// SQL 存储把 Column = Value 下推为 WHERE 子句，内存存储用 Field 取值比较。
type Cond[T domain.Entity] struct {
	Column string
	Value  any
	Field  func(T) any
}

// Eq 构造等值条件
func Eq[T domain.Entity](column string, value any, field func(T) any) Cond[T] {
	return Cond[T]{Column: column, Value: value, Field: field}
}

// Matches 报告实体是否满足全部条件
func Matches[T domain.Entity](item T, conds []Cond[T]) bool {
	for _, c := range conds {
		if c.Field(item) != c.Value {
			return false
		}
	}
	return true
}

// PersonByEmail 按规范化邮箱过滤联系人
func PersonByEmail(email string) Cond[*domain.Person] {
	return Eq(ColumnEmail, domain.NormalizeEmail(email), func(p *domain.Person) any { return p.Email })
}

// UserByPerson 按关联联系人过滤用户
func UserByPerson(personID string) Cond[*domain.User] {
	return Eq(ColumnPersonID, personID, func(u *domain.User) any { return u.PersonID })
}

// InquiryByClient 按客户过滤咨询
func InquiryByClient(clientID string) Cond[*domain.Inquiry] {
	return Eq(ColumnClientID, clientID, func(i *domain.Inquiry) any { return i.ClientID })
}

// MessageByFingerprint 按领域签名过滤邮件
func MessageByFingerprint(fingerprint string) Cond[*domain.Message] {
	return Eq(ColumnFingerprint, fingerprint, func(m *domain.Message) any { return m.Fingerprint })
}

// Repository 泛型 CRUD 仓储。
//
// Query 返回全部实体，Find 只返回满足所有条件的实体，两者都保持插入顺序。
// Save 对没有 ID 的实体分配新 ID 并插入，否则更新；
// domain.AppendOnly 实体总是插入，主键已存在时返回 ErrDuplicate。
// Get 找不到实体时返回 ErrNotFound。
type Repository[T domain.Entity] interface {
	Query(ctx context.Context, preload ...string) ([]T, error)
	Find(ctx context.Context, conds []Cond[T], preload ...string) ([]T, error)
	Get(ctx context.Context, id string, preload ...string) (T, error)
	Save(ctx context.Context, entity T) error
	Delete(ctx context.Context, entity T) error
}

// Repositories 一组按实体类型划分的仓储
type Repositories struct {
	Teams     Repository[*domain.Team]
	Persons   Repository[*domain.Person]
	Users     Repository[*domain.User]
	Messages  Repository[*domain.Message]
	Inquiries Repository[*domain.Inquiry]
	Comments  Repository[*domain.Comment]
	Tags      Repository[*domain.Tag]
	Processed Repository[*domain.ProcessedMessage]
}

// TxFunc 在事务内执行的函数，repos 绑定到该事务
type TxFunc func(ctx context.Context, repos Repositories) error

// Store 存储实现需要提供的能力
type Store interface {
	Repos() Repositories
	// WithinTx 在单个事务内执行 fn，fn 返回错误时回滚
	WithinTx(ctx context.Context, fn TxFunc) error
	Health() error
	Close() error
}
