package domain

// Entity 可持久化实体的标识能力，所有仓储均以此约束泛型参数。
type Entity interface {
	GetID() string
	SetID(id string)
}

// Ownable 归属于单个团队的实体。
//
// 实现该接口的类型会被租户隔离层自动按团队过滤，
// 目前只有 Message、Inquiry 和 Tag 实现。
type Ownable interface {
	Entity
	// OwnerTeamID 返回所属团队 ID，未分配时为空字符串
	OwnerTeamID() string
	// SetOwnerTeamID 只设置所属团队 ID，已加载的 Owner 与之不一致时清空
	SetOwnerTeamID(teamID string)
}

// AppendOnly 只允许插入的实体，主键重复视为冲突而不是更新
type AppendOnly interface {
	Entity
	AppendOnly()
}
