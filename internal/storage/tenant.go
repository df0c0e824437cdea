package storage

import (
	"context"

	"clientmanager/backend/internal/domain"
)

type teamKey struct{}

// WithTeam 在上下文中设置当前团队
func WithTeam(ctx context.Context, teamID string) context.Context {
	return context.WithValue(ctx, teamKey{}, teamID)
}

// TeamFromContext 读取当前团队，没有设置时返回 false（服务/管理上下文）
func TeamFromContext(ctx context.Context) (string, bool) {
	teamID, ok := ctx.Value(teamKey{}).(string)
	return teamID, ok && teamID != ""
}

// ownership 可归属类型的访问策略，构造时确定一次
type ownership[T domain.Entity] struct {
	ownerOf func(T) string
	stamp   func(T, string)
}

// TenantScoped 在任意仓储之上按团队隔离数据。
//
// 对实现 domain.Ownable 的类型：
//   - Query/Find/Get 总是预加载 Owner，并在上下文有当前团队时只返回该团队的数据
//   - Save 为没有所属团队的实体填入当前团队；没有当前团队时返回 ErrOwnerRequired；
//     实体属于其他团队时返回 ErrForeignTenant
//   - Delete 只有当前团队等于实体所属团队时才委托，否则返回 ErrForeignTenant
//
// 其他类型的调用原样透传。
type TenantScoped[T domain.Entity] struct {
	inner  Repository[T]
	policy *ownership[T]
}

// NewTenantScoped 包装仓储并确定 T 的访问策略
func NewTenantScoped[T domain.Entity](inner Repository[T]) *TenantScoped[T] {
	var zero T
	scoped := &TenantScoped[T]{inner: inner}
	if _, ok := any(zero).(domain.Ownable); ok {
		scoped.policy = &ownership[T]{
			ownerOf: func(e T) string { return any(e).(domain.Ownable).OwnerTeamID() },
			stamp:   func(e T, teamID string) { any(e).(domain.Ownable).SetOwnerTeamID(teamID) },
		}
	}
	return scoped
}

// Bind 复用已确定的策略包装另一个仓储（例如事务内的仓储）
func (r *TenantScoped[T]) Bind(inner Repository[T]) *TenantScoped[T] {
	return &TenantScoped[T]{inner: inner, policy: r.policy}
}

// Ownable 报告 T 是否按团队隔离
func (r *TenantScoped[T]) Ownable() bool {
	return r.policy != nil
}

func (r *TenantScoped[T]) Query(ctx context.Context, preload ...string) ([]T, error) {
	return r.Find(ctx, nil, preload...)
}

// Find 有当前团队时追加所属团队条件，由底层存储完成过滤
func (r *TenantScoped[T]) Find(ctx context.Context, conds []Cond[T], preload ...string) ([]T, error) {
	if r.policy == nil {
		return r.inner.Find(ctx, conds, preload...)
	}

	if teamID, ok := TeamFromContext(ctx); ok {
		scoped := make([]Cond[T], 0, len(conds)+1)
		scoped = append(scoped, conds...)
		conds = append(scoped, Eq(ColumnOwner, teamID, func(e T) any { return r.policy.ownerOf(e) }))
	}
	return r.inner.Find(ctx, conds, withOwner(preload)...)
}

func (r *TenantScoped[T]) Get(ctx context.Context, id string, preload ...string) (T, error) {
	if r.policy == nil {
		return r.inner.Get(ctx, id, preload...)
	}

	item, err := r.inner.Get(ctx, id, withOwner(preload)...)
	if err != nil {
		return item, err
	}
	if teamID, ok := TeamFromContext(ctx); ok && r.policy.ownerOf(item) != teamID {
		var zero T
		return zero, ErrNotFound
	}
	return item, nil
}

func (r *TenantScoped[T]) Save(ctx context.Context, entity T) error {
	if r.policy == nil {
		return r.inner.Save(ctx, entity)
	}

	teamID, hasTeam := TeamFromContext(ctx)
	owner := r.policy.ownerOf(entity)
	switch {
	case owner == "" && !hasTeam:
		return ErrOwnerRequired
	case owner == "":
		r.policy.stamp(entity, teamID)
	case hasTeam && owner != teamID:
		return ErrForeignTenant
	}
	return r.inner.Save(ctx, entity)
}

func (r *TenantScoped[T]) Delete(ctx context.Context, entity T) error {
	if r.policy == nil {
		return r.inner.Delete(ctx, entity)
	}

	teamID, ok := TeamFromContext(ctx)
	if !ok || r.policy.ownerOf(entity) != teamID {
		return ErrForeignTenant
	}
	return r.inner.Delete(ctx, entity)
}

func withOwner(preload []string) []string {
	for _, p := range preload {
		if p == PreloadOwner {
			return preload
		}
	}
	out := make([]string, 0, len(preload)+1)
	out = append(out, PreloadOwner)
	return append(out, preload...)
}

// scopes 每种实体类型的隔离包装，启动时构造一次
type scopes struct {
	teams     *TenantScoped[*domain.Team]
	persons   *TenantScoped[*domain.Person]
	users     *TenantScoped[*domain.User]
	messages  *TenantScoped[*domain.Message]
	inquiries *TenantScoped[*domain.Inquiry]
	comments  *TenantScoped[*domain.Comment]
	tags      *TenantScoped[*domain.Tag]
	processed *TenantScoped[*domain.ProcessedMessage]
}

func newScopes(repos Repositories) scopes {
	return scopes{
		teams:     NewTenantScoped(repos.Teams),
		persons:   NewTenantScoped(repos.Persons),
		users:     NewTenantScoped(repos.Users),
		messages:  NewTenantScoped(repos.Messages),
		inquiries: NewTenantScoped(repos.Inquiries),
		comments:  NewTenantScoped(repos.Comments),
		tags:      NewTenantScoped(repos.Tags),
		processed: NewTenantScoped(repos.Processed),
	}
}

func (s scopes) repositories() Repositories {
	return Repositories{
		Teams:     s.teams,
		Persons:   s.persons,
		Users:     s.users,
		Messages:  s.messages,
		Inquiries: s.inquiries,
		Comments:  s.comments,
		Tags:      s.tags,
		Processed: s.processed,
	}
}

func (s scopes) bind(repos Repositories) scopes {
	return scopes{
		teams:     s.teams.Bind(repos.Teams),
		persons:   s.persons.Bind(repos.Persons),
		users:     s.users.Bind(repos.Users),
		messages:  s.messages.Bind(repos.Messages),
		inquiries: s.inquiries.Bind(repos.Inquiries),
		comments:  s.comments.Bind(repos.Comments),
		tags:      s.tags.Bind(repos.Tags),
		processed: s.processed.Bind(repos.Processed),
	}
}

// ScopedStore 为底层存储的全部仓储加上租户隔离
type ScopedStore struct {
	inner  Store
	scopes scopes
	repos  Repositories
}

// Scoped 包装存储，隔离策略在这里为每种实体类型确定一次
func Scoped(inner Store) *ScopedStore {
	sc := newScopes(inner.Repos())
	return &ScopedStore{inner: inner, scopes: sc, repos: sc.repositories()}
}

func (s *ScopedStore) Repos() Repositories { return s.repos }

func (s *ScopedStore) WithinTx(ctx context.Context, fn TxFunc) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		return fn(ctx, s.scopes.bind(repos).repositories())
	})
}

func (s *ScopedStore) Health() error { return s.inner.Health() }
func (s *ScopedStore) Close() error  { return s.inner.Close() }
