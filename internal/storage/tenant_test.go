package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clientmanager/backend/internal/domain"
)

// MockRepository 用于断言委托调用
type MockRepository[T domain.Entity] struct {
	mock.Mock
}

func (m *MockRepository[T]) Query(ctx context.Context, preload ...string) ([]T, error) {
	args := m.Called(ctx, preload)
	items, _ := args.Get(0).([]T)
	return items, args.Error(1)
}

func (m *MockRepository[T]) Find(ctx context.Context, conds []Cond[T], preload ...string) ([]T, error) {
	args := m.Called(ctx, conds, preload)
	items, _ := args.Get(0).([]T)
	return items, args.Error(1)
}

func (m *MockRepository[T]) Get(ctx context.Context, id string, preload ...string) (T, error) {
	args := m.Called(ctx, id, preload)
	item, _ := args.Get(0).(T)
	return item, args.Error(1)
}

func (m *MockRepository[T]) Save(ctx context.Context, entity T) error {
	return m.Called(ctx, entity).Error(0)
}

func (m *MockRepository[T]) Delete(ctx context.Context, entity T) error {
	return m.Called(ctx, entity).Error(0)
}

func inquiriesOf(teams ...string) []*domain.Inquiry {
	out := make([]*domain.Inquiry, 0, len(teams))
	for i, team := range teams {
		out = append(out, &domain.Inquiry{ID: string(rune('a' + i)), OwnerID: team})
	}
	return out
}

func TestTenantScoped_Capability(t *testing.T) {
	assert.True(t, NewTenantScoped[*domain.Inquiry](&MockRepository[*domain.Inquiry]{}).Ownable())
	assert.True(t, NewTenantScoped[*domain.Message](&MockRepository[*domain.Message]{}).Ownable())
	assert.True(t, NewTenantScoped[*domain.Tag](&MockRepository[*domain.Tag]{}).Ownable())
	assert.False(t, NewTenantScoped[*domain.Person](&MockRepository[*domain.Person]{}).Ownable())
	assert.False(t, NewTenantScoped[*domain.Team](&MockRepository[*domain.Team]{}).Ownable())
	assert.False(t, NewTenantScoped[*domain.ProcessedMessage](&MockRepository[*domain.ProcessedMessage]{}).Ownable())
}

// ownerIs 匹配只含所属团队条件的条件列表
func ownerIs[T domain.Entity](teamID string) interface{} {
	return mock.MatchedBy(func(conds []Cond[T]) bool {
		return len(conds) == 1 && conds[0].Column == ColumnOwner && conds[0].Value == teamID
	})
}

func TestTenantScoped_Query(t *testing.T) {
	t.Run("有当前团队时由底层按所属团队过滤", func(t *testing.T) {
		inner := &MockRepository[*domain.Inquiry]{}
		inner.On("Find", mock.Anything, ownerIs[*domain.Inquiry]("t1"), []string{PreloadOwner, PreloadClient}).
			Return(inquiriesOf("t1", "t1"), nil)

		items, err := NewTenantScoped[*domain.Inquiry](inner).Query(WithTeam(context.Background(), "t1"), PreloadClient)
		require.NoError(t, err)
		assert.Len(t, items, 2)
		inner.AssertExpectations(t)
	})

	t.Run("没有当前团队时不加条件", func(t *testing.T) {
		inner := &MockRepository[*domain.Inquiry]{}
		inner.On("Find", mock.Anything, []Cond[*domain.Inquiry](nil), []string{PreloadOwner, PreloadClient}).
			Return(inquiriesOf("t1", "t2", "t1"), nil)

		items, err := NewTenantScoped[*domain.Inquiry](inner).Query(context.Background(), PreloadClient)
		require.NoError(t, err)
		assert.Len(t, items, 3)
		inner.AssertExpectations(t)
	})

	t.Run("不可归属类型原样透传", func(t *testing.T) {
		persons := &MockRepository[*domain.Person]{}
		persons.On("Find", mock.Anything, []Cond[*domain.Person](nil), []string(nil)).Return([]*domain.Person{{ID: "p1"}}, nil)

		items, err := NewTenantScoped[*domain.Person](persons).Query(WithTeam(context.Background(), "t1"))
		require.NoError(t, err)
		assert.Len(t, items, 1)
		persons.AssertExpectations(t)
	})
}

func TestTenantScoped_Find(t *testing.T) {
	t.Run("调用方条件在前所属团队条件在后", func(t *testing.T) {
		inner := &MockRepository[*domain.Inquiry]{}
		byClient := InquiryByClient("c1")
		inner.On("Find", mock.Anything, mock.MatchedBy(func(conds []Cond[*domain.Inquiry]) bool {
			return len(conds) == 2 &&
				conds[0].Column == ColumnClientID && conds[0].Value == "c1" &&
				conds[1].Column == ColumnOwner && conds[1].Value == "t1"
		}), []string{PreloadOwner}).Return(inquiriesOf("t1"), nil)

		conds := []Cond[*domain.Inquiry]{byClient}
		items, err := NewTenantScoped[*domain.Inquiry](inner).Find(WithTeam(context.Background(), "t1"), conds)
		require.NoError(t, err)
		assert.Len(t, items, 1)
		assert.Len(t, conds, 1, "调用方的切片不被修改")
		inner.AssertExpectations(t)
	})

	t.Run("所属团队条件判断实体归属", func(t *testing.T) {
		inner := &MockRepository[*domain.Inquiry]{}
		var captured []Cond[*domain.Inquiry]
		inner.On("Find", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { captured = args.Get(1).([]Cond[*domain.Inquiry]) }).
			Return(nil, nil)

		_, err := NewTenantScoped[*domain.Inquiry](inner).Find(WithTeam(context.Background(), "t1"), nil)
		require.NoError(t, err)
		require.Len(t, captured, 1)
		assert.True(t, Matches(&domain.Inquiry{OwnerID: "t1"}, captured))
		assert.False(t, Matches(&domain.Inquiry{OwnerID: "t2"}, captured))
	})
}

func TestConditions(t *testing.T) {
	assert.True(t, Matches(&domain.Person{Email: "jane@x.com"}, []Cond[*domain.Person]{PersonByEmail(" Jane@X.com ")}))
	assert.False(t, Matches(&domain.Person{Email: "john@x.com"}, []Cond[*domain.Person]{PersonByEmail("jane@x.com")}))
	assert.True(t, Matches(&domain.User{PersonID: "p1"}, []Cond[*domain.User]{UserByPerson("p1")}))
	assert.True(t, Matches(&domain.Message{Fingerprint: "f"}, []Cond[*domain.Message]{MessageByFingerprint("f")}))
	assert.True(t, Matches(&domain.Inquiry{}, nil), "没有条件时全部匹配")
}

func TestTenantScoped_Get(t *testing.T) {
	inner := &MockRepository[*domain.Inquiry]{}
	inner.On("Get", mock.Anything, "a", []string{PreloadOwner}).Return(&domain.Inquiry{ID: "a", OwnerID: "t1"}, nil)
	scoped := NewTenantScoped[*domain.Inquiry](inner)

	got, err := scoped.Get(WithTeam(context.Background(), "t1"), "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = scoped.Get(WithTeam(context.Background(), "t2"), "a")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = scoped.Get(context.Background(), "a", PreloadOwner)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestTenantScoped_Save(t *testing.T) {
	t.Run("空所属团队从上下文填入", func(t *testing.T) {
		inner := &MockRepository[*domain.Tag]{}
		inner.On("Save", mock.Anything, mock.Anything).Return(nil)
		tag := &domain.Tag{Name: "vip"}

		require.NoError(t, NewTenantScoped[*domain.Tag](inner).Save(WithTeam(context.Background(), "t1"), tag))
		assert.Equal(t, "t1", tag.OwnerID)
		inner.AssertNumberOfCalls(t, "Save", 1)
	})

	t.Run("没有所属团队也没有当前团队", func(t *testing.T) {
		inner := &MockRepository[*domain.Tag]{}
		err := NewTenantScoped[*domain.Tag](inner).Save(context.Background(), &domain.Tag{})
		assert.ErrorIs(t, err, ErrOwnerRequired)
		inner.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("保存其他团队的数据", func(t *testing.T) {
		inner := &MockRepository[*domain.Tag]{}
		err := NewTenantScoped[*domain.Tag](inner).Save(WithTeam(context.Background(), "t1"), &domain.Tag{OwnerID: "t2"})
		assert.ErrorIs(t, err, ErrForeignTenant)
		inner.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("服务上下文保存已归属实体", func(t *testing.T) {
		inner := &MockRepository[*domain.Tag]{}
		inner.On("Save", mock.Anything, mock.Anything).Return(nil)
		require.NoError(t, NewTenantScoped[*domain.Tag](inner).Save(context.Background(), &domain.Tag{OwnerID: "t2"}))
	})

	t.Run("不可归属类型透传", func(t *testing.T) {
		inner := &MockRepository[*domain.Person]{}
		inner.On("Save", mock.Anything, mock.Anything).Return(nil)
		require.NoError(t, NewTenantScoped[*domain.Person](inner).Save(context.Background(), &domain.Person{}))
	})
}

func TestTenantScoped_Delete(t *testing.T) {
	t.Run("删除其他团队数据被拒绝且不委托", func(t *testing.T) {
		inner := &MockRepository[*domain.Inquiry]{}
		err := NewTenantScoped[*domain.Inquiry](inner).Delete(WithTeam(context.Background(), "t1"), &domain.Inquiry{ID: "a", OwnerID: "t2"})
		assert.ErrorIs(t, err, ErrForeignTenant)
		inner.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("没有当前团队时拒绝", func(t *testing.T) {
		inner := &MockRepository[*domain.Inquiry]{}
		err := NewTenantScoped[*domain.Inquiry](inner).Delete(context.Background(), &domain.Inquiry{ID: "a", OwnerID: "t2"})
		assert.ErrorIs(t, err, ErrForeignTenant)
		inner.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("删除本团队数据", func(t *testing.T) {
		inner := &MockRepository[*domain.Inquiry]{}
		entity := &domain.Inquiry{ID: "a", OwnerID: "t1"}
		inner.On("Delete", mock.Anything, entity).Return(nil)

		require.NoError(t, NewTenantScoped[*domain.Inquiry](inner).Delete(WithTeam(context.Background(), "t1"), entity))
		inner.AssertExpectations(t)
	})

	t.Run("委托错误原样返回", func(t *testing.T) {
		inner := &MockRepository[*domain.Person]{}
		errDB := errors.New("db down")
		inner.On("Delete", mock.Anything, mock.Anything).Return(errDB)
		assert.ErrorIs(t, NewTenantScoped[*domain.Person](inner).Delete(context.Background(), &domain.Person{}), errDB)
	})
}

func TestTeamFromContext(t *testing.T) {
	_, ok := TeamFromContext(context.Background())
	assert.False(t, ok)

	_, ok = TeamFromContext(WithTeam(context.Background(), ""))
	assert.False(t, ok)

	team, ok := TeamFromContext(WithTeam(context.Background(), "t1"))
	assert.True(t, ok)
	assert.Equal(t, "t1", team)
}

func TestWithOwner(t *testing.T) {
	assert.Equal(t, []string{PreloadOwner}, withOwner(nil))
	assert.Equal(t, []string{PreloadOwner, PreloadClient}, withOwner([]string{PreloadClient}))
	assert.Equal(t, []string{PreloadClient, PreloadOwner}, withOwner([]string{PreloadClient, PreloadOwner}))
}

// fakeStore 记录事务调用次数
type fakeStore struct {
	repos Repositories
	txs   int
}

func (f *fakeStore) Repos() Repositories { return f.repos }
func (f *fakeStore) WithinTx(ctx context.Context, fn TxFunc) error {
	f.txs++
	return fn(ctx, f.repos)
}
func (f *fakeStore) Health() error { return nil }
func (f *fakeStore) Close() error  { return nil }

func TestScopedStore(t *testing.T) {
	inquiries := &MockRepository[*domain.Inquiry]{}
	inquiries.On("Find", mock.Anything, ownerIs[*domain.Inquiry]("t2"), []string{PreloadOwner}).Return(inquiriesOf("t2"), nil)
	inner := &fakeStore{repos: Repositories{Inquiries: inquiries}}
	scoped := Scoped(inner)

	ctx := WithTeam(context.Background(), "t2")
	items, err := scoped.Repos().Inquiries.Query(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	err = scoped.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		items, err := repos.Inquiries.Query(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "t2", items[0].OwnerID)
		return repos.Inquiries.Delete(ctx, &domain.Inquiry{ID: "x", OwnerID: "t1"})
	})
	assert.ErrorIs(t, err, ErrForeignTenant)
	assert.Equal(t, 1, inner.txs)
	assert.NoError(t, scoped.Health())
}
