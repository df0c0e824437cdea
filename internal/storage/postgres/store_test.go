package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"clientmanager/backend/internal/config"
	"clientmanager/backend/internal/domain"
	"clientmanager/backend/internal/storage"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(gorm.ErrRecordNotFound), storage.ErrNotFound)
	assert.ErrorIs(t, mapError(fmt.Errorf("query: %w", gorm.ErrRecordNotFound)), storage.ErrNotFound)
	assert.ErrorIs(t, mapError(gorm.ErrDuplicatedKey), storage.ErrDuplicate)

	other := errors.New("connection refused")
	assert.Same(t, other, mapError(other))
}

func TestOpenUnsupportedType(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Type: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database type")
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// 内存数据库只存在于单个连接内
	store, err := NewStoreWithDialector(sqlite.Open(":memory:"), PoolConfig{MaxOpenConns: 1})
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seed 保存一个团队、三个联系人和一封发给两位收件人的邮件
func seed(t *testing.T, store *Store) (*domain.Team, *domain.Message, []*domain.Person) {
	t.Helper()
	ctx := context.Background()
	repos := store.Repos()

	team := &domain.Team{Name: "Sales"}
	require.NoError(t, repos.Teams.Save(ctx, team))

	people := []*domain.Person{
		domain.NewPerson("Jane Doe", "jane@client.com", domain.RoleClient, testDate),
		domain.NewPerson("Bob Smith", "bob@company.com", domain.RoleEmployee, testDate),
		domain.NewPerson("Carol", "carol@company.com", domain.RoleEmployee, testDate),
	}
	for _, p := range people {
		require.NoError(t, repos.Persons.Save(ctx, p))
	}

	msg := &domain.Message{Subject: "Need a quote", Body: "hello", Date: testDate, OwnerID: team.ID}
	msg.SetSender(people[0])
	msg.AddReceiver(people[1])
	msg.AddReceiver(people[2])
	msg.Fingerprint = msg.Signature()
	require.NoError(t, repos.Messages.Save(ctx, msg))
	return team, msg, people
}

var testDate = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func TestStore_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("没有ID时分配ID并插入", func(t *testing.T) {
		store := newTestStore(t)
		team := &domain.Team{Name: "Sales"}
		require.NoError(t, store.Repos().Teams.Save(ctx, team))
		assert.NotEmpty(t, team.ID)

		got, err := store.Repos().Teams.Get(ctx, team.ID)
		require.NoError(t, err)
		assert.Equal(t, "Sales", got.Name)
	})

	t.Run("指定ID时不存在则插入存在则更新", func(t *testing.T) {
		store := newTestStore(t)
		persons := store.Repos().Persons

		p := &domain.Person{ID: "p-1", FirstName: "Jane", Email: "jane@client.com", Role: domain.RoleClient}
		require.NoError(t, persons.Save(ctx, p))

		p.LastName = "Doe"
		require.NoError(t, persons.Save(ctx, p))

		all, err := persons.Query(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "Jane Doe", all[0].FullName())
	})

	t.Run("只允许插入的实体重复保存返回ErrDuplicate", func(t *testing.T) {
		store := newTestStore(t)
		processed := store.Repos().Processed

		require.NoError(t, processed.Save(ctx, &domain.ProcessedMessage{ID: "sig", MessageID: "m1", Outcome: domain.OutcomeCreated}))
		err := processed.Save(ctx, &domain.ProcessedMessage{ID: "sig", MessageID: "m2", Outcome: domain.OutcomeReset})
		assert.ErrorIs(t, err, storage.ErrDuplicate)

		got, err := processed.Get(ctx, "sig")
		require.NoError(t, err)
		assert.Equal(t, "m1", got.MessageID)
	})

	t.Run("更新时清除跟进时间", func(t *testing.T) {
		store := newTestStore(t)
		team, msg, people := seed(t, store)
		inquiries := store.Repos().Inquiries

		due := testDate.AddDate(0, 0, 7)
		inquiry := &domain.Inquiry{OwnerID: team.ID, ClientID: people[0].ID, SourceID: msg.ID, Subject: msg.Subject, ReferenceDate: &due}
		require.NoError(t, inquiries.Save(ctx, inquiry))

		got, err := inquiries.Get(ctx, inquiry.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ReferenceDate)

		got.ResetReferenceDate()
		require.NoError(t, inquiries.Save(ctx, got))

		got, err = inquiries.Get(ctx, inquiry.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ReferenceDate)
		assert.True(t, got.IsOpen())
	})
}

func TestStore_Query(t *testing.T) {
	ctx := context.Background()

	t.Run("嵌套预加载来源邮件的发件人和有序收件人", func(t *testing.T) {
		store := newTestStore(t)
		team, msg, people := seed(t, store)
		require.NoError(t, store.Repos().Inquiries.Save(ctx, &domain.Inquiry{
			OwnerID: team.ID, ClientID: people[0].ID, SourceID: msg.ID, Subject: msg.Subject,
		}))

		all, err := store.Repos().Inquiries.Query(ctx,
			storage.PreloadClient, storage.PreloadSource, storage.PreloadSourceSender, storage.PreloadSourceRcpts)
		require.NoError(t, err)
		require.Len(t, all, 1)

		got := all[0]
		require.NotNil(t, got.Client)
		assert.Equal(t, "jane@client.com", got.Client.Email)
		require.NotNil(t, got.Source)
		require.NotNil(t, got.Source.Sender)
		assert.Equal(t, "jane@client.com", got.Source.Sender.Email)

		var receivers []string
		for _, p := range got.Source.Receivers() {
			receivers = append(receivers, p.Email)
		}
		assert.Equal(t, []string{"bob@company.com", "carol@company.com"}, receivers)
		assert.True(t, got.Source.Equivalent(msg), "读回的邮件签名不变")
	})

	t.Run("按条件下推过滤", func(t *testing.T) {
		store := newTestStore(t)
		_, msg, people := seed(t, store)

		found, err := store.Repos().Persons.Find(ctx, []storage.Cond[*domain.Person]{storage.PersonByEmail("Bob@Company.com")})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, people[1].ID, found[0].ID)

		messages, err := store.Repos().Messages.Find(ctx,
			[]storage.Cond[*domain.Message]{storage.MessageByFingerprint(msg.Signature())},
			storage.PreloadSender, storage.PreloadRecipients)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, msg.ID, messages[0].ID)
		assert.Len(t, messages[0].Receivers(), 2)

		none, err := store.Repos().Persons.Find(ctx, []storage.Cond[*domain.Person]{storage.PersonByEmail("nobody@x.com")})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("租户隔离条件由数据库过滤", func(t *testing.T) {
		store := newTestStore(t)
		team, msg, people := seed(t, store)
		other := &domain.Team{Name: "Support"}
		require.NoError(t, store.Repos().Teams.Save(ctx, other))

		for _, owner := range []string{team.ID, other.ID} {
			require.NoError(t, store.Repos().Inquiries.Save(ctx, &domain.Inquiry{
				OwnerID: owner, ClientID: people[0].ID, SourceID: msg.ID, Subject: msg.Subject,
			}))
		}

		scoped := storage.Scoped(store)
		items, err := scoped.Repos().Inquiries.Find(storage.WithTeam(ctx, other.ID),
			[]storage.Cond[*domain.Inquiry]{storage.InquiryByClient(people[0].ID)})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, other.ID, items[0].OwnerID)
		require.NotNil(t, items[0].Owner)
		assert.Equal(t, "Support", items[0].Owner.Name)

		all, err := scoped.Repos().Inquiries.Query(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("不存在的实体", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.Repos().Teams.Get(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestStore_WithinTx(t *testing.T) {
	ctx := context.Background()

	t.Run("返回错误时回滚", func(t *testing.T) {
		store := newTestStore(t)
		errBoom := errors.New("boom")

		err := store.WithinTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
			require.NoError(t, repos.Teams.Save(ctx, &domain.Team{Name: "Sales"}))
			require.NoError(t, repos.Processed.Save(ctx, &domain.ProcessedMessage{ID: "sig"}))
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)

		teams, err := store.Repos().Teams.Query(ctx)
		require.NoError(t, err)
		assert.Empty(t, teams)
		_, err = store.Repos().Processed.Get(ctx, "sig")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("重复标记使整个事务回滚", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Repos().Processed.Save(ctx, &domain.ProcessedMessage{ID: "sig"}))

		err := store.WithinTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
			if err := repos.Teams.Save(ctx, &domain.Team{Name: "Sales"}); err != nil {
				return err
			}
			return repos.Processed.Save(ctx, &domain.ProcessedMessage{ID: "sig"})
		})
		assert.ErrorIs(t, err, storage.ErrDuplicate)

		teams, err := store.Repos().Teams.Query(ctx)
		require.NoError(t, err)
		assert.Empty(t, teams)
	})

	t.Run("成功时提交", func(t *testing.T) {
		store := newTestStore(t)
		err := store.WithinTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
			return repos.Teams.Save(ctx, &domain.Team{Name: "Sales"})
		})
		require.NoError(t, err)

		teams, err := store.Repos().Teams.Query(ctx)
		require.NoError(t, err)
		assert.Len(t, teams, 1)
	})
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	team, msg, people := seed(t, store)

	inquiry := &domain.Inquiry{OwnerID: team.ID, ClientID: people[0].ID, SourceID: msg.ID, Subject: msg.Subject}
	require.NoError(t, store.Repos().Inquiries.Save(ctx, inquiry))

	require.NoError(t, store.Repos().Inquiries.Delete(ctx, inquiry))
	_, err := store.Repos().Inquiries.Get(ctx, inquiry.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.Repos().Inquiries.Delete(ctx, inquiry), storage.ErrNotFound)

	_, err = store.Repos().Teams.Get(ctx, team.ID)
	assert.NoError(t, err, "删除咨询不删除所属团队")
	assert.NoError(t, store.Health())
}
