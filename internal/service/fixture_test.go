package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clientmanager/backend/internal/domain"
	"clientmanager/backend/internal/inbound"
	"clientmanager/backend/internal/parser"
	"clientmanager/backend/internal/storage"
	"clientmanager/backend/internal/storage/memory"
)

var baseDate = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// fixture 一个团队 Sales，员工 bob@company.com 是该团队的用户
type fixture struct {
	store     *storage.ScopedStore
	team      *domain.Team
	employee  *domain.Person
	user      *domain.User
	converter *MessageConverter
	matcher   *InquiryMatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.Scoped(memory.NewStore())
	f := &fixture{store: store}
	f.team = f.addTeam(t, "Sales")
	f.employee, f.user = f.addUser(t, "Bob Smith", "bob@company.com", f.team)

	registry, err := parser.NewRegistry(nil)
	require.NoError(t, err)
	f.converter = NewMessageConverter(store, registry, domain.RoleClient, nil)
	f.matcher = NewInquiryMatcher(store, nil, nil)
	return f
}

func (f *fixture) addTeam(t *testing.T, name string) *domain.Team {
	t.Helper()
	team := &domain.Team{Name: name}
	require.NoError(t, f.store.Repos().Teams.Save(context.Background(), team))
	return team
}

func (f *fixture) addUser(t *testing.T, name, email string, team *domain.Team) (*domain.Person, *domain.User) {
	t.Helper()
	ctx := context.Background()
	repos := f.store.Repos()

	person := domain.NewPerson(name, email, domain.RoleEmployee, baseDate)
	require.NoError(t, repos.Persons.Save(ctx, person))

	user := &domain.User{
		PersonID:      person.ID,
		RelatedPerson: person,
		CurrentTeamID: team.ID,
		CurrentTeam:   team,
		Teams:         []*domain.Team{team},
	}
	require.NoError(t, repos.Users.Save(ctx, user))
	return person, user
}

// persist 转换并以 team 为所属团队保存邮件
func (f *fixture) persist(t *testing.T, raw *inbound.RawMessage, team *domain.Team) *domain.Message {
	t.Helper()
	ctx := context.Background()

	msg, err := f.converter.Convert(ctx, raw)
	require.NoError(t, err)
	msg.AssignOwner(team)
	require.NoError(t, f.store.Repos().Messages.Save(ctx, msg))
	return msg
}

func (f *fixture) inquiries(t *testing.T) []*domain.Inquiry {
	t.Helper()
	all, err := f.store.Repos().Inquiries.Query(context.Background())
	require.NoError(t, err)
	return all
}

func (f *fixture) persons(t *testing.T) []*domain.Person {
	t.Helper()
	all, err := f.store.Repos().Persons.Query(context.Background())
	require.NoError(t, err)
	return all
}

func rawMessage(id, from, subject, body string, date time.Time, to ...string) *inbound.RawMessage {
	receivers := make([]inbound.Address, 0, len(to))
	for _, addr := range to {
		receivers = append(receivers, inbound.Address{Email: addr})
	}
	return &inbound.RawMessage{
		ID:        id,
		Subject:   subject,
		Body:      body,
		Date:      date,
		Sender:    inbound.Address{Name: "Jane Doe", Email: from},
		Receivers: receivers,
	}
}

// MockLocker 模拟跨进程锁
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockLocker) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
