// Package memory 提供基于内存的存储实现，用于开发环境和测试。
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"clientmanager/backend/internal/domain"
	"clientmanager/backend/internal/storage"
)

// table 单个实体类型的内存表，保持插入顺序
type table[T domain.Entity] struct {
	mu    sync.RWMutex
	order []string
	rows  map[string]T
}

func newTable[T domain.Entity]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

// journal 事务内的撤销日志
type journal struct {
	undo []func()
}

func (j *journal) record(fn func()) {
	if j != nil {
		j.undo = append(j.undo, fn)
	}
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
}

// repository 绑定到某张表的仓储；journal 非空时记录撤销操作
type repository[T domain.Entity] struct {
	table   *table[T]
	journal *journal
}

func (r *repository[T]) Query(_ context.Context, _ ...string) ([]T, error) {
	r.table.mu.RLock()
	defer r.table.mu.RUnlock()

	out := make([]T, 0, len(r.table.order))
	for _, id := range r.table.order {
		out = append(out, r.table.rows[id])
	}
	return out, nil
}

func (r *repository[T]) Find(_ context.Context, conds []storage.Cond[T], _ ...string) ([]T, error) {
	r.table.mu.RLock()
	defer r.table.mu.RUnlock()

	out := make([]T, 0)
	for _, id := range r.table.order {
		if item := r.table.rows[id]; storage.Matches(item, conds) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *repository[T]) Get(_ context.Context, id string, _ ...string) (T, error) {
	r.table.mu.RLock()
	defer r.table.mu.RUnlock()

	item, ok := r.table.rows[id]
	if !ok {
		var zero T
		return zero, storage.ErrNotFound
	}
	return item, nil
}

func (r *repository[T]) Save(_ context.Context, entity T) error {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	if entity.GetID() == "" {
		entity.SetID(uuid.NewString())
	}
	id := entity.GetID()

	if prev, exists := r.table.rows[id]; exists {
		if _, ok := any(entity).(domain.AppendOnly); ok {
			return storage.ErrDuplicate
		}
		r.table.rows[id] = entity
		r.journal.record(func() { r.restore(id, prev) })
		return nil
	}

	r.table.rows[id] = entity
	r.table.order = append(r.table.order, id)
	r.journal.record(func() { r.remove(id) })
	return nil
}

func (r *repository[T]) Delete(_ context.Context, entity T) error {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	id := entity.GetID()
	prev, ok := r.table.rows[id]
	if !ok {
		return storage.ErrNotFound
	}
	idx := r.table.indexOf(id)
	r.table.removeAt(idx)
	r.journal.record(func() { r.insertAt(idx, id, prev) })
	return nil
}

// 以下撤销函数在 rollback 中调用，自行加锁

func (r *repository[T]) restore(id string, prev T) {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	r.table.rows[id] = prev
}

func (r *repository[T]) remove(id string) {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	if idx := r.table.indexOf(id); idx >= 0 {
		r.table.removeAt(idx)
	}
}

func (r *repository[T]) insertAt(idx int, id string, item T) {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	if idx < 0 || idx > len(r.table.order) {
		idx = len(r.table.order)
	}
	r.table.order = append(r.table.order, "")
	copy(r.table.order[idx+1:], r.table.order[idx:])
	r.table.order[idx] = id
	r.table.rows[id] = item
}

func (t *table[T]) indexOf(id string) int {
	for i, v := range t.order {
		if v == id {
			return i
		}
	}
	return -1
}

func (t *table[T]) removeAt(idx int) {
	if idx < 0 {
		return
	}
	delete(t.rows, t.order[idx])
	t.order = append(t.order[:idx], t.order[idx+1:]...)
}

// Store 内存存储。
//
// 事务通过互斥锁串行执行；失败时按撤销日志回滚插入、更新和删除。
// 更新实体时回滚只能恢复原指针，调用方在事务内原地修改的字段不会被还原。
type Store struct {
	txMu      sync.Mutex
	teams     *table[*domain.Team]
	persons   *table[*domain.Person]
	users     *table[*domain.User]
	messages  *table[*domain.Message]
	inquiries *table[*domain.Inquiry]
	comments  *table[*domain.Comment]
	tags      *table[*domain.Tag]
	processed *table[*domain.ProcessedMessage]
}

// NewStore 创建一个空的内存存储实例
func NewStore() *Store {
	return &Store{
		teams:     newTable[*domain.Team](),
		persons:   newTable[*domain.Person](),
		users:     newTable[*domain.User](),
		messages:  newTable[*domain.Message](),
		inquiries: newTable[*domain.Inquiry](),
		comments:  newTable[*domain.Comment](),
		tags:      newTable[*domain.Tag](),
		processed: newTable[*domain.ProcessedMessage](),
	}
}

func (s *Store) repos(j *journal) storage.Repositories {
	return storage.Repositories{
		Teams:     &repository[*domain.Team]{table: s.teams, journal: j},
		Persons:   &repository[*domain.Person]{table: s.persons, journal: j},
		Users:     &repository[*domain.User]{table: s.users, journal: j},
		Messages:  &repository[*domain.Message]{table: s.messages, journal: j},
		Inquiries: &repository[*domain.Inquiry]{table: s.inquiries, journal: j},
		Comments:  &repository[*domain.Comment]{table: s.comments, journal: j},
		Tags:      &repository[*domain.Tag]{table: s.tags, journal: j},
		Processed: &repository[*domain.ProcessedMessage]{table: s.processed, journal: j},
	}
}

// Repos 返回不在事务内的仓储
func (s *Store) Repos() storage.Repositories {
	return s.repos(nil)
}

// WithinTx 串行执行 fn，fn 返回错误或 panic 时回滚
func (s *Store) WithinTx(ctx context.Context, fn storage.TxFunc) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	defer func() {
		if r := recover(); r != nil {
			j.rollback()
			panic(r)
		}
		if err != nil {
			j.rollback()
		}
	}()

	return fn(ctx, s.repos(j))
}

// Health 内存存储始终可用
func (s *Store) Health() error { return nil }

// Close 内存存储无需释放资源
func (s *Store) Close() error { return nil }
