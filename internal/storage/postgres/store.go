// Package postgres 基于 GORM 的关系型存储实现，支持 PostgreSQL 和 MySQL。
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"clientmanager/backend/internal/config"
	"clientmanager/backend/internal/domain"
	"clientmanager/backend/internal/storage"
)

// Repository 泛型 GORM 仓储，E 为实体结构体，P 为其指针类型
type Repository[E any, P interface {
	*E
	domain.Entity
}] struct {
	db *gorm.DB
}

func newRepository[E any, P interface {
	*E
	domain.Entity
}](db *gorm.DB) *Repository[E, P] {
	return &Repository[E, P]{db: db}
}

// Query 按创建时间顺序返回全部实体
func (r *Repository[E, P]) Query(ctx context.Context, preload ...string) ([]P, error) {
	return r.Find(ctx, nil, preload...)
}

// Find 将条件转换为 WHERE 子句，按创建时间顺序返回匹配的实体
func (r *Repository[E, P]) Find(ctx context.Context, conds []storage.Cond[P], preload ...string) ([]P, error) {
	db := withPreload(r.db.WithContext(ctx), preload)
	for _, c := range conds {
		db = db.Where(clause.Eq{Column: clause.Column{Name: c.Column}, Value: c.Value})
	}

	var rows []E
	if err := db.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}

	out := make([]P, len(rows))
	for i := range rows {
		out[i] = P(&rows[i])
	}
	return out, nil
}

// Get 根据主键获取实体
func (r *Repository[E, P]) Get(ctx context.Context, id string, preload ...string) (P, error) {
	var row E
	if err := withPreload(r.db.WithContext(ctx), preload).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return P(&row), nil
}

// Save 没有 ID 或只允许插入的实体执行 INSERT，其余执行 UPSERT
func (r *Repository[E, P]) Save(ctx context.Context, entity P) error {
	db := r.db.WithContext(ctx)
	if entity.GetID() == "" {
		entity.SetID(uuid.NewString())
		return mapError(db.Create(entity).Error)
	}
	if _, ok := any(entity).(domain.AppendOnly); ok {
		return mapError(db.Create(entity).Error)
	}
	return mapError(db.Save(entity).Error)
}

// Delete 删除实体及其一对多、多对多关联
func (r *Repository[E, P]) Delete(ctx context.Context, entity P) error {
	result := r.db.WithContext(ctx).Select(clause.Associations).Delete(entity)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func withPreload(db *gorm.DB, preload []string) *gorm.DB {
	for _, p := range preload {
		db = db.Preload(p)
	}
	return db
}

// mapError 将 GORM 错误转换为存储层错误
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	default:
		return err
	}
}

// PoolConfig 连接池参数
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store GORM 存储实现
type Store struct {
	db *gorm.DB
}

// Open 按配置选择 PostgreSQL 或 MySQL 并建立连接
func Open(cfg *config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	store, err := NewStoreWithDialector(dialector, PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := store.Migrate(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return store, nil
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, pool PoolConfig) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	return &Store{db: db}, nil
}

// Migrate 自动迁移数据库表结构
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.Team{},
		&domain.Person{},
		&domain.User{},
		&domain.Message{},
		&domain.MessageRecipient{},
		&domain.Tag{},
		&domain.Inquiry{},
		&domain.Comment{},
		&domain.ProcessedMessage{},
	)
}

func repositoriesFor(db *gorm.DB) storage.Repositories {
	return storage.Repositories{
		Teams:     newRepository[domain.Team](db),
		Persons:   newRepository[domain.Person](db),
		Users:     newRepository[domain.User](db),
		Messages:  newRepository[domain.Message](db),
		Inquiries: newRepository[domain.Inquiry](db),
		Comments:  newRepository[domain.Comment](db),
		Tags:      newRepository[domain.Tag](db),
		Processed: newRepository[domain.ProcessedMessage](db),
	}
}

// Repos 返回不在事务内的仓储
func (s *Store) Repos() storage.Repositories {
	return repositoriesFor(s.db)
}

// WithinTx 在数据库事务内执行 fn
func (s *Store) WithinTx(ctx context.Context, fn storage.TxFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, repositoriesFor(tx))
	})
}

// Health 检查数据库连接
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
