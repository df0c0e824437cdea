package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockNotAcquired 锁已被其他进程持有
var ErrLockNotAcquired = errors.New("lock not acquired")

const lockPrefix = "clientmanager:lock:"

// releaseScript 只删除自己持有的锁
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 SET NX PX 的分布式锁，用于防止多个实例同时处理同一封邮件
type Locker struct {
	client *Client
	ttl    time.Duration

	mu     sync.Mutex
	tokens map[string]string // key -> 本进程持有的 token
}

// NewLocker 创建分布式锁
//
// 参数:
//   - client: Redis 客户端
//   - ttl: 锁过期时间，进程崩溃时锁在过期后自动释放
func NewLocker(client *Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Locker{client: client, ttl: ttl, tokens: make(map[string]string)}
}

// Acquire 获取锁，锁已被持有时返回 ErrLockNotAcquired
func (l *Locker) Acquire(ctx context.Context, key string) error {
	token := uuid.NewString()
	ok, err := l.client.rdb.SetNX(ctx, lockKey(key), token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return nil
}

// Release 释放本进程持有的锁，锁已过期或不属于本进程时忽略
func (l *Locker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client.rdb, []string{lockKey(key)}, token).Err(); err != nil {
		l.client.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

func lockKey(key string) string {
	return lockPrefix + key
}
