package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"recruit-desk/internal/constants"
	"recruit-desk/internal/storage"

	"github.com/tidwall/gjson"
)

// MemoryBackend 进程内实现
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend 创建内存后端
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryBackend) Put(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// RedisBackend 会话作用域，每次读取刷新过期时间
type RedisBackend struct {
	redis       *storage.Redis
	workspaceID string
	ttl         time.Duration
}

// NewRedisBackend 创建 Redis 会话后端
func NewRedisBackend(r *storage.Redis, workspaceID string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{redis: r, workspaceID: workspaceID, ttl: ttl}
}

func (b *RedisBackend) key(entry string) string {
	return fmt.Sprintf(constants.KeySessionEntry, b.workspaceID, entry)
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.redis.GetEx(ctx, b.key(key), b.ttl)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

func (b *RedisBackend) Put(ctx context.Context, key string, payload []byte) error {
	return b.redis.Set(ctx, b.key(key), string(payload), b.ttl)
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.redis.Del(ctx, b.key(key))
}

// MySQLBackend 持久作用域，写入 workspace_entries 表
type MySQLBackend struct {
	mysql       *storage.MySQL
	workspaceID string
}

// NewMySQLBackend 创建 MySQL 持久后端
func NewMySQLBackend(m *storage.MySQL, workspaceID string) *MySQLBackend {
	return &MySQLBackend{mysql: m, workspaceID: workspaceID}
}

func (b *MySQLBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return b.mysql.GetWorkspaceEntry(ctx, b.workspaceID, key)
}

// Put 把信封里的版本号冗余存到单独的列，方便按版本清理
func (b *MySQLBackend) Put(ctx context.Context, key string, payload []byte) error {
	version := int(gjson.GetBytes(payload, "schema_version").Int())
	return b.mysql.PutWorkspaceEntry(ctx, b.workspaceID, key, version, payload)
}

func (b *MySQLBackend) Delete(ctx context.Context, key string) error {
	return b.mysql.DeleteWorkspaceEntry(ctx, b.workspaceID, key)
}
