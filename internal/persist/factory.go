package persist

import (
	"fmt"
	"sync"
	"time"

	"recruit-desk/internal/config"
	"recruit-desk/internal/storage"
)

// MemoryFactory 返回内存实现的 Factory，同一工作区多次调用得到同一份数据
func MemoryFactory() Factory {
	var mu sync.Mutex
	workspaces := make(map[string]Scopes)
	return func(workspaceID string) Scopes {
		mu.Lock()
		defer mu.Unlock()
		if s, ok := workspaces[workspaceID]; ok {
			return s
		}
		s := Scopes{
			Session: NewStore(NewMemoryBackend(), "session"),
			Durable: NewStore(NewMemoryBackend(), "durable"),
		}
		workspaces[workspaceID] = s
		return s
	}
}

// NewFactory 按配置选择后端。未选择外部后端的作用域退回内存实现。
func NewFactory(cfg config.SessionStoreConfig, st *storage.Storage) (Factory, error) {
	memory := MemoryFactory()
	ttl := config.GetDuration(cfg.SessionTTL, 12*time.Hour)

	var redis *storage.Redis
	var mysql *storage.MySQL
	if st != nil {
		redis = st.Redis
		mysql = st.MySQL
	}

	switch cfg.SessionBackend {
	case "", "memory":
	case "redis":
		if redis == nil {
			return nil, fmt.Errorf("session: %w", ErrBackendUnavailable)
		}
	default:
		return nil, fmt.Errorf("未知的会话后端: %s", cfg.SessionBackend)
	}
	switch cfg.DurableBackend {
	case "", "memory":
	case "mysql":
		if mysql == nil {
			return nil, fmt.Errorf("durable: %w", ErrBackendUnavailable)
		}
	default:
		return nil, fmt.Errorf("未知的持久后端: %s", cfg.DurableBackend)
	}

	return func(workspaceID string) Scopes {
		scopes := memory(workspaceID)
		if cfg.SessionBackend == "redis" {
			scopes.Session = NewStore(NewRedisBackend(redis, workspaceID, ttl), "session")
		}
		if cfg.DurableBackend == "mysql" {
			scopes.Durable = NewStore(NewMySQLBackend(mysql, workspaceID), "durable")
		}
		return scopes
	}, nil
}
