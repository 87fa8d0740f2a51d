package desk

import (
	"context"
	"sort"
	"sync"

	"recruit-desk/internal/storage"
	"recruit-desk/internal/types"
)

// SearchRepository 搜索历史的存储，*storage.SearchRecordRepo 实现了它。
// 记录不存在时返回 storage.ErrSearchNotFound。
type SearchRepository interface {
	Create(ctx context.Context, workspaceID string, rec types.SearchRecord) error
	List(ctx context.Context, workspaceID string, limit int) ([]types.SearchRecord, error)
	Get(ctx context.Context, workspaceID, searchID string) (types.SearchRecord, error)
	UpdateShortlisted(ctx context.Context, workspaceID, searchID string, count int) error
	Delete(ctx context.Context, workspaceID, searchID string) error
}

// MemorySearchRepo 进程内实现，未配置 MySQL 时使用
type MemorySearchRepo struct {
	mu      sync.RWMutex
	records map[string]map[string]types.SearchRecord
}

// NewMemorySearchRepo 创建内存仓库
func NewMemorySearchRepo() *MemorySearchRepo {
	return &MemorySearchRepo{records: make(map[string]map[string]types.SearchRecord)}
}

func (m *MemorySearchRepo) Create(_ context.Context, workspaceID string, rec types.SearchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.records[workspaceID]
	if !ok {
		ws = make(map[string]types.SearchRecord)
		m.records[workspaceID] = ws
	}
	ws[rec.SearchID] = rec
	return nil
}

func (m *MemorySearchRepo) List(_ context.Context, workspaceID string, limit int) ([]types.SearchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.SearchRecord, 0, len(m.records[workspaceID]))
	for _, rec := range m.records[workspaceID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SearchID > out[j].SearchID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemorySearchRepo) Get(_ context.Context, workspaceID, searchID string) (types.SearchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[workspaceID][searchID]
	if !ok {
		return types.SearchRecord{}, storage.ErrSearchNotFound
	}
	return rec, nil
}

func (m *MemorySearchRepo) UpdateShortlisted(_ context.Context, workspaceID, searchID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[workspaceID][searchID]
	if !ok {
		return storage.ErrSearchNotFound
	}
	rec.ShortlistedCount = count
	m.records[workspaceID][searchID] = rec
	return nil
}

func (m *MemorySearchRepo) Delete(_ context.Context, workspaceID, searchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[workspaceID][searchID]; !ok {
		return storage.ErrSearchNotFound
	}
	delete(m.records[workspaceID], searchID)
	return nil
}
