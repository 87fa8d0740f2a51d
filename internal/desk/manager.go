// Package desk 按会话组装工作区：状态仓库、搜索缓存、跟踪同步、排期和转写，
// 并提供 HTTP 层使用的业务操作。
package desk

import (
	"context"
	"strings"
	"sync"
	"time"

	"recruit-desk/internal/constants"
	"recruit-desk/internal/logger"
	"recruit-desk/internal/outbox"
	"recruit-desk/internal/persist"
	"recruit-desk/internal/reconciler"
	"recruit-desk/internal/scheduling"
	"recruit-desk/internal/searchcache"
	"recruit-desk/internal/state"
	"recruit-desk/internal/transcript"
	"recruit-desk/internal/types"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Collaborators 工作区用到的全部远端操作，*collaborator.Client 实现了它
type Collaborators interface {
	reconciler.TrackingSource
	scheduling.MeetingClient
	transcript.Source
	Match(ctx context.Context, jobDescription string) ([]types.MatchProfile, error)
	GenerateQuestions(ctx context.Context, jobDescription, profileSummary string) (string, error)
}

// Config 工作区参数
type Config struct {
	Scheduling           scheduling.Config
	CacheTTL             time.Duration
	CachePersistKey      string
	ReconcileConcurrency int
	EventLogSize         int
	HistoryLimit         int
	// IdleTimeout 闲置超过该时长的工作区从内存中释放，持久作用域里的数据不受影响
	IdleTimeout          time.Duration
	// MaxWorkspaces 内存中最多保留的工作区数量
	MaxWorkspaces        int
}

const (
	defaultIdleTimeout   = 30 * time.Minute
	defaultMaxWorkspaces = 1000
)

// Deps Manager 的依赖。Archive 和 Events 可以为 nil。
type Deps struct {
	Collaborators Collaborators
	Scopes        persist.Factory
	Searches      SearchRepository
	Archive       transcript.Archive
	Events        outbox.Writer
	Now           func() time.Time
}

// Manager 按会话 ID 懒加载工作区，闲置的工作区会被释放
type Manager struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger

	mu         sync.Mutex
	workspaces map[string]*loaded
	opening    singleflight.Group
}

type loaded struct {
	ws         *Workspace
	lastAccess time.Time
}

// NewManager 创建工作区管理器
func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Scopes == nil {
		deps.Scopes = persist.MemoryFactory()
	}
	if deps.Searches == nil {
		deps.Searches = NewMemorySearchRepo()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.MaxWorkspaces <= 0 {
		cfg.MaxWorkspaces = defaultMaxWorkspaces
	}
	return &Manager{
		deps:       deps,
		cfg:        cfg,
		log:        logger.Component("desk"),
		workspaces: make(map[string]*loaded),
	}
}

// Workspace 返回会话对应的工作区，不存在时创建并从持久作用域恢复。
// 恢复过程的 I/O 不持有 m.mu，同一会话的并发请求只恢复一次。
func (m *Manager) Workspace(ctx context.Context, sessionID string) *Workspace {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		id = constants.DefaultWorkspace
	}
	if ws, ok := m.touch(id); ok {
		return ws
	}

	v, _, _ := m.opening.Do(id, func() (any, error) {
		if ws, ok := m.touch(id); ok {
			return ws, nil
		}
		ws := m.open(context.WithoutCancel(ctx), id)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.workspaces[id] = &loaded{ws: ws, lastAccess: m.deps.Now()}
		m.evictLocked()
		return ws, nil
	})
	return v.(*Workspace)
}

// touch 命中时刷新访问时间
func (m *Manager) touch(id string) (*Workspace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.workspaces[id]
	if !ok {
		return nil, false
	}
	l.lastAccess = m.deps.Now()
	return l.ws, true
}

// EvictIdle 释放闲置超时的工作区，返回释放的数量
func (m *Manager) EvictIdle() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictLocked()
}

// RunEviction 定期释放闲置工作区，直到 ctx 结束
func (m *Manager) RunEviction(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EvictIdle()
		}
	}
}

// evictLocked 先按闲置时间释放，仍超过上限时释放最久未访问的
func (m *Manager) evictLocked() int {
	now := m.deps.Now()
	evicted := 0
	for id, l := range m.workspaces {
		if now.Sub(l.lastAccess) > m.cfg.IdleTimeout {
			delete(m.workspaces, id)
			evicted++
		}
	}
	for len(m.workspaces) > m.cfg.MaxWorkspaces {
		var oldestID string
		var oldest time.Time
		for id, l := range m.workspaces {
			if oldestID == "" || l.lastAccess.Before(oldest) {
				oldestID, oldest = id, l.lastAccess
			}
		}
		delete(m.workspaces, oldestID)
		evicted++
	}
	if evicted > 0 {
		m.log.Info().Int("evicted", evicted).Int("remaining", len(m.workspaces)).Msg("释放闲置工作区")
	}
	return evicted
}

// Len 已加载的工作区数量
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workspaces)
}

func (m *Manager) open(ctx context.Context, id string) *Workspace {
	log := m.log.With().Str("workspace", id).Logger()
	scopes := m.deps.Scopes(id)
	store := state.New()

	cache, err := searchcache.Load(ctx, scopes.Durable, searchcache.Options{
		TTL:        m.cfg.CacheTTL,
		PersistKey: m.cfg.CachePersistKey,
		Now:        m.deps.Now,
	})
	if err != nil {
		log.Warn().Err(err).Msg("恢复搜索缓存失败，使用空缓存")
	}

	schedCfg := m.cfg.Scheduling
	schedCfg.WorkspaceID = id

	ws := &Workspace{
		id:       id,
		collab:   m.deps.Collaborators,
		scopes:   scopes,
		searches: m.deps.Searches,
		events:   m.deps.Events,
		store:    store,
		cache:    cache,
		tracker: reconciler.New(m.deps.Collaborators, store,
			reconciler.WithClock(m.deps.Now),
			reconciler.WithConcurrency(m.cfg.ReconcileConcurrency)),
		scheduler:    scheduling.New(m.deps.Collaborators, store, m.deps.Events, schedCfg).WithClock(m.deps.Now),
		transcripts:  transcript.New(m.deps.Collaborators, scopes.Session, m.deps.Archive, m.deps.Events, id),
		eventLog:     newEventLog(m.cfg.EventLogSize, m.deps.Now),
		now:          m.deps.Now,
		historyLimit: m.cfg.HistoryLimit,
		log:          log,
	}
	store.Subscribe(ws.eventLog.observe)

	var saved []types.Profile
	if ok, err := scopes.Durable.Load(ctx, constants.EntrySavedProfiles, &saved); err != nil {
		log.Warn().Err(err).Msg("恢复收藏失败")
	} else if ok {
		store.SetSavedProfiles(saved)
	}
	if history, err := m.deps.Searches.List(ctx, id, m.cfg.HistoryLimit); err != nil {
		log.Warn().Err(err).Msg("恢复搜索历史失败")
	} else if len(history) > 0 {
		store.SetSearchHistory(history)
	}

	log.Info().Msg("工作区已创建")
	return ws
}
