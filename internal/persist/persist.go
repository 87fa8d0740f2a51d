// Package persist 提供会话 / 持久两个作用域的本地 JSON 存储。
// 存储内容只是建议性缓存，后端记录始终优先。
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"recruit-desk/internal/logger"
)

// SchemaVersion 当前写入的数据格式版本
const SchemaVersion = 1

// Backend 原始字节的键值存储，键在一个工作区内唯一
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

// envelope 落盘格式
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

// Store 在 Backend 之上做信封编解码
type Store struct {
	backend Backend
	scope   string
}

// NewStore 创建存储，scope 仅用于日志
func NewStore(backend Backend, scope string) *Store {
	return &Store{backend: backend, scope: scope}
}

// Load 读取 key 并解码到 dest。
// 不存在、格式损坏或版本比当前新时返回 false 且不报错，调用方按缺失处理。
func (s *Store) Load(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("读取 %s/%s 失败: %w", s.scope, key, err)
	}
	if !ok {
		return false, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("scope", s.scope).Str("key", key).Msg("本地数据格式损坏，按缺失处理")
		return false, nil
	}
	if env.SchemaVersion > SchemaVersion {
		logger.Ctx(ctx).Warn().
			Int("schema_version", env.SchemaVersion).
			Str("scope", s.scope).
			Str("key", key).
			Msg("本地数据版本较新，忽略")
		return false, nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("scope", s.scope).Str("key", key).Msg("本地数据无法解码，按缺失处理")
		return false, nil
	}
	return true, nil
}

// Save 编码并写入 value
func (s *Store) Save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化 %s 失败: %w", key, err)
	}
	raw, err := json.Marshal(envelope{SchemaVersion: SchemaVersion, Data: data})
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("写入 %s/%s 失败: %w", s.scope, key, err)
	}
	return nil
}

// Remove 删除 key，不存在不算错误
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("删除 %s/%s 失败: %w", s.scope, key, err)
	}
	return nil
}

// Scopes 一个工作区的两个存储作用域
type Scopes struct {
	// Session 随会话过期，对应浏览器的 sessionStorage
	Session *Store
	// Durable 长期保存，对应 localStorage
	Durable *Store
}

// Factory 为工作区创建存储作用域
type Factory func(workspaceID string) Scopes

// ErrBackendUnavailable 选择的后端没有可用连接
var ErrBackendUnavailable = errors.New("存储后端不可用")
