package storage

import (
	"context"
	"errors"
	"fmt"

	"recruit-desk/internal/config"
	"recruit-desk/internal/logger"
)

// Storage 外部存储的集合。未配置或连接失败的组件为 nil，
// 调用方据此回退到内存实现。
type Storage struct {
	MinIO    *MinIO    // 转写归档
	RabbitMQ *RabbitMQ // 领域事件
	MySQL    *MySQL    // 持久作用域、搜索历史、发件箱
	Redis    *Redis    // 会话作用域
}

// connect 初始化一个可选组件。configured 为 false 时跳过，失败时记录到 errs。
func connect[T any](name string, configured bool, open func() (T, error), errs *[]error) (T, bool) {
	var zero T
	log := logger.Component("storage")
	if !configured {
		log.Info().Str("backend", name).Msg("未配置，跳过")
		return zero, false
	}
	v, err := open()
	if err != nil {
		log.Warn().Err(err).Str("backend", name).Msg("初始化失败")
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return zero, false
	}
	log.Info().Str("backend", name).Msg("已连接")
	return v, true
}

// NewStorage 按配置连接各组件。会话或持久后端被显式指定为 redis / mysql
// 而对应组件不可用时返回错误，其余失败只告警。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	s := &Storage{}
	var errs []error

	if v, ok := connect("minio", cfg.MinIO.Endpoint != "", func() (*MinIO, error) { return NewMinIO(&cfg.MinIO) }, &errs); ok {
		s.MinIO = v
	}
	if v, ok := connect("mysql", cfg.MySQL.Host != "", func() (*MySQL, error) { return NewMySQL(&cfg.MySQL) }, &errs); ok {
		s.MySQL = v
	}
	if v, ok := connect("redis", cfg.Redis.Address != "", func() (*Redis, error) { return NewRedisAdapter(&cfg.Redis) }, &errs); ok {
		s.Redis = v
	}
	if v, ok := connect("rabbitmq", cfg.RabbitMQ.URL != "", func() (*RabbitMQ, error) { return NewRabbitMQ(&cfg.RabbitMQ) }, &errs); ok {
		s.RabbitMQ = v
	}

	var missing error
	switch {
	case cfg.SessionStore.SessionBackend == "redis" && s.Redis == nil:
		missing = errors.New("会话后端为redis但Redis不可用")
	case cfg.SessionStore.DurableBackend == "mysql" && s.MySQL == nil:
		missing = errors.New("持久后端为mysql但MySQL不可用")
	}
	if missing != nil {
		s.Close()
		return nil, errors.Join(append([]error{missing}, errs...)...)
	}
	if len(errs) > 0 {
		logger.Warn().Err(errors.Join(errs...)).Msg("部分存储组件不可用，相关功能已降级")
	}
	return s, nil
}

// Close 关闭所有已连接的组件
func (s *Storage) Close() {
	if s == nil {
		return
	}
	var errs []error
	if s.RabbitMQ != nil {
		errs = append(errs, s.RabbitMQ.Close())
	}
	if s.MySQL != nil {
		errs = append(errs, s.MySQL.Close())
	}
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn().Err(err).Msg("关闭存储连接失败")
	}
}
