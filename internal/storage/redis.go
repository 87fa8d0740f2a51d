package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recruit-desk/internal/config"
	"recruit-desk/internal/tracing"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound 键不存在
var ErrNotFound = redis.Nil

var redisTracer = otel.Tracer("recruit-desk/storage/redis")

// Redis 会话数据的键值存储。每条命令由 redisotel 记录，
// 这里的 span 只在上游已采样时补充会话语义。
type Redis struct {
	client *redis.Client
}

func redisOptions(cfg *config.RedisConfig) *redis.Options {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return &redis.Options{
		Addr:            cfg.Address,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     sec(cfg.DialTimeoutSeconds),
		ReadTimeout:     sec(cfg.ReadTimeoutSeconds),
		WriteTimeout:    sec(cfg.WriteTimeoutSeconds),
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: ms(cfg.MinRetryBackoffMS),
		MaxRetryBackoff: ms(cfg.MaxRetryBackoffMS),
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}
}

// NewRedisAdapter 连接 Redis 并挂上 redisotel 钩子
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("Redis地址未配置")
	}

	client := redis.NewClient(redisOptions(cfg))
	if err := redisotel.InstrumentTracing(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis追踪钩子注册失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接Redis %s 失败: %w", cfg.Address, err)
	}
	return &Redis{client: client}, nil
}

// Close 关闭连接
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping 检查连接
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// observe 上游未采样时不建 span，返回的 finish 可以直接调用
func observe(ctx context.Context, command, key string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !trace.SpanContextFromContext(ctx).IsSampled() {
		return ctx, func(error) {}
	}
	ctx, span := redisTracer.Start(ctx, "Redis."+command, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(append([]attribute.KeyValue{
		semconv.DBSystemRedis,
		attribute.String("db.operation", command),
		tracing.String("db.redis.key", key, tracing.MaxRedisLength),
	}, attrs...)...)

	return ctx, func(err error) {
		defer span.End()
		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(err, redis.Nil):
			// 未命中是正常结果
			span.SetAttributes(attribute.Bool("db.redis.hit", false))
		default:
			tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		}
	}
}

// GetEx 读取并刷新过期时间，实现会话的滑动过期。键不存在时返回 ErrNotFound。
func (r *Redis) GetEx(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ctx, finish := observe(ctx, "GETEX", key)
	val, err := r.client.GetEx(ctx, key, ttl).Result()
	finish(err)
	return val, err
}

// Set 写入，ttl 为 0 表示不过期
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, finish := observe(ctx, "SET", key,
		attribute.Int("db.redis.value_length", len(value)),
		attribute.Int64("db.redis.ttl_ms", ttl.Milliseconds()),
	)
	err := r.client.Set(ctx, key, value, ttl).Err()
	finish(err)
	return err
}

// Del 删除，键不存在不算错误
func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, finish := observe(ctx, "DEL", keys[0], attribute.Int("db.redis.key_count", len(keys)))
	err := r.client.Del(ctx, keys...).Err()
	finish(err)
	return err
}
