// Package outbox 实现发件箱模式：业务操作把领域事件写入 outbox 表，中继异步发布到 RabbitMQ
package outbox

import (
	"context"
	"time"

	"recruit-desk/internal/logger"
	"recruit-desk/internal/storage/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	maxRetryCount          = 5 // 达到后标记为 FAILED，不再重试
)

// Publisher 消息发布器，*storage.RabbitMQ 实现了该接口
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
}

// MessageRelay 轮询 outbox 表并将消息发布到消息代理。
type MessageRelay struct {
	db              *gorm.DB
	publisher       Publisher
	log             zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{}
	stopped         chan struct{}
	tracer          trace.Tracer
}

// NewMessageRelay 创建中继。interval 或 batchSize 非正时使用默认值
func NewMessageRelay(db *gorm.DB, publisher Publisher, interval time.Duration, batchSize int) *MessageRelay {
	if interval <= 0 {
		interval = defaultPollingInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &MessageRelay{
		db:              db,
		publisher:       publisher,
		log:             logger.Component("outbox-relay"),
		pollingInterval: interval,
		batchSize:       batchSize,
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
		tracer:          otel.Tracer("recruit-desk/outbox"),
	}
}

// Start 在后台开始轮询，ctx 取消或调用 Stop 后退出
func (r *MessageRelay) Start(ctx context.Context) {
	r.log.Info().Dur("interval", r.pollingInterval).Int("batch_size", r.batchSize).Msg("MessageRelay starting...")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		defer close(r.stopped)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				r.log.Info().Msg("MessageRelay stopped.")
				return
			case <-ctx.Done():
				r.log.Info().Msg("MessageRelay context cancelled.")
				return
			case <-ticker.C:
				if err := r.processPendingMessages(ctx); err != nil {
					r.log.Error().Err(err).Msg("处理发件箱消息失败")
				}
			}
		}
	}()
}

// Stop 停止中继并等待当前批次结束
func (r *MessageRelay) Stop() {
	r.log.Info().Msg("MessageRelay stopping...")
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	<-r.stopped
}

// processPendingMessages 获取并处理一批待发布消息。
// 空轮询不创建 Span。
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	// SKIP LOCKED 允许多个实例并行中继
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		r.log.Error().Err(err).Msg("查询待发布消息失败")
		return err
	}
	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))),
	)
	defer span.End()

	r.log.Debug().Int("count", len(messages)).Msg("获取到待发布消息")
	r.publishBatch(ctx, messages)

	for i := range messages {
		if err := tx.Save(&messages[i]).Error; err != nil {
			// 回滚后这批消息保持 PENDING，下次轮询重新拾取
			r.log.Error().Err(err).Uint64("id", messages[i].ID).Msg("更新发件箱消息失败")
			return err
		}
	}
	return tx.Commit().Error
}

// publishBatch 逐条发布并原地更新状态
func (r *MessageRelay) publishBatch(ctx context.Context, messages []models.OutboxMessage) {
	for i := range messages {
		msg := &messages[i]
		err := r.publisher.PublishMessage(ctx, msg.Exchange, msg.RoutingKey, []byte(msg.Payload), true)
		if err != nil {
			msg.Attempts++
			msg.LastError = err.Error()
			if msg.Attempts >= maxRetryCount {
				msg.Status = models.OutboxStatusFailed
			}
			r.log.Warn().Err(err).
				Uint64("id", msg.ID).
				Str("event_id", msg.EventID).
				Str("aggregate_id", msg.AggregateID).
				Int("attempts", msg.Attempts).
				Msg("发布消息失败")
			continue
		}
		now := time.Now()
		msg.Status = models.OutboxStatusSent
		msg.ProcessedAt = &now
		msg.LastError = ""
	}
}
