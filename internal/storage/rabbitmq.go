package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"recruit-desk/internal/config"
	"recruit-desk/internal/logger"
	"recruit-desk/internal/tracing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var rabbitTracer = otel.Tracer("recruit-desk/storage/rabbitmq")

// ErrPublishNacked broker 拒绝了消息，发件箱应保留并重试
var ErrPublishNacked = errors.New("broker未确认消息")

// RabbitMQ 领域事件发布。所有通道都开启 publisher confirm，
// PublishMessage 在 broker 确认之后才返回。
type RabbitMQ struct {
	conn     *amqp.Connection
	channels sync.Pool
	cfg      *config.RabbitMQConfig
	log      zerolog.Logger

	exchangeMu sync.Mutex
	exchanges  map[string]bool // 已声明的 exchange
}

// NewRabbitMQ 连接 broker 并声明事件交换机
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	mq := &RabbitMQ{
		conn:      conn,
		cfg:       cfg,
		log:       logger.Component("rabbitmq"),
		exchanges: make(map[string]bool),
	}
	if err := mq.EnsureExchange(cfg.EventsExchange, amqp.ExchangeTopic, true); err != nil {
		conn.Close()
		return nil, err
	}
	mq.log.Info().Str("exchange", cfg.EventsExchange).Msg("成功连接到RabbitMQ服务器")
	return mq, nil
}

// openChannel 新建一个 confirm 模式的通道
func (r *RabbitMQ) openChannel() (*amqp.Channel, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("创建RabbitMQ通道失败: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("开启publisher confirm失败: %w", err)
	}
	return ch, nil
}

// getChannel 优先复用池中未关闭的通道
func (r *RabbitMQ) getChannel() (*amqp.Channel, error) {
	for {
		ch, ok := r.channels.Get().(*amqp.Channel)
		if !ok {
			return r.openChannel()
		}
		if !ch.IsClosed() {
			return ch, nil
		}
	}
}

func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil && !ch.IsClosed() {
		r.channels.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureExchange 声明 exchange，同一进程内只声明一次
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	if exchangeName == "amq.default" || exchangeName == "default" {
		return fmt.Errorf("不能声明默认交换机 '%s'", exchangeName)
	}

	r.exchangeMu.Lock()
	defer r.exchangeMu.Unlock()
	if r.exchanges[exchangeName] {
		return nil
	}

	ch, err := r.getChannel()
	if err != nil {
		return err
	}
	defer r.putChannel(ch)

	if err := ch.ExchangeDeclare(exchangeName, exchangeType, durable, false, false, false, nil); err != nil {
		return fmt.Errorf("声明exchange失败: %w", err)
	}
	r.exchanges[exchangeName] = true
	return nil
}

// PublishMessage 发布一条事件并等待 broker 确认。message 是 EventMessage 的 JSON，
// 其中的 event_id 用作 AMQP MessageId 便于消费方去重。
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	eventID := gjson.GetBytes(message, "event_id").String()

	ctx, span := rabbitTracer.Start(ctx, "RabbitMQ.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination.name", exchangeName),
		attribute.String("messaging.rabbitmq.routing_key", routingKey),
		attribute.String("messaging.message.id", eventID),
		attribute.Int("messaging.message.body.size", len(message)),
	)

	ch, err := r.getChannel()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		return err
	}
	defer r.putChannel(ch)

	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.PublishTimeoutSeconds)*time.Second)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		DeliveryMode: deliveryMode,
		ContentType:  "application/json",
		MessageId:    eventID,
		Type:         routingKey,
		Body:         message,
		Timestamp:    time.Now(),
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		return fmt.Errorf("发布消息失败: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		// 通道状态不确定，不再放回池里
		ch.Close()
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		return fmt.Errorf("等待broker确认失败: %w", err)
	}
	if !acked {
		tracing.RecordRabbitMQNack(span, eventID)
		return fmt.Errorf("%w: %s", ErrPublishNacked, eventID)
	}
	return nil
}
