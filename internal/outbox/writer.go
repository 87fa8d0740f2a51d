package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"recruit-desk/internal/storage"
	"recruit-desk/internal/storage/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event 一条待发布的领域事件，Type 同时用作路由键
type Event struct {
	AggregateID string
	WorkspaceID string
	Type        string
	Data        any
}

// Writer 领域事件的写入端
type Writer interface {
	Enqueue(ctx context.Context, ev Event) error
}

// buildMessage 把事件包装为发布到交换机的消息体，返回消息体和事件 ID
func buildMessage(ev Event, now time.Time) (storage.EventMessage, []byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return storage.EventMessage{}, nil, fmt.Errorf("序列化事件数据失败: %w", err)
	}
	msg := storage.EventMessage{
		EventID:     uuid.NewString(),
		EventType:   ev.Type,
		AggregateID: ev.AggregateID,
		WorkspaceID: ev.WorkspaceID,
		OccurredAt:  now.UTC(),
		Data:        data,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return storage.EventMessage{}, nil, fmt.Errorf("序列化事件失败: %w", err)
	}
	return msg, body, nil
}

// GormWriter 把事件写入 outbox 表，由 MessageRelay 异步发布
type GormWriter struct {
	db       *gorm.DB
	exchange string
}

// NewGormWriter 创建基于数据库的写入端
func NewGormWriter(db *gorm.DB, exchange string) *GormWriter {
	return &GormWriter{db: db, exchange: exchange}
}

// Enqueue 插入一条 PENDING 消息
func (w *GormWriter) Enqueue(ctx context.Context, ev Event) error {
	msg, payload, err := buildMessage(ev, time.Now())
	if err != nil {
		return err
	}
	row := models.OutboxMessage{
		EventID:     msg.EventID,
		WorkspaceID: ev.WorkspaceID,
		AggregateID: ev.AggregateID,
		EventType:   ev.Type,
		Exchange:    w.exchange,
		RoutingKey:  ev.Type,
		Payload:     datatypes.JSON(payload),
		Status:      models.OutboxStatusPending,
	}
	if err := w.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("写入发件箱失败: %w", err)
	}
	return nil
}

// PublishWriter 没有数据库时直接发布，不保证投递
type PublishWriter struct {
	publisher Publisher
	exchange  string
}

// NewPublishWriter 创建直接发布的写入端
func NewPublishWriter(publisher Publisher, exchange string) *PublishWriter {
	return &PublishWriter{publisher: publisher, exchange: exchange}
}

// Enqueue 同步发布事件
func (w *PublishWriter) Enqueue(ctx context.Context, ev Event) error {
	_, payload, err := buildMessage(ev, time.Now())
	if err != nil {
		return err
	}
	return w.publisher.PublishMessage(ctx, w.exchange, ev.Type, payload, true)
}

// Recorder 在内存中记录事件，用于未配置消息代理的部署和测试
type Recorder struct {
	mu     sync.Mutex
	events []Event
	// Err 非空时 Enqueue 返回该错误
	Err error
}

// Enqueue 记录事件
func (r *Recorder) Enqueue(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

// Events 返回已记录事件的副本
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType 返回指定类型的事件
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
