package models

import (
	"time"

	"gorm.io/datatypes"
)

// WorkspaceEntry 工作区的持久作用域数据，一个键一行
type WorkspaceEntry struct {
	WorkspaceID   string         `gorm:"type:varchar(64);primaryKey"`
	EntryKey      string         `gorm:"type:varchar(191);primaryKey"`
	Payload       datatypes.JSON `gorm:"type:json;not null"`
	SchemaVersion int            `gorm:"not null;default:1"`
	CreatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (WorkspaceEntry) TableName() string {
	return "workspace_entries"
}

// SearchRecord 搜索历史
type SearchRecord struct {
	SearchID         string    `gorm:"type:char(36);primaryKey"`
	WorkspaceID      string    `gorm:"type:varchar(64);not null;index:idx_search_ws_created,priority:1"`
	JobDescription   string    `gorm:"type:text;not null"`
	TotalMatches     int       `gorm:"not null;default:0"`
	ShortlistedCount int       `gorm:"not null;default:0"`
	SearchStatus     string    `gorm:"type:varchar(20);not null;default:'completed'"`
	IsJobRequisition bool      `gorm:"not null;default:false"`
	CreatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_search_ws_created,priority:2,sort:desc"`
	UpdatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (SearchRecord) TableName() string {
	return "search_records"
}

// 发件箱消息状态
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 与业务写入同库的待发布事件，由中继投递到 RabbitMQ。
// 只有 broker 确认后才会变为 SENT。
type OutboxMessage struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	EventID     string         `gorm:"type:char(36);not null;uniqueIndex"`
	WorkspaceID string         `gorm:"type:varchar(64);not null;default:''"`
	AggregateID string         `gorm:"type:varchar(64);not null;index"`
	EventType   string         `gorm:"type:varchar(128);not null"`
	Exchange    string         `gorm:"type:varchar(255);not null"`
	RoutingKey  string         `gorm:"type:varchar(255);not null"`
	Payload     datatypes.JSON `gorm:"type:json;not null"`
	Status      string         `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_outbox_pending,priority:1"`
	Attempts    int            `gorm:"not null;default:0"`
	LastError   string         `gorm:"type:text"`
	CreatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_outbox_pending,priority:2"`
	ProcessedAt *time.Time     `gorm:"type:datetime(6)"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
