package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recruit-desk/internal/config"
	applog "recruit-desk/internal/logger"
	"recruit-desk/internal/storage/models"
	"recruit-desk/internal/tracing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("recruit-desk/storage/mysql")

type spanCtxKey struct{}

// tracingPlugin 为每条 GORM 语句建一个 client span
type tracingPlugin struct {
	dbName string
}

func (p *tracingPlugin) Name() string { return "recruit-desk:otel" }

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	var errs []error
	add := func(err error) { errs = append(errs, err) }

	add(cb.Create().Before("gorm:create").Register("otel:before_create", p.start("INSERT")))
	add(cb.Create().After("gorm:create").Register("otel:after_create", p.finish))
	add(cb.Query().Before("gorm:query").Register("otel:before_query", p.start("SELECT")))
	add(cb.Query().After("gorm:query").Register("otel:after_query", p.finish))
	add(cb.Update().Before("gorm:update").Register("otel:before_update", p.start("UPDATE")))
	add(cb.Update().After("gorm:update").Register("otel:after_update", p.finish))
	add(cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.start("DELETE")))
	add(cb.Delete().After("gorm:delete").Register("otel:after_delete", p.finish))
	add(cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.start("RAW")))
	add(cb.Raw().After("gorm:raw").Register("otel:after_raw", p.finish))
	return errors.Join(errs...)
}

func (p *tracingPlugin) start(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		ctx, span := mysqlTracer.Start(ctx, operation+" "+table,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", table),
			))
		db.Statement.Context = context.WithValue(ctx, spanCtxKey{}, span)
	}
}

// finish 语句在 start 时还未生成，这里补上
func (p *tracingPlugin) finish(db *gorm.DB) {
	span, ok := db.Statement.Context.Value(spanCtxKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	span.SetAttributes(
		tracing.String("db.statement", db.Statement.SQL.String(), tracing.MaxSQLLength),
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
	)
	switch {
	case db.Error == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(db.Error, gorm.ErrRecordNotFound):
		span.SetAttributes(attribute.Bool("db.record_found", false))
	default:
		tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
	}
}

// zerologWriter 把 GORM 日志转到 zerolog
type zerologWriter struct {
	log zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...any) {
	w.log.Debug().Msgf(format, args...)
}

func gormLogLevel(level int) gormlogger.LogLevel {
	switch level {
	case 1:
		return gormlogger.Silent
	case 2:
		return gormlogger.Error
	case 3:
		return gormlogger.Warn
	}
	return gormlogger.Info
}

// MySQL 工作区持久化、搜索记录和发件箱所在的数据库
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 连接数据库，注册追踪插件并迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	gormLog := gormlogger.New(zerologWriter{log: applog.Component("gorm")}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormLogLevel(cfg.LogLevel),
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
		PrepareStmt:                              true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	if err := db.Use(&tracingPlugin{dbName: cfg.Database}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	// 迁移期间不输出 SQL
	migrator := db.Session(&gorm.Session{Logger: gormLog.LogMode(gormlogger.Silent)})
	if err := migrator.AutoMigrate(&models.WorkspaceEntry{}, &models.SearchRecord{}, &models.OutboxMessage{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}
	return &MySQL{db: db, cfg: cfg}, nil
}

// DB 返回GORM连接
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}
