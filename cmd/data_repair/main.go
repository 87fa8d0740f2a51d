package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"recruit-desk/internal/config"
	"recruit-desk/internal/logger"
	"recruit-desk/internal/persist"
	"recruit-desk/internal/storage"
	"recruit-desk/internal/storage/models"

	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

type options struct {
	requeueFailed   bool
	purgeUnreadable bool
	dryRun          bool
	batchSize       int
	since           time.Duration
}

func main() {
	var configPath string
	var opts options
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.BoolVar(&opts.requeueFailed, "requeue-failed", false, "Reset FAILED outbox messages to PENDING")
	pflag.BoolVar(&opts.purgeUnreadable, "purge-unreadable", false, "Delete workspace entries this build cannot decode")
	pflag.BoolVar(&opts.dryRun, "dry-run", false, "Only report what would change")
	pflag.IntVar(&opts.batchSize, "batch-size", 200, "Rows per batch")
	pflag.DurationVar(&opts.since, "since", 0, "Only requeue messages created within this window (0 = all)")
	pflag.Parse()

	if _, err := logger.Init(logger.Config{Level: "info", Format: "pretty"}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	if !opts.requeueFailed && !opts.purgeUnreadable {
		logger.Fatal().Msg("至少指定 --requeue-failed 或 --purge-unreadable 之一")
	}
	if opts.batchSize <= 0 {
		opts.batchSize = 200
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}
	ctx := context.Background()
	db, err := storage.NewMySQL(&cfg.MySQL)
	if err != nil {
		logger.Fatal().Err(err).Msg("连接MySQL失败")
	}
	defer db.Close()

	if opts.requeueFailed {
		n, err := requeueFailed(ctx, db.DB(), opts, time.Now())
		if err != nil {
			logger.Fatal().Err(err).Msg("重置失败消息出错")
		}
		logger.Info().Int64("count", n).Bool("dry_run", opts.dryRun).Msg("失败的发件箱消息已重置")
	}

	if opts.purgeUnreadable {
		n, err := purgeUnreadable(ctx, db.DB(), opts)
		if err != nil {
			logger.Fatal().Err(err).Msg("清理不可读数据出错")
		}
		logger.Info().Int("count", n).Bool("dry_run", opts.dryRun).Msg("不可读的工作区数据已清理")
	}
}

// requeueFailed 分批把 FAILED 消息改回 PENDING，返回处理的条数
func requeueFailed(ctx context.Context, db *gorm.DB, opts options, now time.Time) (int64, error) {
	scope := func() *gorm.DB {
		q := db.WithContext(ctx).Model(&models.OutboxMessage{}).Where("status = ?", models.OutboxStatusFailed)
		if opts.since > 0 {
			q = q.Where("created_at >= ?", now.Add(-opts.since))
		}
		return q
	}

	if opts.dryRun {
		var count int64
		if err := scope().Count(&count).Error; err != nil {
			return 0, fmt.Errorf("统计失败消息出错: %w", err)
		}
		return count, nil
	}

	var total int64
	for {
		var ids []uint64
		if err := scope().Order("id").Limit(opts.batchSize).Pluck("id", &ids).Error; err != nil {
			return total, fmt.Errorf("查询失败消息出错: %w", err)
		}
		if len(ids) == 0 {
			return total, nil
		}
		res := db.WithContext(ctx).Model(&models.OutboxMessage{}).
			Where("id IN ? AND status = ?", ids, models.OutboxStatusFailed).
			Updates(map[string]any{
				"status":       models.OutboxStatusPending,
				"attempts":     0,
				"last_error":   "",
				"processed_at": nil,
			})
		if res.Error != nil {
			return total, fmt.Errorf("重置失败消息出错: %w", res.Error)
		}
		total += res.RowsAffected
		logger.Info().Int("batch", len(ids)).Int64("total", total).Msg("批次完成")
	}
}

// unreadable 判断一条持久化数据当前版本是否无法解析
func unreadable(entry models.WorkspaceEntry) bool {
	if entry.SchemaVersion > persist.SchemaVersion {
		return true
	}
	return !gjson.ValidBytes(entry.Payload)
}

// purgeUnreadable 按主键顺序扫描 workspace_entries 并删除无法解析的行
func purgeUnreadable(ctx context.Context, db *gorm.DB, opts options) (int, error) {
	var (
		lastWorkspace, lastKey string
		purged                 int
	)
	for {
		var batch []models.WorkspaceEntry
		err := db.WithContext(ctx).
			Where("(workspace_id > ?) OR (workspace_id = ? AND entry_key > ?)", lastWorkspace, lastWorkspace, lastKey).
			Order("workspace_id, entry_key").
			Limit(opts.batchSize).
			Find(&batch).Error
		if err != nil {
			return purged, fmt.Errorf("扫描工作区数据出错: %w", err)
		}
		if len(batch) == 0 {
			return purged, nil
		}
		for _, entry := range batch {
			if !unreadable(entry) {
				continue
			}
			logger.Warn().
				Str("workspace", entry.WorkspaceID).
				Str("key", entry.EntryKey).
				Int("schema_version", entry.SchemaVersion).
				Msg("发现不可读数据")
			purged++
			if opts.dryRun {
				continue
			}
			if err := db.WithContext(ctx).
				Where("workspace_id = ? AND entry_key = ?", entry.WorkspaceID, entry.EntryKey).
				Delete(&models.WorkspaceEntry{}).Error; err != nil {
				return purged, fmt.Errorf("删除 %s/%s 出错: %w", entry.WorkspaceID, entry.EntryKey, err)
			}
		}
		last := batch[len(batch)-1]
		lastWorkspace, lastKey = last.WorkspaceID, last.EntryKey
	}
}
