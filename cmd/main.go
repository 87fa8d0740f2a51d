package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recruit-desk/internal/api/handler"
	"recruit-desk/internal/api/router"
	"recruit-desk/internal/collaborator"
	"recruit-desk/internal/config"
	"recruit-desk/internal/desk"
	appLogger "recruit-desk/internal/logger"
	"recruit-desk/internal/outbox"
	"recruit-desk/internal/persist"
	"recruit-desk/internal/scheduling"
	"recruit-desk/internal/storage"
	"recruit-desk/internal/tracing"
	"recruit-desk/internal/transcript"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

func main() {
	var configPath, envPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.StringVar(&envPath, "env", ".env", "Path to .env file")
	pflag.Parse()

	if err := config.LoadDotEnv(envPath); err != nil {
		glog.Warnf("加载 .env 失败: %v", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}

	logCloser, err := appLogger.Init(appLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		File:         cfg.Logger.File,
	})
	if err != nil {
		glog.Fatalf("初始化日志失败: %v", err)
	}
	defer logCloser.Close()
	glog.SetLogger(hertzadapter.From(appLogger.Logger))
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	scopes, err := persist.NewFactory(cfg.SessionStore, storageManager)
	if err != nil {
		glog.Fatalf("初始化持久化作用域失败: %v", err)
	}

	var searches desk.SearchRepository = desk.NewMemorySearchRepo()
	if storageManager.MySQL != nil {
		searches = storageManager.MySQL.SearchRecords()
		glog.Info("搜索历史使用MySQL")
	}

	events, relay := initEvents(cfg, storageManager)
	if relay != nil {
		relay.Start(ctx)
		glog.Info("消息中继服务已启动")
	}

	var archive transcript.Archive
	if storageManager.MinIO != nil {
		archive = storageManager.MinIO
		glog.Info("转写归档使用MinIO")
	}

	loc, err := cfg.Scheduling.Location()
	if err != nil {
		glog.Fatalf("解析时区失败: %v", err)
	}

	client := collaborator.New(cfg.Collaborators)
	manager := desk.NewManager(desk.Deps{
		Collaborators: client,
		Scopes:        scopes,
		Searches:      searches,
		Archive:       archive,
		Events:        events,
	}, desk.Config{
		Scheduling: scheduling.Config{
			Location:        loc,
			DurationMinutes: cfg.Scheduling.DurationMinutes,
			SubjectMaxRunes: cfg.Scheduling.SubjectMaxRunes,
		},
		CacheTTL:             config.GetDuration(cfg.SearchCache.TTL, 30*time.Minute),
		CachePersistKey:      cfg.SearchCache.PersistKey,
		ReconcileConcurrency: cfg.Scheduling.ReconcileConcurrency,
		EventLogSize:         cfg.Server.EventLogSize,
		IdleTimeout:          config.GetDuration(cfg.SessionStore.WorkspaceIdle, 30*time.Minute),
		MaxWorkspaces:        cfg.SessionStore.MaxWorkspaces,
	})
	go manager.RunEviction(ctx, time.Minute)
	glog.Info("工作区管理器初始化成功")

	opts := []server.Option{
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	}
	var tracerCfg *hertztracing.Config
	if cfg.Tracing.Enabled {
		tracer, tc := hertztracing.NewServerTracer()
		opts = append(opts, tracer)
		tracerCfg = tc
	}
	h := server.New(opts...)
	if tracerCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracerCfg))
	}
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		c = appLogger.Request(c, string(ctx.GetHeader(handler.SessionHeader)))
		ctx.Next(c)
		appLogger.Ctx(c).Info().
			Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Int("status", ctx.Response.StatusCode()).
			Dur("latency", time.Since(start)).
			Msg("请求完成")
	})

	router.RegisterRoutes(h, handler.NewHandler(manager, client), cfg.Auth)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}

	if relay != nil {
		relay.Stop()
		glog.Info("消息中继服务已停止")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		glog.Warnf("关闭链路追踪失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// initEvents 选择领域事件的写入方式：
// MySQL 和 RabbitMQ 都可用时走发件箱，只有 RabbitMQ 时直接发布，都不可用时不发事件。
func initEvents(cfg *config.Config, st *storage.Storage) (outbox.Writer, *outbox.MessageRelay) {
	exchange := cfg.RabbitMQ.EventsExchange
	switch {
	case st.MySQL != nil && st.RabbitMQ != nil:
		relay := outbox.NewMessageRelay(st.MySQL.DB(), st.RabbitMQ,
			config.GetDuration(cfg.Outbox.PollInterval, 2*time.Second), cfg.Outbox.BatchSize)
		return outbox.NewGormWriter(st.MySQL.DB(), exchange), relay
	case st.RabbitMQ != nil:
		glog.Warn("MySQL不可用，领域事件将直接发布到RabbitMQ")
		return outbox.NewPublishWriter(st.RabbitMQ, exchange), nil
	default:
		glog.Warn("RabbitMQ未配置，不发布领域事件")
		return nil, nil
	}
}
