package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-interview-go/internal/analysis"
	"ai-interview-go/internal/api/handler"
	"ai-interview-go/internal/api/router"
	"ai-interview-go/internal/config"
	"ai-interview-go/internal/identity"
	"ai-interview-go/internal/interview"
	"ai-interview-go/internal/llm"
	appLogger "ai-interview-go/internal/logger"
	"ai-interview-go/internal/notify"
	"ai-interview-go/internal/outbox"
	"ai-interview-go/internal/parser"
	"ai-interview-go/internal/proctor"
	"ai-interview-go/internal/ranking"
	"ai-interview-go/internal/registry"
	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

var (
	version     = "1.0.0"           //nolint:gochecknoglobals
	serviceName = "ai-interview-go" //nolint:gochecknoglobals
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}

	logCloser, err := appLogger.Init(cfg.Logger, cfg.Server.LogFile)
	if err != nil {
		glog.Fatalf("初始化日志失败: %v", err)
	}
	defer logCloser.Close()
	logger := appLogger.Logger.With().Str("service", serviceName).Str("version", version).Logger()
	logger.Info().Str("config", configPath).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()
	logger.Info().Msg("存储服务初始化成功")

	chatModel, err := llm.NewChatModel(ctx, cfg.LLM, appLogger.Component("llm"))
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化文本生成模型失败")
	}
	logger.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).Msg("文本生成模型初始化成功")

	// 简历登记
	scorer := parser.NewATSScorer(chatModel, cfg.LLM.Timeout(), appLogger.Component("ats"))
	registryOpts := []registry.Option{
		registry.WithDescriptorDimensions(cfg.Interview.DescriptorDimensions),
		registry.WithMaxResumeBytes(int64(cfg.Server.MaxUploadMB) << 20),
		registry.WithLogger(appLogger.Component("registry")),
	}
	if storageManager.MinIO != nil {
		registryOpts = append(registryOpts, registry.WithBlobStore(storageManager.MinIO))
	}
	extractor, err := parser.NewResumeTextExtractor(ctx, appLogger.Component("extractor"))
	if err != nil {
		logger.Warn().Err(err).Msg("简历文本提取器初始化失败，将跳过文本提取")
	} else {
		registryOpts = append(registryOpts, registry.WithTextExtractor(extractor))
	}
	applications := registry.New(storageManager.MySQL, scorer, registryOpts...)

	// 候选人通知
	dispatcher, deliverer := buildNotifier(cfg, storageManager, logger)
	go dispatcher.Run(ctx)

	// 排名
	rankingOpts := []ranking.Option{
		ranking.WithNotifier(dispatcher),
		ranking.WithLogger(appLogger.Component("ranking")),
	}
	if storageManager.Redis != nil {
		rankingOpts = append(rankingOpts,
			ranking.WithJobCache(storageManager.Redis),
			ranking.WithLocker(storageManager.Redis, storageManager.Redis.BulkLockTimeout()),
		)
	}
	rankingEngine := ranking.NewEngine(storageManager.MySQL, rankingOpts...)

	// 身份核验与面试
	gate := identity.NewGate(storageManager.MySQL, cfg.Interview.IdentityThreshold, cfg.Interview.DescriptorDimensions, appLogger.Component("identity"))
	interviewOpts := []interview.Option{
		interview.WithIdentityGate(gate, cfg.Interview.RequireIdentity),
		interview.WithTimeout(cfg.LLM.Timeout()),
		interview.WithLogger(appLogger.Component("interview")),
	}
	if cfg.Interview.CheckpointTurns {
		if storageManager.Redis == nil {
			logger.Warn().Msg("未配置Redis，对话断点功能不可用")
		} else {
			store, err := interview.NewRedisTranscriptStore(storageManager.Redis.Client, storageManager.Redis.SessionTTL())
			if err != nil {
				logger.Fatal().Err(err).Msg("初始化对话断点存储失败")
			}
			interviewOpts = append(interviewOpts, interview.WithCheckpoints(store))
		}
	}
	orchestrator := interview.NewOrchestrator(storageManager.MySQL, chatModel, interviewOpts...)

	var counter proctor.Counter
	if storageManager.Redis != nil {
		counter = storageManager.Redis
	}
	tracker := proctor.NewSessionTracker(counter, orchestrator, cfg.Interview.MaxViolations,
		time.Duration(cfg.Interview.WarningDismissSeconds)*time.Second, appLogger.Component("proctor"))

	// 面试分析
	pipeline := analysis.NewPipeline(storageManager.MySQL, chatModel,
		analysis.WithTimeout(cfg.LLM.Timeout()),
		analysis.WithMaxTurns(cfg.Interview.MaxTranscriptTurns),
		analysis.WithLogger(appLogger.Component("analysis")),
	)
	var analysisQueue handler.AnalysisQueue

	// 消息中继与消费者
	var messageRelay *outbox.MessageRelay
	var stopConsumers []func()
	if storageManager.RabbitMQ != nil {
		mq := storageManager.RabbitMQ
		analysisQueue = analysis.NewQueue(mq, cfg.RabbitMQ.LifecycleExchange, cfg.RabbitMQ.AnalysisRoutingKey, cfg.Interview.MaxTranscriptTurns)

		messageRelay = outbox.NewMessageRelay(storageManager.MySQL.DB(), mq, appLogger.Component("outbox"),
			outbox.WithPollingInterval(time.Duration(cfg.RabbitMQ.OutboxPollIntervalSeconds)*time.Second),
			outbox.WithBatchSize(cfg.RabbitMQ.OutboxBatchSize),
		)
		messageRelay.Start()
		logger.Info().Msg("消息中继服务已启动")

		notifyConsumer := notify.NewConsumer(deliverer, appLogger.Component("notify_consumer"))
		worker := analysis.NewWorker(pipeline, time.Duration(cfg.Interview.AnalysisTimeoutSeconds)*time.Second, appLogger.Component("analysis_worker"))

		consumers := []struct {
			name    string
			queue   string
			workers int
			handle  func([]byte) storage.Delivery
		}{
			{"notification", cfg.RabbitMQ.NotificationQueue, consumerWorkers(cfg, "notification", 2), notifyConsumer.Handle},
			{"analysis", cfg.RabbitMQ.AnalysisQueue, consumerWorkers(cfg, "analysis", 1), worker.Handle},
		}
		for _, c := range consumers {
			for i := 0; i < c.workers; i++ {
				stop, err := mq.StartConsumer(c.queue, cfg.RabbitMQ.PrefetchCount, c.handle)
				if err != nil {
					logger.Fatal().Err(err).Str("queue", c.queue).Msg("启动消费者失败")
				}
				stopConsumers = append(stopConsumers, stop)
			}
			logger.Info().Str("consumer", c.name).Str("queue", c.queue).Int("workers", c.workers).Msg("消费者已启动")
		}
	} else {
		logger.Warn().Msg("未配置RabbitMQ，异步分析不可用，通知将在进程内直接发送")
	}

	// HTTP
	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize((cfg.Server.MaxUploadMB+1)<<20),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, router.Handlers{
		Applications: handler.NewApplicationHandler(applications),
		Jobs:         handler.NewJobHandler(rankingEngine),
		Interviews:   handler.NewInterviewHandler(orchestrator, tracker),
		Identity:     handler.NewIdentityHandler(gate),
		Reports:      handler.NewReportHandler(pipeline, analysisQueue),
	}, router.Options{
		APIKey:       cfg.Auth.APIKey,
		HealthChecks: healthChecks(storageManager),
	})
	logger.Info().Msg("HTTP路由注册成功")

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("HTTP 服务器启动中")
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutMS)*time.Millisecond)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP服务器关闭失败")
	}

	for _, stop := range stopConsumers {
		stop()
	}
	if messageRelay != nil {
		messageRelay.Stop()
		logger.Info().Msg("消息中继服务已停止")
	}
	dispatcher.Close()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("关闭链路追踪失败")
	}
	logger.Info().Msg("优雅退出完成")
}

// buildNotifier 配置了 RabbitMQ 时通知经 outbox 持久化后由消费者发送，否则在进程内直接发送
func buildNotifier(cfg *config.Config, s *storage.Storage, logger zerolog.Logger) (*notify.Dispatcher, *notify.Deliverer) {
	var sender notify.Sender
	if cfg.Notification.TelegramBotToken != "" {
		tg, err := notify.NewTelegramSender(cfg.Notification.TelegramBotToken, cfg.Notification.TelegramChatID,
			notify.WithRecipientChats(cfg.Notification.TelegramRecipients))
		if err != nil {
			logger.Warn().Err(err).Msg("Telegram 初始化失败，通知改为写日志")
		} else {
			sender = tg
		}
	}
	if sender == nil {
		sender = notify.NewLogSender(appLogger.Component("notify_log"))
	}

	deliverer := notify.NewDeliverer(sender, cfg.Notification.MaxAttempts,
		time.Duration(cfg.Notification.BackoffMS)*time.Millisecond, appLogger.Component("notify"))

	var opts []notify.DispatcherOption
	if s.RabbitMQ != nil {
		opts = append(opts, notify.WithOutbox(s.MySQL, cfg.RabbitMQ.LifecycleExchange, cfg.RabbitMQ.NotificationRoutingKey))
	}
	return notify.NewDispatcher(deliverer, appLogger.Component("dispatcher"), opts...), deliverer
}

func consumerWorkers(cfg *config.Config, name string, fallback int) int {
	if n, ok := cfg.RabbitMQ.ConsumerWorkers[name]; ok && n > 0 {
		return n
	}
	return fallback
}

func healthChecks(s *storage.Storage) map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"mysql": s.MySQL.Ping,
	}
	if s.Redis != nil {
		checks["redis"] = s.Redis.Ping
	}
	if s.RabbitMQ != nil {
		checks["rabbitmq"] = s.RabbitMQ.Ping
	}
	return checks
}
