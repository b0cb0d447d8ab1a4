package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-vision/internal/admission"
	"wisefido-vision/internal/alert"
	"wisefido-vision/internal/cache"
	"wisefido-vision/internal/config"
	"wisefido-vision/internal/consumer"
	"wisefido-vision/internal/detector"
	"wisefido-vision/internal/escalation"
	"wisefido-vision/internal/httpapi"
	"wisefido-vision/internal/hub"
	"wisefido-vision/internal/pipeline"
	"wisefido-vision/internal/report"
	"wisefido-vision/internal/repository"
	"wisefido-vision/internal/retention"
	"wisefido-vision/internal/service"
	"wisefido-vision/internal/threat"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting wisefido-vision service",
		zap.String("detector_url", cfg.Detector.BaseURL),
		zap.String("reasoning_url", cfg.Reasoning.BaseURL),
		zap.String("http_addr", cfg.HTTP.Addr),
	)

	// 数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdle)
	if err := db.Ping(); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// 仓库与缓存
	alertsRepo := repository.NewAlertsRepository(db, logger)
	framesRepo := repository.NewFramesRepository(db, logger)
	realtimeCache := cache.NewRealtimeCache(redisClient,
		cfg.Cache.RealtimeKeyPrefix, cfg.Cache.RealtimeSuffix, cfg.Cache.RealtimeTTL, logger)

	// WebSocket Hub
	h := hub.NewHub(logger)

	// 威胁聚合
	aggregator, err := threat.NewAggregator(cfg.Threat.Classes, cfg.Threat.CrowdThreshold)
	if err != nil {
		logger.Fatal("Invalid threat mapping", zap.Error(err))
	}

	// 分类器与推理服务
	detectorClient := detector.NewClient(cfg.Detector.BaseURL, cfg.Detector.Timeout, logger)
	reasoningClient := escalation.NewReasoningClient(
		cfg.Reasoning.BaseURL, cfg.Reasoning.Model, cfg.Reasoning.Timeout, logger)

	// 升级协调
	coordinator, err := escalation.NewCoordinator(
		cfg.Escalation.Threshold, cfg.Escalation.Cooldown, cfg.Reasoning.Timeout,
		reasoningClient, h, logger)
	if err != nil {
		logger.Fatal("Invalid escalation config", zap.Error(err))
	}

	// 报警渠道
	var channels []alert.Channel
	if cfg.Alert.Email.Enabled {
		channels = append(channels, alert.NewEmailChannel(
			cfg.Alert.Email.SMTPHost, cfg.Alert.Email.SMTPPort,
			cfg.Alert.Email.Username, cfg.Alert.Email.Password,
			cfg.Alert.Email.From, cfg.Alert.Email.To, logger))
	}
	if cfg.Alert.SMS.Enabled {
		channels = append(channels, alert.NewSMSChannel(
			cfg.Alert.SMS.AccountSID, cfg.Alert.SMS.AuthToken,
			cfg.Alert.SMS.From, cfg.Alert.SMS.To, logger))
	}

	dispatcher, err := alert.NewDispatcher(cfg.Alert.Threshold, channels, alertsRepo, h, logger)
	if err != nil {
		logger.Fatal("Invalid alert config", zap.Error(err))
	}

	// 流水线
	orchestrator, err := pipeline.NewOrchestrator(
		admission.NewController(cfg.Detector.TargetFPS),
		detectorClient, aggregator, coordinator, dispatcher,
		framesRepo, realtimeCache, h,
		cfg.Pipeline.NotableFloor, logger)
	if err != nil {
		logger.Fatal("Invalid pipeline config", zap.Error(err))
	}

	// REST 与 WebSocket
	alertService := service.NewAlertService(alertsRepo, framesRepo, realtimeCache, logger)
	reportService := report.NewDailyReportService(alertsRepo, framesRepo, logger)
	alertHandler := httpapi.NewAlertHandler(alertService, reportService, logger)
	wsHandler := httpapi.NewWSHandler(h, orchestrator, logger)

	router := httpapi.NewRouter(logger)
	router.RegisterRoutes(alertHandler, wsHandler, h, detectorClient)

	srv := httpapi.NewServer(cfg.HTTP.Addr, router, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MQTT 摄像头状态消费（broker 不可用时跳过，不阻塞启动）
	var statusConsumer *consumer.CameraStatusConsumer
	if mqttClient, err := consumer.NewMQTTClient(&cfg.MQTT, logger); err != nil {
		logger.Warn("MQTT broker unavailable, camera status disabled", zap.Error(err))
	} else {
		statusConsumer = consumer.NewCameraStatusConsumer(cfg, mqttClient, h, logger)
		go func() {
			if err := statusConsumer.Start(ctx); err != nil {
				logger.Error("Camera status consumer failed", zap.Error(err))
			}
		}()
		defer mqttClient.Disconnect()
	}

	// 保留清理
	sweeper := retention.NewSweeper(framesRepo, cfg.Retention.Days, cfg.Retention.SweepInterval, logger)
	go sweeper.Run(ctx)

	// HTTP 服务
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// 等待中断信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("HTTP server exited", zap.Error(err))
	}

	// 优雅关闭
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if statusConsumer != nil {
		_ = statusConsumer.Stop(shutdownCtx)
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	h.Shutdown()

	logger.Info("Service stopped")
}

// newLogger 按配置构建 zap logger
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Log.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level

	return zapCfg.Build()
}
