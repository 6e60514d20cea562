package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"carelink-monitor/internal/cache"
	"carelink-monitor/internal/config"
	"carelink-monitor/internal/dispatcher"
	"carelink-monitor/internal/evaluator"
	httpapi "carelink-monitor/internal/http"
	"carelink-monitor/internal/repository"
	"carelink-monitor/internal/scheduler"
	"carelink-monitor/internal/sink"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// MonitorService 监测引擎服务（整合各层）
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	// 各层组件
	subjectsRepo      *repository.SubjectsRepository
	alertsRepo        *repository.AlertsRepository
	notificationsRepo *repository.NotificationsRepository
	provider          *repository.Provider
	evaluator         *evaluator.Evaluator
	sink              *sink.Sink
	dispatcher        *dispatcher.EmailDispatcher
	findingsCache     *cache.FindingsCache
	scheduler         *scheduler.Scheduler
	httpServer        *http.Server
}

// NewMonitorService 创建监测引擎服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConns)
	}
	if cfg.Database.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdle)
	}

	// 测试数据库连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 创建 Repository 层
	subjectsRepo := repository.NewSubjectsRepository(db, logger)
	alertsRepo := repository.NewAlertsRepository(db, logger)
	notificationsRepo := repository.NewNotificationsRepository(db, logger)
	provider := repository.NewProvider(db, logger)

	// 4. 创建 Evaluator / Sink / Dispatcher / Cache
	eval := evaluator.NewEvaluator(provider, cfg, logger)
	findingSink := sink.NewSink(alertsRepo, notificationsRepo, logger)
	emailDispatcher := dispatcher.NewEmailDispatcher(cfg, logger)
	if emailDispatcher == nil {
		logger.Warn("Mail gateway not configured, dispatch disabled")
	}
	findingsCache := cache.NewFindingsCache(cfg, redisClient, logger)

	// 5. 创建 Scheduler
	// EmailDispatcher 未配置时传 nil 接口，避免带类型的 nil
	var schedDispatcher scheduler.Dispatcher
	if emailDispatcher != nil {
		schedDispatcher = emailDispatcher
	}
	sched := scheduler.NewScheduler(
		subjectsRepo,
		eval,
		findingSink,
		schedDispatcher,
		findingsCache,
		cfg,
		logger,
	)

	// 6. 创建 HTTP 运维接口
	router := httpapi.NewRouter(logger)
	monitorHandler := httpapi.NewMonitorHandler(sched, alertsRepo, notificationsRepo, logger)
	router.RegisterMonitorRoutes(monitorHandler)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	return &MonitorService{
		config:            cfg,
		db:                db,
		redisClient:       redisClient,
		logger:            logger,
		subjectsRepo:      subjectsRepo,
		alertsRepo:        alertsRepo,
		notificationsRepo: notificationsRepo,
		provider:          provider,
		evaluator:         eval,
		sink:              findingSink,
		dispatcher:        emailDispatcher,
		findingsCache:     findingsCache,
		scheduler:         sched,
		httpServer:        httpServer,
	}, nil
}

// Start 启动服务（巡检循环 + HTTP 运维接口），阻塞直到 ctx 取消
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting monitor service",
		zap.String("http_addr", s.config.HTTP.Addr),
		zap.Int("sweep_interval_sec", s.config.Monitor.SweepInterval),
	)

	// HTTP 运维接口在独立 goroutine 中运行
	httpErrChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 巡检循环（阻塞）
	schedErrChan := make(chan error, 1)
	go func() {
		schedErrChan <- s.scheduler.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		// 等待巡检循环完成当前被监护人后退出
		<-schedErrChan
		return nil
	case err := <-httpErrChan:
		return err
	case err := <-schedErrChan:
		return err
	}
}

// Stop 停止服务
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping monitor service")

	if err := s.httpServer.Close(); err != nil {
		s.logger.Error("Failed to close http server",
			zap.Error(err),
		)
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}

// Scheduler 暴露调度器（供嵌入式使用方直接触发 RunNow）
func (s *MonitorService) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// buildDSN 构建数据库连接字符串
func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.SSLMode,
	)
}
