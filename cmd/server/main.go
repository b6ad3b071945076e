package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caisse/internal/database"
	"caisse/internal/metrics"
	"caisse/internal/router"
	"caisse/internal/services"
	"caisse/pkg/config"
	"caisse/pkg/logger"
	"caisse/pkg/messaging"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger := logger.GetLogger()
	appLogger.Info("Starting caisse server...")

	// 初始化数据库
	if err := database.Initialize(cfg); err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			appLogger.Error("Failed to close database:", err)
		}
	}()

	if err := database.Migrate(); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// Redis 不可用时降级运行：没有实时推送和外部消息
	redisQueue, err := database.ConnectRedis(cfg.Redis, 3*time.Second)
	if err != nil {
		appLogger.Warnf("Redis不可用，实时通知和外部消息已停用: %v", err)
	} else {
		defer redisQueue.Close()
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	svc := router.NewServices(database.GetDB(), cfg, redisQueue, m)

	if err := seedData(cfg, svc); err != nil {
		appLogger.Fatalf("Failed to initialize seed data: %v", err)
	}

	gin.SetMode(cfg.Server.Mode)

	// 外部消息投递
	if redisQueue != nil {
		if sender := buildSenders(cfg); sender != nil {
			worker := services.NewNotificationWorker(redisQueue, sender, svc.Notifications, m)
			worker.Start(context.Background())
			defer worker.Stop()
		}
	}

	// 自动补货巡检和收银会话超时提醒
	scheduler := services.NewStockScheduler(svc.Thresholds, svc.CashSessions, cfg.Scheduler.StaleSessionHours)
	if err := scheduler.Start(cfg.Scheduler.StockSweep, cfg.Scheduler.StaleSessions); err != nil {
		appLogger.Errorf("Failed to start scheduler: %v", err)
		// 不影响主服务启动
	}
	defer scheduler.Stop()

	r := router.SetupRouter(router.Options{
		Config:    cfg,
		DB:        database.GetDB(),
		Services:  svc,
		Redis:     redisQueue,
		Metrics:   m,
		Scheduler: scheduler,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	appLogger.Infof("Server started on port %s", cfg.Server.Port)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown:", err)
	}
	appLogger.Info("Server exited")
}

// buildSenders 按配置启用 WhatsApp / Telegram，都未启用时返回 nil
func buildSenders(cfg *config.Config) *messaging.Registry {
	var senders []messaging.Sender
	if cfg.Messaging.WhatsAppEnabled {
		senders = append(senders, messaging.NewWhatsAppSender(messaging.WhatsAppConfig{
			BaseURL:       cfg.Messaging.WhatsAppBaseURL,
			PhoneNumberID: cfg.Messaging.WhatsAppPhoneNumberID,
			Token:         cfg.Messaging.WhatsAppToken,
			Language:      cfg.Messaging.WhatsAppLanguage,
		}))
	}
	if cfg.Messaging.TelegramEnabled {
		telegram, err := messaging.NewTelegramSender(cfg.Messaging.TelegramBotToken, cfg.Messaging.TelegramAdminChatID)
		if err != nil {
			logger.GetLogger().Errorf("Telegram机器人初始化失败: %v", err)
		} else {
			senders = append(senders, telegram)
		}
	}
	if len(senders) == 0 {
		return nil
	}
	return messaging.NewRegistry(senders...)
}
