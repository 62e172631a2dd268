package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"settlement-service/apperrors"
	"settlement-service/consumer"
	"settlement-service/controllers"
	"settlement-service/database"
	"settlement-service/lock"
	"settlement-service/logger"
	"settlement-service/middleware"
	"settlement-service/models"
	awspkg "settlement-service/pkg/aws"
	"settlement-service/repository"
	"settlement-service/routes"
	"settlement-service/scheduler"
	"settlement-service/sender"
	"settlement-service/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const serviceName = "settlement-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	// --- AWS setup ---
	awsCfg, err := awspkg.LoadAWSConfig(context.Background())
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	var cwWriter io.Writer
	if cfg.CloudWatchLogGroup != "" {
		cw, err := awspkg.NewCloudWatchLogsClient(context.Background(), awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			log.Printf("CloudWatch Logs disabled (non-fatal): %v", err)
		} else {
			cwWriter = cw
		}
	}

	zl, err := logger.Initialize(cfg.Env, cwWriter)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	snsClient := awspkg.NewSNSClient(awsCfg)
	metricsClient := awspkg.NewMetricsClient(awsCfg, cfg.MetricsNamespace, cfg.MetricsEnabled)

	// --- Database ---
	db, err := database.ConnectPostgres(context.Background(), cfg.Postgres, zl)
	if err != nil {
		zl.Fatal("DB connection failed", zap.Error(err))
	}
	if err := models.Migrate(db); err != nil {
		zl.Fatal("Migration failed", zap.Error(err))
	}

	// --- Locks ---
	var (
		locker      lock.Locker
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(context.Background(), cfg.RedisURL, zl)
		if err != nil {
			zl.Fatal("Redis connection failed", zap.Error(err))
		}
		locker = lock.NewRedisLocker(redisClient, "settlement:")
	} else {
		zl.Warn("REDIS_URL not set, using in-process locks; run a single replica")
		locker = lock.NewMemoryLocker()
	}

	// --- Email ---
	var emailSender sender.EmailSender
	if smtpSender, err := sender.NewSMTPSender(cfg.SMTP); err == nil {
		emailSender = smtpSender
	} else {
		zl.Warn("SMTP not configured, emails will only be logged", zap.Error(err))
		emailSender = sender.NewLogSender(zl)
	}

	// --- Dependency injection ---
	txm := repository.NewTxManager(db)
	configRepo := repository.NewGormConfigRepository(db)
	couponRepo := repository.NewGormCouponRepository(db)
	cartRepo := repository.NewGormCartRepository(db)
	orderRepo := repository.NewGormOrderRepository(db)
	userRepo := repository.NewGormUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	mailer, err := sender.NewMailer(emailSender, notificationRepo, zl)
	if err != nil {
		zl.Fatal("Failed to load email templates", zap.Error(err))
	}
	notifier := sender.NewInAppNotifier(notificationRepo, snsClient, cfg.NotificationSNSTopicARN, zl)

	summaryService := services.NewOrderSummaryService(configRepo, zl)
	couponService := services.NewCouponService(couponRepo, cartRepo, txm, snsClient, cfg.PromotionSNSTopicARN, metricsClient, zl)
	sideEffects := &services.Background{}
	orderService := services.NewOrderService(services.OrderServiceDeps{
		Orders:      orderRepo,
		Users:       userRepo,
		Carts:       cartRepo,
		TxManager:   txm,
		Summary:     summaryService,
		Coupons:     couponService,
		Notifier:    notifier,
		Mailer:      mailer,
		SNS:         snsClient,
		SNSTopicArn: cfg.OrderSNSTopicARN,
		Metrics:     metricsClient,
		Logger:      zl,
		Background:  sideEffects,
	})
	abandonedService := services.NewAbandonedCartService(cartRepo, zl)
	reminderService := services.NewReminderService(services.ReminderServiceDeps{
		Config:      configRepo,
		Carts:       cartRepo,
		TxManager:   txm,
		Coupons:     couponService,
		Mailer:      mailer,
		Notifier:    notifier,
		Locker:      locker,
		Metrics:     metricsClient,
		Logger:      zl,
		StoreURL:    cfg.StoreURL,
		BatchSize:   cfg.ReminderBatchSize,
		InflightTTL: cfg.ReminderLockTTL,
	})

	// --- HTTP router ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := controllers.RegisterValidators(); err != nil {
		zl.Fatal("Failed to register validators", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	limiter := middleware.PerMinute(cfg.RateLimitPerMinute)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(zl))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(limiter.Middleware())
	r.Use(middleware.MetricsMiddleware(metricsClient, serviceName))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(apperrors.ErrorMiddleware())

	routes.RegisterRoutes(r, routes.Controllers{
		Summary:       controllers.NewOrderSummaryController(summaryService),
		Coupons:       controllers.NewCouponController(couponService),
		Orders:        controllers.NewOrderController(orderService),
		Abandoned:     controllers.NewAbandonedCartController(abandonedService),
		Notifications: controllers.NewNotificationController(notificationRepo),
	})

	// --- Background workers ---
	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	run(limiter.Run)

	reminders := scheduler.New(scheduler.Config{
		Name:     "abandoned-cart-reminders",
		Interval: cfg.ReminderInterval,
		LockTTL:  cfg.ReminderLockTTL,
	}, func(ctx context.Context) error {
		_, err := reminderService.Run(ctx, time.Now().UTC())
		return err
	}, locker, zl)
	run(reminders.Start)

	if cfg.PaymentEventsQueueURL != "" {
		poller := awspkg.NewSQSConsumer(awsCfg, cfg.PaymentEventsQueueURL, zl)
		run(consumer.NewPaymentConsumer(poller, orderService, zl).Start)
	} else {
		zl.Info("PAYMENT_EVENTS_QUEUE_URL not set, payment consumer disabled")
	}

	// --- HTTP server ---
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		zl.Info("Settlement Service started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Initiating graceful shutdown...")
	stop()

	httpShutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(httpShutdownCtx); err != nil {
		zl.Error("Server shutdown error", zap.Error(err))
	}

	wg.Wait()
	// post-commit notifications still use the database and redis
	sideEffects.Wait()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			zl.Error("Redis close error", zap.Error(err))
		}
	}
	if err := database.Close(db); err != nil {
		zl.Error("Database close error", zap.Error(err))
	}

	zl.Info("Settlement Service stopped gracefully")
}
