package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/config"
	"github.com/mamadbah2/milkchain/internal/repository"
	"github.com/mamadbah2/milkchain/internal/repository/memory"
	"github.com/mamadbah2/milkchain/internal/repository/mongodb"
	"github.com/mamadbah2/milkchain/internal/repository/sheets"
	"github.com/mamadbah2/milkchain/internal/scheduler"
	"github.com/mamadbah2/milkchain/internal/server/handlers"
	"github.com/mamadbah2/milkchain/internal/server/router"
	batchsvc "github.com/mamadbah2/milkchain/internal/service/batches"
	"github.com/mamadbah2/milkchain/internal/service/notify"
	paymentsvc "github.com/mamadbah2/milkchain/internal/service/payments"
	reportingsvc "github.com/mamadbah2/milkchain/internal/service/reporting"
	"github.com/mamadbah2/milkchain/internal/service/settings"
	whatsappsvc "github.com/mamadbah2/milkchain/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/milkchain/pkg/clients/whatsapp"
	"github.com/mamadbah2/milkchain/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store         repository.Store
		mongoSettings settings.Provider
	)
	switch cfg.Store.Driver {
	case config.StoreMemory:
		baseLogger.Warn("using in-memory store, data is lost on restart")
		store = memory.NewStore()
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		mongoRepo, err := mongodb.NewMongoDBRepository(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName, logger.Named(baseLogger, "repo.mongodb"))
		cancel()
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		store = mongoRepo
		mongoSettings = settings.ProviderFunc(mongoRepo.GetSetting)
	}

	var settingsProvider settings.Provider
	switch cfg.Settings.Source {
	case config.SettingsFromSheets:
		sheetsRepo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, logger.Named(baseLogger, "repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		settingsProvider = settings.ProviderFunc(sheetsRepo.GetSetting)
	case config.SettingsFromMongo:
		settingsProvider = mongoSettings
	default:
		baseLogger.Info("no settings source configured, using defaults")
		settingsProvider = settings.Static{}
	}

	var locker *redislock.Client
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			baseLogger.Warn("redis unreachable, cache and job locks will retry per call", zap.Error(err))
		}
		settingsProvider = settings.NewCached(settingsProvider, rdb, cfg.Settings.CacheTTL, logger.Named(baseLogger, "settings.cache"))
		locker = redislock.New(rdb)
		baseLogger.Info("redis enabled", zap.String("address", cfg.Redis.Address))
	}

	var sender notify.Sender
	if cfg.WhatsApp.Enabled() {
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		sender = whatsappsvc.NewNotificationSender(whatsClient, store, logger.Named(baseLogger, "svc.whatsapp"))
		baseLogger.Info("whatsapp notifications enabled")
	} else {
		baseLogger.Warn("whatsapp credentials missing, notifications are only logged")
		sender = notify.LogSender(logger.Named(baseLogger, "notify.log"))
	}
	dispatcher := notify.NewDispatcher(sender, cfg.Notifications.QueueSize, cfg.Notifications.Workers, logger.Named(baseLogger, "notify"))
	dispatcher.Start()
	defer dispatcher.Stop()

	batchSvc := batchsvc.NewService(store, settingsProvider, dispatcher, logger.Named(baseLogger, "svc.batches"))
	paymentSvc := paymentsvc.NewService(store, settingsProvider, dispatcher, logger.Named(baseLogger, "svc.payments"))
	reportingSvc := reportingsvc.NewService(store, dispatcher, logger.Named(baseLogger, "svc.reporting"))

	batchHandler := handlers.NewBatchHandler(batchSvc, reportingSvc, logger.Named(baseLogger, "handlers.batches"))
	paymentHandler := handlers.NewPaymentHandler(paymentSvc, logger.Named(baseLogger, "handlers.payments"))
	engine := router.New(batchHandler, paymentHandler, logger.Named(baseLogger, "router"))

	sched, err := scheduler.NewScheduler(cfg.Scheduler, store, paymentSvc, reportingSvc, locker, logger.Named(baseLogger, "scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
