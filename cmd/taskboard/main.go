package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"taskboard/internal/auth"
	"taskboard/internal/bot"
	"taskboard/internal/config"
	"taskboard/internal/httpapi"
	"taskboard/internal/logging"
	"taskboard/internal/repository"
	"taskboard/internal/service"
	"taskboard/internal/storage"
)

const (
	orphanGrace     = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("load .env", "err", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config", "err", err)
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("stopped with error", "err", err)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	db, err := repository.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	files, err := storage.NewFileStore(cfg.BlobDir)
	if err != nil {
		return err
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	blobRepo := repository.NewBlobRepository(db)

	storageSvc := service.NewStorageService(blobRepo, files, service.StorageOptions{
		PublicURL: cfg.PublicURL,
		GrantTTL:  cfg.UploadGrantTTL,
		MaxBytes:  cfg.MaxUploadBytes,
	})
	taskSvc := service.NewTaskService(taskRepo)
	profileSvc := service.NewProfileService(profileRepo, userRepo, storageSvc, storageSvc)
	accountSvc := service.NewAccountService(userRepo, auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL), profileSvc, logger.WithPrefix("accounts"))
	maintenanceSvc := service.NewMaintenanceService(userRepo, blobRepo, storageSvc, orphanGrace, logger.WithPrefix("sweep"))
	digestSvc := service.NewDigestService(taskRepo)

	server, err := httpapi.New(httpapi.Deps{
		Tasks:    taskSvc,
		Profiles: profileSvc,
		Accounts: accountSvc,
		Storage:  storageSvc,
		Health:   sqlDB.PingContext,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	scheduler := service.NewSchedulerService(time.Local, logger.WithPrefix("scheduler"))
	if cfg.SweepInterval > 0 {
		if _, err := scheduler.ScheduleInterval(cfg.SweepInterval, service.Job{
			Name:    "sweep",
			Timeout: time.Minute,
			Run: func(ctx context.Context) error {
				_, err := maintenanceSvc.Sweep(ctx)
				return err
			},
		}); err != nil {
			return err
		}
	}

	var telegramBot *bot.Bot
	if cfg.TelegramEnabled() {
		telegramBot, err = bot.New(cfg.TelegramToken, bot.Deps{
			Accounts: accountSvc,
			Tasks:    taskSvc,
			Digest:   digestSvc,
			Users:    userRepo,
			Logger:   logger,
			Location: time.Local,
		})
		if err != nil {
			return err
		}
		if err := scheduleDigests(scheduler, cfg, telegramBot); err != nil {
			return err
		}
	} else {
		logger.Info("telegram token not set, bot disabled")
	}

	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(cfg.ListenAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if telegramBot != nil {
		g.Go(func() error {
			return telegramBot.Start(gctx)
		})
	}

	logger.Info("taskboard started", "addr", cfg.ListenAddr, "db", cfg.DatabaseDriver, "telegram", telegramBot != nil)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// scheduleDigests sends digests daily at DigestAt when set, otherwise every DigestInterval.
func scheduleDigests(scheduler *service.SchedulerService, cfg config.Config, telegramBot *bot.Bot) error {
	job := service.Job{
		Name:    "digest",
		Timeout: 5 * time.Minute,
		Run:     telegramBot.SendDigests,
	}
	switch {
	case cfg.DigestAt != "":
		_, err := scheduler.ScheduleDaily(cfg.DigestAt, job)
		return err
	case cfg.DigestInterval > 0:
		_, err := scheduler.ScheduleInterval(cfg.DigestInterval, job)
		return err
	}
	return nil
}
