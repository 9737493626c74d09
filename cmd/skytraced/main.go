package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"skytrace-backend/config"
	"skytrace-backend/internal/api"
	"skytrace-backend/internal/bus"
	"skytrace-backend/internal/db"
	"skytrace-backend/internal/notification"
	"skytrace-backend/internal/scheduler"
	"skytrace-backend/internal/source"
	"skytrace-backend/internal/store"
)

func initLogger(cfg *config.Config) {
	var logLevel slog.Level
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	if logLevel != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func jobSpec(j config.JobConfig) scheduler.JobSpec {
	name := j.Name
	if name == "" {
		name = j.ID
	}
	return scheduler.JobSpec{
		ID:              j.ID,
		Name:            name,
		ClientType:      j.ClientType,
		Config:          j.Config,
		IntervalMinutes: j.IntervalMinutes,
		Tenant:          j.Tenant,
		Enabled:         j.Enabled,
	}
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("failed to load configuration", "path", configPath, "error", err)
	}
	initLogger(cfg)
	slog.Info("configuration loaded", "path", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		fatal("failed to initialize database", "error", err)
	}
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, t := range cfg.Scheduler.Tenants {
		name := t.Name
		if name == "" {
			name = t.Slug
		}
		tenant, err := appStore.EnsureTenant(ctx, t.Slug, name)
		if err != nil {
			fatal("failed to provision tenant", "slug", t.Slug, "error", err)
		}
		slog.Info("tenant ready", "slug", tenant.Slug, "tenant_id", tenant.ID)
	}
	if *cfg.Scheduler.AutoCreateDefaultTenant {
		if _, err := appStore.EnsureTenant(ctx, cfg.Scheduler.DefaultTenant, scheduler.DefaultTenantName); err != nil {
			fatal("failed to provision default tenant", "slug", cfg.Scheduler.DefaultTenant, "error", err)
		}
	}

	sched := scheduler.New(source.DefaultRegistry(), source.Env{
		Store:        appStore,
		ADSBExchange: cfg.ADSBExchange,
		FetchTimeout: cfg.Scheduler.FetchTimeout,
	}, scheduler.Options{
		PollInterval:            cfg.Scheduler.PollInterval,
		DefaultTenant:           cfg.Scheduler.DefaultTenant,
		AutoCreateDefaultTenant: *cfg.Scheduler.AutoCreateDefaultTenant,
		PersistJobs:             cfg.Scheduler.PersistJobs,
	})

	publisher, err := bus.NewPublisher(cfg.NATS.URL, cfg.NATS.Subject)
	if err != nil {
		fatal("failed to connect to NATS", "url", cfg.NATS.URL, "error", err)
	}
	defer publisher.Close()
	sched.SetPublisher(publisher)

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
		sched.SetAlertDispatcher(workerPool)
	} else {
		slog.Warn("VAPID keys are not configured, emergency alerts are disabled")
	}

	responseCache := cache.New(cfg.Server.CacheTTL, 2*cfg.Server.CacheTTL)
	sched.OnRun(func(scheduler.RunEvent) { responseCache.Flush() })

	for _, j := range cfg.Scheduler.Jobs {
		if _, err := sched.RegisterJob(jobSpec(j)); err != nil {
			slog.Error("skipping configured job", "job_id", j.ID, "error", err)
		}
	}
	if cfg.Scheduler.PersistJobs {
		if err := sched.LoadPersisted(ctx); err != nil {
			fatal("failed to load persisted jobs", "error", err)
		}
	}

	if cfg.Scheduler.Enabled {
		sched.Start(ctx)
	} else {
		slog.Info("scheduler is disabled, jobs run only on demand")
	}

	handler := api.NewHandler(appStore, sched, webpushOptions, cfg.Scheduler.DefaultTenant)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server, responseCache),
	}

	go func() {
		slog.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("HTTP server ListenAndServe", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	slog.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server Shutdown", "error", err)
	}
	sched.Stop()
	cancel()

	slog.Info("server gracefully stopped")
}
