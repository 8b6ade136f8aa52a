package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/email"
	"github.com/jwalitptl/clinic-api/internal/handler/health"
	promHandler "github.com/jwalitptl/clinic-api/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	auditService "github.com/jwalitptl/clinic-api/internal/service/audit"
	internalWorker "github.com/jwalitptl/clinic-api/internal/worker"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/worker"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "clinic-worker",
		Short:        "Outbox relay, maintenance and discharge notifications",
		SilenceUsage: true,
		RunE:         run,
	}
	cmd.Flags().String("config", "", "path to config file")
	cmd.Flags().String("health-addr", ":8081", "address for health and metrics endpoints")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	healthAddr, _ := cmd.Flags().GetString("health-addr")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	l := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, l)
	if err != nil {
		return fmt.Errorf("failed to create Redis broker: %w", err)
	}
	defer broker.Close()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer, "clinic")

	outboxRepo := postgres.NewOutboxRepository(db)
	processor, err := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		worker.OutboxProcessorConfig{
			Channel:       cfg.Outbox.Channel,
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay,
		},
		l,
		m,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox processor: %w", err)
	}

	maintenance, err := internalWorker.NewMaintenanceWorker(
		outboxRepo,
		auditService.NewService(postgres.NewAuditRepository(db)),
		internalWorker.MaintenanceConfig{
			Interval:        cfg.Audit.CleanupInterval,
			StaleAfter:      cfg.Outbox.StaleAfter,
			OutboxRetention: cfg.Outbox.Retention,
			AuditRetention:  cfg.Audit.Retention,
		},
		l,
	)
	if err != nil {
		return fmt.Errorf("failed to create maintenance worker: %w", err)
	}

	mailer := email.NewLogService(l)
	if cfg.SMTP.Enabled() {
		mailer = email.NewSMTPService(cfg.SMTP)
	}
	notifier := internalWorker.NewDischargeNotifier(
		broker,
		cfg.Outbox.Channel,
		postgres.NewPatientRepository(db),
		postgres.NewUserRepository(db),
		mailer,
		l,
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	health.NewHandler(map[string]health.Check{
		"database":           db.PingContext,
		"discharge_notifier": notifier.Ready,
	}).RegisterRoutes(engine)
	engine.GET("/metrics", promHandler.New(prometheus.DefaultGatherer).Handler())
	srv := &http.Server{Addr: healthAddr, Handler: engine}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("health server failed")
			cancel()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		maintenance.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		notifier.Start(ctx)
	}()

	<-ctx.Done()
	l.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("health server forced to shutdown")
	}
	wg.Wait()
	return nil
}
