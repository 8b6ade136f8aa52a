package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	appointmentHandler "github.com/jwalitptl/clinic-api/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/clinic-api/internal/handler/audit"
	"github.com/jwalitptl/clinic-api/internal/handler/health"
	labTestHandler "github.com/jwalitptl/clinic-api/internal/handler/labtest"
	patientHandler "github.com/jwalitptl/clinic-api/internal/handler/patient"
	prescriptionHandler "github.com/jwalitptl/clinic-api/internal/handler/prescription"
	promHandler "github.com/jwalitptl/clinic-api/internal/handler/prometheus"
	userHandler "github.com/jwalitptl/clinic-api/internal/handler/user"
	visitHandler "github.com/jwalitptl/clinic-api/internal/handler/visit"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-api/internal/router"
	appointmentService "github.com/jwalitptl/clinic-api/internal/service/appointment"
	auditService "github.com/jwalitptl/clinic-api/internal/service/audit"
	labTestService "github.com/jwalitptl/clinic-api/internal/service/labtest"
	patientService "github.com/jwalitptl/clinic-api/internal/service/patient"
	prescriptionService "github.com/jwalitptl/clinic-api/internal/service/prescription"
	userService "github.com/jwalitptl/clinic-api/internal/service/user"
	visitService "github.com/jwalitptl/clinic-api/internal/service/visit"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "listen port, overrides server.port")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, l, err := setup(cmd, false)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer, "clinic")

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	visitRepo := postgres.NewVisitRepository(db)
	labTestRepo := postgres.NewLabTestRepository(db)
	prescriptionRepo := postgres.NewPrescriptionRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Initialize services
	auditSvc := auditService.NewService(auditRepo)
	visitSvc := visitService.NewService(visitRepo, patientRepo, labTestRepo, prescriptionRepo, auditSvc, m, l)
	labTestSvc := labTestService.NewService(labTestRepo, auditSvc, l)
	prescriptionSvc := prescriptionService.NewService(prescriptionRepo, auditSvc, l)
	patientSvc := patientService.NewService(patientRepo, userRepo, auditSvc)
	appointmentSvc := appointmentService.NewService(appointmentRepo, patientRepo, userRepo, visitRepo, auditSvc, l)
	userSvc := userService.NewService(userRepo, security.NewBcryptHasher(0), auditSvc)

	jwtSvc := auth.NewJWTService(auth.Config{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc, userRepo, cfg.Auth.ActorCacheTTL)
	userSvc.OnUserChanged(authMiddleware.Invalidate)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	}

	healthH := health.NewHandler(map[string]health.Check{
		"database": db.PingContext,
	})

	r, err := router.NewRouter(
		authMiddleware,
		router.Handlers{
			Visit:        visitHandler.NewHandler(visitSvc),
			LabTest:      labTestHandler.NewHandler(labTestSvc),
			Prescription: prescriptionHandler.NewHandler(prescriptionSvc),
			Patient:      patientHandler.NewHandler(patientSvc),
			Appointment:  appointmentHandler.NewHandler(appointmentSvc),
			User:         userHandler.NewHandler(userSvc),
			Audit:        auditHandler.NewHandler(auditSvc),
		},
		healthH,
		promHandler.New(prometheus.DefaultGatherer).Handler(),
		m,
		l,
		router.RouterConfig{
			Mode:             cfg.Server.Mode,
			RequestTimeout:   cfg.Server.RequestTimeout,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RPS),
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       corsConfig,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		l.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	l.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}
	l.Info().Msg("server exited")
	return nil
}
