package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/repository"
)

// AuditCleaner deletes audit entries older than a cutoff.
type AuditCleaner interface {
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// MaintenanceConfig sets the loop interval and the age cutoffs. Outbox events
// claimed longer ago than StaleAfter go back to pending.
type MaintenanceConfig struct {
	Interval        time.Duration
	StaleAfter      time.Duration
	OutboxRetention time.Duration
	AuditRetention  time.Duration
}

// MaintenanceWorker periodically requeues stuck outbox events and prunes
// processed events and old audit entries.
type MaintenanceWorker struct {
	outbox repository.OutboxRepository
	audit  AuditCleaner
	config MaintenanceConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewMaintenanceWorker(
	outbox repository.OutboxRepository,
	audit AuditCleaner,
	config MaintenanceConfig,
	logger zerolog.Logger,
) (*MaintenanceWorker, error) {
	if config.Interval <= 0 {
		return nil, errors.New("maintenance interval must be greater than 0")
	}
	return &MaintenanceWorker{
		outbox: outbox,
		audit:  audit,
		config: config,
		logger: logger.With().Str("component", "maintenance").Logger(),
		now:    time.Now,
	}, nil
}

func (w *MaintenanceWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error().Err(err).Msg("maintenance run failed")
			}
		}
	}
}

// RunOnce performs every enabled task. A zero duration disables its task.
// Tasks run independently; the returned error joins their failures.
func (w *MaintenanceWorker) RunOnce(ctx context.Context) error {
	now := w.now()
	var errs []error

	if w.config.StaleAfter > 0 {
		n, err := w.outbox.ReleaseStale(ctx, now.Add(-w.config.StaleAfter))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to release stale outbox events: %w", err))
		} else if n > 0 {
			w.logger.Warn().Int64("count", n).Msg("released stale outbox events")
		}
	}

	if w.config.OutboxRetention > 0 {
		n, err := w.outbox.DeleteProcessedBefore(ctx, now.Add(-w.config.OutboxRetention))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete processed outbox events: %w", err))
		} else {
			w.logger.Debug().Int64("count", n).Msg("deleted processed outbox events")
		}
	}

	if w.audit != nil && w.config.AuditRetention > 0 {
		cutoff := now.Add(-w.config.AuditRetention)
		n, err := w.audit.Cleanup(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to cleanup audit logs: %w", err))
		} else {
			w.logger.Info().Int64("count", n).Time("cutoff", cutoff).Msg("cleaned up audit logs")
		}
	}

	return errors.Join(errs...)
}
