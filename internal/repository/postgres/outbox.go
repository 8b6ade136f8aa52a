package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

const outboxColumns = `id, aggregate_id, event_type, payload, status, error_message, retry_count,
	created_at, updated_at, processed_at`

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{NewBaseRepository(db)}
}

// insertOutboxEvents writes events inside the caller's transaction.
func insertOutboxEvents(ctx context.Context, tx *sqlx.Tx, events []*model.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (
			id, aggregate_id, event_type, payload, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, e := range events {
		if e == nil {
			continue
		}
		if e.Payload == nil {
			return fmt.Errorf("event payload cannot be nil")
		}
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.Status == "" {
			e.Status = model.OutboxStatusPending
		}
		if _, err := tx.ExecContext(ctx, query,
			e.ID,
			e.AggregateID,
			e.EventType,
			[]byte(e.Payload),
			e.Status,
			e.CreatedAt,
			e.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}
	return nil
}

func (r *outboxRepository) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE outbox_events SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	events := []*model.OutboxEvent{}
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &events, query,
			model.OutboxStatusProcessing, model.OutboxStatusPending, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_events
		SET status = $1, error_message = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, model.OutboxStatusProcessed, id); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, error_message = $2, retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $3
	`
	if _, err := r.db.ExecContext(ctx, query, model.OutboxStatusFailed, reason, id); err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

func (r *outboxRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE outbox_events SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < $3
	`
	res, err := r.db.ExecContext(ctx, query, model.OutboxStatusPending, model.OutboxStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale events: %w", err)
	}
	return res.RowsAffected()
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = $1
		AND processed_at < $2
	`
	res, err := r.db.ExecContext(ctx, query, model.OutboxStatusProcessed, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	return res.RowsAffected()
}
