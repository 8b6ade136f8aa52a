package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

const appointmentColumns = `id, patient_id, doctor_id, booked_by, scheduled_at, duration_minutes,
	reason, notes, status, is_follow_up, previous_visit_id, cancel_reason, created_at, updated_at`

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{NewBaseRepository(db)}
}

// Create locks the doctor's user row so that concurrent bookings for the same
// doctor run the overlap check one at a time.
func (r *appointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var locked uuid.UUID
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, a.DoctorID); err != nil {
			return mapError(err)
		}

		var taken bool
		err := tx.GetContext(ctx, &taken, `
			SELECT EXISTS (
				SELECT 1 FROM appointments
				WHERE doctor_id = $1
				AND status IN ('scheduled', 'confirmed')
				AND scheduled_at < $3
				AND scheduled_at + make_interval(mins => duration_minutes) > $2
			)`, a.DoctorID, a.ScheduledAt, a.EndsAt())
		if err != nil {
			return fmt.Errorf("failed to check doctor schedule: %w", err)
		}
		if taken {
			return repository.ErrSlotTaken
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO appointments (
				id, patient_id, doctor_id, booked_by, scheduled_at, duration_minutes,
				reason, notes, status, is_follow_up, previous_visit_id, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			a.ID,
			a.PatientID,
			a.DoctorID,
			a.BookedByID,
			a.ScheduledAt,
			a.DurationMinutes,
			a.Reason,
			a.Notes,
			a.Status,
			a.IsFollowUp,
			a.PreviousVisitID,
			a.CreatedAt,
			a.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	err := r.db.GetContext(ctx, &a, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", mapError(err))
	}
	return &a, nil
}

func (r *appointmentRepository) List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, int, error) {
	from := ` FROM appointments a`
	where := ` WHERE 1=1`
	var args []interface{}

	if filter.PatientUserID != nil {
		from += ` JOIN patients p ON p.id = a.patient_id`
		args = append(args, *filter.PatientUserID)
		where += fmt.Sprintf(" AND p.user_id = $%d", len(args))
	}
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		where += fmt.Sprintf(" AND a.patient_id = $%d", len(args))
	}
	if filter.DoctorID != nil {
		args = append(args, *filter.DoctorID)
		where += fmt.Sprintf(" AND a.doctor_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND a.status = $%d", len(args))
	}
	if filter.IsFollowUp != nil {
		args = append(args, *filter.IsFollowUp)
		where += fmt.Sprintf(" AND a.is_follow_up = $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+from+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	query, args := page(`SELECT `+qualify(appointmentColumns, "a")+from+where+` ORDER BY a.scheduled_at ASC`, args, filter.Limit, filter.Offset)

	list := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return list, total, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, a *model.Appointment, from ...model.AppointmentStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("failed to update appointment: no source status given")
	}
	a.UpdatedAt = time.Now().UTC()

	args := []interface{}{a.Status, a.CancelReason, a.UpdatedAt, a.ID}
	placeholders := make([]string, len(from))
	for i, st := range from {
		args = append(args, st)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := `
		UPDATE appointments SET status = $1, cancel_reason = $2, updated_at = $3
		WHERE id = $4 AND status IN (` + strings.Join(placeholders, ", ") + `)`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	if err := guardedUpdate(ctx, r.db, res, "appointments", a.ID); err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return nil
}
