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

const prescriptionColumns = `id, visit_id, prescribed_by, medications, instructions, notes, valid_until,
	is_dispensed, dispensed_at, dispensed_by, created_at, updated_at`

type prescriptionRepository struct {
	db *sqlx.DB
}

func NewPrescriptionRepository(db *sqlx.DB) repository.PrescriptionRepository {
	return &prescriptionRepository{db: db}
}

// upsertPrescription creates the visit's prescription or overwrites the
// medication list of the existing one. p is refreshed from the stored row.
func upsertPrescription(ctx context.Context, tx *sqlx.Tx, p *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (id, visit_id, prescribed_by, medications, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (visit_id) DO UPDATE SET
			medications = EXCLUDED.medications,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + prescriptionColumns

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	err := tx.QueryRowxContext(ctx, query,
		p.ID,
		p.VisitID,
		p.PrescribedByID,
		p.Medications,
		time.Now().UTC(),
	).StructScan(p)
	if err != nil {
		return fmt.Errorf("failed to upsert prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	var p model.Prescription
	err := r.db.GetContext(ctx, &p, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get prescription: %w", mapError(err))
	}
	return &p, nil
}

func (r *prescriptionRepository) GetByVisitID(ctx context.Context, visitID uuid.UUID) (*model.Prescription, error) {
	var p model.Prescription
	err := r.db.GetContext(ctx, &p, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE visit_id = $1`, visitID)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit prescription: %w", mapError(err))
	}
	return &p, nil
}

func (r *prescriptionRepository) List(ctx context.Context, filter *model.PrescriptionFilter) ([]*model.Prescription, int, error) {
	from := ` FROM prescriptions rx`
	where := ` WHERE 1=1`
	var args []interface{}

	if filter.PatientUserID != nil {
		from += ` JOIN visits v ON v.id = rx.visit_id JOIN patients p ON p.id = v.patient_id`
		args = append(args, *filter.PatientUserID)
		where += fmt.Sprintf(" AND p.user_id = $%d", len(args))
	}
	if filter.Dispensed != nil {
		args = append(args, *filter.Dispensed)
		where += fmt.Sprintf(" AND rx.is_dispensed = $%d", len(args))
	}
	if filter.VisitID != nil {
		args = append(args, *filter.VisitID)
		where += fmt.Sprintf(" AND rx.visit_id = $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+from+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count prescriptions: %w", err)
	}

	query, args := page(`SELECT `+qualify(prescriptionColumns, "rx")+from+where+` ORDER BY rx.created_at DESC`, args, filter.Limit, filter.Offset)

	list := []*model.Prescription{}
	if err := r.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return list, total, nil
}

func (r *prescriptionRepository) MarkDispensed(ctx context.Context, p *model.Prescription) error {
	query := `
		UPDATE prescriptions SET
			is_dispensed = TRUE,
			dispensed_at = $1,
			dispensed_by = $2,
			updated_at = $3
		WHERE id = $4 AND is_dispensed = FALSE
	`
	p.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, query, p.DispensedAt, p.DispensedBy, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to dispense prescription: %w", err)
	}
	if err := guardedUpdate(ctx, r.db, res, "prescriptions", p.ID); err != nil {
		return fmt.Errorf("failed to dispense prescription: %w", err)
	}
	p.IsDispensed = true
	return nil
}
