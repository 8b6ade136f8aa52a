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

const patientColumns = `id, user_id, patient_number, name, age, gender, phone, priority, created_at, updated_at`

type patientRepository struct {
	db *sqlx.DB
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{db: db}
}

// Create inserts the patient; the patient number comes from a database
// sequence and is written back onto patient.
func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (id, user_id, name, age, gender, phone, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING patient_number
	`
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	if patient.Priority == "" {
		patient.Priority = model.PriorityStandard
	}
	now := time.Now().UTC()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	err := r.db.QueryRowxContext(ctx, query,
		patient.ID,
		patient.UserID,
		patient.Name,
		patient.Age,
		patient.Gender,
		patient.Phone,
		patient.Priority,
		patient.CreatedAt,
		patient.UpdatedAt,
	).Scan(&patient.PatientNumber)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", mapError(err))
	}
	return nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients SET
			name = $1,
			age = $2,
			gender = $3,
			phone = $4,
			priority = $5,
			updated_at = $6
		WHERE id = $7
	`
	patient.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, query,
		patient.Name,
		patient.Age,
		patient.Gender,
		patient.Phone,
		patient.Priority,
		patient.UpdatedAt,
		patient.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update patient: %w", repository.ErrNotFound)
	}
	return nil
}

func (r *patientRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", mapError(err))
	}
	return &patient, nil
}

func (r *patientRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, `SELECT `+patientColumns+` FROM patients WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient by user: %w", mapError(err))
	}
	return &patient, nil
}

func (r *patientRepository) List(ctx context.Context, filter *model.PatientFilter) ([]*model.Patient, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(" AND (name ILIKE $%d OR patient_number ILIKE $%d)", len(args), len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM patients`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count patients: %w", err)
	}

	query, args := page(`SELECT `+patientColumns+` FROM patients`+where+` ORDER BY created_at DESC`, args, filter.Limit, filter.Offset)

	patients := []*model.Patient{}
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, total, nil
}
