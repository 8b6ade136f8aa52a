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

const visitColumns = `id, patient_id, stage, chief_complaint, symptoms, check_in_time, discharge_time,
	vital_signs, triage_notes, triage_completed_by, triage_completed_at,
	questioning_findings, questioning_completed_at, attending_doctor_id,
	lab_findings, lab_completed_at, diagnosis, treatment_plan, final_findings,
	version, created_at, updated_at`

type visitRepository struct {
	BaseRepository
}

func NewVisitRepository(db *sqlx.DB) repository.VisitRepository {
	return &visitRepository{NewBaseRepository(db)}
}

func (r *visitRepository) Create(ctx context.Context, visit *model.Visit, events ...*model.OutboxEvent) error {
	query := `
		INSERT INTO visits (
			id, patient_id, stage, chief_complaint, symptoms, check_in_time,
			vital_signs, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if visit.ID == uuid.Nil {
		visit.ID = uuid.New()
	}
	if visit.Version == 0 {
		visit.Version = 1
	}
	now := time.Now().UTC()
	visit.CreatedAt = now
	visit.UpdatedAt = now

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, query,
			visit.ID,
			visit.PatientID,
			visit.Stage,
			visit.ChiefComplaint,
			visit.Symptoms,
			visit.CheckInTime,
			visit.VitalSigns,
			visit.Version,
			visit.CreatedAt,
			visit.UpdatedAt,
		); err != nil {
			return err
		}
		return insertOutboxEvents(ctx, tx, events)
	})
	if err != nil {
		return fmt.Errorf("failed to create visit: %w", mapError(err))
	}
	return nil
}

func (r *visitRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Visit, error) {
	var visit model.Visit
	err := r.db.GetContext(ctx, &visit, `SELECT `+visitColumns+` FROM visits WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", mapError(err))
	}
	return &visit, nil
}

func (r *visitRepository) List(ctx context.Context, filter *model.VisitFilter) ([]*model.Visit, int, error) {
	from := ` FROM visits v`
	where := ` WHERE 1=1`
	var args []interface{}

	if filter.PatientUserID != nil {
		from += ` JOIN patients p ON p.id = v.patient_id`
		args = append(args, *filter.PatientUserID)
		where += fmt.Sprintf(" AND p.user_id = $%d", len(args))
	}
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		where += fmt.Sprintf(" AND v.patient_id = $%d", len(args))
	}
	if filter.Stage != "" {
		args = append(args, filter.Stage)
		where += fmt.Sprintf(" AND v.stage = $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+from+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count visits: %w", err)
	}

	query, args := page(`SELECT `+qualify(visitColumns, "v")+from+where+` ORDER BY v.check_in_time DESC`, args, filter.Limit, filter.Offset)

	visits := []*model.Visit{}
	if err := r.db.SelectContext(ctx, &visits, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, total, nil
}

func (r *visitRepository) Queue(ctx context.Context) ([]*model.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE stage <> $1 ORDER BY check_in_time ASC`

	visits := []*model.Visit{}
	if err := r.db.SelectContext(ctx, &visits, query, model.StageDischarged); err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	return visits, nil
}

func (r *visitRepository) ApplyTransition(ctx context.Context, w *repository.TransitionWrite) error {
	v := w.Visit
	update := `
		UPDATE visits SET
			stage = $1,
			discharge_time = $2,
			vital_signs = $3,
			triage_notes = $4,
			triage_completed_by = $5,
			triage_completed_at = $6,
			questioning_findings = $7,
			questioning_completed_at = $8,
			attending_doctor_id = $9,
			lab_findings = $10,
			lab_completed_at = $11,
			diagnosis = $12,
			treatment_plan = $13,
			final_findings = $14,
			updated_at = $15,
			version = version + 1
		WHERE id = $16 AND version = $17
	`
	now := time.Now().UTC()

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, update,
			v.Stage,
			v.DischargeTime,
			v.VitalSigns,
			v.TriageNotes,
			v.TriageCompletedBy,
			v.TriageCompletedAt,
			v.QuestioningFindings,
			v.QuestioningCompletedAt,
			v.AttendingDoctorID,
			v.LabFindings,
			v.LabCompletedAt,
			v.Diagnosis,
			v.TreatmentPlan,
			v.FinalFindings,
			now,
			v.ID,
			v.Version,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM visits WHERE id = $1)`, v.ID); err != nil {
				return err
			}
			if !exists {
				return repository.ErrNotFound
			}
			return repository.ErrVersionConflict
		}

		for _, t := range w.LabTests {
			if err := insertLabTest(ctx, tx, t); err != nil {
				return err
			}
		}

		if w.Prescription != nil {
			if err := upsertPrescription(ctx, tx, w.Prescription); err != nil {
				return err
			}
		}

		return insertOutboxEvents(ctx, tx, w.Events)
	})
	if err != nil {
		return fmt.Errorf("failed to apply visit transition: %w", mapError(err))
	}

	v.Version++
	v.UpdatedAt = now
	return nil
}

// qualify prefixes every column in a comma separated list with alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
