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

const labTestColumns = `id, visit_id, test_name, test_type, status, requested_by, performed_by,
	results, normal_range, interpretation, requested_at, completed_at, created_at, updated_at`

type labTestRepository struct {
	db *sqlx.DB
}

func NewLabTestRepository(db *sqlx.DB) repository.LabTestRepository {
	return &labTestRepository{db: db}
}

func insertLabTest(ctx context.Context, tx *sqlx.Tx, t *model.LabTest) error {
	query := `
		INSERT INTO lab_tests (
			id, visit_id, test_name, test_type, status, requested_by,
			requested_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	if t.RequestedAt.IsZero() {
		t.RequestedAt = now
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := tx.ExecContext(ctx, query,
		t.ID,
		t.VisitID,
		t.TestName,
		t.TestType,
		t.Status,
		t.RequestedByID,
		t.RequestedAt,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lab test: %w", err)
	}
	return nil
}

func (r *labTestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.LabTest, error) {
	var t model.LabTest
	err := r.db.GetContext(ctx, &t, `SELECT `+labTestColumns+` FROM lab_tests WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get lab test: %w", mapError(err))
	}
	return &t, nil
}

func (r *labTestRepository) List(ctx context.Context, filter *model.LabTestFilter) ([]*model.LabTest, int, error) {
	from := ` FROM lab_tests t`
	where := ` WHERE 1=1`
	var args []interface{}

	if filter.PatientUserID != nil {
		from += ` JOIN visits v ON v.id = t.visit_id JOIN patients p ON p.id = v.patient_id`
		args = append(args, *filter.PatientUserID)
		where += fmt.Sprintf(" AND p.user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND t.status = $%d", len(args))
	}
	if filter.VisitID != nil {
		args = append(args, *filter.VisitID)
		where += fmt.Sprintf(" AND t.visit_id = $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+from+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count lab tests: %w", err)
	}

	query, args := page(`SELECT `+qualify(labTestColumns, "t")+from+where+` ORDER BY t.requested_at DESC`, args, filter.Limit, filter.Offset)

	tests := []*model.LabTest{}
	if err := r.db.SelectContext(ctx, &tests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list lab tests: %w", err)
	}
	return tests, total, nil
}

func (r *labTestRepository) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*model.LabTest, error) {
	tests := []*model.LabTest{}
	query := `SELECT ` + labTestColumns + ` FROM lab_tests WHERE visit_id = $1 ORDER BY requested_at ASC, created_at ASC`
	if err := r.db.SelectContext(ctx, &tests, query, visitID); err != nil {
		return nil, fmt.Errorf("failed to list visit lab tests: %w", err)
	}
	return tests, nil
}

func (r *labTestRepository) Complete(ctx context.Context, t *model.LabTest) error {
	query := `
		UPDATE lab_tests SET
			status = $1,
			results = $2,
			interpretation = $3,
			normal_range = $4,
			performed_by = $5,
			completed_at = $6,
			updated_at = $7
		WHERE id = $8 AND status IN ($9, $10)
	`
	t.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, query,
		t.Status,
		t.Results,
		t.Interpretation,
		t.NormalRange,
		t.PerformedByID,
		t.CompletedAt,
		t.UpdatedAt,
		t.ID,
		model.LabTestStatusRequested,
		model.LabTestStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to complete lab test: %w", err)
	}
	if err := guardedUpdate(ctx, r.db, res, "lab_tests", t.ID); err != nil {
		return fmt.Errorf("failed to complete lab test: %w", err)
	}
	return nil
}
