package labtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type Service struct {
	repo    repository.LabTestRepository
	auditor audit.Auditor
	logger  zerolog.Logger

	now func() time.Time
}

func NewService(repo repository.LabTestRepository, auditor audit.Auditor, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		logger:  logger.With().Str("component", "labtest-service").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) List(ctx context.Context, actor *model.Actor, filter *model.LabTestFilter) ([]*model.LabTest, int, error) {
	filter.Normalize()
	if !actor.Can(model.CapViewAll) {
		filter.PatientUserID = &actor.ID
	}
	tests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list lab tests: %w", err)
	}
	return tests, total, nil
}

// Get returns one lab test. A patient only sees tests on their own visits.
func (s *Service) Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.LabTest, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if actor.Can(model.CapViewAll) {
		return t, nil
	}

	_, total, err := s.repo.List(ctx, &model.LabTestFilter{
		Pagination:    model.Pagination{Limit: 1},
		VisitID:       &t.VisitID,
		PatientUserID: &actor.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check lab test owner: %w", err)
	}
	if total == 0 {
		return nil, apperrors.NotFound("lab test", repository.ErrNotFound)
	}
	return t, nil
}

// Complete records results for a requested or in-progress test.
func (s *Service) Complete(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.CompleteLabTestRequest) (*model.LabTest, error) {
	if !actor.Can(model.CapCompleteLabTest) {
		return nil, apperrors.Forbidden("only laboratory staff or admins can complete lab tests")
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	switch t.Status {
	case model.LabTestStatusCompleted, model.LabTestStatusCancelled:
		return nil, apperrors.Conflict(fmt.Sprintf("lab test is already %s", t.Status), nil)
	}

	now := s.now()
	t.Status = model.LabTestStatusCompleted
	t.Results = req.Results
	t.Interpretation = req.Interpretation
	if req.NormalRange != "" {
		t.NormalRange = req.NormalRange
	}
	t.PerformedByID = &actor.ID
	t.CompletedAt = &now

	if err := s.repo.Complete(ctx, t); err != nil {
		return nil, mapRepoError(err)
	}

	if s.auditor != nil {
		if err := s.auditor.Log(ctx, actor.ID, model.AuditActionComplete, model.AuditEntityLabTest, t.ID, &audit.LogOptions{
			Changes: map[string]interface{}{"status": t.Status, "visit_id": t.VisitID},
		}); err != nil {
			s.logger.Error().Err(err).Str("lab_test_id", t.ID.String()).Msg("failed to write audit log")
		}
	}
	s.logger.Info().
		Str("lab_test_id", t.ID.String()).
		Str("visit_id", t.VisitID.String()).
		Str("actor_id", actor.ID.String()).
		Msg("lab test completed")
	return t, nil
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("lab test", err)
	case errors.Is(err, repository.ErrStateConflict):
		return apperrors.Conflict("lab test is no longer pending", err)
	}
	return fmt.Errorf("failed to access lab test: %w", err)
}
