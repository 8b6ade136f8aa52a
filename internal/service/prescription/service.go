package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type Service struct {
	repo    repository.PrescriptionRepository
	auditor audit.Auditor
	logger  zerolog.Logger

	now func() time.Time
}

func NewService(repo repository.PrescriptionRepository, auditor audit.Auditor, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		logger:  logger.With().Str("component", "prescription-service").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) List(ctx context.Context, actor *model.Actor, filter *model.PrescriptionFilter) ([]*model.Prescription, int, error) {
	filter.Normalize()
	if !actor.Can(model.CapViewAll) {
		filter.PatientUserID = &actor.ID
	}
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return list, total, nil
}

func (s *Service) Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if actor.Can(model.CapViewAll) {
		return p, nil
	}

	_, total, err := s.repo.List(ctx, &model.PrescriptionFilter{
		Pagination:    model.Pagination{Limit: 1},
		VisitID:       &p.VisitID,
		PatientUserID: &actor.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check prescription owner: %w", err)
	}
	if total == 0 {
		return nil, apperrors.NotFound("prescription", repository.ErrNotFound)
	}
	return p, nil
}

// Dispense marks a prescription as handed out. The dispenser name defaults to
// the acting user's name.
func (s *Service) Dispense(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.DispenseRequest) (*model.Prescription, error) {
	if !actor.Can(model.CapDispense) {
		return nil, apperrors.Forbidden("only clinic staff can dispense prescriptions")
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if p.IsDispensed {
		return nil, apperrors.Conflict("prescription is already dispensed", nil)
	}

	now := s.now()
	p.DispensedAt = &now
	p.DispensedBy = strings.TrimSpace(req.DispensedBy)
	if p.DispensedBy == "" {
		p.DispensedBy = actor.Name
	}

	if err := s.repo.MarkDispensed(ctx, p); err != nil {
		return nil, mapRepoError(err)
	}
	p.IsDispensed = true

	if s.auditor != nil {
		if err := s.auditor.Log(ctx, actor.ID, model.AuditActionDispense, model.AuditEntityPrescription, p.ID, &audit.LogOptions{
			Changes: map[string]interface{}{"dispensed_by": p.DispensedBy, "visit_id": p.VisitID},
		}); err != nil {
			s.logger.Error().Err(err).Str("prescription_id", p.ID.String()).Msg("failed to write audit log")
		}
	}
	s.logger.Info().
		Str("prescription_id", p.ID.String()).
		Str("visit_id", p.VisitID.String()).
		Str("actor_id", actor.ID.String()).
		Msg("prescription dispensed")
	return p, nil
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("prescription", err)
	case errors.Is(err, repository.ErrStateConflict):
		return apperrors.Conflict("prescription is already dispensed", err)
	}
	return fmt.Errorf("failed to access prescription: %w", err)
}
