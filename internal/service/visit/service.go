package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

var (
	ErrInvalidStage = errors.New("invalid stage")
	ErrForbidden    = errors.New("forbidden")
)

func invalidStage() error {
	return apperrors.BadRequest(ErrInvalidStage.Error(), ErrInvalidStage)
}

func forbidden(reason string) error {
	err := apperrors.Forbidden(reason)
	err.Err = ErrForbidden
	return err
}

// Service runs the visit workflow: check-in, queue views and stage moves.
type Service struct {
	visits        repository.VisitRepository
	patients      repository.PatientRepository
	labTests      repository.LabTestRepository
	prescriptions repository.PrescriptionRepository
	auditor       audit.Auditor
	metrics       *metrics.Metrics
	logger        zerolog.Logger

	now func() time.Time
}

func NewService(
	visits repository.VisitRepository,
	patients repository.PatientRepository,
	labTests repository.LabTestRepository,
	prescriptions repository.PrescriptionRepository,
	auditor audit.Auditor,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	if m == nil {
		m = metrics.NewMetrics(prometheus.NewRegistry(), "clinic")
	}
	return &Service{
		visits:        visits,
		patients:      patients,
		labTests:      labTests,
		prescriptions: prescriptions,
		auditor:       auditor,
		metrics:       m,
		logger:        logger.With().Str("component", "visit-service").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CheckIn opens a new visit for a patient in the waiting room.
func (s *Service) CheckIn(ctx context.Context, actor *model.Actor, req *model.CheckInRequest) (*model.Visit, error) {
	if !actor.Can(model.CapMoveStage) {
		return nil, forbidden("only clinic staff can check in patients")
	}

	if _, err := s.patients.GetByID(ctx, req.PatientID); err != nil {
		return nil, mapRepoError("patient", err)
	}

	now := s.now()
	v := &model.Visit{
		Base:           model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientID:      req.PatientID,
		Stage:          model.StageWaitingRoom,
		ChiefComplaint: req.ChiefComplaint,
		Symptoms:       req.Symptoms,
		CheckInTime:    now,
		VitalSigns:     model.JSONMap{},
		Version:        1,
		LabTests:       []*model.LabTest{},
	}

	event, err := model.NewOutboxEvent(v.ID, model.EventVisitCheckedIn, model.VisitCheckedInPayload{
		VisitID:     v.ID,
		PatientID:   v.PatientID,
		CheckInTime: now,
		ActorID:     actor.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build checked in event: %w", err)
	}

	if err := s.visits.Create(ctx, v, event); err != nil {
		return nil, fmt.Errorf("failed to create visit: %w", err)
	}

	s.audit(ctx, actor, model.AuditActionCheckIn, v.ID, map[string]interface{}{
		"patient_id": v.PatientID,
		"stage":      v.Stage,
	})
	s.logger.Info().
		Str("visit_id", v.ID.String()).
		Str("patient_id", v.PatientID.String()).
		Str("actor_id", actor.ID.String()).
		Msg("patient checked in")
	return v, nil
}

// Get returns a visit with its lab tests and prescription. Patients only see
// their own visits; anything else reads as not found.
func (s *Service) Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Visit, error) {
	v, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError("visit", err)
	}

	if !actor.Can(model.CapViewAll) {
		owned, err := s.ownsPatient(ctx, actor, v.PatientID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, apperrors.NotFound("visit", repository.ErrNotFound)
		}
	}

	if err := s.attachChildren(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) List(ctx context.Context, actor *model.Actor, filter *model.VisitFilter) ([]*model.Visit, int, error) {
	filter.Normalize()
	if !actor.Can(model.CapViewAll) {
		filter.PatientUserID = &actor.ID
	}

	visits, total, err := s.visits.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, total, nil
}

// Queue lists every visit that has not been discharged, oldest check-in first.
func (s *Service) Queue(ctx context.Context, actor *model.Actor) ([]*model.Visit, error) {
	if !actor.Can(model.CapViewAll) {
		return nil, forbidden("only clinic staff can view the queue")
	}
	visits, err := s.visits.Queue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	return visits, nil
}

// Transition moves a visit to req.Stage and applies whichever clinical fields
// the request carries. Either every change is persisted or none is.
func (s *Service) Transition(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.TransitionRequest) (*model.Visit, error) {
	if !req.Stage.Valid() {
		s.metrics.VisitTransitions.WithLabelValues("invalid", "invalid_stage").Inc()
		return nil, invalidStage()
	}
	stage := string(req.Stage)

	if !actor.Can(model.CapMoveStage) {
		s.metrics.VisitTransitions.WithLabelValues(stage, "forbidden").Inc()
		return nil, forbidden(reasonMoveStage)
	}

	current, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError("visit", err)
	}

	w, err := planTransition(current, actor, req, s.now())
	if err != nil {
		if apperrors.Is(err, apperrors.ErrForbidden) {
			s.metrics.VisitTransitions.WithLabelValues(stage, "forbidden").Inc()
			s.logger.Warn().
				Str("visit_id", id.String()).
				Str("actor_id", actor.ID.String()).
				Str("role", string(actor.Role)).
				Str("stage", stage).
				Err(err).
				Msg("transition rejected")
		}
		return nil, err
	}

	if err := s.visits.ApplyTransition(ctx, w); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.VisitTransitions.WithLabelValues(stage, "conflict").Inc()
		} else {
			s.metrics.VisitTransitions.WithLabelValues(stage, "error").Inc()
		}
		return nil, mapRepoError("visit", err)
	}
	s.metrics.VisitTransitions.WithLabelValues(stage, "success").Inc()
	s.metrics.LabTestsRequested.Add(float64(len(w.LabTests)))

	s.audit(ctx, actor, model.AuditActionStageChange, id, map[string]interface{}{
		"from":      current.Stage,
		"to":        w.Visit.Stage,
		"lab_tests": len(w.LabTests),
	})
	s.logger.Info().
		Str("visit_id", id.String()).
		Str("actor_id", actor.ID.String()).
		Str("from", string(current.Stage)).
		Str("to", stage).
		Int("version", w.Visit.Version).
		Msg("visit stage changed")

	next := w.Visit
	next.Prescription = w.Prescription
	if err := s.attachChildren(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Service) attachChildren(ctx context.Context, v *model.Visit) error {
	tests, err := s.labTests.ListByVisit(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("failed to load lab tests: %w", err)
	}
	v.LabTests = tests

	if v.Prescription != nil {
		return nil
	}
	rx, err := s.prescriptions.GetByVisitID(ctx, v.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return fmt.Errorf("failed to load prescription: %w", err)
	default:
		v.Prescription = rx
	}
	return nil
}

func (s *Service) ownsPatient(ctx context.Context, actor *model.Actor, patientID uuid.UUID) (bool, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get patient: %w", err)
	}
	return p.UserID != nil && *p.UserID == actor.ID, nil
}

func (s *Service) audit(ctx context.Context, actor *model.Actor, action string, visitID uuid.UUID, changes interface{}) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Log(ctx, actor.ID, action, model.AuditEntityVisit, visitID, &audit.LogOptions{Changes: changes})
	if err != nil {
		s.logger.Error().Err(err).Str("visit_id", visitID.String()).Msg("failed to write audit log")
	}
}

func mapRepoError(resource string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.Conflict("visit was modified concurrently", err)
	default:
		return fmt.Errorf("failed to access %s: %w", resource, err)
	}
}
