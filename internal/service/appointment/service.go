package appointment

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
	repo     repository.AppointmentRepository
	patients repository.PatientRepository
	users    repository.UserRepository
	visits   repository.VisitRepository
	auditor  audit.Auditor
	logger   zerolog.Logger

	now func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	patients repository.PatientRepository,
	users repository.UserRepository,
	visits repository.VisitRepository,
	auditor audit.Auditor,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		users:    users,
		visits:   visits,
		auditor:  auditor,
		logger:   logger.With().Str("component", "appointment-service").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Book reserves a slot with a doctor. Staff book for any patient; a patient
// books only for their own record. The booking user is recorded.
func (s *Service) Book(ctx context.Context, actor *model.Actor, req *model.BookAppointmentRequest) (*model.Appointment, error) {
	if !actor.Can(model.CapManagePatients) && actor.Role != model.RolePatient {
		return nil, apperrors.Forbidden("only clinic staff or patients can book appointments")
	}

	patient, err := s.patients.GetByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.BadRequest("patient does not exist", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	if !actor.Can(model.CapManagePatients) && !owns(actor, patient) {
		return nil, apperrors.Forbidden("patients can only book for themselves")
	}

	if err := s.checkDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	now := s.now()
	at := req.ScheduledAt.UTC()
	if !at.After(now) {
		return nil, apperrors.Validation("scheduled_at must be in the future")
	}
	if at.After(now.Add(model.MaxAdvanceBooking)) {
		return nil, apperrors.Validation("scheduled_at is too far in advance")
	}

	duration := req.DurationMinutes
	if duration == 0 {
		duration = model.DefaultAppointmentMinutes
	}

	a := &model.Appointment{
		Base:            model.Base{ID: uuid.New()},
		PatientID:       patient.ID,
		DoctorID:        req.DoctorID,
		BookedByID:      &actor.ID,
		ScheduledAt:     at,
		DurationMinutes: duration,
		Reason:          req.Reason,
		Notes:           req.Notes,
		Status:          model.AppointmentStatusScheduled,
	}

	if req.PreviousVisitID != nil {
		if err := s.checkPreviousVisit(ctx, patient.ID, *req.PreviousVisitID); err != nil {
			return nil, err
		}
		a.PreviousVisitID = req.PreviousVisitID
		a.IsFollowUp = true
	}

	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, apperrors.Conflict("doctor already has an appointment in this slot", err)
		}
		return nil, fmt.Errorf("failed to book appointment: %w", err)
	}

	s.audit(ctx, actor, model.AuditActionBook, a, map[string]interface{}{
		"patient_id":   a.PatientID,
		"doctor_id":    a.DoctorID,
		"scheduled_at": a.ScheduledAt,
		"is_follow_up": a.IsFollowUp,
	})
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Time("scheduled_at", a.ScheduledAt).
		Msg("appointment booked")
	return a, nil
}

func (s *Service) checkDoctor(ctx context.Context, id uuid.UUID) error {
	doctor, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.Validation("doctor_id must reference an active doctor")
		}
		return fmt.Errorf("failed to get doctor: %w", err)
	}
	if doctor.Role != model.RoleDoctor || !doctor.IsActive() {
		return apperrors.Validation("doctor_id must reference an active doctor")
	}
	return nil
}

// checkPreviousVisit accepts only a finished visit of the same patient.
func (s *Service) checkPreviousVisit(ctx context.Context, patientID, visitID uuid.UUID) error {
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.BadRequest("previous visit does not exist", err)
		}
		return fmt.Errorf("failed to get previous visit: %w", err)
	}
	if v.PatientID != patientID {
		return apperrors.Validation("previous visit belongs to another patient")
	}
	if v.Stage.Active() {
		return apperrors.Validation("previous visit has not been discharged")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if actor.Can(model.CapViewAll) {
		return a, nil
	}
	if err := s.checkOwner(ctx, actor, a); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns appointments in slot order. Patients only see their own.
func (s *Service) List(ctx context.Context, actor *model.Actor, filter *model.AppointmentFilter) ([]*model.Appointment, int, error) {
	filter.Normalize()
	if !actor.Can(model.CapViewAll) {
		filter.PatientUserID = &actor.ID
	}
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return list, total, nil
}

// Confirm moves a scheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Appointment, error) {
	if !actor.Can(model.CapManagePatients) {
		return nil, apperrors.Forbidden("only clinic staff can confirm appointments")
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if a.Status != model.AppointmentStatusScheduled {
		return nil, apperrors.Conflict(fmt.Sprintf("appointment is %s", a.Status), nil)
	}

	a.Status = model.AppointmentStatusConfirmed
	if err := s.repo.UpdateStatus(ctx, a, model.AppointmentStatusScheduled); err != nil {
		return nil, mapRepoError(err)
	}
	s.audit(ctx, actor, model.AuditActionConfirm, a, map[string]interface{}{"status": a.Status})
	return a, nil
}

// Cancel releases a scheduled or confirmed slot. Staff cancel any
// appointment; a patient cancels their own.
func (s *Service) Cancel(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.CancelAppointmentRequest) (*model.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !actor.Can(model.CapManagePatients) {
		if actor.Role != model.RolePatient {
			return nil, apperrors.Forbidden("only clinic staff or the patient can cancel an appointment")
		}
		if err := s.checkOwner(ctx, actor, a); err != nil {
			return nil, err
		}
	}

	switch a.Status {
	case model.AppointmentStatusScheduled, model.AppointmentStatusConfirmed:
	default:
		return nil, apperrors.Conflict(fmt.Sprintf("appointment is %s", a.Status), nil)
	}

	a.Status = model.AppointmentStatusCancelled
	a.CancelReason = req.Reason
	if err := s.repo.UpdateStatus(ctx, a, model.AppointmentStatusScheduled, model.AppointmentStatusConfirmed); err != nil {
		return nil, mapRepoError(err)
	}
	s.audit(ctx, actor, model.AuditActionCancel, a, map[string]interface{}{
		"status": a.Status,
		"reason": a.CancelReason,
	})
	return a, nil
}

// checkOwner hides appointments of other patients behind a 404.
func (s *Service) checkOwner(ctx context.Context, actor *model.Actor, a *model.Appointment) error {
	p, err := s.patients.GetByID(ctx, a.PatientID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to get patient: %w", err)
	}
	if err != nil || !owns(actor, p) {
		return apperrors.NotFound("appointment", repository.ErrNotFound)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, actor *model.Actor, action string, a *model.Appointment, changes map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(ctx, actor.ID, action, model.AuditEntityAppointment, a.ID, &audit.LogOptions{
		Changes: changes,
	}); err != nil {
		s.logger.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("failed to write audit log")
	}
}

func owns(actor *model.Actor, p *model.Patient) bool {
	return p.UserID != nil && *p.UserID == actor.ID
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("appointment", err)
	case errors.Is(err, repository.ErrStateConflict):
		return apperrors.Conflict("appointment status changed concurrently", err)
	}
	return fmt.Errorf("failed to access appointment: %w", err)
}
