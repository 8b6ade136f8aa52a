package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type Service struct {
	repo    repository.PatientRepository
	users   repository.UserRepository
	auditor audit.Auditor
}

func NewService(repo repository.PatientRepository, users repository.UserRepository, auditor audit.Auditor) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		auditor: auditor,
	}
}

// Create registers a patient. The patient number is assigned by storage.
func (s *Service) Create(ctx context.Context, actor *model.Actor, req *model.CreatePatientRequest) (*model.Patient, error) {
	if !actor.Can(model.CapManagePatients) {
		return nil, apperrors.Forbidden("only clinic staff can register patients")
	}

	if req.UserID != nil {
		u, err := s.users.GetByID(ctx, *req.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.BadRequest("linked user does not exist", err)
			}
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		if u.Role != model.RolePatient {
			return nil, apperrors.Validation("linked user must have the patient role")
		}
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityStandard
	}

	now := time.Now().UTC()
	p := &model.Patient{
		Base:     model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		UserID:   req.UserID,
		Name:     req.Name,
		Age:      req.Age,
		Gender:   req.Gender,
		Phone:    req.Phone,
		Priority: priority,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("user already has a patient record", err)
		}
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}

	if s.auditor != nil {
		if err := s.auditor.Log(ctx, actor.ID, model.AuditActionCreate, model.AuditEntityPatient, p.ID, &audit.LogOptions{
			Changes: p,
		}); err != nil {
			return nil, fmt.Errorf("failed to log audit: %w", err)
		}
	}
	return p, nil
}

// Update changes a patient's demographics. Nothing is written when the
// request matches the stored record.
func (s *Service) Update(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.UpdatePatientRequest) (*model.Patient, error) {
	if !actor.Can(model.CapManagePatients) {
		return nil, apperrors.Forbidden("only clinic staff can update patients")
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	updated := *p
	changes := req.Apply(&updated)
	if len(changes) == 0 {
		return p, nil
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}

	if s.auditor != nil {
		if err := s.auditor.Log(ctx, actor.ID, model.AuditActionUpdate, model.AuditEntityPatient, updated.ID, &audit.LogOptions{
			Changes: changes,
		}); err != nil {
			return nil, fmt.Errorf("failed to log audit: %w", err)
		}
	}
	return &updated, nil
}

func (s *Service) Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	if !actor.Can(model.CapViewAll) && (p.UserID == nil || *p.UserID != actor.ID) {
		return nil, apperrors.NotFound("patient", repository.ErrNotFound)
	}
	return p, nil
}

// List returns the directory for staff. A patient gets only their own record.
func (s *Service) List(ctx context.Context, actor *model.Actor, filter *model.PatientFilter) ([]*model.Patient, int, error) {
	filter.Normalize()
	if !actor.Can(model.CapViewAll) {
		filter.UserID = &actor.ID
	}
	patients, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, total, nil
}
