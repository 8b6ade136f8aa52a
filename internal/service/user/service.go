package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

type Service struct {
	repo    repository.UserRepository
	hasher  security.PasswordHasher
	auditor audit.Auditor

	onChange []func(uuid.UUID)
}

func NewService(repo repository.UserRepository, hasher security.PasswordHasher, auditor audit.Auditor) *Service {
	return &Service{
		repo:    repo,
		hasher:  hasher,
		auditor: auditor,
	}
}

// CreateUser creates an account. Only administrators manage accounts.
func (s *Service) CreateUser(ctx context.Context, actor *model.Actor, req *model.CreateUserRequest) (*model.User, error) {
	if !actor.Can(model.CapManageUsers) {
		return nil, apperrors.Forbidden("only admins can manage users")
	}
	if !req.Role.Valid() {
		return nil, apperrors.Validation("invalid role")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.Conflict("email already registered", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrPasswordTooShort):
			return nil, apperrors.Validation(fmt.Sprintf("password must be at least %d characters", security.MinPasswordLen))
		case errors.Is(err, security.ErrPasswordTooLong):
			return nil, apperrors.Validation(fmt.Sprintf("password must be at most %d bytes", security.MaxPasswordLen))
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	u := &model.User{
		Base:         model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Role:         req.Role,
		PasswordHash: hash,
		Status:       model.UserStatusActive,
	}

	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("email already registered", err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.auditor != nil {
		if err := s.auditor.Log(ctx, actor.ID, model.AuditActionCreate, model.AuditEntityUser, u.ID, &audit.LogOptions{
			Changes: map[string]interface{}{"email": u.Email, "role": u.Role},
		}); err != nil {
			return nil, fmt.Errorf("failed to log audit: %w", err)
		}
	}
	return u, nil
}

// OnUserChanged registers fn to run after an account was updated, e.g. to
// drop cached credentials.
func (s *Service) OnUserChanged(fn func(uuid.UUID)) {
	s.onChange = append(s.onChange, fn)
}

// UpdateUser changes an account's name, role or status. Admins cannot change
// their own role or status.
func (s *Service) UpdateUser(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.UpdateUserRequest) (*model.User, error) {
	if !actor.Can(model.CapManageUsers) {
		return nil, apperrors.Forbidden("only admins can manage users")
	}
	if id == actor.ID && (req.Role != nil || req.Status != nil) {
		return nil, apperrors.Forbidden("admins cannot change their own role or status")
	}

	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if req.Name != nil && strings.TrimSpace(*req.Name) != u.Name {
		u.Name = strings.TrimSpace(*req.Name)
		changes["name"] = u.Name
	}
	if req.Role != nil && *req.Role != u.Role {
		if !req.Role.Valid() {
			return nil, apperrors.Validation("invalid role")
		}
		u.Role = *req.Role
		changes["role"] = u.Role
	}
	if req.Status != nil && *req.Status != u.Status {
		u.Status = *req.Status
		changes["status"] = u.Status
	}
	if len(changes) == 0 {
		return u, nil
	}

	if err := s.repo.Update(ctx, u); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user", err)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	for _, fn := range s.onChange {
		fn(u.ID)
	}

	if s.auditor != nil {
		if err := s.auditor.Log(ctx, actor.ID, model.AuditActionUpdate, model.AuditEntityUser, u.ID, &audit.LogOptions{
			Changes: changes,
		}); err != nil {
			return nil, fmt.Errorf("failed to log audit: %w", err)
		}
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user", err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}
