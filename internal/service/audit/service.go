package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type LogOptions struct {
	Changes   interface{}
	IPAddress string
	UserAgent string
}

// Auditor records who did what to which entity.
type Auditor interface {
	Log(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error
}

type clientInfoKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClientInfo attaches the caller's address and user agent to ctx so audit
// entries written further down the call chain can pick them up.
func WithClientInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

type Service struct {
	repo repository.AuditRepository
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

// Log creates an audit log entry
func (s *Service) Log(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	if opts == nil {
		opts = &LogOptions{}
	}

	var changes json.RawMessage
	if opts.Changes != nil {
		data, err := json.Marshal(opts.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal audit changes: %w", err)
		}
		changes = data
	}

	ipAddress, userAgent := opts.IPAddress, opts.UserAgent
	if info, ok := ctx.Value(clientInfoKey{}).(clientInfo); ok && ipAddress == "" {
		ipAddress = info.ip
		userAgent = info.userAgent
	}

	return s.repo.Create(ctx, &model.AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		CreatedAt:  time.Now().UTC(),
	})
}

func (s *Service) List(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLog, int, error) {
	filter.Normalize()
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}

func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.Cleanup(ctx, before)
}
