package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes    json.RawMessage `json:"changes" db:"changes"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate      = "create"
	AuditActionUpdate      = "update"
	AuditActionCheckIn     = "check_in"
	AuditActionStageChange = "stage_change"
	AuditActionComplete    = "complete"
	AuditActionDispense    = "dispense"
	AuditActionBook        = "book"
	AuditActionConfirm     = "confirm"
	AuditActionCancel      = "cancel"

	// Entity types
	AuditEntityUser         = "user"
	AuditEntityPatient      = "patient"
	AuditEntityVisit        = "visit"
	AuditEntityLabTest      = "lab_test"
	AuditEntityPrescription = "prescription"
	AuditEntityAppointment  = "appointment"
)

type AuditFilter struct {
	Pagination
	EntityType string     `form:"entity_type"`
	EntityID   *uuid.UUID `form:"-"`
	UserID     *uuid.UUID `form:"-"`
}
