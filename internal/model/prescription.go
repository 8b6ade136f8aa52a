package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Medication struct {
	Name      string `json:"name"`
	Dose      string `json:"dose"`
	Frequency string `json:"frequency"`
	Duration  string `json:"duration"`
}

// Medications is an ordered list stored as a jsonb array.
type Medications []Medication

func (m Medications) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m)
}

func (m *Medications) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = Medications{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for Medications")
	}
	return json.Unmarshal(data, m)
}

// Prescription is unique per visit.
type Prescription struct {
	Base
	VisitID        uuid.UUID   `db:"visit_id" json:"visit_id"`
	PrescribedByID *uuid.UUID  `db:"prescribed_by" json:"prescribed_by,omitempty"`
	Medications    Medications `db:"medications" json:"medications"`
	Instructions   string      `db:"instructions" json:"instructions"`
	Notes          string      `db:"notes" json:"notes"`
	ValidUntil     *time.Time  `db:"valid_until" json:"valid_until,omitempty"`
	IsDispensed    bool        `db:"is_dispensed" json:"is_dispensed"`
	DispensedAt    *time.Time  `db:"dispensed_at" json:"dispensed_at,omitempty"`
	DispensedBy    string      `db:"dispensed_by" json:"dispensed_by"`
}

type DispenseRequest struct {
	DispensedBy string `json:"dispensed_by"`
}

type PrescriptionFilter struct {
	Pagination
	Dispensed *bool      `form:"dispensed"`
	VisitID   *uuid.UUID `form:"-"`
	// PatientUserID scopes the listing to prescriptions of the patient owned by a user.
	PatientUserID *uuid.UUID `form:"-"`
}
