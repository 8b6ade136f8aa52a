package model

import (
	"time"

	"github.com/google/uuid"
)

type LabTestStatus string

const (
	LabTestStatusRequested  LabTestStatus = "requested"
	LabTestStatusInProgress LabTestStatus = "in_progress"
	LabTestStatusCompleted  LabTestStatus = "completed"
	LabTestStatusCancelled  LabTestStatus = "cancelled"
)

func (s LabTestStatus) Valid() bool {
	switch s {
	case LabTestStatusRequested, LabTestStatusInProgress, LabTestStatusCompleted, LabTestStatusCancelled:
		return true
	}
	return false
}

type LabTest struct {
	Base
	VisitID        uuid.UUID     `db:"visit_id" json:"visit_id"`
	TestName       string        `db:"test_name" json:"test_name"`
	TestType       string        `db:"test_type" json:"test_type"`
	Status         LabTestStatus `db:"status" json:"status"`
	RequestedByID  *uuid.UUID    `db:"requested_by" json:"requested_by,omitempty"`
	PerformedByID  *uuid.UUID    `db:"performed_by" json:"performed_by,omitempty"`
	Results        string        `db:"results" json:"results"`
	NormalRange    string        `db:"normal_range" json:"normal_range"`
	Interpretation string        `db:"interpretation" json:"interpretation"`
	RequestedAt    time.Time     `db:"requested_at" json:"requested_at"`
	CompletedAt    *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

type CompleteLabTestRequest struct {
	Results        string `json:"results" binding:"required"`
	Interpretation string `json:"interpretation"`
	NormalRange    string `json:"normal_range"`
}

type LabTestFilter struct {
	Pagination
	Status  LabTestStatus `form:"status" binding:"omitempty,lab_status"`
	VisitID *uuid.UUID    `form:"-"`
	// PatientUserID scopes the listing to lab tests of the patient owned by a user.
	PatientUserID *uuid.UUID `form:"-"`
}
