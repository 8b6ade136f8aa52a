package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Stage is the workflow phase of a visit.
type Stage string

const (
	StageWaitingRoom     Stage = "waiting_room"
	StageTriage          Stage = "triage"
	StageQuestioning     Stage = "questioning"
	StageLaboratoryTest  Stage = "laboratory_test"
	StageResultsByDoctor Stage = "results_by_doctor"
	StageDischarged      Stage = "discharged"
)

// Stages lists every stage in canonical order.
var Stages = []Stage{
	StageWaitingRoom,
	StageTriage,
	StageQuestioning,
	StageLaboratoryTest,
	StageResultsByDoctor,
	StageDischarged,
}

func (s Stage) Valid() bool {
	for _, st := range Stages {
		if s == st {
			return true
		}
	}
	return false
}

// Active reports whether a visit in this stage still belongs in the queue.
func (s Stage) Active() bool {
	return s.Valid() && s != StageDischarged
}

type Visit struct {
	Base
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	Stage          Stage      `db:"stage" json:"stage"`
	ChiefComplaint string     `db:"chief_complaint" json:"chief_complaint"`
	Symptoms       string     `db:"symptoms" json:"symptoms"`
	CheckInTime    time.Time  `db:"check_in_time" json:"check_in_time"`
	DischargeTime  *time.Time `db:"discharge_time" json:"discharge_time,omitempty"`

	VitalSigns        JSONMap    `db:"vital_signs" json:"vital_signs"`
	TriageNotes       string     `db:"triage_notes" json:"triage_notes"`
	TriageCompletedBy *uuid.UUID `db:"triage_completed_by" json:"triage_completed_by,omitempty"`
	TriageCompletedAt *time.Time `db:"triage_completed_at" json:"triage_completed_at,omitempty"`

	QuestioningFindings    string     `db:"questioning_findings" json:"questioning_findings"`
	QuestioningCompletedAt *time.Time `db:"questioning_completed_at" json:"questioning_completed_at,omitempty"`
	AttendingDoctorID      *uuid.UUID `db:"attending_doctor_id" json:"attending_doctor_id,omitempty"`

	LabFindings    string     `db:"lab_findings" json:"lab_findings"`
	LabCompletedAt *time.Time `db:"lab_completed_at" json:"lab_completed_at,omitempty"`

	Diagnosis     string `db:"diagnosis" json:"diagnosis"`
	TreatmentPlan string `db:"treatment_plan" json:"treatment_plan"`
	FinalFindings string `db:"final_findings" json:"final_findings"`

	Version int `db:"version" json:"version"`

	LabTests     []*LabTest    `db:"-" json:"lab_tests"`
	Prescription *Prescription `db:"-" json:"prescription,omitempty"`
}

type CheckInRequest struct {
	PatientID      uuid.UUID `json:"patient_id" binding:"required"`
	ChiefComplaint string    `json:"chief_complaint"`
	Symptoms       string    `json:"symptoms"`
}

// TransitionRequest is the body of a stage move. Every clinical field is
// optional and only considered when present; nil means absent. An explicit
// JSON null is rejected when decoding, so a key can never be sent and still
// read as absent.
type TransitionRequest struct {
	Stage Stage `json:"stage"`

	VitalSigns  JSONMap `json:"vital_signs"`
	TriageNotes *string `json:"triage_notes"`

	QuestioningFindings *string `json:"questioning_findings"`

	RequestedLabTests []string `json:"requested_lab_tests"`

	LabFindings *string `json:"lab_findings"`

	Diagnosis     *string `json:"diagnosis"`
	TreatmentPlan *string `json:"treatment_plan"`
	FinalFindings *string `json:"final_findings"`
	Prescription  *string `json:"prescription"`
}

// NullFieldError reports a payload key that was sent as JSON null.
type NullFieldError struct {
	Field string
}

func (e *NullFieldError) Error() string {
	return e.Field + " must not be null"
}

func (r *TransitionRequest) UnmarshalJSON(data []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	for key, value := range keys {
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return &NullFieldError{Field: key}
		}
	}

	type plain TransitionRequest
	return json.Unmarshal(data, (*plain)(r))
}

func (r *TransitionRequest) HasTriage() bool {
	return r.VitalSigns != nil || r.TriageNotes != nil
}

func (r *TransitionRequest) HasDischargeData() bool {
	return r.Diagnosis != nil || r.TreatmentPlan != nil || r.FinalFindings != nil || r.Prescription != nil
}

type VisitFilter struct {
	Pagination
	Stage     Stage      `form:"stage" binding:"omitempty,visit_stage"`
	PatientID *uuid.UUID `form:"-"`
	// PatientUserID scopes the listing to visits of the patient owned by a user.
	PatientUserID *uuid.UUID `form:"-"`
}
