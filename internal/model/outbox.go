package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusProcessed  OutboxStatus = "PROCESSED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

// Event types written to the outbox.
const (
	EventVisitCheckedIn    = "VISIT_CHECKED_IN"
	EventVisitStageChanged = "VISIT_STAGE_CHANGED"
	EventVisitDischarged   = "VISIT_DISCHARGED"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	AggregateID  uuid.UUID       `db:"aggregate_id" json:"aggregate_id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// NewOutboxEvent marshals payload into a pending event.
func NewOutboxEvent(aggregateID uuid.UUID, eventType string, payload interface{}) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &OutboxEvent{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     data,
		Status:      OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type VisitCheckedInPayload struct {
	VisitID     uuid.UUID `json:"visit_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	CheckInTime time.Time `json:"check_in_time"`
	ActorID     uuid.UUID `json:"actor_id"`
}

type VisitStageChangedPayload struct {
	VisitID    uuid.UUID `json:"visit_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	From       Stage     `json:"from"`
	To         Stage     `json:"to"`
	ActorID    uuid.UUID `json:"actor_id"`
	ActorRole  Role      `json:"actor_role"`
	OccurredAt time.Time `json:"occurred_at"`
}

type VisitDischargedPayload struct {
	VisitID       uuid.UUID   `json:"visit_id"`
	PatientID     uuid.UUID   `json:"patient_id"`
	DischargeTime time.Time   `json:"discharge_time"`
	Diagnosis     string      `json:"diagnosis,omitempty"`
	TreatmentPlan string      `json:"treatment_plan,omitempty"`
	Medications   Medications `json:"medications,omitempty"`
}
