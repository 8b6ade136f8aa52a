package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled  AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed  AppointmentStatus = "confirmed"
	AppointmentStatusInProgress AppointmentStatus = "in_progress"
	AppointmentStatusCompleted  AppointmentStatus = "completed"
	AppointmentStatusCancelled  AppointmentStatus = "cancelled"
	AppointmentStatusNoShow     AppointmentStatus = "no_show"
)

var AppointmentStatuses = []AppointmentStatus{
	AppointmentStatusScheduled,
	AppointmentStatusConfirmed,
	AppointmentStatusInProgress,
	AppointmentStatusCompleted,
	AppointmentStatusCancelled,
	AppointmentStatusNoShow,
}

func (s AppointmentStatus) Valid() bool {
	for _, st := range AppointmentStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Booking rules.
const (
	DefaultAppointmentMinutes = 30
	MinAppointmentMinutes     = 15
	MaxAppointmentMinutes     = 240
	MaxAdvanceBooking         = 90 * 24 * time.Hour
)

type Appointment struct {
	Base
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	BookedByID      *uuid.UUID        `db:"booked_by" json:"booked_by,omitempty"`
	ScheduledAt     time.Time         `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Reason          string            `db:"reason" json:"reason"`
	Notes           string            `db:"notes" json:"notes"`
	Status          AppointmentStatus `db:"status" json:"status"`
	IsFollowUp      bool              `db:"is_follow_up" json:"is_follow_up"`
	PreviousVisitID *uuid.UUID        `db:"previous_visit_id" json:"previous_visit_id,omitempty"`
	CancelReason    string            `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

// EndsAt is the end of the booked slot.
func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// BookAppointmentRequest books a slot with a doctor. Setting PreviousVisitID
// makes it a follow-up of that visit.
type BookAppointmentRequest struct {
	PatientID       uuid.UUID  `json:"patient_id" binding:"required"`
	DoctorID        uuid.UUID  `json:"doctor_id" binding:"required"`
	ScheduledAt     time.Time  `json:"scheduled_at" binding:"required"`
	DurationMinutes int        `json:"duration_minutes" binding:"omitempty,min=15,max=240"`
	Reason          string     `json:"reason" binding:"required,max=200"`
	Notes           string     `json:"notes"`
	PreviousVisitID *uuid.UUID `json:"previous_visit_id"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type AppointmentFilter struct {
	Pagination
	Status     AppointmentStatus `form:"status" binding:"omitempty,appointment_status"`
	IsFollowUp *bool             `form:"is_follow_up"`
	DoctorID   *uuid.UUID        `form:"-"`
	PatientID  *uuid.UUID        `form:"-"`
	// PatientUserID scopes the listing to appointments of the patient owned
	// by a user.
	PatientUserID *uuid.UUID `form:"-"`
}
