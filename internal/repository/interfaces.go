package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicate       = errors.New("duplicate record")
	// ErrStateConflict is returned by guarded updates when the row exists
	// but is no longer in a state the update applies to.
	ErrStateConflict = errors.New("record state conflict")
	// ErrSlotTaken is returned when a booking overlaps an open appointment
	// of the same doctor.
	ErrSlotTaken = errors.New("time slot already booked")
)

// TransitionWrite is everything one stage transition persists. It is
// applied in a single transaction.
type TransitionWrite struct {
	// Visit carries the new field values. Its Version is the version the
	// caller read; the stored row must still be at that version.
	Visit *model.Visit
	// LabTests are inserted as new rows.
	LabTests []*model.LabTest
	// Prescription, when set, is upserted on the visit id. Only the
	// medication list is overwritten on an existing row.
	Prescription *model.Prescription
	Events       []*model.OutboxEvent
}

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		// Update writes name, role and status.
		Update(ctx context.Context, user *model.User) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Update(ctx context.Context, patient *model.Patient) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Patient, error)
		List(ctx context.Context, filter *model.PatientFilter) ([]*model.Patient, int, error)
	}

	VisitRepository interface {
		// Create inserts a visit together with its outbox events.
		Create(ctx context.Context, visit *model.Visit, events ...*model.OutboxEvent) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Visit, error)
		List(ctx context.Context, filter *model.VisitFilter) ([]*model.Visit, int, error)
		// Queue returns non-discharged visits, oldest check-in first.
		Queue(ctx context.Context) ([]*model.Visit, error)
		// ApplyTransition persists w atomically. It returns ErrVersionConflict
		// when the visit was changed since it was read.
		ApplyTransition(ctx context.Context, w *TransitionWrite) error
	}

	LabTestRepository interface {
		GetByID(ctx context.Context, id uuid.UUID) (*model.LabTest, error)
		List(ctx context.Context, filter *model.LabTestFilter) ([]*model.LabTest, int, error)
		ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*model.LabTest, error)
		// Complete only applies to requested or in-progress tests. A test in
		// any other state yields ErrStateConflict.
		Complete(ctx context.Context, test *model.LabTest) error
	}

	PrescriptionRepository interface {
		GetByID(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		GetByVisitID(ctx context.Context, visitID uuid.UUID) (*model.Prescription, error)
		List(ctx context.Context, filter *model.PrescriptionFilter) ([]*model.Prescription, int, error)
		// MarkDispensed yields ErrStateConflict if p was already dispensed.
		MarkDispensed(ctx context.Context, p *model.Prescription) error
	}

	AppointmentRepository interface {
		// Create inserts the appointment unless it overlaps a scheduled or
		// confirmed appointment of the same doctor (ErrSlotTaken).
		Create(ctx context.Context, a *model.Appointment) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, int, error)
		// UpdateStatus writes a.Status and a.CancelReason if the stored status
		// is one of from. Otherwise it returns ErrStateConflict.
		UpdateStatus(ctx context.Context, a *model.Appointment, from ...model.AppointmentStatus) error
	}

	OutboxRepository interface {
		// ClaimPending moves up to limit pending events to PROCESSING and
		// returns them. Concurrent claimers never receive the same event.
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
		// ReleaseStale returns PROCESSING events claimed before cutoff to PENDING.
		ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLog, int, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}
)
