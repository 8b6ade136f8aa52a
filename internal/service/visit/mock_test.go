package visit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
)

// store is an in-memory stand-in for the postgres repositories. It emulates
// the version check and the per-visit prescription upsert.
type store struct {
	mu            sync.Mutex
	visits        map[uuid.UUID]model.Visit
	patients      map[uuid.UUID]*model.Patient
	labTests      []*model.LabTest
	prescriptions map[uuid.UUID]*model.Prescription
	events        []*model.OutboxEvent

	beforeApply func()
	lastFilter  *model.VisitFilter
}

func newStore() *store {
	return &store{
		visits:        map[uuid.UUID]model.Visit{},
		patients:      map[uuid.UUID]*model.Patient{},
		prescriptions: map[uuid.UUID]*model.Prescription{},
	}
}

type visitRepo struct{ *store }

func (r visitRepo) Create(_ context.Context, v *model.Visit, events ...*model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits[v.ID] = *v
	r.events = append(r.events, events...)
	return nil
}

func (r visitRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visits[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r visitRepo) List(_ context.Context, f *model.VisitFilter) ([]*model.Visit, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = f
	var out []*model.Visit
	for _, v := range r.visits {
		v := v
		out = append(out, &v)
	}
	return out, len(out), nil
}

func (r visitRepo) Queue(context.Context) ([]*model.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Visit
	for _, v := range r.visits {
		if v.Stage.Active() {
			v := v
			out = append(out, &v)
		}
	}
	return out, nil
}

func (r visitRepo) ApplyTransition(_ context.Context, w *repository.TransitionWrite) error {
	if r.beforeApply != nil {
		r.beforeApply()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.visits[w.Visit.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != w.Visit.Version {
		return repository.ErrVersionConflict
	}

	next := *w.Visit
	next.Version++
	r.visits[next.ID] = next
	w.Visit.Version = next.Version

	r.labTests = append(r.labTests, w.LabTests...)

	if w.Prescription != nil {
		if existing, ok := r.prescriptions[w.Visit.ID]; ok {
			existing.Medications = w.Prescription.Medications
			existing.UpdatedAt = w.Prescription.UpdatedAt
		} else {
			rx := *w.Prescription
			r.prescriptions[w.Visit.ID] = &rx
		}
		rx := *r.prescriptions[w.Visit.ID]
		*w.Prescription = rx
	}

	r.events = append(r.events, w.Events...)
	return nil
}

type patientRepo struct{ *store }

func (r patientRepo) Create(_ context.Context, p *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
	return nil
}

func (r patientRepo) Update(_ context.Context, p *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[p.ID]; !ok {
		return repository.ErrNotFound
	}
	r.patients[p.ID] = p
	return nil
}

func (r patientRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (r patientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patients {
		if p.UserID != nil && *p.UserID == userID {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r patientRepo) List(context.Context, *model.PatientFilter) ([]*model.Patient, int, error) {
	return nil, 0, nil
}

type labRepo struct{ *store }

func (r labRepo) GetByID(_ context.Context, id uuid.UUID) (*model.LabTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.labTests {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r labRepo) List(context.Context, *model.LabTestFilter) ([]*model.LabTest, int, error) {
	return r.labTests, len(r.labTests), nil
}

func (r labRepo) ListByVisit(_ context.Context, visitID uuid.UUID) ([]*model.LabTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.LabTest{}
	for _, t := range r.labTests {
		if t.VisitID == visitID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r labRepo) Complete(context.Context, *model.LabTest) error { return nil }

type rxRepo struct{ *store }

func (r rxRepo) GetByID(context.Context, uuid.UUID) (*model.Prescription, error) {
	return nil, repository.ErrNotFound
}

func (r rxRepo) GetByVisitID(_ context.Context, visitID uuid.UUID) (*model.Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rx, ok := r.prescriptions[visitID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rx, nil
}

func (r rxRepo) List(context.Context, *model.PrescriptionFilter) ([]*model.Prescription, int, error) {
	return nil, 0, nil
}

func (r rxRepo) MarkDispensed(context.Context, *model.Prescription) error { return nil }

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Log(_ context.Context, _ uuid.UUID, action, _ string, _ uuid.UUID, _ *audit.LogOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
