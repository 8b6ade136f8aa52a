package visit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type fixture struct {
	svc     *Service
	store   *store
	auditor *recordingAuditor
	metrics *metrics.Metrics
	patient *model.Patient
	visit   model.Visit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newStore()
	aud := &recordingAuditor{}
	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")

	svc := NewService(visitRepo{st}, patientRepo{st}, labRepo{st}, rxRepo{st}, aud, m, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }

	owner := uuid.New()
	p := &model.Patient{Base: model.Base{ID: uuid.New()}, UserID: &owner, PatientNumber: "P-001", Name: "Asha"}
	st.patients[p.ID] = p

	v := model.Visit{
		Base:        model.Base{ID: uuid.New()},
		PatientID:   p.ID,
		Stage:       model.StageWaitingRoom,
		CheckInTime: fixedNow.Add(-time.Hour),
		VitalSigns:  model.JSONMap{},
		Version:     1,
	}
	st.visits[v.ID] = v

	return &fixture{svc: svc, store: st, auditor: aud, metrics: m, patient: p, visit: v}
}

func (f *fixture) stored() model.Visit {
	return f.store.visits[f.visit.ID]
}

func actor(role model.Role) *model.Actor {
	return model.NewActor(&model.User{Base: model.Base{ID: uuid.New()}, Name: string(role) + " user", Role: role})
}

func strPtr(s string) *string { return &s }

func TestTransitionInvalidStage(t *testing.T) {
	f := newFixture(t)

	for _, stage := range []model.Stage{"", "surgery", "DISCHARGED"} {
		_, err := f.svc.Transition(context.Background(), actor(model.RoleAdmin), f.visit.ID, &model.TransitionRequest{Stage: stage})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidStage)
		assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
	}
	assert.Equal(t, f.visit, f.stored())
	assert.Empty(t, f.store.events)
}

func TestTransitionReceptionCannotRecordQuestioning(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Transition(context.Background(), actor(model.RoleReception), f.visit.ID, &model.TransitionRequest{
		Stage:               model.StageQuestioning,
		QuestioningFindings: strPtr("persistent cough"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	got := f.stored()
	assert.Equal(t, model.StageWaitingRoom, got.Stage)
	assert.Empty(t, got.QuestioningFindings)
	assert.Nil(t, got.AttendingDoctorID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VisitTransitions.WithLabelValues("questioning", "forbidden")))
}

func TestTransitionDoctorRequestsLabTests(t *testing.T) {
	f := newFixture(t)
	doctor := actor(model.RoleDoctor)

	v, err := f.svc.Transition(context.Background(), doctor, f.visit.ID, &model.TransitionRequest{
		Stage:             model.StageLaboratoryTest,
		RequestedLabTests: []string{"CBC", "Urinalysis"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.StageLaboratoryTest, v.Stage)
	assert.Equal(t, 2, v.Version)
	require.Len(t, v.LabTests, 2)
	assert.Equal(t, "CBC", v.LabTests[0].TestName)
	assert.Equal(t, "Urinalysis", v.LabTests[1].TestName)
	for _, lt := range v.LabTests {
		assert.Equal(t, model.LabTestStatusRequested, lt.Status)
		require.NotNil(t, lt.RequestedByID)
		assert.Equal(t, doctor.ID, *lt.RequestedByID)
		assert.Equal(t, f.visit.ID, lt.VisitID)
	}
	assert.Equal(t, model.StageLaboratoryTest, f.stored().Stage)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LabTestsRequested))
}

func TestTransitionStaffRecordsTriage(t *testing.T) {
	f := newFixture(t)
	staff := actor(model.RoleStaff)

	v, err := f.svc.Transition(context.Background(), staff, f.visit.ID, &model.TransitionRequest{
		Stage:      model.StageTriage,
		VitalSigns: model.JSONMap{"bp": "120/80"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.StageTriage, v.Stage)
	assert.Equal(t, "120/80", v.VitalSigns["bp"])
	require.NotNil(t, v.TriageCompletedBy)
	assert.Equal(t, staff.ID, *v.TriageCompletedBy)
	require.NotNil(t, v.TriageCompletedAt)
	assert.Equal(t, fixedNow, *v.TriageCompletedAt)
	assert.Equal(t, []string{model.AuditActionStageChange}, f.auditor.actions)
}

func TestTransitionDischargeDropsMalformedPrescriptionLines(t *testing.T) {
	f := newFixture(t)
	doctor := actor(model.RoleDoctor)

	v, err := f.svc.Transition(context.Background(), doctor, f.visit.ID, &model.TransitionRequest{
		Stage:        model.StageDischarged,
		Prescription: strPtr("Amoxicillin, 500mg, twice_daily, 7d\nBad Line"),
	})
	require.NoError(t, err)

	require.NotNil(t, v.Prescription)
	assert.Equal(t, model.Medications{
		{Name: "Amoxicillin", Dose: "500mg", Frequency: "twice_daily", Duration: "7d"},
	}, v.Prescription.Medications)
	require.NotNil(t, v.Prescription.PrescribedByID)
	assert.Equal(t, doctor.ID, *v.Prescription.PrescribedByID)
}

func TestTransitionPrescriptionUpsertIsIdempotent(t *testing.T) {
	f := newFixture(t)
	doctor := actor(model.RoleDoctor)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, doctor, f.visit.ID, &model.TransitionRequest{
		Stage:        model.StageDischarged,
		Prescription: strPtr("Amoxicillin, 500mg, twice_daily, 7d"),
	})
	require.NoError(t, err)

	v, err := f.svc.Transition(ctx, doctor, f.visit.ID, &model.TransitionRequest{
		Stage:        model.StageDischarged,
		Prescription: strPtr("Ibuprofen, 200mg, as_needed, 3d\nParacetamol, 1g, every_6h, 2d"),
	})
	require.NoError(t, err)

	assert.Len(t, f.store.prescriptions, 1)
	require.NotNil(t, v.Prescription)
	require.Len(t, v.Prescription.Medications, 2)
	assert.Equal(t, "Ibuprofen", v.Prescription.Medications[0].Name)
	assert.Equal(t, "Paracetamol", v.Prescription.Medications[1].Name)
}

func TestTransitionLabRequestsAreNotDeduplicated(t *testing.T) {
	f := newFixture(t)
	doctor := actor(model.RoleDoctor)
	ctx := context.Background()
	req := &model.TransitionRequest{
		Stage:             model.StageLaboratoryTest,
		RequestedLabTests: []string{"CBC", "Urinalysis", "Lipid panel"},
	}

	_, err := f.svc.Transition(ctx, doctor, f.visit.ID, req)
	require.NoError(t, err)
	v, err := f.svc.Transition(ctx, doctor, f.visit.ID, req)
	require.NoError(t, err)

	assert.Len(t, f.store.labTests, 6)
	assert.Len(t, v.LabTests, 6)
}

func TestTransitionBareDischargeStampsDischargeTime(t *testing.T) {
	f := newFixture(t)

	v, err := f.svc.Transition(context.Background(), actor(model.RoleReception), f.visit.ID, &model.TransitionRequest{
		Stage: model.StageDischarged,
	})
	require.NoError(t, err)

	require.NotNil(t, v.DischargeTime)
	assert.Equal(t, fixedNow, *v.DischargeTime)
	assert.Nil(t, v.Prescription)
	assert.Empty(t, v.Diagnosis)

	require.Len(t, f.store.events, 2)
	assert.Equal(t, model.EventVisitStageChanged, f.store.events[0].EventType)
	assert.Equal(t, model.EventVisitDischarged, f.store.events[1].EventType)
}

func TestTransitionIsAllOrNothing(t *testing.T) {
	f := newFixture(t)

	// staff may record triage but not discharge findings
	_, err := f.svc.Transition(context.Background(), actor(model.RoleStaff), f.visit.ID, &model.TransitionRequest{
		Stage:       model.StageDischarged,
		VitalSigns:  model.JSONMap{"temp": "38.2"},
		TriageNotes: strPtr("febrile"),
		Diagnosis:   strPtr("influenza"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), reasonDischarge)

	got := f.stored()
	assert.Equal(t, f.visit, got)
	assert.Empty(t, got.VitalSigns)
	assert.Nil(t, got.DischargeTime)
	assert.Empty(t, f.store.events)
	assert.Empty(t, f.auditor.actions)
}

func TestTransitionIgnoresKeysForOtherStages(t *testing.T) {
	f := newFixture(t)

	// reception cannot request labs or write findings, but these keys do
	// not apply to triage and are dropped.
	v, err := f.svc.Transition(context.Background(), actor(model.RoleReception), f.visit.ID, &model.TransitionRequest{
		Stage:             model.StageTriage,
		RequestedLabTests: []string{"CBC"},
		LabFindings:       strPtr("normal"),
		Diagnosis:         strPtr("flu"),
		Prescription:      strPtr("A, B, C, D"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.StageTriage, v.Stage)
	assert.Empty(t, v.LabTests)
	assert.Empty(t, v.LabFindings)
	assert.Empty(t, v.Diagnosis)
	assert.Nil(t, v.Prescription)
	assert.Empty(t, f.store.prescriptions)
}

func TestTransitionQuestioningSetsAttendingDoctor(t *testing.T) {
	f := newFixture(t)
	doctor := actor(model.RoleDoctor)

	v, err := f.svc.Transition(context.Background(), doctor, f.visit.ID, &model.TransitionRequest{
		Stage:               model.StageQuestioning,
		QuestioningFindings: strPtr("chest pain on exertion"),
		VitalSigns:          model.JSONMap{"hr": float64(92)},
	})
	require.NoError(t, err)

	assert.Equal(t, "chest pain on exertion", v.QuestioningFindings)
	require.NotNil(t, v.AttendingDoctorID)
	assert.Equal(t, doctor.ID, *v.AttendingDoctorID)
	assert.Equal(t, fixedNow, *v.QuestioningCompletedAt)
	require.NotNil(t, v.TriageCompletedBy)
	assert.Equal(t, doctor.ID, *v.TriageCompletedBy)
}

func TestTransitionLabFindingsOnlyAtResults(t *testing.T) {
	f := newFixture(t)
	doctor := actor(model.RoleDoctor)

	v, err := f.svc.Transition(context.Background(), doctor, f.visit.ID, &model.TransitionRequest{
		Stage:       model.StageResultsByDoctor,
		LabFindings: strPtr("elevated WBC"),
	})
	require.NoError(t, err)
	assert.Equal(t, "elevated WBC", v.LabFindings)
	assert.Equal(t, fixedNow, *v.LabCompletedAt)

	_, err = f.svc.Transition(context.Background(), actor(model.RoleLaboratory), f.visit.ID, &model.TransitionRequest{
		Stage:       model.StageResultsByDoctor,
		LabFindings: strPtr("overwritten"),
	})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "elevated WBC", f.stored().LabFindings)
}

func TestTransitionDischargeFieldsArePartial(t *testing.T) {
	f := newFixture(t)
	admin := actor(model.RoleAdmin)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, admin, f.visit.ID, &model.TransitionRequest{
		Stage:         model.StageDischarged,
		Diagnosis:     strPtr("migraine"),
		TreatmentPlan: strPtr("rest"),
	})
	require.NoError(t, err)

	v, err := f.svc.Transition(ctx, admin, f.visit.ID, &model.TransitionRequest{
		Stage:         model.StageDischarged,
		FinalFindings: strPtr("improved"),
	})
	require.NoError(t, err)

	assert.Equal(t, "migraine", v.Diagnosis)
	assert.Equal(t, "rest", v.TreatmentPlan)
	assert.Equal(t, "improved", v.FinalFindings)
	assert.Equal(t, 3, v.Version)
}

func TestTransitionMovesBackward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reception := actor(model.RoleReception)

	_, err := f.svc.Transition(ctx, reception, f.visit.ID, &model.TransitionRequest{Stage: model.StageResultsByDoctor})
	require.NoError(t, err)
	v, err := f.svc.Transition(ctx, reception, f.visit.ID, &model.TransitionRequest{Stage: model.StageTriage})
	require.NoError(t, err)
	assert.Equal(t, model.StageTriage, v.Stage)
}

func TestTransitionPatientCannotMoveVisit(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Transition(context.Background(), actor(model.RolePatient), f.visit.ID, &model.TransitionRequest{
		Stage: model.StageTriage,
	})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), reasonMoveStage)
	assert.Equal(t, model.StageWaitingRoom, f.stored().Stage)
}

func TestTransitionVersionConflict(t *testing.T) {
	f := newFixture(t)
	f.store.beforeApply = func() {
		f.store.mu.Lock()
		defer f.store.mu.Unlock()
		v := f.store.visits[f.visit.ID]
		v.Version++
		v.Stage = model.StageTriage
		f.store.visits[f.visit.ID] = v
	}

	_, err := f.svc.Transition(context.Background(), actor(model.RoleDoctor), f.visit.ID, &model.TransitionRequest{
		Stage:     model.StageDischarged,
		Diagnosis: strPtr("flu"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, model.StageTriage, f.stored().Stage)
	assert.Empty(t, f.stored().Diagnosis)
}

func TestTransitionUnknownVisit(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Transition(context.Background(), actor(model.RoleDoctor), uuid.New(), &model.TransitionRequest{
		Stage: model.StageTriage,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	reception := actor(model.RoleReception)

	v, err := f.svc.CheckIn(context.Background(), reception, &model.CheckInRequest{
		PatientID:      f.patient.ID,
		ChiefComplaint: "headache",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StageWaitingRoom, v.Stage)
	assert.Equal(t, fixedNow, v.CheckInTime)
	assert.Equal(t, 1, v.Version)
	require.Len(t, f.store.events, 1)
	assert.Equal(t, model.EventVisitCheckedIn, f.store.events[0].EventType)
	assert.Equal(t, []string{model.AuditActionCheckIn}, f.auditor.actions)

	_, err = f.svc.CheckIn(context.Background(), reception, &model.CheckInRequest{PatientID: uuid.New()})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = f.svc.CheckIn(context.Background(), actor(model.RolePatient), &model.CheckInRequest{PatientID: f.patient.ID})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestGetScopesPatients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := model.NewActor(&model.User{Base: model.Base{ID: *f.patient.UserID}, Role: model.RolePatient})
	v, err := f.svc.Get(ctx, owner, f.visit.ID)
	require.NoError(t, err)
	assert.Equal(t, f.visit.ID, v.ID)
	assert.NotNil(t, v.LabTests)

	_, err = f.svc.Get(ctx, actor(model.RolePatient), f.visit.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = f.svc.Get(ctx, actor(model.RoleLaboratory), f.visit.ID)
	assert.NoError(t, err)
}

func TestListScopesPatients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := actor(model.RolePatient)

	_, _, err := f.svc.List(ctx, p, &model.VisitFilter{})
	require.NoError(t, err)
	require.NotNil(t, f.store.lastFilter.PatientUserID)
	assert.Equal(t, p.ID, *f.store.lastFilter.PatientUserID)
	assert.Equal(t, 50, f.store.lastFilter.Limit)

	_, _, err = f.svc.List(ctx, actor(model.RoleDoctor), &model.VisitFilter{})
	require.NoError(t, err)
	assert.Nil(t, f.store.lastFilter.PatientUserID)
}

func TestQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, actor(model.RoleStaff), f.visit.ID, &model.TransitionRequest{Stage: model.StageDischarged})
	require.NoError(t, err)

	visits, err := f.svc.Queue(ctx, actor(model.RoleStaff))
	require.NoError(t, err)
	assert.Empty(t, visits)

	_, err = f.svc.Queue(ctx, actor(model.RolePatient))
	assert.ErrorIs(t, err, ErrForbidden)
}
