package visit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

// Guard failure reasons.
const (
	reasonMoveStage   = "only clinic staff can move visits between stages"
	reasonTriage      = "only triage staff, doctors or admins can record triage data"
	reasonQuestioning = "only doctors or admins can record questioning findings"
	reasonLabRequest  = "only doctors or admins can request lab tests"
	reasonLabFindings = "only doctors or admins can record lab findings"
	reasonDischarge   = "only doctors or admins can record discharge findings"
)

// checkGuards verifies that actor may write every guarded field present in
// req. Keys that do not apply to the target stage are not checked.
func checkGuards(actor *model.Actor, req *model.TransitionRequest) error {
	if !actor.Can(model.CapMoveStage) {
		return forbidden(reasonMoveStage)
	}
	if req.HasTriage() && !actor.Can(model.CapRecordTriage) {
		return forbidden(reasonTriage)
	}
	if req.QuestioningFindings != nil && !actor.Can(model.CapClinical) {
		return forbidden(reasonQuestioning)
	}

	switch req.Stage {
	case model.StageLaboratoryTest:
		if req.RequestedLabTests != nil && !actor.Can(model.CapClinical) {
			return forbidden(reasonLabRequest)
		}
	case model.StageResultsByDoctor:
		if req.LabFindings != nil && !actor.Can(model.CapClinical) {
			return forbidden(reasonLabFindings)
		}
	case model.StageDischarged:
		if req.HasDischargeData() && !actor.Can(model.CapClinical) {
			return forbidden(reasonDischarge)
		}
	}
	return nil
}

// planTransition builds the write for moving current to req.Stage. current is
// never modified; all guards run before any field is touched.
func planTransition(current *model.Visit, actor *model.Actor, req *model.TransitionRequest, now time.Time) (*repository.TransitionWrite, error) {
	if !req.Stage.Valid() {
		return nil, invalidStage()
	}
	if err := checkGuards(actor, req); err != nil {
		return nil, err
	}

	next := *current
	next.LabTests = nil
	next.Prescription = nil
	next.Stage = req.Stage
	next.UpdatedAt = now

	w := &repository.TransitionWrite{Visit: &next}

	if req.HasTriage() {
		if req.VitalSigns != nil {
			next.VitalSigns = req.VitalSigns
		}
		if req.TriageNotes != nil {
			next.TriageNotes = *req.TriageNotes
		}
		next.TriageCompletedBy = &actor.ID
		next.TriageCompletedAt = &now
	}

	if req.QuestioningFindings != nil {
		next.QuestioningFindings = *req.QuestioningFindings
		next.QuestioningCompletedAt = &now
		next.AttendingDoctorID = &actor.ID
	}

	switch req.Stage {
	case model.StageLaboratoryTest:
		for _, name := range req.RequestedLabTests {
			w.LabTests = append(w.LabTests, &model.LabTest{
				Base:          model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
				VisitID:       current.ID,
				TestName:      name,
				TestType:      name,
				Status:        model.LabTestStatusRequested,
				RequestedByID: &actor.ID,
				RequestedAt:   now,
			})
		}

	case model.StageResultsByDoctor:
		if req.LabFindings != nil {
			next.LabFindings = *req.LabFindings
			next.LabCompletedAt = &now
		}

	case model.StageDischarged:
		next.DischargeTime = &now
		if req.Diagnosis != nil {
			next.Diagnosis = *req.Diagnosis
		}
		if req.TreatmentPlan != nil {
			next.TreatmentPlan = *req.TreatmentPlan
		}
		if req.FinalFindings != nil {
			next.FinalFindings = *req.FinalFindings
		}
		if req.Prescription != nil {
			w.Prescription = &model.Prescription{
				Base:           model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
				VisitID:        current.ID,
				PrescribedByID: &actor.ID,
				Medications:    ParseMedications(*req.Prescription),
			}
		}
	}

	events, err := transitionEvents(current, &next, w.Prescription, actor, now)
	if err != nil {
		return nil, err
	}
	w.Events = events
	return w, nil
}

func transitionEvents(prev, next *model.Visit, rx *model.Prescription, actor *model.Actor, now time.Time) ([]*model.OutboxEvent, error) {
	changed, err := model.NewOutboxEvent(next.ID, model.EventVisitStageChanged, model.VisitStageChangedPayload{
		VisitID:    next.ID,
		PatientID:  next.PatientID,
		From:       prev.Stage,
		To:         next.Stage,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		OccurredAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build stage changed event: %w", err)
	}
	events := []*model.OutboxEvent{changed}

	if next.Stage != model.StageDischarged {
		return events, nil
	}

	payload := model.VisitDischargedPayload{
		VisitID:       next.ID,
		PatientID:     next.PatientID,
		DischargeTime: *next.DischargeTime,
		Diagnosis:     next.Diagnosis,
		TreatmentPlan: next.TreatmentPlan,
	}
	if rx != nil {
		payload.Medications = rx.Medications
	}
	discharged, err := model.NewOutboxEvent(next.ID, model.EventVisitDischarged, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build discharged event: %w", err)
	}
	return append(events, discharged), nil
}
