package appointment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type stubService struct {
	bookReq   *model.BookAppointmentRequest
	bookErr   error
	filter    *model.AppointmentFilter
	cancelReq *model.CancelAppointmentRequest
	confirmed uuid.UUID
}

func (s *stubService) Book(_ context.Context, actor *model.Actor, req *model.BookAppointmentRequest) (*model.Appointment, error) {
	if s.bookErr != nil {
		return nil, s.bookErr
	}
	s.bookReq = req
	return &model.Appointment{
		Base:        model.Base{ID: uuid.New()},
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		BookedByID:  &actor.ID,
		ScheduledAt: req.ScheduledAt,
		Status:      model.AppointmentStatusScheduled,
	}, nil
}

func (s *stubService) Get(_ context.Context, _ *model.Actor, id uuid.UUID) (*model.Appointment, error) {
	return &model.Appointment{Base: model.Base{ID: id}, Status: model.AppointmentStatusScheduled}, nil
}

func (s *stubService) List(_ context.Context, _ *model.Actor, f *model.AppointmentFilter) ([]*model.Appointment, int, error) {
	s.filter = f
	return []*model.Appointment{}, 0, nil
}

func (s *stubService) Confirm(_ context.Context, _ *model.Actor, id uuid.UUID) (*model.Appointment, error) {
	s.confirmed = id
	return &model.Appointment{Base: model.Base{ID: id}, Status: model.AppointmentStatusConfirmed}, nil
}

func (s *stubService) Cancel(_ context.Context, _ *model.Actor, id uuid.UUID, req *model.CancelAppointmentRequest) (*model.Appointment, error) {
	s.cancelReq = req
	return &model.Appointment{Base: model.Base{ID: id}, Status: model.AppointmentStatusCancelled, CancelReason: req.Reason}, nil
}

func router(t *testing.T, svc Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())

	actor := model.NewActor(&model.User{Base: model.Base{ID: uuid.New()}, Role: model.RoleReception})
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextActor, actor); c.Next() })
	NewHandler(svc).RegisterRoutes(r.Group(""))
	return r
}

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBookAppointment(t *testing.T) {
	svc := &stubService{}
	r := router(t, svc)
	patientID, doctorID, visitID := uuid.New(), uuid.New(), uuid.New()

	w := post(r, "/appointments", `{
		"patient_id":"`+patientID.String()+`",
		"doctor_id":"`+doctorID.String()+`",
		"scheduled_at":"2024-06-04T10:00:00Z",
		"duration_minutes":45,
		"reason":"follow-up",
		"previous_visit_id":"`+visitID.String()+`"
	}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, patientID, svc.bookReq.PatientID)
	assert.Equal(t, 45, svc.bookReq.DurationMinutes)
	assert.Equal(t, visitID, *svc.bookReq.PreviousVisitID)
	assert.Contains(t, w.Body.String(), `"status":"scheduled"`)
}

func TestBookAppointmentRejectsBadInput(t *testing.T) {
	svc := &stubService{}
	r := router(t, svc)
	ids := `"patient_id":"` + uuid.NewString() + `","doctor_id":"` + uuid.NewString() + `"`

	for name, body := range map[string]string{
		"missing reason": `{` + ids + `,"scheduled_at":"2024-06-04T10:00:00Z"}`,
		"too short":      `{` + ids + `,"scheduled_at":"2024-06-04T10:00:00Z","reason":"x","duration_minutes":5}`,
		"missing time":   `{` + ids + `,"reason":"x"}`,
	} {
		w := post(r, "/appointments", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
	assert.Nil(t, svc.bookReq)
}

func TestBookAppointmentSlotTaken(t *testing.T) {
	r := router(t, &stubService{bookErr: apperrors.Conflict("doctor already has an appointment in this slot", nil)})

	w := post(r, "/appointments", `{"patient_id":"`+uuid.NewString()+`","doctor_id":"`+uuid.NewString()+`","scheduled_at":"2024-06-04T10:00:00Z","reason":"x"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListAppointmentsParsesFilters(t *testing.T) {
	svc := &stubService{}
	r := router(t, svc)
	doctorID := uuid.New()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/appointments?status=confirmed&is_follow_up=true&doctor_id="+doctorID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.AppointmentStatusConfirmed, svc.filter.Status)
	require.NotNil(t, svc.filter.IsFollowUp)
	assert.True(t, *svc.filter.IsFollowUp)
	assert.Equal(t, doctorID, *svc.filter.DoctorID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/appointments?status=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmAndCancelAppointment(t *testing.T) {
	svc := &stubService{}
	r := router(t, svc)
	id := uuid.New()

	w := post(r, "/appointments/"+id.String()+"/confirm", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, svc.confirmed)

	w = post(r, "/appointments/"+id.String()+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.cancelReq.Reason)

	w = post(r, "/appointments/"+id.String()+"/cancel", `{"reason":"feeling better"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "feeling better", svc.cancelReq.Reason)
	assert.Contains(t, w.Body.String(), `"cancel_reason":"feeling better"`)
}
