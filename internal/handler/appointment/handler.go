package appointment

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Service interface {
	Book(ctx context.Context, actor *model.Actor, req *model.BookAppointmentRequest) (*model.Appointment, error)
	Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Appointment, error)
	List(ctx context.Context, actor *model.Actor, filter *model.AppointmentFilter) ([]*model.Appointment, int, error)
	Confirm(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Appointment, error)
	Cancel(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.CancelAppointmentRequest) (*model.Appointment, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.BookAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.POST("/:id/confirm", h.ConfirmAppointment)
		appointments.POST("/:id/cancel", h.CancelAppointment)
	}
}

func (h *Handler) BookAppointment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.BookAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	a, err := h.service.Book(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, a)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var filter model.AppointmentFilter
	if !handler.BindQuery(c, &filter) ||
		!handler.QueryUUID(c, "doctor_id", &filter.DoctorID) ||
		!handler.QueryUUID(c, "patient_id", &filter.PatientID) {
		return
	}

	list, total, err := h.service.List(c.Request.Context(), actor, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, list, total)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	a, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, a)
}

func (h *Handler) ConfirmAppointment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	a, err := h.service.Confirm(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, a)
}

// CancelAppointment accepts an empty body when no reason is given.
func (h *Handler) CancelAppointment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.CancelAppointmentRequest
	if c.Request.ContentLength != 0 && !handler.BindJSON(c, &req) {
		return
	}

	a, err := h.service.Cancel(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, a)
}
