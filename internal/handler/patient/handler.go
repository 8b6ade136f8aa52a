package patient

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
	Create(ctx context.Context, actor *model.Actor, req *model.CreatePatientRequest) (*model.Patient, error)
	Update(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.UpdatePatientRequest) (*model.Patient, error)
	Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Patient, error)
	List(ctx context.Context, actor *model.Actor, filter *model.PatientFilter) ([]*model.Patient, int, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)
		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	patient, err := h.service.Create(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, patient)
}

func (h *Handler) ListPatients(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var filter model.PatientFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	patients, total, err := h.service.List(c.Request.Context(), actor, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, patients, total)
}

func (h *Handler) GetPatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	patient, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, patient)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.UpdatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	patient, err := h.service.Update(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, patient)
}
