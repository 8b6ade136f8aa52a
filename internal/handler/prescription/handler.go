package prescription

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Service interface {
	List(ctx context.Context, actor *model.Actor, filter *model.PrescriptionFilter) ([]*model.Prescription, int, error)
	Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Prescription, error)
	Dispense(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.DispenseRequest) (*model.Prescription, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rx := r.Group("/prescriptions")
	{
		rx.GET("", h.ListPrescriptions)
		rx.GET("/:id", h.GetPrescription)
		rx.POST("/:id/dispense", h.Dispense)
	}
}

func (h *Handler) ListPrescriptions(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var filter model.PrescriptionFilter
	if !handler.BindQuery(c, &filter) || !handler.QueryUUID(c, "visit_id", &filter.VisitID) {
		return
	}

	list, total, err := h.service.List(c.Request.Context(), actor, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, list, total)
}

func (h *Handler) GetPrescription(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	rx, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, rx)
}

// Dispense accepts an empty body; dispensed_by then defaults to the actor.
func (h *Handler) Dispense(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.DispenseRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	rx, err := h.service.Dispense(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, rx)
}
