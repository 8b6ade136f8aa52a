package visit

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
	CheckIn(ctx context.Context, actor *model.Actor, req *model.CheckInRequest) (*model.Visit, error)
	Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Visit, error)
	List(ctx context.Context, actor *model.Actor, filter *model.VisitFilter) ([]*model.Visit, int, error)
	Queue(ctx context.Context, actor *model.Actor) ([]*model.Visit, error)
	Transition(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.TransitionRequest) (*model.Visit, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	visits := r.Group("/visits")
	{
		visits.POST("", h.CheckIn)
		visits.GET("", h.ListVisits)
		visits.GET("/queue", h.Queue)
		visits.GET("/:id", h.GetVisit)
		visits.POST("/:id/stage", h.MoveToStage)
	}
}

func (h *Handler) CheckIn(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CheckInRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	visit, err := h.service.CheckIn(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, visit)
}

func (h *Handler) ListVisits(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var filter model.VisitFilter
	if !handler.BindQuery(c, &filter) || !handler.QueryUUID(c, "patient_id", &filter.PatientID) {
		return
	}

	visits, total, err := h.service.List(c.Request.Context(), actor, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, visits, total)
}

func (h *Handler) Queue(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	visits, err := h.service.Queue(c.Request.Context(), actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, visits, len(visits))
}

func (h *Handler) GetVisit(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	visit, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, visit)
}

// MoveToStage applies a stage transition. The stage itself is validated by
// the service so an unknown stage reads "invalid stage".
func (h *Handler) MoveToStage(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.TransitionRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	visit, err := h.service.Transition(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, visit)
}
