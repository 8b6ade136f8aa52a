package labtest

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
	List(ctx context.Context, actor *model.Actor, filter *model.LabTestFilter) ([]*model.LabTest, int, error)
	Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.LabTest, error)
	Complete(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.CompleteLabTestRequest) (*model.LabTest, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	tests := r.Group("/lab-tests")
	{
		tests.GET("", h.ListLabTests)
		tests.GET("/:id", h.GetLabTest)
		tests.POST("/:id/complete", h.CompleteLabTest)
	}
}

func (h *Handler) ListLabTests(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var filter model.LabTestFilter
	if !handler.BindQuery(c, &filter) || !handler.QueryUUID(c, "visit_id", &filter.VisitID) {
		return
	}

	tests, total, err := h.service.List(c.Request.Context(), actor, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, tests, total)
}

func (h *Handler) GetLabTest(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	test, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, test)
}

func (h *Handler) CompleteLabTest(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.CompleteLabTestRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	test, err := h.service.Complete(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, test)
}
