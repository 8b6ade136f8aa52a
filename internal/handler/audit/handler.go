package audit

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Service interface {
	List(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLog, int, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit-logs",
		middleware.RequireCapability(model.CapManageUsers, "only admins can read the audit trail"),
		h.ListLogs,
	)
}

func (h *Handler) ListLogs(c *gin.Context) {
	var filter model.AuditFilter
	if !handler.BindQuery(c, &filter) ||
		!handler.QueryUUID(c, "entity_id", &filter.EntityID) ||
		!handler.QueryUUID(c, "user_id", &filter.UserID) {
		return
	}

	logs, total, err := h.service.List(c.Request.Context(), &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, logs, total)
}
