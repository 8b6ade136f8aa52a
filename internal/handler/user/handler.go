package user

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
	CreateUser(ctx context.Context, actor *model.Actor, req *model.CreateUserRequest) (*model.User, error)
	UpdateUser(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.UpdateUserRequest) (*model.User, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.POST("", h.CreateUser)
		users.GET("/me", h.Me)
		users.PATCH("/:id", h.UpdateUser)
	}
}

func (h *Handler) CreateUser(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreateUserRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	user, err := h.service.CreateUser(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, user)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateUserRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	user, err := h.service.UpdateUser(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, user)
}

type meResponse struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Role         model.Role         `json:"role"`
	Capabilities []model.Capability `json:"capabilities"`
}

// Me describes the caller and what their role allows.
func (h *Handler) Me(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	caps := []model.Capability{}
	for _, cp := range model.Capabilities {
		if actor.Can(cp) {
			caps = append(caps, cp)
		}
	}
	httputil.RespondWithSuccess(c, http.StatusOK, meResponse{
		ID:           actor.ID.String(),
		Name:         actor.Name,
		Role:         actor.Role,
		Capabilities: caps,
	})
}
